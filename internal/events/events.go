// Package events publishes a summary of each run for dashboards and CI
// tooling that listen on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject run summaries are published on.
const DefaultSubject = "checkcode.runs"

// RunSummary is the payload of a run event.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	Project     string         `json:"project"`
	Revision    string         `json:"revision,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Outcome     string         `json:"outcome"`
	Tasks       int            `json:"tasks"`
	Passed      int            `json:"passed"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	Languages   map[string]int `json:"languages,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	DurationMS  int64          `json:"duration_ms"`
}

// Publisher delivers run summaries.
type Publisher interface {
	Publish(ctx context.Context, summary RunSummary) error
	Close() error
}

// NoopPublisher discards summaries.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, RunSummary) error { return nil }
func (NoopPublisher) Close() error                              { return nil }

// NATSPublisher publishes summaries as JSON messages.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url. An empty subject selects DefaultSubject.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("checkcode"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Debug("NATS publisher connected", "url", conn.ConnectedUrlRedacted(), "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish sends the summary and flushes, so the event is on the wire when
// Publish returns.
func (p *NATSPublisher) Publish(ctx context.Context, summary RunSummary) error {
	data, err := Encode(summary)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Checkcode-Run-Id", summary.RunID)
	msg.Header.Set("Checkcode-Outcome", summary.Outcome)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush run summary: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// Encode marshals a summary as sent on the wire.
func Encode(summary RunSummary) ([]byte, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal run summary: %w", err)
	}
	return data, nil
}
