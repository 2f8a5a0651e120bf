// Package approval records which toolchain configurations a user has
// approved for execution, per project, outside of any project tree.
package approval

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Record is one approval.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	Project     string    `json:"project"`
	Revision    string    `json:"revision,omitempty"`
	ApprovedAt  time.Time `json:"approved_at"`
	Note        string    `json:"note,omitempty"`
}

// Store persists approval records keyed by project and fingerprint.
type Store interface {
	// Get returns the record, or ok=false when none exists.
	Get(ctx context.Context, project, fingerprint string) (rec Record, ok bool, err error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, rec Record) error

	// Delete removes every record of project. It returns the number removed.
	Delete(ctx context.Context, project string) (int, error)

	// List returns all records ordered by project, then approval time.
	List(ctx context.Context) ([]Record, error)

	// Location is the filesystem path of the store, or "" for none.
	Location() string

	Close() error
}

type key struct{ project, fingerprint string }

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[key]Record
	location string
}

// NewMemoryStore creates an empty store. location is reported by Location
// and lets tests exercise the in-project check.
func NewMemoryStore(location string) *MemoryStore {
	return &MemoryStore{records: make(map[key]Record), location: location}
}

func (m *MemoryStore) Get(_ context.Context, project, fingerprint string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key{project, fingerprint}]
	return rec, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key{rec.Project, rec.Fingerprint}] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, project string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.records {
		if k.project == project {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Location() string { return m.location }

func (m *MemoryStore) Close() error { return nil }

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Project != recs[j].Project {
			return recs[i].Project < recs[j].Project
		}
		return recs[i].ApprovedAt.Before(recs[j].ApprovedAt)
	})
}
