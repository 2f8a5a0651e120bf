package metrics

import "time"

// Outcome labels a finished run.
type Outcome string

const (
	OutcomePassed       Outcome = "passed"
	OutcomeFailed       Outcome = "failed"
	OutcomeNotApproved  Outcome = "not_approved"
	OutcomeConfigError  Outcome = "config_error"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeInfraFailure Outcome = "infrastructure"
	OutcomeCanceled     Outcome = "canceled"
)

// Recorder defines observability hooks for runs, stages and compiler tasks.
// Implementations may forward to Prometheus or elsewhere.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome Outcome)
	ObserveTaskDuration(language string, d time.Duration)
	IncTaskResult(language, kind string)
	AddSkippedTasks(n int)
	SetWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncRunOutcome(Outcome)                      {}
func (NoopRecorder) ObserveTaskDuration(string, time.Duration)  {}
func (NoopRecorder) IncTaskResult(string, string)               {}
func (NoopRecorder) AddSkippedTasks(int)                        {}
func (NoopRecorder) SetWorkers(int)                             {}
