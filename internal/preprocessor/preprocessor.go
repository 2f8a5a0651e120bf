// Package preprocessor wires the check pipeline together: configuration,
// approval, task construction, compilation and reporting.
package preprocessor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/checkcode/internal/approval"
	"git.home.luguber.info/inful/checkcode/internal/compile"
	"git.home.luguber.info/inful/checkcode/internal/config"
	"git.home.luguber.info/inful/checkcode/internal/events"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/git"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
	"git.home.luguber.info/inful/checkcode/internal/metrics"
	"git.home.luguber.info/inful/checkcode/internal/propagation"
	"git.home.luguber.info/inful/checkcode/internal/report"
	"git.home.luguber.info/inful/checkcode/internal/toolchain"
	"git.home.luguber.info/inful/checkcode/internal/workspace"
	"github.com/google/uuid"
)

// Options holds the collaborators of a Runner. Nil fields get defaults.
type Options struct {
	Store     approval.Store
	Executor  compile.Executor
	Recorder  metrics.Recorder
	Publisher events.Publisher
	Logger    *slog.Logger
	// Lookup resolves ${VAR} placeholders; os.LookupEnv when nil.
	Lookup config.LookupFunc
	// StagingDir is the parent of per-run staging directories.
	StagingDir  string
	KeepStaging bool
	Limits      propagation.Limits
	Format      report.Format
	// ReportOut receives the rendered report; stderr when nil.
	ReportOut io.Writer
}

// Input is one set of chapters to check.
type Input struct {
	// Project is the directory approvals are recorded for.
	Project string
	Config  map[string]any
	// DotEnv holds values read from the project's .env files. They resolve
	// placeholders the process environment leaves unset and are never
	// exported to compilers.
	DotEnv   map[string]string
	Chapters []propagation.Document
}

// Plan is a resolved configuration and its approval fingerprint.
type Plan struct {
	Config      *config.Config
	Table       *toolchain.Table
	Fingerprint string
}

// Runner executes checks.
type Runner struct {
	opts Options
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Executor == nil {
		opts.Executor = compile.NewExecExecutor()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.ReportOut == nil {
		opts.ReportOut = os.Stderr
	}
	return &Runner{opts: opts}
}

// Prepare decodes and resolves a raw configuration table. dotenv supplies
// placeholder values after the process environment.
func (r *Runner) Prepare(raw map[string]any, dotenv map[string]string) (*Plan, error) {
	cfg, err := config.Decode(raw)
	if err != nil {
		return nil, err
	}
	lookup := config.WithDotEnv(r.opts.Lookup, dotenv)
	table, err := toolchain.Resolve(cfg, config.NewExpander(lookup, cfg.Env), r.opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Plan{Config: cfg, Table: table, Fingerprint: approval.Fingerprint(table)}, nil
}

// Check runs the whole pipeline over in. The returned report is nil when
// the run stopped before compiling. The error is classified for exit codes.
func (r *Runner) Check(ctx context.Context, in Input) (*report.Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger := r.opts.Logger.With(logfields.RunID(runID))
	in.Project = approval.ProjectKey(in.Project)

	rep, fingerprint, err := r.check(ctx, logger, runID, in)

	outcome := outcomeFor(ctx, err)
	elapsed := time.Since(started)
	r.opts.Recorder.IncRunOutcome(outcome)
	r.opts.Recorder.ObserveRunDuration(elapsed)
	r.publish(ctx, logger, runID, in.Project, fingerprint, outcome, rep, started, elapsed)

	logger.Info("Check finished",
		logfields.Outcome(string(outcome)),
		logfields.DurationMS(float64(elapsed.Microseconds())/1000))
	return rep, err
}

func (r *Runner) check(ctx context.Context, logger *slog.Logger, runID string, in Input) (*report.Report, string, error) {
	stage := r.stageTimer(logger)

	done := stage("resolve")
	plan, err := r.Prepare(in.Config, in.DotEnv)
	done()
	if err != nil {
		return nil, "", err
	}
	if plan.Table.Len() == 0 {
		logger.Info("No languages configured; nothing to check")
		rep := report.Aggregate(compile.Summary{})
		rep.RunID = runID
		return rep, plan.Fingerprint, nil
	}

	done = stage("approval")
	err = r.gate(ctx, logger, in.Project, plan.Fingerprint)
	done()
	if err != nil {
		return nil, plan.Fingerprint, err
	}

	done = stage("extract")
	tasks, err := propagation.NewBuilder(plan.Table, r.opts.Limits).Build(ctx, in.Chapters)
	done()
	if err != nil {
		return nil, plan.Fingerprint, err
	}
	logger.Debug("Built compile tasks", logfields.Tasks(len(tasks)), slog.Int("chapters", len(in.Chapters)))

	timeout, _ := plan.Config.TaskTimeout() // validated by Decode
	sum, err := r.compile(ctx, logger, runID, in.Project, plan, tasks, timeout, stage)
	if err != nil {
		return nil, plan.Fingerprint, err
	}

	rep := report.Aggregate(sum)
	rep.RunID = runID
	if err := report.Write(r.opts.ReportOut, rep, r.opts.Format); err != nil {
		logger.Warn("Failed to write report", logfields.Error(err))
	}
	if ctx.Err() != nil {
		return rep, plan.Fingerprint, ferrors.WrapError(ctx.Err(), ferrors.CategoryInternal, "check canceled").Fatal().Build()
	}
	return rep, plan.Fingerprint, rep.Err()
}

func (r *Runner) gate(ctx context.Context, logger *slog.Logger, project, fingerprint string) error {
	if r.opts.Store == nil {
		return ferrors.InternalError("no approval store configured").Build()
	}
	return approval.NewGate(r.opts.Store, logger).Check(ctx, project, fingerprint)
}

func (r *Runner) compile(ctx context.Context, logger *slog.Logger, runID, project string, plan *Plan, tasks []compile.Task, timeout time.Duration, stage func(string) func()) (compile.Summary, error) {
	if len(tasks) == 0 {
		return compile.Summary{}, nil
	}

	var ws *workspace.Manager
	if r.opts.KeepStaging {
		ws = workspace.NewKeptManager(r.opts.StagingDir, runID)
	} else {
		ws = workspace.NewManager(r.opts.StagingDir, runID)
	}
	if err := ws.Create(); err != nil {
		return compile.Summary{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create staging workspace").Fatal().Build()
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn("Failed to clean up staging workspace", logfields.Error(err))
		}
	}()

	sched := compile.NewScheduler(r.opts.Executor, compile.Options{
		Jobs:     plan.Config.Jobs(),
		Timeout:  timeout,
		FailFast: plan.Config.FailFast,
		Staging:  ws,
		WorkDir:  project,
		Recorder: r.opts.Recorder,
		Logger:   logger,
	})
	done := stage("compile")
	sum := sched.Run(ctx, tasks)
	done()
	return sum, nil
}

func (r *Runner) stageTimer(logger *slog.Logger) func(string) func() {
	return func(name string) func() {
		start := time.Now()
		return func() {
			d := time.Since(start)
			r.opts.Recorder.ObserveStageDuration(name, d)
			logger.Debug("Stage finished", logfields.Stage(name), logfields.DurationMS(float64(d.Microseconds())/1000))
		}
	}
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, runID, project, fingerprint string, outcome metrics.Outcome, rep *report.Report, started time.Time, elapsed time.Duration) {
	if _, noop := r.opts.Publisher.(events.NoopPublisher); noop {
		return
	}
	summary := events.RunSummary{
		RunID:       runID,
		Project:     project,
		Fingerprint: fingerprint,
		Outcome:     string(outcome),
		StartedAt:   started.UTC(),
		DurationMS:  elapsed.Milliseconds(),
	}
	if p, err := git.Detect(project); err == nil {
		summary.Revision = p.Revision
	}
	if rep != nil {
		summary.Tasks = rep.Stats.Tasks
		summary.Passed = rep.Stats.Passed
		summary.Failed = rep.Stats.Failed
		summary.Skipped = rep.Stats.Skipped
		summary.Languages = make(map[string]int, len(rep.Stats.Languages))
		for _, ls := range rep.Stats.Languages {
			summary.Languages[ls.Language] = ls.Blocks
		}
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.opts.Publisher.Publish(pubCtx, summary); err != nil {
		logger.Warn("Failed to publish run summary", logfields.Error(err))
	}
}

func outcomeFor(ctx context.Context, err error) metrics.Outcome {
	if ctx.Err() != nil {
		return metrics.OutcomeCanceled
	}
	if err == nil {
		return metrics.OutcomePassed
	}
	switch ferrors.GetCategory(err) {
	case ferrors.CategoryApproval:
		return metrics.OutcomeNotApproved
	case ferrors.CategoryConfig:
		return metrics.OutcomeConfigError
	case ferrors.CategoryValidation:
		return metrics.OutcomeInvalid
	case ferrors.CategoryInfrastructure, ferrors.CategoryFileSystem:
		return metrics.OutcomeInfraFailure
	}
	return metrics.OutcomeFailed
}
