// Package compile stages code blocks and runs their compilers on a bounded
// worker pool.
package compile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/checkcode/internal/config"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
	"git.home.luguber.info/inful/checkcode/internal/metrics"
)

// Stager writes task sources to exclusive files.
type Stager interface {
	Stage(name string, content []byte) (string, error)
	GetPath() string
}

// Options configures a Scheduler.
type Options struct {
	// Jobs bounds concurrent compiler processes; <= 0 selects the default.
	Jobs     int
	Timeout  time.Duration
	FailFast bool
	Staging  Stager
	// WorkDir is the compilers' working directory, normally the project
	// root. Empty inherits the current directory.
	WorkDir  string
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Scheduler runs tasks through an Executor.
type Scheduler struct {
	exec Executor
	opts Options
}

// Summary is the outcome of Run.
type Summary struct {
	// Results holds one entry per task, in submission order. Undispatched
	// tasks have KindSkipped.
	Results    []Result
	Dispatched int
	Skipped    int
	Workers    int
	Elapsed    time.Duration
}

// NewScheduler creates a Scheduler.
func NewScheduler(exec Executor, opts Options) *Scheduler {
	if opts.Jobs <= 0 {
		opts.Jobs = config.DefaultParallelJobs()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{exec: exec, opts: opts}
}

// runState is shared by the workers of one Run.
type runState struct {
	tasks      []Task
	results    []Result
	queue      chan int
	dispatched atomic.Int64
	stop       atomic.Bool
	// missing remembers executables that failed to start.
	missing sync.Map
}

// Run executes tasks with at most Jobs in flight. Workers take tasks in
// submission order from a single FIFO queue. With FailFast, no task is
// taken after the first failure; tasks already running finish.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) Summary {
	start := time.Now()
	st := &runState{
		tasks:   tasks,
		results: make([]Result, len(tasks)),
		queue:   make(chan int, len(tasks)),
	}
	for i, t := range tasks {
		st.results[i] = Result{Task: t, Kind: KindSkipped}
		st.queue <- i
	}
	close(st.queue)

	workers := min(s.opts.Jobs, len(tasks))
	s.opts.Recorder.SetWorkers(workers)
	s.opts.Logger.Debug("Scheduling compiler tasks", logfields.Tasks(len(tasks)), logfields.Jobs(workers))

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.worker(ctx, id, st)
		}(fmt.Sprintf("worker-%d", i))
	}
	wg.Wait()

	dispatched := int(st.dispatched.Load())
	skipped := len(tasks) - dispatched
	s.opts.Recorder.AddSkippedTasks(skipped)
	if skipped > 0 {
		s.opts.Logger.Warn("Tasks were not dispatched", slog.Int("skipped", skipped))
	}
	return Summary{
		Results:    st.results,
		Dispatched: dispatched,
		Skipped:    skipped,
		Workers:    workers,
		Elapsed:    time.Since(start),
	}
}

func (s *Scheduler) worker(ctx context.Context, id string, st *runState) {
	for idx := range st.queue {
		if st.stop.Load() || ctx.Err() != nil {
			return
		}
		st.dispatched.Add(1)

		res := s.runTask(ctx, st, st.tasks[idx])
		st.results[idx] = res

		s.opts.Recorder.IncTaskResult(res.Task.Toolchain.Language, string(res.Kind))
		s.opts.Recorder.ObserveTaskDuration(res.Task.Toolchain.Language, res.Elapsed)
		s.opts.Logger.Debug("Compiler task finished",
			logfields.Worker(id),
			logfields.Chapter(res.Task.ChapterPath),
			logfields.Block(res.Task.Ordinal),
			logfields.Language(res.Task.Label()),
			logfields.Outcome(string(res.Kind)),
			logfields.DurationMS(float64(res.Elapsed.Microseconds())/1000))

		if res.Failed() && s.opts.FailFast {
			st.stop.Store(true)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, st *runState, task Task) Result {
	res := Result{Task: task}
	tc := task.Toolchain

	if cached, ok := st.missing.Load(tc.Executable); ok {
		res.Kind = KindInfrastructure
		res.Err = cached.(error)
		return res
	}

	inv, err := s.invocation(task)
	if err != nil {
		res.Kind = KindInfrastructure
		res.Err = err
		return res
	}
	if tc.Input != config.InputStdin {
		res.Staged = inv.Args[len(inv.Args)-1]
	}

	runCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	out, err := s.exec.Run(runCtx, inv)
	res.ExitCode = out.ExitCode
	res.Stdout = s.scrub(out.Stdout)
	res.Stderr = s.scrub(out.Stderr)
	res.Elapsed = out.Elapsed

	switch {
	case err == nil && out.ExitCode == 0:
		res.Kind = KindOK
	case err == nil:
		res.Kind = KindCompileError
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.Kind = KindTimeout
		res.Err = fmt.Errorf("compiler did not finish within %s", s.opts.Timeout)
	case errors.Is(err, ErrExecutableNotFound):
		st.missing.Store(tc.Executable, err)
		res.Kind = KindInfrastructure
		res.Err = err
	default:
		res.Kind = KindInfrastructure
		res.Err = err
	}
	return res
}

func (s *Scheduler) invocation(task Task) (Invocation, error) {
	tc := task.Toolchain
	inv := Invocation{
		Executable: tc.Executable,
		Args:       append([]string(nil), tc.Args...),
		Dir:        s.opts.WorkDir,
	}

	if tc.Input == config.InputStdin {
		inv.Stdin = []byte(task.Source)
		return inv, nil
	}

	if s.opts.Staging == nil {
		return Invocation{}, errors.New("no staging workspace for file input")
	}
	staged, err := s.opts.Staging.Stage(StagingName(task), []byte(task.Source))
	if err != nil {
		// Distinct chapter paths can flatten to the same name.
		staged, err = s.opts.Staging.Stage(fmt.Sprintf("t%d_%s", task.Index, StagingName(task)), []byte(task.Source))
		if err != nil {
			return Invocation{}, err
		}
	}
	inv.Args = append(inv.Args, staged)
	return inv, nil
}

// scrub strips the per-run staging directory from compiler output, so staged
// files appear under their StagingName and reruns produce identical text.
func (s *Scheduler) scrub(out string) string {
	if s.opts.Staging == nil || out == "" {
		return out
	}
	dir := s.opts.Staging.GetPath()
	if dir == "" {
		return out
	}
	out = strings.ReplaceAll(out, dir+string(filepath.Separator), "")
	if filepath.Separator != '/' {
		out = strings.ReplaceAll(out, filepath.ToSlash(dir)+"/", "")
	}
	return strings.ReplaceAll(out, dir, ".")
}

// StagingName returns <label>_<chapter>_block_<n><ext> for a task, with the
// chapter path flattened to a single file-name component.
func StagingName(task Task) string {
	chapter := strings.TrimSuffix(task.ChapterPath, path.Ext(task.ChapterPath))
	return fmt.Sprintf("%s_%s_block_%d%s",
		sanitize(task.Label()), sanitize(chapter), task.Ordinal, task.Toolchain.Extension)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			return r
		case r == '+':
			return 'p'
		case r == '#':
			return 's'
		default:
			return '-'
		}
	}, s)
}
