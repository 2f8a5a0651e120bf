// Package watch re-runs a check when chapters or configuration change, and
// optionally on a fixed interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/checkcode/internal/logfields"
	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
)

// RunFunc performs one check. reason says what triggered it.
type RunFunc func(ctx context.Context, reason string) error

// Options configures a Watcher.
type Options struct {
	Dir string
	// Debounce delays a run until changes settle. Zero selects 500ms.
	Debounce time.Duration
	// Every additionally runs the check on a fixed interval when positive.
	Every  time.Duration
	Logger *slog.Logger
}

// Watcher monitors a directory tree and serializes check runs.
type Watcher struct {
	opts     Options
	run      RunFunc
	watcher  *fsnotify.Watcher
	trigger  chan string
	runsDone chan struct{}
}

// New creates a Watcher for opts.Dir.
func New(opts Options, run RunFunc) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	abs, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory: %w", err)
	}
	opts.Dir = abs

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		opts:     opts,
		run:      run,
		watcher:  fw,
		trigger:  make(chan string, 1),
		runsDone: make(chan struct{}, 16),
	}, nil
}

// Run performs an initial check, then re-runs it on changes until ctx ends.
// Runs never overlap; changes that arrive during a run cause one more run.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	if err := w.addTree(w.opts.Dir); err != nil {
		return err
	}

	if w.opts.Every > 0 {
		sched, err := w.schedule()
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
	}

	w.opts.Logger.Info("Watching for changes", logfields.Path(w.opts.Dir))
	w.execute(ctx, "initial")

	go w.watchLoop(ctx)
	w.runLoop(ctx)
	return nil
}

func (w *Watcher) schedule() (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(w.opts.Every),
		gocron.NewTask(w.Trigger, "interval"),
		gocron.WithName("checkcode-interval"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create interval job: %w", err)
	}
	return s, nil
}

// Trigger requests a run. Requests coalesce while one is pending.
func (w *Watcher) Trigger(reason string) {
	select {
	case w.trigger <- reason:
	default:
	}
}

func (w *Watcher) runLoop(ctx context.Context) {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case reason := <-w.trigger:
			pending = reason
			if reason == "interval" {
				// Scheduled runs are not debounced.
				w.execute(ctx, reason)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.execute(ctx, pending)
		}
	}
}

func (w *Watcher) execute(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	w.opts.Logger.Debug("Running check", slog.String("reason", reason))
	if err := w.run(ctx, reason); err != nil {
		w.opts.Logger.Warn("Check failed", slog.String("reason", reason), logfields.Error(err))
	}
	select {
	case w.runsDone <- struct{}{}:
	default:
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if err := w.addTree(event.Name); err != nil {
					w.opts.Logger.Debug("Not watching new path", logfields.Path(event.Name), logfields.Error(err))
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if Relevant(event.Name) {
				w.opts.Logger.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				w.Trigger("change: " + filepath.Base(event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

// addTree watches root and every non-hidden directory below it. fsnotify
// does not watch recursively.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.opts.Dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Relevant reports whether a change to path can affect a check.
func Relevant(path string) bool {
	base := filepath.Base(path)
	switch base {
	case "book.toml", "checkcode.yaml", "checkcode.yml", ".checkcode.yaml", ".env", ".env.local":
		return true
	}
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".md", ".markdown", ".mdown", ".mkd":
		return true
	}
	return false
}
