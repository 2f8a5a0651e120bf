package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/checkcode/internal/docs"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/preprocessor"
	"git.home.luguber.info/inful/checkcode/internal/propagation"
	"git.home.luguber.info/inful/checkcode/internal/watch"
)

// CheckCmd implements the 'check' command: every Markdown file below the
// chapter directory is checked as one chapter, in path order.
type CheckCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Project directory (containing book.toml or checkcode.yaml)"`
	Src string `help:"Chapter directory relative to the project (default: src/ for books, else the project)"`
}

func (c *CheckCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	s, err := root.newSession(g, g.stdout())
	if err != nil {
		return err
	}
	defer s.Close()
	return checkOnce(ctx, s.runner, c.Dir, c.Src, root.NoDotenv, g.logger())
}

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Dir      string        `arg:"" optional:"" default:"." help:"Project directory"`
	Src      string        `help:"Chapter directory relative to the project"`
	Every    time.Duration `help:"Also re-check on this interval (e.g. 10m)"`
	Debounce time.Duration `default:"500ms" help:"Wait for changes to settle before re-checking"`
}

func (w *WatchCmd) Run(ctx context.Context, g *Global, root *CLI) error {
	logger := g.logger()
	s, err := root.newSession(g, g.stdout())
	if err != nil {
		return err
	}
	defer s.Close()

	watcher, err := watch.New(watch.Options{
		Dir:      w.Dir,
		Debounce: w.Debounce,
		Every:    w.Every,
		Logger:   logger,
	}, func(ctx context.Context, reason string) error {
		err := checkOnce(ctx, s.runner, w.Dir, w.Src, root.NoDotenv, logger)
		s.flushMetrics()
		return err
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInfrastructure, "start watcher").Fatal().Build()
	}
	return watcher.Run(ctx)
}

func checkOnce(ctx context.Context, runner *preprocessor.Runner, dir, src string, noDotenv bool, logger *slog.Logger) error {
	p, err := readProject(dir, noDotenv, logger)
	if err != nil {
		return err
	}
	chapters, err := loadChapters(chapterRoot(p.Root, src))
	if err != nil {
		return err
	}

	_, err = runner.Check(ctx, preprocessor.Input{
		Project:  p.Root,
		Config:   p.Config,
		DotEnv:   p.DotEnv,
		Chapters: chapters,
	})
	return err
}

// chapterRoot picks the directory chapters are discovered in.
func chapterRoot(project, src string) string {
	if src != "" {
		if filepath.IsAbs(src) {
			return src
		}
		return filepath.Join(project, src)
	}
	if _, err := os.Stat(filepath.Join(project, "book.toml")); err == nil {
		if info, err := os.Stat(filepath.Join(project, "src")); err == nil && info.IsDir() {
			return filepath.Join(project, "src")
		}
	}
	return project
}

func loadChapters(dir string) ([]propagation.Document, error) {
	files, err := docs.Discover(dir)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "discover chapters").
			WithContext("dir", dir).Build()
	}
	chapters := make([]propagation.Document, 0, len(files))
	for i := range files {
		if err := files[i].LoadContent(); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read chapter").
				WithContext("path", files[i].Path).Build()
		}
		chapters = append(chapters, propagation.Document{Path: files[i].RelativePath, Content: files[i].Content})
	}
	return chapters, nil
}
