package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/checkcode/internal/approval"
	"git.home.luguber.info/inful/checkcode/internal/config"
	"git.home.luguber.info/inful/checkcode/internal/events"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
	"git.home.luguber.info/inful/checkcode/internal/metrics"
	"git.home.luguber.info/inful/checkcode/internal/preprocessor"
	"git.home.luguber.info/inful/checkcode/internal/report"
	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	// Out receives command output; stdout when nil.
	Out io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Store       string `name:"store" env:"CHECKCODE_STORE" help:"Approval database path (default: user data directory)"`
	Format      string `short:"f" default:"text" enum:"text,json" help:"Report format (text or json)"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics to this textfile after the run"`
	NATSURL     string `name:"nats-url" env:"CHECKCODE_NATS_URL" help:"Publish run summaries to this NATS server"`
	NATSSubject string `name:"nats-subject" default:"checkcode.runs" help:"Subject for run summaries"`
	NoDotenv    bool   `name:"no-dotenv" help:"Do not load .env files from the project directory"`
	StagingDir  string `name:"staging-dir" help:"Parent directory for staged sources (default: system temp dir)"`
	KeepStaging bool   `name:"keep-staging" help:"Keep staged sources after the run"`

	Preprocess PreprocessCmd `cmd:"" default:"1" hidden:"" help:"Run as an mdBook preprocessor (reads [context, book] from stdin)"`
	Supports   SupportsCmd   `cmd:"" help:"Report whether a renderer is supported"`
	Allow      AllowCmd      `cmd:"" help:"Approve the toolchain configuration of a project"`
	Deny       DenyCmd       `cmd:"" help:"Revoke all approvals of a project"`
	Status     StatusCmd     `cmd:"" help:"Show whether the current configuration is approved"`
	List       ListCmd       `cmd:"" help:"List approved projects"`
	Check      CheckCmd      `cmd:"" help:"Check code blocks of Markdown files in a directory"`
	Watch      WatchCmd      `cmd:"" help:"Re-check a directory whenever it changes"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// StorePath returns the approval database selected by --store.
func (c *CLI) StorePath() (string, error) {
	if c.Store != "" {
		return c.Store, nil
	}
	return approval.DefaultPath()
}

// OpenStore opens the approval database for writing, creating it if needed.
func (c *CLI) OpenStore() (*approval.SQLiteStore, error) {
	path, err := c.StorePath()
	if err != nil {
		return nil, err
	}
	return approval.OpenSQLiteStore(path)
}

// OpenStoreReadOnly opens the approval database for checking.
func (c *CLI) OpenStoreReadOnly() (approval.Store, error) {
	path, err := c.StorePath()
	if err != nil {
		return nil, err
	}
	return approval.OpenReadOnly(path)
}

// session bundles a runner with the resources it holds open.
type session struct {
	runner   *preprocessor.Runner
	store    approval.Store
	recorder *metrics.PrometheusRecorder
	pub      events.Publisher
	metrics  string
	logger   *slog.Logger
}

// newSession wires a Runner from the global flags. Close must be called.
func (c *CLI) newSession(g *Global, reportOut io.Writer) (*session, error) {
	logger := g.logger()
	store, err := c.OpenStoreReadOnly()
	if err != nil {
		return nil, err
	}

	s := &session{store: store, logger: logger, metrics: c.MetricsFile}
	opts := preprocessor.Options{
		Store:       store,
		Logger:      logger,
		StagingDir:  c.StagingDir,
		KeepStaging: c.KeepStaging,
		Format:      report.Format(c.Format),
		ReportOut:   reportOut,
	}
	if c.MetricsFile != "" {
		s.recorder = metrics.NewPrometheusRecorder(prom.NewRegistry())
		opts.Recorder = s.recorder
	}
	if c.NATSURL != "" {
		pub, err := events.NewNATSPublisher(c.NATSURL, c.NATSSubject)
		if err != nil {
			// A missing broker never blocks a check.
			logger.Warn("NATS unavailable; run summaries will not be published", logfields.Error(err))
		} else {
			s.pub = pub
			opts.Publisher = pub
		}
	}
	s.runner = preprocessor.New(opts)
	return s, nil
}

// flushMetrics writes the metrics textfile, if one was requested.
func (s *session) flushMetrics() {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.WriteTextfile(s.metrics); err != nil {
		s.logger.Warn("Failed to write metrics file", logfields.Path(s.metrics), logfields.Error(err))
	}
}

func (s *session) Close() {
	s.flushMetrics()
	if s.pub != nil {
		_ = s.pub.Close()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Failed to close approval store", logfields.Error(err))
	}
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// project is the configuration input read from a project directory.
type project struct {
	Root   string
	Config map[string]any
	DotEnv map[string]string
}

// readProject locates and reads the configuration of the project in dir.
// Root is the directory holding the configuration file.
func readProject(dir string, noDotenv bool, logger *slog.Logger) (project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return project{}, err
	}
	path, err := config.Discover(abs)
	if err != nil {
		return project{}, err
	}
	raw, err := config.LoadFile(path)
	if err != nil {
		return project{}, err
	}
	logger.Debug("Loaded configuration", logfields.Path(path))
	p := project{Root: abs, Config: raw}
	if !noDotenv {
		p.DotEnv = readDotEnv(abs, logger)
	}
	return p, nil
}

// readDotEnv returns the placeholder values of the .env files in dir.
func readDotEnv(dir string, logger *slog.Logger) map[string]string {
	vars, read, err := config.ReadDotEnv(dir)
	if err != nil {
		logger.Warn("Failed to read .env file", logfields.Error(err))
	}
	for _, f := range read {
		logger.Debug("Read environment file", logfields.Path(f))
	}
	return vars
}
