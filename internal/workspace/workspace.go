package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/checkcode/internal/logfields"
	"github.com/google/uuid"
)

// Manager owns the staging directory of one run.
type Manager struct {
	baseDir string
	runID   string
	dir     string
	keep    bool // If true, Cleanup leaves the directory in place
}

// NewManager creates a manager whose directory is removed on Cleanup.
// An empty runID is replaced by a random one.
func NewManager(baseDir, runID string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Manager{baseDir: baseDir, runID: runID}
}

// NewKeptManager creates a manager whose directory survives Cleanup, so the
// staged sources can be inspected after a failing run.
func NewKeptManager(baseDir, runID string) *Manager {
	m := NewManager(baseDir, runID)
	m.keep = true
	return m
}

// Create makes the run directory checkcode-<runID> under the base directory.
func (m *Manager) Create() error {
	dir := filepath.Join(m.baseDir, "checkcode-"+m.runID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	m.dir = dir
	slog.Debug("Created workspace", logfields.Path(dir), logfields.RunID(m.runID))
	return nil
}

// GetPath returns the workspace directory, or "" before Create.
func (m *Manager) GetPath() string {
	return m.dir
}

// Stage writes content to a new file called name in the workspace. It fails
// if the file already exists, so concurrent tasks never share a path.
func (m *Manager) Stage(name string, content []byte) (string, error) {
	if m.dir == "" {
		return "", errors.New("workspace not created")
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid staging file name %q", name)
	}

	path := filepath.Join(m.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return path, nil
}

// Cleanup removes the workspace directory unless it is kept.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}

	if m.keep {
		slog.Info("Keeping staged sources", logfields.Path(m.dir))
		return nil
	}

	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}

	slog.Debug("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}
