package approval

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
)

// DefaultPath returns the per-user approval database path:
// $XDG_DATA_HOME/checkcode/approvals.db, or the platform's data directory.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "checkcode", "approvals.db"), nil
	}
	dir, err := userDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "checkcode", "approvals.db"), nil
}

func userDataDir() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LocalAppData"); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot determine user data directory").Fatal().Build()
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support"), nil
	case "windows":
		return filepath.Join(home, "AppData", "Local"), nil
	default:
		return filepath.Join(home, ".local", "share"), nil
	}
}

// Gate refuses to run toolchains that were not approved for the project.
type Gate struct {
	store  Store
	logger *slog.Logger
}

// NewGate creates a Gate backed by store.
func NewGate(store Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, logger: logger}
}

// Check returns nil only if fingerprint is approved for project. It never
// writes to the store.
func (g *Gate) Check(ctx context.Context, project, fingerprint string) error {
	if err := RefuseInProject(g.store, project); err != nil {
		return err
	}

	rec, ok, err := g.store.Get(ctx, project, fingerprint)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInfrastructure, "read approval store").
			WithContext("store", g.store.Location()).Fatal().Build()
	}
	if !ok {
		return ferrors.ApprovalError("toolchain configuration not approved for code execution").
			WithContext("project", project).
			WithContext("fingerprint", Short(fingerprint)).
			WithContext("hint", "review the configuration, then run: checkcode allow").
			Build()
	}

	g.logger.Debug("Toolchain configuration approved",
		logfields.Path(project),
		logfields.Fingerprint(Short(fingerprint)),
		slog.Time("approved_at", rec.ApprovedAt))
	return nil
}

// RefuseInProject fails when the store lives inside the project tree, where
// the project's own content could pre-approve itself.
func RefuseInProject(store Store, project string) error {
	loc := store.Location()
	if loc == "" {
		return nil
	}
	if Within(project, loc) {
		return ferrors.ApprovalError("approval store must not be located inside the project").
			WithContext("store", loc).
			WithContext("project", project).
			Build()
	}
	return nil
}

// Within reports whether path is dir or lies beneath it.
func Within(dir, path string) bool {
	dir = canonical(dir)
	path = canonical(path)
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ProjectKey is the canonical form of a project directory used as the store
// key, so approvals survive relative paths and symlinked checkouts.
func ProjectKey(dir string) string {
	return canonical(dir)
}

func canonical(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	// The store file may not exist yet; resolve its directory instead.
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(resolved, filepath.Base(p))
	}
	return filepath.Clean(p)
}
