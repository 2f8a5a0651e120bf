package git

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Project describes the directory tree a book lives in.
type Project struct {
	// Root is the repository work tree, or the starting directory when it
	// is not inside a repository.
	Root string
	// Revision is the HEAD commit hash, empty outside a repository or
	// before the first commit.
	Revision string
	Branch   string
	InRepo   bool
}

// Detect finds the repository containing dir. A directory outside any
// repository is not an error.
func Detect(dir string) (Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Project{}, fmt.Errorf("resolve %s: %w", dir, err)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Project{Root: abs}, nil
	}
	if err != nil {
		return Project{}, fmt.Errorf("open repository: %w", err)
	}

	p := Project{Root: abs, InRepo: true}
	if wt, werr := repo.Worktree(); werr == nil {
		p.Root = wt.Filesystem.Root()
	}

	ref, err := repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return p, nil
	case err != nil:
		return Project{}, fmt.Errorf("read HEAD: %w", err)
	}
	p.Revision = ref.Hash().String()
	if ref.Name().IsBranch() {
		p.Branch = ref.Name().Short()
	}
	return p, nil
}

// ShortRevision abbreviates the revision for display.
func (p Project) ShortRevision() string {
	if len(p.Revision) > 8 {
		return p.Revision[:8]
	}
	return p.Revision
}
