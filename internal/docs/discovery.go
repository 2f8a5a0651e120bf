// Package docs discovers Markdown chapters in a directory for standalone
// checking outside of a book build.
package docs

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	derrors "git.home.luguber.info/inful/checkcode/internal/docs/errors"
	"git.home.luguber.info/inful/checkcode/internal/logfields"
)

// IgnoreFile marks a directory whose subtree is not checked.
const IgnoreFile = ".checkcodeignore"

// DocFile is a discovered chapter.
type DocFile struct {
	Path         string // Absolute path to the file
	RelativePath string // Slash-separated path relative to the scanned directory
	Content      []byte // File content (loaded on demand)
}

// Discover returns the Markdown files below dir sorted by relative path.
// Hidden files and directories, and directories containing IgnoreFile, are
// skipped.
func Discover(dir string) ([]DocFile, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", derrors.ErrDocsPathNotFound, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", derrors.ErrDocsPathNotFound, dir)
	}

	var files []DocFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(path, IgnoreFile)); err == nil {
				slog.Debug("Skipping ignored directory", logfields.Path(path))
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !isMarkdownFile(name) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, DocFile{Path: path, RelativePath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", derrors.ErrDocsDirWalkFailed, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", derrors.ErrNoDocsFound, dir)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	slog.Debug("Discovered chapters", logfields.Path(root), slog.Int("files", len(files)))
	return files, nil
}

// LoadContent loads the content of the file.
func (df *DocFile) LoadContent() error {
	if df.Content != nil {
		return nil // Already loaded
	}

	content, err := os.ReadFile(df.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", derrors.ErrFileReadFailed, df.Path, err)
	}

	df.Content = content
	return nil
}

// isMarkdownFile checks if a file is a markdown file
func isMarkdownFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".md" || ext == ".markdown" || ext == ".mdown" || ext == ".mkd"
}
