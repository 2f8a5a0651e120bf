// Package book models the document tree handed over by the host renderer.
//
// The tree is decoded only as far as needed to read chapters. The original
// bytes are kept so that a successful run can return the tree unmodified.
package book

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// Chapter is one document of the tree, identified by its path relative to the
// source directory.
type Chapter struct {
	Name    string
	Content string
	// Path is empty for draft chapters, which have no backing file.
	Path     string
	SubItems []Chapter
}

// IsDraft reports whether the chapter has no backing file.
func (c Chapter) IsDraft() bool {
	return c.Path == ""
}

// Book is the decoded document tree plus the exact bytes it was decoded from.
type Book struct {
	Chapters []Chapter
	raw      json.RawMessage
}

// New builds a Book from chapters; Raw returns a JSON encoding of them.
func New(chapters ...Chapter) *Book {
	return &Book{Chapters: chapters}
}

// Raw returns the bytes the book was decoded from, or a fresh encoding for
// books constructed in memory.
func (b *Book) Raw() (json.RawMessage, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	items := make([]wireItem, 0, len(b.Chapters))
	for i := range b.Chapters {
		items = append(items, wireItem{Chapter: toWire(b.Chapters[i])})
	}
	return json.Marshal(wireBook{Sections: items})
}

// Walk visits every chapter depth-first in document order.
func (b *Book) Walk(fn func(Chapter)) {
	var visit func([]Chapter)
	visit = func(chs []Chapter) {
		for _, ch := range chs {
			fn(ch)
			visit(ch.SubItems)
		}
	}
	visit(b.Chapters)
}

// Flatten returns every non-draft chapter in document order.
func (b *Book) Flatten() []Chapter {
	out := make([]Chapter, 0)
	b.Walk(func(ch Chapter) {
		if !ch.IsDraft() {
			ch.SubItems = nil
			out = append(out, ch)
		}
	})
	return out
}

// Context is the host's description of the current build.
type Context struct {
	Root          string         `json:"root"`
	Config        map[string]any `json:"config"`
	Renderer      string         `json:"renderer"`
	MdbookVersion string         `json:"mdbook_version"`
}

// SourceDir returns the directory chapter paths are relative to.
func (c *Context) SourceDir() string {
	src := "src"
	if bookCfg, ok := c.Config["book"].(map[string]any); ok {
		if s, ok := bookCfg["src"].(string); ok && s != "" {
			src = s
		}
	}
	return filepath.Join(c.Root, src)
}

// PreprocessorSection returns the configuration table for the named
// preprocessor, or nil when the book does not configure it.
func (c *Context) PreprocessorSection(name string) (map[string]any, error) {
	pre, ok := c.Config["preprocessor"]
	if !ok || pre == nil {
		return nil, nil
	}
	preMap, ok := pre.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config.preprocessor is %T, expected a table", pre)
	}
	section, ok := preMap[name]
	if !ok || section == nil {
		return nil, nil
	}
	sectionMap, ok := section.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config.preprocessor.%s is %T, expected a table", name, section)
	}
	return sectionMap, nil
}
