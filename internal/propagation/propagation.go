// Package propagation turns extracted code blocks into compile tasks,
// carrying propagated blocks forward within each chapter.
package propagation

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"git.home.luguber.info/inful/checkcode/internal/compile"
	"git.home.luguber.info/inful/checkcode/internal/extract"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/toolchain"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxBlocks bounds the fenced blocks of a single chapter.
	DefaultMaxBlocks = 1000
	// DefaultMaxSourceBytes bounds one assembled source.
	DefaultMaxSourceBytes = 1_000_000
)

// Limits bounds the work derived from a single chapter.
type Limits struct {
	MaxBlocks      int
	MaxSourceBytes int
}

// DefaultLimits returns the standard limits.
func DefaultLimits() Limits {
	return Limits{MaxBlocks: DefaultMaxBlocks, MaxSourceBytes: DefaultMaxSourceBytes}
}

// Document is a chapter to scan.
type Document struct {
	Path    string
	Content []byte
}

// Violation records a chapter or block that exceeds a limit.
type Violation struct {
	ChapterPath string
	Ordinal     int
	Line        int
	Reason      string
}

func (v Violation) String() string {
	if v.Ordinal == 0 {
		return fmt.Sprintf("%s: %s", v.ChapterPath, v.Reason)
	}
	return fmt.Sprintf("%s:%d: block %d: %s", v.ChapterPath, v.Line, v.Ordinal, v.Reason)
}

// Accumulator holds the propagated code of one chapter.
type Accumulator struct {
	buf   strings.Builder
	lines int
}

// Append adds a propagated block's text.
func (a *Accumulator) Append(text string) {
	a.buf.WriteString(text)
	a.lines += strings.Count(text, "\n")
}

// String returns the accumulated code.
func (a *Accumulator) String() string { return a.buf.String() }

// Lines returns the number of newlines in the accumulated code.
func (a *Accumulator) Lines() int { return a.lines }

// Builder assembles tasks from documents.
type Builder struct {
	table  *toolchain.Table
	limits Limits
}

// NewBuilder creates a Builder. Zero limit fields take the defaults.
func NewBuilder(table *toolchain.Table, limits Limits) *Builder {
	if limits.MaxBlocks <= 0 {
		limits.MaxBlocks = DefaultMaxBlocks
	}
	if limits.MaxSourceBytes <= 0 {
		limits.MaxSourceBytes = DefaultMaxSourceBytes
	}
	return &Builder{table: table, limits: limits}
}

// Chapter builds the tasks of one extracted chapter in document order.
// Limit violations are returned separately from fatal errors so that all of
// them can be reported together.
func (b *Builder) Chapter(ch extract.Chapter) ([]compile.Task, []Violation, error) {
	if ch.Fenced > b.limits.MaxBlocks {
		return nil, []Violation{{
			ChapterPath: ch.Path,
			Reason:      fmt.Sprintf("%d fenced code blocks exceed the limit of %d", ch.Fenced, b.limits.MaxBlocks),
		}}, nil
	}

	var (
		acc        Accumulator
		tasks      []compile.Task
		violations []Violation
	)
	for _, block := range ch.Blocks {
		if block.Ignore {
			continue
		}

		tc, matched, err := b.table.Lookup(block.Token, block.Variant)
		if err != nil {
			if ce, ok := ferrors.AsClassified(err); ok {
				return nil, nil, ce.WithContext("chapter", ch.Path).WithContext("line", block.Line)
			}
			return nil, nil, err
		}

		if matched {
			prefix := tc.Preamble + acc.String()
			source := prefix + block.Text
			if len(source) > b.limits.MaxSourceBytes {
				violations = append(violations, Violation{
					ChapterPath: ch.Path,
					Ordinal:     block.Ordinal,
					Line:        block.Line,
					Reason:      fmt.Sprintf("source of %d bytes exceeds the limit of %d", len(source), b.limits.MaxSourceBytes),
				})
			} else {
				tasks = append(tasks, compile.Task{
					ChapterPath: ch.Path,
					Ordinal:     block.Ordinal,
					Line:        block.Line,
					Toolchain:   tc,
					Source:      source,
					PrefixLines: strings.Count(tc.Preamble, "\n") + acc.Lines(),
				})
			}
		}

		if block.Propagate {
			acc.Append(block.Text)
		}
	}
	return tasks, violations, nil
}

type chapterResult struct {
	tasks      []compile.Task
	violations []Violation
	err        error
}

// Build extracts and assembles every document. Chapters are processed in
// parallel; the returned tasks are in document order with Index set.
//
// A configuration error in the earliest failing chapter is returned as is.
// Otherwise all limit violations are returned as one validation error.
func (b *Builder) Build(ctx context.Context, docs []Document) ([]compile.Task, error) {
	results := make([]chapterResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ch := extract.Extract(doc.Path, doc.Content)
			tasks, violations, err := b.Chapter(ch)
			results[i] = chapterResult{tasks: tasks, violations: violations, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		tasks      []compile.Task
		violations []Violation
	)
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		violations = append(violations, r.violations...)
		tasks = append(tasks, r.tasks...)
	}
	if len(violations) > 0 {
		return nil, violationError(violations)
	}
	for i := range tasks {
		tasks[i].Index = i
	}
	return tasks, nil
}

func violationError(violations []Violation) error {
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = v.String()
	}
	return ferrors.ValidationError(fmt.Sprintf("%d limit violation(s):\n  %s", len(violations), strings.Join(lines, "\n  "))).
		WithContext("violations", len(violations)).
		Build()
}
