// Package report aggregates compiler results into per-chapter failures with
// document line numbers, and renders them as text or JSON.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/checkcode/internal/compile"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
)

// Diagnostic is one compiler message that names a line of the checked source.
type Diagnostic struct {
	CompilerLine int `json:"compiler_line"`
	Column       int `json:"column,omitempty"`
	// DocLine is the line in the chapter, or 0 when InPrefix is set.
	DocLine int `json:"doc_line,omitempty"`
	// InPrefix marks lines inside the preamble or propagated code.
	InPrefix bool   `json:"in_prefix,omitempty"`
	Message  string `json:"message"`
}

// Failure describes one block that did not pass.
type Failure struct {
	ChapterPath string       `json:"chapter"`
	Ordinal     int          `json:"block"`
	Line        int          `json:"line"`
	Language    string       `json:"language"`
	Kind        compile.Kind `json:"kind"`
	ExitCode    int          `json:"exit_code"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Output is the compiler's stderr followed by stdout, verbatim.
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	// Code is the block text without preamble or propagated prefix.
	Code string `json:"code"`
}

// ChapterFailures groups the failures of one chapter.
type ChapterFailures struct {
	ChapterPath string    `json:"chapter"`
	Failures    []Failure `json:"failures"`
}

// LanguageStats summarizes the passing blocks of one language.
type LanguageStats struct {
	Language string        `json:"language"`
	Blocks   int           `json:"blocks"`
	Total    time.Duration `json:"total_ns"`
}

// Stats summarizes a run.
type Stats struct {
	Tasks     int             `json:"tasks"`
	Passed    int             `json:"passed"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Workers   int             `json:"workers"`
	Wall      time.Duration   `json:"wall_ns"`
	AvgBlock  time.Duration   `json:"avg_block_ns"`
	Languages []LanguageStats `json:"languages"`
}

// Report is the aggregate of one run.
type Report struct {
	RunID    string            `json:"run_id,omitempty"`
	Passed   bool              `json:"passed"`
	Chapters []ChapterFailures `json:"chapters,omitempty"`
	Stats    Stats             `json:"stats"`

	infrastructure int
}

// Aggregate builds a Report from a scheduler summary. The run passes only if
// every dispatched task passed and nothing was skipped.
func Aggregate(sum compile.Summary) *Report {
	r := &Report{Stats: Stats{
		Tasks:   len(sum.Results),
		Skipped: sum.Skipped,
		Workers: sum.Workers,
		Wall:    sum.Elapsed,
	}}

	langs := map[string]*LanguageStats{}
	var totalElapsed time.Duration
	byChapter := map[string]int{}

	for _, res := range sum.Results {
		if res.Kind == compile.KindSkipped {
			continue
		}
		totalElapsed += res.Elapsed

		if !res.Failed() {
			r.Stats.Passed++
			lang := res.Task.Label()
			ls, ok := langs[lang]
			if !ok {
				ls = &LanguageStats{Language: lang}
				langs[lang] = ls
			}
			ls.Blocks++
			ls.Total += res.Elapsed
			continue
		}

		r.Stats.Failed++
		if res.Kind == compile.KindInfrastructure {
			r.infrastructure++
		}
		// Results arrive in document order, so chapters do too.
		idx, ok := byChapter[res.Task.ChapterPath]
		if !ok {
			idx = len(r.Chapters)
			byChapter[res.Task.ChapterPath] = idx
			r.Chapters = append(r.Chapters, ChapterFailures{ChapterPath: res.Task.ChapterPath})
		}
		r.Chapters[idx].Failures = append(r.Chapters[idx].Failures, newFailure(res))
	}

	if dispatched := r.Stats.Passed + r.Stats.Failed; dispatched > 0 {
		r.Stats.AvgBlock = totalElapsed / time.Duration(dispatched)
	}
	for _, ls := range langs {
		r.Stats.Languages = append(r.Stats.Languages, *ls)
	}
	sort.Slice(r.Stats.Languages, func(i, j int) bool {
		return r.Stats.Languages[i].Language < r.Stats.Languages[j].Language
	})

	r.Passed = r.Stats.Failed == 0 && r.Stats.Skipped == 0
	return r
}

func newFailure(res compile.Result) Failure {
	f := Failure{
		ChapterPath: res.Task.ChapterPath,
		Ordinal:     res.Task.Ordinal,
		Line:        res.Task.Line,
		Language:    res.Task.Label(),
		Kind:        res.Kind,
		ExitCode:    res.ExitCode,
		Output:      joinOutput(res.Stderr, res.Stdout),
		Code:        blockCode(res.Task),
	}
	if res.Err != nil {
		f.Error = res.Err.Error()
	}
	f.Diagnostics = Translate(f.Output, res.Staged, res.Task.Line, res.Task.PrefixLines)
	return f
}

func joinOutput(stderr, stdout string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	case strings.HasSuffix(stderr, "\n"):
		return stderr + stdout
	default:
		return stderr + "\n" + stdout
	}
}

// blockCode strips the prefix lines from a task's source.
func blockCode(task compile.Task) string {
	src := task.Source
	for range task.PrefixLines {
		i := strings.IndexByte(src, '\n')
		if i < 0 {
			return ""
		}
		src = src[i+1:]
	}
	return src
}

// Failures returns every failure in document order.
func (r *Report) Failures() []Failure {
	var out []Failure
	for _, ch := range r.Chapters {
		out = append(out, ch.Failures...)
	}
	return out
}

// Err returns nil for a passing run. Otherwise it returns an infrastructure
// error when any compiler could not be run, and a compile error if not.
func (r *Report) Err() error {
	if r.Passed {
		return nil
	}
	files := make([]string, len(r.Chapters))
	for i, ch := range r.Chapters {
		files[i] = ch.ChapterPath
	}
	msg := fmt.Sprintf("%d code block(s) failed", r.Stats.Failed)
	if r.Stats.Skipped > 0 {
		msg += fmt.Sprintf(", %d not checked", r.Stats.Skipped)
	}

	var b *ferrors.ErrorBuilder
	if r.infrastructure > 0 {
		b = ferrors.InfrastructureError(msg).Fatal()
	} else {
		b = ferrors.CompileError(msg)
	}
	if len(files) > 0 {
		b = b.WithContext("files", strings.Join(files, ", "))
	}
	return b.Build()
}
