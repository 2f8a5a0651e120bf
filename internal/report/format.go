package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"git.home.luguber.info/inful/checkcode/internal/compile"
)

// Format selects the rendering of a Report.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Write renders r in the given format.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func writeText(w io.Writer, r *Report) error {
	p := &printer{w: w}
	for _, ch := range r.Chapters {
		for _, f := range ch.Failures {
			writeFailure(p, f)
		}
	}
	if len(r.Chapters) > 0 {
		p.line("ERROR", "Failed to compile code in the following files:")
		for _, ch := range r.Chapters {
			p.line("ERROR", "  "+ch.ChapterPath)
		}
	}
	if r.Stats.Skipped > 0 {
		p.line("WARN", fmt.Sprintf("%d code block(s) were not checked", r.Stats.Skipped))
	}
	writeStats(p, r.Stats)
	return p.err
}

func writeFailure(p *printer, f Failure) {
	p.line("ERROR", headline(f.Kind))
	p.line("ERROR", "File: "+f.ChapterPath)
	p.line("ERROR", fmt.Sprintf("Block: #%d (%s) at line %d", f.Ordinal, f.Language, f.Line))
	if f.Error != "" {
		p.line("ERROR", f.Error)
	}
	for _, d := range f.Diagnostics {
		if d.InPrefix {
			p.line("ERROR", fmt.Sprintf("  in preamble or propagated code (compiler line %d): %s", d.CompilerLine, d.Message))
			continue
		}
		p.line("ERROR", fmt.Sprintf("  %s:%d: %s", f.ChapterPath, d.DocLine, d.Message))
	}
	if f.Output != "" {
		p.line("ERROR", "")
		for _, l := range strings.Split(strings.TrimRight(f.Output, "\n"), "\n") {
			p.line("ERROR", l)
		}
	}
	p.line("ERROR", "")
	p.line("ERROR", "Code block:")
	p.line("ERROR", "```"+f.Language)
	for _, l := range strings.Split(strings.TrimSuffix(f.Code, "\n"), "\n") {
		p.line("ERROR", l)
	}
	p.line("ERROR", "```")
	p.line("ERROR", "")
}

func headline(kind compile.Kind) string {
	switch kind {
	case compile.KindTimeout:
		return "Compilation timed out"
	case compile.KindInfrastructure:
		return "Compiler could not be run"
	default:
		return "Compilation failed"
	}
}

func writeStats(p *printer, s Stats) {
	parts := make([]string, len(s.Languages))
	for i, ls := range s.Languages {
		parts[i] = fmt.Sprintf("%s: %d", ls.Language, ls.Blocks)
	}
	p.line("INFO", fmt.Sprintf("Successfully validated %d code block(s) (%s)", s.Passed, strings.Join(parts, ", ")))
	p.line("INFO", fmt.Sprintf("Finished in %dms (avg %dms per block, %d workers)",
		s.Wall.Milliseconds(), s.AvgBlock.Milliseconds(), s.Workers))
}

// printer writes mdBook-style lines and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
	now func() time.Time
}

func (p *printer) line(level, msg string) {
	if p.err != nil {
		return
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	_, p.err = fmt.Fprintf(p.w, "%s [%s] (checkcode): %s\n", now().Format("2006-01-02 15:04:05"), level, msg)
}
