// Package extract finds fenced code blocks in chapter Markdown and parses
// their info strings into a fence token and flags.
package extract

import (
	"bytes"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is one fenced code block whose header parsed successfully.
type CodeBlock struct {
	// ChapterPath identifies the chapter the block belongs to.
	ChapterPath string
	// Ordinal is the 1-based position among all fenced blocks of the chapter,
	// counting blocks whose header was skipped.
	Ordinal int
	// Line is the 1-based line of the opening fence.
	Line int

	Token     string
	Variant   string
	Ignore    bool
	Propagate bool
	// Extra holds unrecognized flags and key=value pairs. They have no effect.
	Extra []string

	// Text is the block content exactly as written between the fences.
	Text string
}

// Chapter is the extraction result for one chapter.
type Chapter struct {
	Path   string
	Blocks []CodeBlock
	// Fenced counts every fenced block, including those with skipped headers.
	Fenced int
}

// Extract returns the fenced code blocks of content in document order.
// Blocks with a malformed header are left out of Blocks but still counted.
func Extract(chapterPath string, content []byte) Chapter {
	lines := newLineIndex(content)
	root := goldmark.New().Parser().Parse(text.NewReader(content))

	ch := Chapter{Path: chapterPath}
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		fenced, ok := n.(*gmast.FencedCodeBlock)
		if !ok {
			return gmast.WalkContinue, nil
		}
		ch.Fenced++

		var info []byte
		if fenced.Info != nil {
			info = fenced.Info.Segment.Value(content)
		}
		header, ok := ParseHeader(string(info))
		if !ok {
			return gmast.WalkSkipChildren, nil
		}

		ch.Blocks = append(ch.Blocks, CodeBlock{
			ChapterPath: chapterPath,
			Ordinal:     ch.Fenced,
			Line:        fenceLine(fenced, lines),
			Token:       header.Token,
			Variant:     header.Variant,
			Ignore:      header.Ignore,
			Propagate:   header.Propagate,
			Extra:       header.Extra,
			Text:        blockText(fenced, content),
		})
		return gmast.WalkSkipChildren, nil
	})
	return ch
}

func blockText(fenced *gmast.FencedCodeBlock, content []byte) string {
	var buf bytes.Buffer
	segs := fenced.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		// Goldmark records stripped indentation as padding.
		for p := 0; p < seg.Padding; p++ {
			buf.WriteByte(' ')
		}
		buf.Write(seg.Value(content))
	}
	return buf.String()
}

// fenceLine returns the line of the opening fence, which carries the info string.
func fenceLine(fenced *gmast.FencedCodeBlock, lines lineIndex) int {
	return lines.lineOf(fenced.Info.Segment.Start)
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(content []byte) lineIndex {
	starts := lineIndex{0}
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (idx lineIndex) lineOf(offset int) int {
	lo, hi := 0, len(idx)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if idx[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
