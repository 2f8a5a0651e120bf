package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chapter = "# Intro\n" + // 1
	"\n" + // 2
	"```c,propagate\n" + // 3
	"int x;\n" + // 4
	"```\n" + // 5
	"\n" + // 6
	"```c\n" + // 7
	"x = 1;\n" + // 8
	"```\n" + // 9
	"\n" + // 10
	"```\n" + // 11
	"plain\n" + // 12
	"```\n" + // 13
	"\n" + // 14
	"    indented code\n" + // 15
	"\n" + // 16
	"~~~c, ignore , variant=c89, foo, k=v\n" + // 17
	"not checked\n" + // 18
	"~~~\n" // 19

func TestExtract(t *testing.T) {
	ch := Extract("intro.md", []byte(chapter))

	assert.Equal(t, "intro.md", ch.Path)
	assert.Equal(t, 4, ch.Fenced)
	require.Len(t, ch.Blocks, 3)

	first := ch.Blocks[0]
	assert.Equal(t, 1, first.Ordinal)
	assert.Equal(t, 3, first.Line)
	assert.Equal(t, "c", first.Token)
	assert.True(t, first.Propagate)
	assert.False(t, first.Ignore)
	assert.Equal(t, "int x;\n", first.Text)

	second := ch.Blocks[1]
	assert.Equal(t, 2, second.Ordinal)
	assert.Equal(t, 7, second.Line)
	assert.Equal(t, "x = 1;\n", second.Text)

	// The info-less block is skipped but still takes ordinal 3.
	third := ch.Blocks[2]
	assert.Equal(t, 4, third.Ordinal)
	assert.Equal(t, 17, third.Line)
	assert.True(t, third.Ignore)
	assert.Equal(t, "c89", third.Variant)
	assert.Equal(t, []string{"foo", "k=v"}, third.Extra)
	assert.Equal(t, "intro.md", third.ChapterPath)
}

func TestExtract_TextVerbatim(t *testing.T) {
	content := "- item\n\n  ```python\n  def f():\n      return 1\n  ```\n"
	ch := Extract("list.md", []byte(content))
	require.Len(t, ch.Blocks, 1)
	assert.Equal(t, "def f():\n    return 1\n", ch.Blocks[0].Text)
}

func TestExtract_EmptyBlock(t *testing.T) {
	ch := Extract("e.md", []byte("```go\n```\n"))
	require.Len(t, ch.Blocks, 1)
	assert.Equal(t, "", ch.Blocks[0].Text)
	assert.Equal(t, 1, ch.Blocks[0].Line)
}

func TestExtract_NoBlocks(t *testing.T) {
	ch := Extract("none.md", []byte("just text\n\n    indented\n"))
	assert.Empty(t, ch.Blocks)
	assert.Zero(t, ch.Fenced)
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		info string
		ok   bool
		want Header
	}{
		{"c", true, Header{Token: "c"}},
		{"  cpp  ", true, Header{Token: "cpp"}},
		{"c++,propagate", true, Header{Token: "c++", Propagate: true}},
		{"c,ignore,propagate", true, Header{Token: "c", Ignore: true, Propagate: true}},
		{"c, propagate , ignore", true, Header{Token: "c", Ignore: true, Propagate: true}},
		{"c,variant=parasol", true, Header{Token: "c", Variant: "parasol"}},
		{"c,variant = parasol", true, Header{Token: "c", Variant: "parasol"}},
		{"c,editable,key=value", true, Header{Token: "c", Extra: []string{"editable", "key=value"}}},
		{"objective-c.m#1", true, Header{Token: "objective-c.m#1"}},

		{"", false, Header{}},
		{"   ", false, Header{}},
		{",ignore", false, Header{}},
		{"c d", false, Header{}},
		{"c{.x}", false, Header{}},
		{"c,,ignore", false, Header{}},
		{"c,", false, Header{}},
		{"c,variant=", false, Header{}},
		{"c,=x", false, Header{}},
		{"c,variant=a,variant=b", false, Header{}},
	}
	for _, tt := range tests {
		t.Run(tt.info, func(t *testing.T) {
			got, ok := ParseHeader(tt.info)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHeader_Normalizes(t *testing.T) {
	got, ok := ParseHeader("c,variant=cafe\u0301")
	require.True(t, ok)
	assert.Equal(t, "caf\u00e9", got.Variant)
}
