package report

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// location matches "file:line[:col]: message" as written by most compilers.
var location = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?:\s*(.*)$`)

var stdinNames = map[string]bool{
	"<stdin>":          true,
	"-":                true,
	"stdin":            true,
	"standard input":   true,
	"<standard input>": true,
}

// Translate extracts diagnostics that refer to the checked source and maps
// their lines into the chapter: docLine = fenceLine + compilerLine - prefixLines.
// staged is the file the compiler read, or "" when the source was piped.
func Translate(output, staged string, fenceLine, prefixLines int) []Diagnostic {
	var out []Diagnostic
	for _, line := range strings.Split(output, "\n") {
		m := location.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil || !refersToSource(m[1], staged) {
			continue
		}
		compilerLine, err := strconv.Atoi(m[2])
		if err != nil || compilerLine < 1 {
			continue
		}
		d := Diagnostic{CompilerLine: compilerLine, Message: m[4]}
		if m[3] != "" {
			d.Column, _ = strconv.Atoi(m[3])
		}
		if compilerLine <= prefixLines {
			d.InPrefix = true
		} else {
			d.DocLine = DocLine(fenceLine, compilerLine, prefixLines)
		}
		out = append(out, d)
	}
	return out
}

// DocLine maps a compiler line to the chapter line it came from.
func DocLine(fenceLine, compilerLine, prefixLines int) int {
	return fenceLine + compilerLine - prefixLines
}

func refersToSource(file, staged string) bool {
	file = strings.TrimSpace(file)
	if staged == "" {
		return stdinNames[file]
	}
	return file == staged || filepath.Base(file) == filepath.Base(staged)
}
