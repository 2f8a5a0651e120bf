package compile

import (
	"time"

	"git.home.luguber.info/inful/checkcode/internal/toolchain"
)

// Task is one compiler invocation for one code block.
type Task struct {
	// Index is the submission position; results are returned in this order.
	Index       int
	ChapterPath string
	Ordinal     int
	Line        int
	Toolchain   toolchain.Resolved
	// Source is preamble, propagated code and block text concatenated.
	Source string
	// PrefixLines counts the lines of Source that precede the block text.
	PrefixLines int
}

// Label names the task's toolchain.
func (t Task) Label() string {
	return t.Toolchain.Label()
}

// Kind classifies a task outcome.
type Kind string

const (
	KindOK             Kind = "ok"
	KindCompileError   Kind = "compile_error"
	KindTimeout        Kind = "timeout"
	KindInfrastructure Kind = "infrastructure"
	KindSkipped        Kind = "skipped"
)

// Result is the outcome of a Task.
type Result struct {
	Task     Task
	Kind     Kind
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	// Staged is the source file passed to the compiler, empty for stdin input.
	Staged string
	// Err describes infrastructure, timeout and cancellation failures.
	Err error
}

// Failed reports whether the result counts against the run.
func (r Result) Failed() bool {
	return r.Kind != KindOK
}
