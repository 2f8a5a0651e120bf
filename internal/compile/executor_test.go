package compile

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script acting as a fake compiler.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script compilers need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fakecc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecExecutor_Success(t *testing.T) {
	script := writeScript(t, "cat\necho diag >&2\n")
	out, err := NewExecExecutor().Run(context.Background(), Invocation{Executable: script, Stdin: []byte("int x;\n")})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "int x;\n", out.Stdout)
	assert.Equal(t, "diag\n", out.Stderr)
}

func TestExecExecutor_ExitCode(t *testing.T) {
	script := writeScript(t, "echo \"$1:1:1: error: nope\" >&2\nexit 3\n")
	out, err := NewExecExecutor().Run(context.Background(), Invocation{Executable: script, Args: []string{"a.c"}})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "a.c:1:1: error: nope\n", out.Stderr)
}

func TestExecExecutor_Dir(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, "pwd\n")
	out, err := NewExecExecutor().Run(context.Background(), Invocation{Executable: script, Dir: dir})
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{dir + "\n", resolved + "\n"}, out.Stdout)
}

func TestExecExecutor_NotFound(t *testing.T) {
	_, err := NewExecExecutor().Run(context.Background(), Invocation{Executable: filepath.Join(t.TempDir(), "missing-cc")})
	assert.ErrorIs(t, err, ErrExecutableNotFound)

	_, err = NewExecExecutor().Run(context.Background(), Invocation{Executable: "checkcode-no-such-compiler"})
	assert.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestExecExecutor_Timeout(t *testing.T) {
	script := writeScript(t, "sleep 5\n")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := (&ExecExecutor{WaitDelay: 100 * time.Millisecond}).Run(ctx, Invocation{Executable: script})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestScheduler_WithShellCompiler(t *testing.T) {
	script := writeScript(t, "grep -q error \"$1\" && { echo \"$1:2: error: found\" >&2; exit 1; }\nexit 0\n")
	ws := newTestWorkspace(t)

	tc := stdinToolchain(script)
	tc.Input = "file"
	tasks := newTasks(2, tc)
	tasks[1].Source = "ok\nerror\n"

	sum := NewScheduler(NewExecExecutor(), Options{Jobs: 2, Staging: ws, Logger: quiet()}).Run(context.Background(), tasks)
	assert.Equal(t, KindOK, sum.Results[0].Kind)
	assert.Equal(t, KindCompileError, sum.Results[1].Kind)
	assert.Contains(t, sum.Results[1].Stderr, "c_guide-intro_block_2.c:2: error: found")
}
