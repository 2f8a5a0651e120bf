package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shellConfig = `check-code:
  languages:
    sh:
      compiler: "true"
      fence_markers: [sh]
`

func newTestCLI(t *testing.T) (*CLI, *Global, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	cli := &CLI{
		Store:      filepath.Join(t.TempDir(), "approvals.db"),
		Format:     "text",
		NoDotenv:   true,
		StagingDir: t.TempDir(),
	}
	return cli, &Global{Logger: slog.Default(), Out: out}, out
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestSupportsAcceptsAnyRenderer(t *testing.T) {
	_, g, _ := newTestCLI(t)
	assert.NoError(t, (&SupportsCmd{Renderer: "html"}).Run(g))
	assert.NoError(t, (&SupportsCmd{Renderer: "pdf"}).Run(g))
}

func TestApprovalLifecycle(t *testing.T) {
	ctx := context.Background()
	cli, g, out := newTestCLI(t)
	project := writeProject(t, map[string]string{"checkcode.yaml": shellConfig})

	err := (&StatusCmd{Dir: project}).Run(ctx, g, cli)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
	assert.Contains(t, out.String(), "not approved")

	out.Reset()
	require.NoError(t, (&AllowCmd{Dir: project, Note: "reviewed"}).Run(ctx, g, cli))
	assert.Contains(t, out.String(), "Approved")
	assert.Contains(t, out.String(), "sh")

	out.Reset()
	require.NoError(t, (&StatusCmd{Dir: project}).Run(ctx, g, cli))
	assert.Contains(t, out.String(), "Status      approved")

	out.Reset()
	require.NoError(t, (&ListCmd{}).Run(ctx, g, cli))
	assert.Contains(t, out.String(), "reviewed")

	out.Reset()
	require.NoError(t, (&DenyCmd{Dir: project}).Run(ctx, g, cli))
	assert.Contains(t, out.String(), "Revoked 1 approval(s)")

	err = (&StatusCmd{Dir: project}).Run(ctx, g, cli)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
}

func TestStatusDetectsConfigurationChange(t *testing.T) {
	ctx := context.Background()
	cli, g, _ := newTestCLI(t)
	project := writeProject(t, map[string]string{"checkcode.yaml": shellConfig})
	require.NoError(t, (&AllowCmd{Dir: project}).Run(ctx, g, cli))

	changed := shellConfig + "      flags: [\"-x\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(project, "checkcode.yaml"), []byte(changed), 0o600))

	err := (&StatusCmd{Dir: project}).Run(ctx, g, cli)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
}

func TestAllowRefusesStoreInsideProject(t *testing.T) {
	cli, g, _ := newTestCLI(t)
	project := writeProject(t, map[string]string{"checkcode.yaml": shellConfig})
	cli.Store = filepath.Join(project, ".approvals.db")

	err := (&AllowCmd{Dir: project}).Run(context.Background(), g, cli)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
}

func TestCheckRunsApprovedProject(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the true(1) command")
	}
	ctx := context.Background()
	cli, g, out := newTestCLI(t)
	project := writeProject(t, map[string]string{
		"checkcode.yaml":    shellConfig,
		"guide/intro.md":    "# Intro\n\n```sh\necho hello\n```\n",
		"guide/advanced.md": "```sh\nexit 0\n```\n",
	})

	err := (&CheckCmd{Dir: project}).Run(ctx, g, cli)
	require.Error(t, err, "unapproved projects must not run")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))

	require.NoError(t, (&AllowCmd{Dir: project}).Run(ctx, g, cli))
	out.Reset()
	require.NoError(t, (&CheckCmd{Dir: project}).Run(ctx, g, cli))
	assert.Contains(t, out.String(), "Successfully validated 2 code block(s) (sh: 2)")
}

func TestChapterRoot(t *testing.T) {
	book := writeProject(t, map[string]string{"book.toml": "", "src/SUMMARY.md": ""})
	assert.Equal(t, filepath.Join(book, "src"), chapterRoot(book, ""))
	assert.Equal(t, filepath.Join(book, "docs"), chapterRoot(book, "docs"))

	plain := writeProject(t, map[string]string{"checkcode.yaml": ""})
	assert.Equal(t, plain, chapterRoot(plain, ""))
}

func preprocessInput(t *testing.T, root string, section map[string]any, chapters ...map[string]any) []byte {
	t.Helper()
	items := make([]map[string]any, 0, len(chapters))
	for _, ch := range chapters {
		items = append(items, map[string]any{"Chapter": ch})
	}
	data, err := json.Marshal([]any{
		map[string]any{
			"root":           root,
			"config":         map[string]any{"preprocessor": map[string]any{"check-code": section}},
			"renderer":       "html",
			"mdbook_version": "0.4.40",
		},
		map[string]any{"sections": items, "__non_exhaustive": nil},
	})
	require.NoError(t, err)
	return data
}

func chapterJSON(name, path, content string) map[string]any {
	return map[string]any{
		"name": name, "content": content, "number": []int{1},
		"sub_items": []any{}, "path": path, "source_path": path, "parent_names": []string{},
	}
}

func TestRunPreprocessEchoesBook(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the true(1) command")
	}
	ctx := context.Background()
	cli, g, _ := newTestCLI(t)
	project := writeProject(t, map[string]string{"checkcode.yaml": shellConfig})
	require.NoError(t, (&AllowCmd{Dir: project}).Run(ctx, g, cli))

	section := map[string]any{"languages": map[string]any{
		"sh": map[string]any{"compiler": "true", "fence_markers": []any{"sh"}},
	}}
	input := preprocessInput(t, project, section, chapterJSON("Intro", "intro.md", "```sh\necho hi\n```\n"))

	var out bytes.Buffer
	require.NoError(t, RunPreprocess(ctx, g, cli, bytes.NewReader(input), &out))

	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(input, &parts))
	assert.JSONEq(t, string(parts[1]), out.String())
}

func TestRunPreprocessWithoutApprovalWritesNothing(t *testing.T) {
	cli, g, _ := newTestCLI(t)
	project := t.TempDir()
	section := map[string]any{"languages": map[string]any{"sh": map[string]any{"compiler": "true"}}}
	input := preprocessInput(t, project, section, chapterJSON("Intro", "intro.md", "```sh\necho hi\n```\n"))

	var out bytes.Buffer
	err := RunPreprocess(context.Background(), g, cli, bytes.NewReader(input), &out)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
	assert.Empty(t, out.String())
}

func TestRunPreprocessRejectsMalformedInput(t *testing.T) {
	cli, g, _ := newTestCLI(t)
	var out bytes.Buffer
	err := RunPreprocess(context.Background(), g, cli, bytes.NewReader([]byte(`{"not": "an array"}`)), &out)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryProtocol))
}

// envGuard writes a compiler script that fails when CHECKCODE_INJECTED is
// visible to it.
func envGuard(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guard.sh")
	script := "#!/bin/sh\nif [ -n \"${CHECKCODE_INJECTED+x}\" ]; then echo injected >&2; exit 1; fi\nexit 0\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

func TestDotEnvValuesDoNotReachCompilers(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script compiler")
	}
	_, set := os.LookupEnv("CHECKCODE_INJECTED")
	require.False(t, set)

	ctx := context.Background()
	cli, g, out := newTestCLI(t)
	config := "check-code:\n  languages:\n    sh:\n      compiler: " + envGuard(t) + "\n      fence_markers: [sh]\n"
	project := writeProject(t, map[string]string{
		"checkcode.yaml": config,
		"intro.md":       "```sh\necho hello\n```\n",
	})
	require.NoError(t, (&AllowCmd{Dir: project}).Run(ctx, g, cli))

	require.NoError(t, os.WriteFile(filepath.Join(project, ".env"), []byte("CHECKCODE_INJECTED=1\n"), 0o600))
	cli.NoDotenv = false

	require.NoError(t, (&StatusCmd{Dir: project}).Run(ctx, g, cli), "unreferenced .env values keep the approval")
	out.Reset()
	require.NoError(t, (&CheckCmd{Dir: project}).Run(ctx, g, cli))
	assert.Contains(t, out.String(), "Successfully validated 1 code block(s)")

	_, set = os.LookupEnv("CHECKCODE_INJECTED")
	assert.False(t, set, ".env values stay out of the process environment")
}

func TestDotEnvPlaceholderNeedsApproval(t *testing.T) {
	ctx := context.Background()
	cli, g, _ := newTestCLI(t)
	cli.NoDotenv = false
	config := "check-code:\n  languages:\n    sh:\n      compiler: \"${CHECKCODE_TEST_SH:-true}\"\n      fence_markers: [sh]\n"
	project := writeProject(t, map[string]string{"checkcode.yaml": config})
	require.NoError(t, (&AllowCmd{Dir: project}).Run(ctx, g, cli))

	require.NoError(t, os.WriteFile(filepath.Join(project, ".env"), []byte("CHECKCODE_TEST_SH=/tmp/evil\n"), 0o600))
	err := (&StatusCmd{Dir: project}).Run(ctx, g, cli)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
}

func TestCheckPathsDoNotCreateStore(t *testing.T) {
	ctx := context.Background()
	cli, g, _ := newTestCLI(t)
	project := writeProject(t, map[string]string{
		"checkcode.yaml": shellConfig,
		"intro.md":       "```sh\necho hello\n```\n",
	})

	err := (&StatusCmd{Dir: project}).Run(ctx, g, cli)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
	err = (&CheckCmd{Dir: project}).Run(ctx, g, cli)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
	require.NoError(t, (&ListCmd{}).Run(ctx, g, cli))

	_, err = os.Stat(cli.Store)
	assert.True(t, os.IsNotExist(err), "store created by a read-only command: %v", err)

	require.NoError(t, (&AllowCmd{Dir: project}).Run(ctx, g, cli))
	_, err = os.Stat(cli.Store)
	assert.NoError(t, err)
}
