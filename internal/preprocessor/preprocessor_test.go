package preprocessor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"git.home.luguber.info/inful/checkcode/internal/approval"
	"git.home.luguber.info/inful/checkcode/internal/compile"
	"git.home.luguber.info/inful/checkcode/internal/events"
	ferrors "git.home.luguber.info/inful/checkcode/internal/foundation/errors"
	"git.home.luguber.info/inful/checkcode/internal/propagation"
	"git.home.luguber.info/inful/checkcode/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stagedExecutor fails any invocation whose staged source contains "BROKEN".
type stagedExecutor struct {
	mu    sync.Mutex
	calls []compile.Invocation
}

func (e *stagedExecutor) Run(_ context.Context, inv compile.Invocation) (compile.Output, error) {
	e.mu.Lock()
	e.calls = append(e.calls, inv)
	e.mu.Unlock()

	staged := inv.Args[len(inv.Args)-1]
	src, err := os.ReadFile(staged)
	if err != nil {
		return compile.Output{}, err
	}
	if bytes.Contains(src, []byte("BROKEN")) {
		name := staged[strings.LastIndexAny(staged, `/\`)+1:]
		return compile.Output{ExitCode: 1, Stderr: name + ":1:1: error: broken code\n"}, nil
	}
	return compile.Output{}, nil
}

func (e *stagedExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type capturePublisher struct {
	got []events.RunSummary
}

func (p *capturePublisher) Publish(_ context.Context, s events.RunSummary) error {
	p.got = append(p.got, s)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func cConfig() map[string]any {
	return map[string]any{
		"languages": map[string]any{
			"c": map[string]any{
				"compiler": "cc",
				"flags":    []any{"-fsyntax-only"},
			},
		},
	}
}

const chapter = "# Intro\n\n```c\nint main(void) { return 0; }\n```\n\n```c\nint other(void) { return 1; }\n```\n"

type fixture struct {
	project string
	store   *approval.MemoryStore
	exec    *stagedExecutor
	out     *bytes.Buffer
	runner  *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		project: t.TempDir(),
		store:   approval.NewMemoryStore(""),
		exec:    &stagedExecutor{},
		out:     &bytes.Buffer{},
	}
	f.runner = New(Options{
		Store:      f.store,
		Executor:   f.exec,
		StagingDir: t.TempDir(),
		ReportOut:  f.out,
		Lookup:     func(string) (string, bool) { return "", false },
	})
	return f
}

func (f *fixture) approve(t *testing.T, raw map[string]any) {
	t.Helper()
	plan, err := f.runner.Prepare(raw, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), approval.Record{
		Project:     approval.ProjectKey(f.project),
		Fingerprint: plan.Fingerprint,
	}))
}

func (f *fixture) input(raw map[string]any, docs ...propagation.Document) Input {
	return Input{Project: f.project, Config: raw, Chapters: docs}
}

func TestCheck_RefusesUnapprovedConfiguration(t *testing.T) {
	f := newFixture(t)

	rep, err := f.runner.Check(context.Background(), f.input(cConfig(),
		propagation.Document{Path: "intro.md", Content: []byte(chapter)}))

	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryApproval))
	assert.Nil(t, rep)
	assert.Zero(t, f.exec.count(), "no compiler may run before approval")
}

func TestCheck_PassesApprovedBook(t *testing.T) {
	f := newFixture(t)
	f.approve(t, cConfig())

	rep, err := f.runner.Check(context.Background(), f.input(cConfig(),
		propagation.Document{Path: "intro.md", Content: []byte(chapter)}))

	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.True(t, rep.Passed)
	assert.Equal(t, 2, rep.Stats.Tasks)
	assert.Equal(t, 2, f.exec.count())
	assert.NotEmpty(t, rep.RunID)
}

func TestCheck_ReportsCompileFailures(t *testing.T) {
	f := newFixture(t)
	f.approve(t, cConfig())

	broken := "# Broken\n\ntext\n\n```c\nBROKEN\n```\n"
	rep, err := f.runner.Check(context.Background(), f.input(cConfig(),
		propagation.Document{Path: "intro.md", Content: []byte(chapter)},
		propagation.Document{Path: "broken.md", Content: []byte(broken)}))

	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryCompile))
	require.NotNil(t, rep)
	assert.False(t, rep.Passed)

	failures := rep.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "broken.md", failures[0].ChapterPath)
	assert.Equal(t, 5, failures[0].Line)
	assert.Contains(t, f.out.String(), "broken.md")
}

func TestCheck_ConfigErrorsStopBeforeApproval(t *testing.T) {
	f := newFixture(t)
	raw := map[string]any{"languages": map[string]any{"c": map[string]any{"compiler": "cc", "flagz": []any{}}}}

	_, err := f.runner.Check(context.Background(), f.input(raw))

	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestCheck_NoLanguagesNeedsNoApproval(t *testing.T) {
	f := newFixture(t)

	rep, err := f.runner.Check(context.Background(), f.input(map[string]any{},
		propagation.Document{Path: "intro.md", Content: []byte(chapter)}))

	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.True(t, rep.Passed)
	assert.Zero(t, f.exec.count())
}

func TestCheck_PublishesRunSummary(t *testing.T) {
	f := newFixture(t)
	f.approve(t, cConfig())
	pub := &capturePublisher{}
	f.runner.opts.Publisher = pub

	_, err := f.runner.Check(context.Background(), f.input(cConfig(),
		propagation.Document{Path: "intro.md", Content: []byte(chapter)}))
	require.NoError(t, err)

	require.Len(t, pub.got, 1)
	s := pub.got[0]
	assert.Equal(t, "passed", s.Outcome)
	assert.Equal(t, 2, s.Tasks)
	assert.Equal(t, map[string]int{"c": 2}, s.Languages)
	assert.Equal(t, approval.ProjectKey(f.project), s.Project)
}

func TestCheck_JSONReport(t *testing.T) {
	f := newFixture(t)
	f.runner.opts.Format = report.FormatJSON
	f.approve(t, cConfig())

	_, err := f.runner.Check(context.Background(), f.input(cConfig(),
		propagation.Document{Path: "intro.md", Content: []byte(chapter)}))
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), `"passed": true`)
}

func TestPrepare_FingerprintTracksToolchain(t *testing.T) {
	r := New(Options{Lookup: func(string) (string, bool) { return "", false }})

	a, err := r.Prepare(cConfig(), nil)
	require.NoError(t, err)
	b, err := r.Prepare(cConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	changed := cConfig()
	changed["languages"].(map[string]any)["c"].(map[string]any)["flags"] = []any{"-Wall"}
	c, err := r.Prepare(changed, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestOutcomeFor(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "passed", string(outcomeFor(ctx, nil)))
	assert.Equal(t, "not_approved", string(outcomeFor(ctx, ferrors.ApprovalError("x").Build())))
	assert.Equal(t, "invalid", string(outcomeFor(ctx, ferrors.ValidationError("x").Build())))
	assert.Equal(t, "failed", string(outcomeFor(ctx, errors.New("plain"))))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, "canceled", string(outcomeFor(canceled, nil)))
}

func TestPrepare_DotEnvValuesAreFingerprinted(t *testing.T) {
	r := New(Options{Lookup: func(string) (string, bool) { return "", false }})
	raw := map[string]any{"languages": map[string]any{"c": map[string]any{"compiler": "${CC:-cc}"}}}

	plain, err := r.Prepare(raw, nil)
	require.NoError(t, err)
	fromFile, err := r.Prepare(raw, map[string]string{"CC": "clang"})
	require.NoError(t, err)
	unrelated, err := r.Prepare(raw, map[string]string{"CHECKCODE_TEST_INJECTED": "1"})
	require.NoError(t, err)

	assert.NotEqual(t, plain.Fingerprint, fromFile.Fingerprint)
	assert.Equal(t, plain.Fingerprint, unrelated.Fingerprint)
	_, set := os.LookupEnv("CHECKCODE_TEST_INJECTED")
	assert.False(t, set)
}
