package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyChapter     = "chapter"
	KeyBlock       = "block"
	KeyLine        = "line"
	KeyLanguage    = "language"
	KeyCompiler    = "compiler"
	KeyWorker      = "worker"
	KeyTasks       = "tasks"
	KeyJobs        = "jobs"
	KeyOutcome     = "outcome"
	KeyFingerprint = "fingerprint"
	KeyPath        = "path"
	KeyStage       = "stage"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Chapter(p string) slog.Attr       { return slog.String(KeyChapter, p) }
func Block(n int) slog.Attr            { return slog.Int(KeyBlock, n) }
func Line(n int) slog.Attr             { return slog.Int(KeyLine, n) }
func Language(l string) slog.Attr      { return slog.String(KeyLanguage, l) }
func Compiler(c string) slog.Attr      { return slog.String(KeyCompiler, c) }
func Worker(id string) slog.Attr       { return slog.String(KeyWorker, id) }
func Tasks(n int) slog.Attr            { return slog.Int(KeyTasks, n) }
func Jobs(n int) slog.Attr             { return slog.Int(KeyJobs, n) }
func Outcome(o string) slog.Attr       { return slog.String(KeyOutcome, o) }
func Fingerprint(fp string) slog.Attr  { return slog.String(KeyFingerprint, fp) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
