// Package workspace manages the per-run staging directory that compiler
// inputs are written to.
//
// Each run gets its own directory (checkcode-<run id>) below the system
// temporary directory. It is removed when the run ends unless the caller asked
// to keep it for inspection.
package workspace
