// Package errors provides the classified error primitives used across checkcode.
//
// Every failure that can stop a run carries a category that maps onto the
// pipeline's error taxonomy (configuration, approval, compilation,
// infrastructure) and, through CLIErrorAdapter, onto a process exit code.
//
// Example usage:
//
//	err := errors.ConfigError("unresolved placeholder").
//		WithContext("variable", "CLANG").
//		WithContext("field", "languages.c.compiler").
//		Build()
package errors
