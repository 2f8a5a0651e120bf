package toolchain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errEmptyCompiler = errors.New("compiler is empty")
	errTraversal     = errors.New("compiler path contains a '..' segment")
)

// ValidateCompiler rejects compiler paths that are empty, contain shell
// metacharacters, or traverse upwards with "..".
func ValidateCompiler(path string) error {
	if strings.TrimSpace(path) == "" {
		return errEmptyCompiler
	}
	if i := strings.IndexAny(path, ";|&`$\n\r"); i >= 0 {
		return fmt.Errorf("compiler contains shell metacharacter %q", path[i])
	}
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return errTraversal
		}
	}
	return nil
}
