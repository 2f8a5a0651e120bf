package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("field", "languages.c.compiler").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "invalid configuration", err.Message())

		field, ok := err.Context().GetString("field")
		require.True(t, ok)
		assert.Equal(t, "languages.c.compiler", field)
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		err := ApprovalError("not approved").Build()
		assert.True(t, err.IsFatal())
		assert.True(t, err.NeedsUserAction())
		assert.True(t, HasCategory(err, CategoryApproval))
	})
}

func TestAsClassified_FindsWrappedError(t *testing.T) {
	inner := ConfigError("unresolved placeholder").Build()
	wrapped := fmt.Errorf("resolve: %w", inner)

	got, ok := AsClassified(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.Equal(t, CategoryConfig, GetCategory(wrapped))
	assert.Equal(t, CategoryInternal, GetCategory(errors.New("plain")))
}

func TestWrapError_PreservesCause(t *testing.T) {
	cause := errors.New("exec: \"cc\": executable file not found in $PATH")
	err := WrapError(cause, CategoryInfrastructure, "compiler not found").Build()

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "[infrastructure:error] compiler not found")
}

func TestWithContext_DoesNotMutateOriginal(t *testing.T) {
	base := CompileError("block failed").Build()
	derived := base.WithContext("block", 3)

	_, ok := base.Context().Get("block")
	assert.False(t, ok)
	v, ok := derived.Context().Get("block")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestIs_MatchesCategoryAndMessage(t *testing.T) {
	a := ApprovalError("configuration not approved").Build()
	b := ApprovalError("configuration not approved").WithContext("x", 1).Build()
	c := ConfigError("configuration not approved").Build()

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}
