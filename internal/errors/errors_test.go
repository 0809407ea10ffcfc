package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindClassification(t *testing.T) {
	t.Run("ValidationIsNotRetryable", func(t *testing.T) {
		err := Validation("INVALID_SEGMENT", "segment contains reserved characters")
		assert.True(t, IsValidation(err))
		assert.False(t, IsRetryable(err))
	})

	t.Run("InfrastructureIsRetryable", func(t *testing.T) {
		err := Infrastructure("SEARCH_FAILED", "vector search unavailable")
		assert.True(t, IsInfrastructure(err))
		assert.True(t, IsRetryable(err))
	})

	t.Run("TimeoutCountsAsInfrastructure", func(t *testing.T) {
		err := Timeout("SEARCH_TIMEOUT", "vector search deadline exceeded")
		assert.True(t, IsTimeout(err))
		assert.True(t, IsInfrastructure(err))
	})

	t.Run("ConfigurationIsFatal", func(t *testing.T) {
		err := Configuration("THRESHOLD_ORDER", "duplicate threshold must exceed high confidence")
		assert.True(t, IsConfiguration(err))
		assert.False(t, IsRetryable(err))
	})
}

func TestWrapPreservesKind(t *testing.T) {
	inner := Concurrency("FOLDER_CONFLICT", "centroid update conflict").
		WithContext("folderId", "f-123")

	wrapped := Wrap(inner, "UpdateFolderAggregates", "failed to apply placement")
	require.NotNil(t, wrapped)

	assert.Equal(t, KindConcurrency, wrapped.Kind)
	assert.True(t, IsConcurrency(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, "f-123", wrapped.Context["folderId"])

	// errors.As must still find the original through the chain.
	var unified *Error
	require.True(t, stderrors.As(wrapped, &unified))
}

func TestWrapForeignError(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	wrapped := Wrap(cause, "Search", "vector index call failed")

	assert.Equal(t, KindInternal, wrapped.Kind)
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "op", "msg"))
}

func TestContextAndRetryAfter(t *testing.T) {
	err := Budget("EMBEDDING_QUOTA", "embedding quota exhausted").
		WithOperation("Embed").
		WithContext("provider", "stub").
		WithRetryAfter(30 * time.Second)

	assert.True(t, IsBudget(err))
	assert.True(t, err.Retryable)
	assert.Equal(t, 30*time.Second, err.RetryAfter)
	assert.Equal(t, "Embed", err.Operation)
	assert.Contains(t, err.Error(), "EMBEDDING_QUOTA")
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, KindTimeout, KindOf(Timeout("T", "t")))
}
