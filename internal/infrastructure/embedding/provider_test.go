package embedding

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator-backend/internal/config"
	apperrors "curator-backend/internal/errors"
)

func TestStubProviderIsDeterministic(t *testing.T) {
	ctx := context.Background()
	p := NewStubProvider(64, "")

	first, err := p.Embed(ctx, "merge sort splits and merges")
	require.NoError(t, err)
	second, err := p.Embed(ctx, "merge sort splits and merges")
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Len(t, first.Vector, 64)

	var norm float64
	for _, v := range first.Vector {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9, "stub vectors are unit length")
}

func TestStubProviderDifferentContentDiffers(t *testing.T) {
	ctx := context.Background()
	p := NewStubProvider(64, "")

	a, err := p.Embed(ctx, "quick sort")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "binary search")
	require.NoError(t, err)

	assert.NotEqual(t, a.Vector, b.Vector)
}

func TestStubProviderRejectsEmptyContent(t *testing.T) {
	p := NewStubProvider(64, "")
	_, err := p.Embed(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRateLimitedProviderExhaustionIsBudget(t *testing.T) {
	inner := NewStubProvider(8, "")
	p := NewRateLimitedProvider(inner, config.Embedding{
		RequestsPerSecond: 1,
		Burst:             1,
		Timeout:           10 * time.Millisecond,
	})

	ctx := context.Background()
	_, err := p.Embed(ctx, "first call drains the bucket")
	require.NoError(t, err)

	_, err = p.Embed(ctx, "second call has no headroom")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindBudget) || apperrors.Is(err, apperrors.KindTimeout))
}
