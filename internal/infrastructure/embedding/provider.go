// Package embedding defines the embedding provider contract consumed by the
// routing core, together with a deterministic stub and a rate-limiting
// decorator. Provider failures are classified into distinct kinds — timeout,
// quota-exceeded, generic — so callers can degrade appropriately.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"golang.org/x/time/rate"

	"curator-backend/internal/config"
	"curator-backend/internal/domain/concept"
	apperrors "curator-backend/internal/errors"
)

// Provider produces a fixed-dimension embedding for distilled content.
type Provider interface {
	Embed(ctx context.Context, content string) (concept.Embedding, error)
	Dimensions() int
	Model() string
}

// StubProvider derives a deterministic unit vector from a content hash. The
// same text always embeds identically, which keeps routing idempotent in
// tests and demo deployments without a real model behind it.
type StubProvider struct {
	dimensions int
	model      string
}

// NewStubProvider creates a deterministic provider with the given dimension.
func NewStubProvider(dimensions int, model string) *StubProvider {
	if model == "" {
		model = "stub-hash-v1"
	}
	return &StubProvider{dimensions: dimensions, model: model}
}

// Embed hashes the content into a pseudo-random unit vector.
func (p *StubProvider) Embed(ctx context.Context, content string) (concept.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return concept.Embedding{}, apperrors.Timeout("EMBED_CANCELLED", "embedding call cancelled").
			WithCause(err)
	}
	if content == "" {
		return concept.Embedding{}, apperrors.Validation("EMPTY_CONTENT", "cannot embed empty content")
	}

	vec := make([]float64, p.dimensions)
	seed := sha256.Sum256([]byte(content))
	state := seed[:]
	var norm float64
	for i := 0; i < p.dimensions; i++ {
		if i%4 == 0 && i > 0 {
			next := sha256.Sum256(state)
			state = next[:]
		}
		bits := binary.BigEndian.Uint64(state[(i%4)*8 : (i%4)*8+8])
		// Map to (-1, 1).
		vec[i] = float64(int64(bits))/math.MaxInt64*0.5 + float64(bits%1000)/1000*0.5 - 0.25
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
	} else {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return concept.NewEmbedding(vec, concept.HashContent(content), p.model)
}

// Dimensions returns the fixed output dimension.
func (p *StubProvider) Dimensions() int { return p.dimensions }

// Model returns the model identifier recorded on embeddings.
func (p *StubProvider) Model() string { return p.model }

// RateLimitedProvider decorates a Provider with a token-bucket rate limit.
// When the bucket is exhausted and the context has no room to wait, the
// failure surfaces as a BUDGET error, which enrichment steps skip rather
// than retry.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	timeout config.Embedding
}

// NewRateLimitedProvider wraps a provider with the configured rate limit.
func NewRateLimitedProvider(inner Provider, cfg config.Embedding) *RateLimitedProvider {
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		timeout: cfg,
	}
}

// Embed waits for rate-limit headroom, then delegates. Exceeding the call
// timeout while waiting is a quota signal, not an infrastructure failure.
func (p *RateLimitedProvider) Embed(ctx context.Context, content string) (concept.Embedding, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if p.timeout.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.timeout.Timeout)
		defer cancel()
	}

	if err := p.limiter.Wait(callCtx); err != nil {
		if ctx.Err() != nil {
			return concept.Embedding{}, apperrors.Timeout("EMBED_TIMEOUT", "embedding call deadline exceeded").
				WithCause(ctx.Err())
		}
		return concept.Embedding{}, apperrors.Budget("EMBED_QUOTA", "embedding rate limit exhausted").
			WithCause(err)
	}

	out, err := p.inner.Embed(callCtx, content)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return concept.Embedding{}, apperrors.Timeout("EMBED_TIMEOUT", "embedding call deadline exceeded").
				WithCause(err)
		}
		return concept.Embedding{}, err
	}
	return out, nil
}

// Dimensions returns the wrapped provider's dimension.
func (p *RateLimitedProvider) Dimensions() int { return p.inner.Dimensions() }

// Model returns the wrapped provider's model identifier.
func (p *RateLimitedProvider) Model() string { return p.inner.Model() }
