package vectorindex

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"curator-backend/internal/config"
	apperrors "curator-backend/internal/errors"
)

// RetryIndex decorates an Index with bounded retries, exponential backoff and
// jitter, plus a per-call timeout. Retries stop at the configured limit; the
// caller (the decision engine) is responsible for degrading to unsorted.
type RetryIndex struct {
	inner  Index
	cfg    config.Retry
	logger *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRetryIndex wraps an index with retry behavior.
func NewRetryIndex(inner Index, cfg config.Retry, logger *zap.Logger) *RetryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryIndex{
		inner:  inner,
		cfg:    cfg,
		logger: logger.Named("retry_index"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RetryIndex) Upsert(ctx context.Context, conceptID string, kind Kind, vector []float64, payload Payload) error {
	// Upsert is full-replacement and therefore idempotent.
	return r.execute(ctx, "Upsert", func(callCtx context.Context) error {
		return r.inner.Upsert(callCtx, conceptID, kind, vector, payload)
	})
}

func (r *RetryIndex) Fetch(ctx context.Context, conceptID string, kind Kind) (*Record, error) {
	var out *Record
	err := r.execute(ctx, "Fetch", func(callCtx context.Context) error {
		var err error
		out, err = r.inner.Fetch(callCtx, conceptID, kind)
		return err
	})
	return out, err
}

func (r *RetryIndex) Search(ctx context.Context, vector []float64, threshold float64, limit int, filter *Filter) ([]Match, error) {
	var out []Match
	err := r.execute(ctx, "Search", func(callCtx context.Context) error {
		var err error
		out, err = r.inner.Search(callCtx, vector, threshold, limit, filter)
		return err
	})
	return out, err
}

func (r *RetryIndex) ScrollByFolder(ctx context.Context, folderID string) ([]Record, error) {
	var out []Record
	err := r.execute(ctx, "ScrollByFolder", func(callCtx context.Context) error {
		var err error
		out, err = r.inner.ScrollByFolder(callCtx, folderID)
		return err
	})
	return out, err
}

func (r *RetryIndex) Delete(ctx context.Context, conceptID string) error {
	return r.execute(ctx, "Delete", func(callCtx context.Context) error {
		return r.inner.Delete(callCtx, conceptID)
	})
}

func (r *RetryIndex) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperrors.Timeout("CALL_CANCELLED", "vector index call cancelled").
				WithOperation(operation).
				WithCause(err)
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		}
		err := fn(callCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if attempt > 0 {
				r.logger.Info("vector index call succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt+1),
				)
			}
			return nil
		}

		lastErr = err
		if !apperrors.IsRetryable(err) || attempt == r.cfg.MaxAttempts-1 {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn("retrying vector index call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return apperrors.Timeout("CALL_CANCELLED", "vector index call cancelled during backoff").
				WithOperation(operation).
				WithCause(ctx.Err())
		}
	}

	return apperrors.Wrap(lastErr, operation, "vector index call failed after retries").
		WithContext("maxAttempts", r.cfg.MaxAttempts)
}

func (r *RetryIndex) backoff(attempt int) time.Duration {
	base := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.BackoffFactor, float64(attempt))
	if base > float64(r.cfg.MaxDelay) {
		base = float64(r.cfg.MaxDelay)
	}
	r.mu.Lock()
	jitter := r.cfg.JitterFactor * base * (r.rnd.Float64()*2 - 1)
	r.mu.Unlock()
	d := base + jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
