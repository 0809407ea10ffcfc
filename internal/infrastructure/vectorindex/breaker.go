package vectorindex

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "curator-backend/internal/errors"
)

// BreakerIndex wraps an Index with a circuit breaker so a struggling vector
// index fails fast instead of queueing candidates behind timeouts. An open
// circuit surfaces as a retryable infrastructure error, which the engine
// degrades to an unsorted decision.
type BreakerIndex struct {
	inner   Index
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerIndex wraps an index with a circuit breaker.
func NewBreakerIndex(inner Index, logger *zap.Logger) *BreakerIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("index_breaker")

	settings := gobreaker.Settings{
		Name:        "vector-index",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerIndex{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

func (b *BreakerIndex) Upsert(ctx context.Context, conceptID string, kind Kind, vector []float64, payload Payload) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.Upsert(ctx, conceptID, kind, vector, payload)
	})
	return b.translate(err, "Upsert")
}

func (b *BreakerIndex) Fetch(ctx context.Context, conceptID string, kind Kind) (*Record, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Fetch(ctx, conceptID, kind)
	})
	if err != nil {
		return nil, b.translate(err, "Fetch")
	}
	return out.(*Record), nil
}

func (b *BreakerIndex) Search(ctx context.Context, vector []float64, threshold float64, limit int, filter *Filter) ([]Match, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Search(ctx, vector, threshold, limit, filter)
	})
	if err != nil {
		return nil, b.translate(err, "Search")
	}
	return out.([]Match), nil
}

func (b *BreakerIndex) ScrollByFolder(ctx context.Context, folderID string) ([]Record, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.inner.ScrollByFolder(ctx, folderID)
	})
	if err != nil {
		return nil, b.translate(err, "ScrollByFolder")
	}
	return out.([]Record), nil
}

func (b *BreakerIndex) Delete(ctx context.Context, conceptID string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.inner.Delete(ctx, conceptID)
	})
	return b.translate(err, "Delete")
}

func (b *BreakerIndex) translate(err error, operation string) error {
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperrors.Infrastructure("INDEX_CIRCUIT_OPEN", "vector index circuit breaker open").
			WithOperation(operation).
			WithCause(err)
	}
	return err
}
