package routing

import (
	"context"

	"golang.org/x/sync/errgroup"

	"curator-backend/internal/domain/concept"
	"curator-backend/internal/domain/decision"
)

// BatchResult pairs one candidate with its routing outcome. Err is set only
// for invalid input; infrastructure failures degrade inside the engine and
// surface as unsorted decisions.
type BatchResult struct {
	CandidateID string
	Decision    *decision.Decision
	Err         error
}

// RouteBatch routes candidates concurrently, bounded by the configured batch
// concurrency. Results come back in input order. Folder aggregate updates
// within the batch are serialized per folder by the engine's lock guard, so
// two batch members landing in the same folder cannot interleave.
func (e *Engine) RouteBatch(ctx context.Context, candidates []*concept.Candidate) []BatchResult {
	cfg, _ := e.snapshot()
	results := make([]BatchResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.BatchConcurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			d, err := e.RouteCandidate(gctx, candidate)
			id := ""
			if candidate != nil {
				id = candidate.ID
			}
			results[i] = BatchResult{CandidateID: id, Decision: d, Err: err}
			return nil
		})
	}
	// Workers never return errors; Wait only drains the group.
	_ = g.Wait()
	return results
}
