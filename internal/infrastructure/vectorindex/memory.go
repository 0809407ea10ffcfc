package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	apperrors "curator-backend/internal/errors"
)

// MemoryIndex is an exact, linear-scan vector index. It is the default
// wiring for tests and single-node deployments; the interface matches what a
// remote index provider would offer.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[recordKey]*Record
	logger  *zap.Logger
}

type recordKey struct {
	conceptID string
	kind      Kind
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(logger *zap.Logger) *MemoryIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryIndex{
		records: make(map[recordKey]*Record),
		logger:  logger.Named("memory_index"),
	}
}

// Upsert stores a vector with full-replacement semantics: any previous
// record for (conceptID, kind) is discarded wholesale, so stale folder
// references cannot survive a re-route.
func (idx *MemoryIndex) Upsert(ctx context.Context, conceptID string, kind Kind, vector []float64, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Timeout("UPSERT_CANCELLED", "upsert cancelled").WithCause(err)
	}
	if conceptID == "" {
		return apperrors.Validation("EMPTY_CONCEPT_ID", "concept id cannot be empty")
	}
	if len(vector) == 0 {
		return apperrors.Validation("EMPTY_VECTOR", "cannot index an empty vector")
	}
	if kind == "" {
		kind = KindContext
	}

	placement := payload.Normalize()
	if placement.ConceptID == "" {
		placement.ConceptID = conceptID
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records[recordKey{conceptID, kind}] = &Record{
		ConceptID: conceptID,
		Kind:      kind,
		Vector:    append([]float64(nil), vector...),
		Placement: placement,
	}
	return nil
}

// Fetch returns the stored record for (conceptID, kind).
func (idx *MemoryIndex) Fetch(ctx context.Context, conceptID string, kind Kind) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Timeout("FETCH_CANCELLED", "fetch cancelled").WithCause(err)
	}
	if kind == "" {
		kind = KindContext
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[recordKey{conceptID, kind}]
	if !ok {
		return nil, apperrors.NotFound("VECTOR_NOT_FOUND", "no vector stored for concept").
			WithContext("conceptId", conceptID).
			WithContext("kind", string(kind))
	}
	return &Record{
		ConceptID: rec.ConceptID,
		Kind:      rec.Kind,
		Vector:    append([]float64(nil), rec.Vector...),
		Placement: rec.Placement,
	}, nil
}

// Search returns matches with cosine similarity >= threshold, descending,
// capped at limit.
func (idx *MemoryIndex) Search(ctx context.Context, vector []float64, threshold float64, limit int, filter *Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Timeout("SEARCH_CANCELLED", "search cancelled").WithCause(err)
	}
	if len(vector) == 0 {
		return nil, apperrors.Validation("EMPTY_VECTOR", "cannot search with an empty vector")
	}

	kind := KindContext
	var excluded map[string]bool
	folderID := ""
	unsortedOnly := false
	if filter != nil {
		if filter.Kind != "" {
			kind = filter.Kind
		}
		if len(filter.ExcludeConcepts) > 0 {
			excluded = make(map[string]bool, len(filter.ExcludeConcepts))
			for _, id := range filter.ExcludeConcepts {
				excluded[id] = true
			}
		}
		folderID = filter.FolderID
		unsortedOnly = filter.UnsortedOnly
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]Match, 0, limit)
	for key, rec := range idx.records {
		if key.kind != kind {
			continue
		}
		if excluded[rec.ConceptID] {
			continue
		}
		if folderID != "" && !placementTouches(rec.Placement, folderID) {
			continue
		}
		if unsortedOnly && rec.Placement.PrimaryFolder != "" {
			continue
		}
		score := cosine(vector, rec.Vector)
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			ConceptID: rec.ConceptID,
			Score:     score,
			Vector:    append([]float64(nil), rec.Vector...),
			Placement: rec.Placement,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ConceptID < matches[j].ConceptID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ScrollByFolder returns every context record placed in the given folder,
// primary or reference.
func (idx *MemoryIndex) ScrollByFolder(ctx context.Context, folderID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Timeout("SCROLL_CANCELLED", "scroll cancelled").WithCause(err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Record
	for key, rec := range idx.records {
		if key.kind != KindContext {
			continue
		}
		if !placementTouches(rec.Placement, folderID) {
			continue
		}
		out = append(out, Record{
			ConceptID: rec.ConceptID,
			Kind:      rec.Kind,
			Vector:    append([]float64(nil), rec.Vector...),
			Placement: rec.Placement,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConceptID < out[j].ConceptID })
	return out, nil
}

// Delete removes every vector kind stored for the concept. Idempotent.
func (idx *MemoryIndex) Delete(ctx context.Context, conceptID string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Timeout("DELETE_CANCELLED", "delete cancelled").WithCause(err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.records, recordKey{conceptID, KindIdentity})
	delete(idx.records, recordKey{conceptID, KindContext})
	return nil
}

// Count returns the number of stored records across both kinds.
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

func placementTouches(p Placement, folderID string) bool {
	if p.PrimaryFolder == folderID {
		return true
	}
	for _, ref := range p.ReferenceFolders {
		if ref == folderID {
			return true
		}
	}
	return false
}

// cosine returns cosine similarity, 0 for zero-magnitude vectors or
// mismatched dimensions.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
