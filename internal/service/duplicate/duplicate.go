// Package duplicate checks incoming candidates against identity vectors of
// already-placed artifacts. It runs before folder matching so near-identical
// content never reaches placement.
package duplicate

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"curator-backend/internal/config"
	"curator-backend/internal/domain/concept"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/infrastructure/vectorindex"
	"curator-backend/internal/repository"
)

// CheckResult is the outcome of one duplicate check.
type CheckResult struct {
	IsDuplicate bool
	// ExistingID identifies the artifact the candidate duplicates, when
	// IsDuplicate is set.
	ExistingID string
	Similarity float64
	// Considered holds every hit at or above the duplicate threshold, best
	// first, for the decision rationale.
	Considered []vectorindex.Match
}

// Service performs identity-vector duplicate detection.
type Service struct {
	index     vectorindex.Index
	artifacts repository.ArtifactRepository
	cfg       config.Matching
	logger    *zap.Logger

	mu        sync.RWMutex
	threshold float64
}

// NewService creates a duplicate detection service. threshold is the routing
// duplicate threshold, kept separately from the matching config because it
// hot-reloads with the routing section.
func NewService(index vectorindex.Index, artifacts repository.ArtifactRepository, cfg config.Matching, threshold float64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:     index,
		artifacts: artifacts,
		cfg:       cfg,
		threshold: threshold,
		logger:    logger.Named("duplicate_detection"),
	}
}

// SetThreshold swaps the duplicate threshold on config reload.
func (s *Service) SetThreshold(threshold float64) {
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
}

func (s *Service) currentThreshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// Check searches identity vectors for matches at or above the duplicate
// threshold. The highest-similarity hit wins; among equal similarities the
// earliest-created artifact is chosen so repeated imports always collapse
// onto the same original.
func (s *Service) Check(ctx context.Context, candidate *concept.Candidate) (*CheckResult, error) {
	hits, err := s.index.Search(ctx, candidate.TitleVector.Vector, s.currentThreshold(), s.cfg.DuplicateSearchLimit, &vectorindex.Filter{
		Kind:            vectorindex.KindIdentity,
		ExcludeConcepts: []string{candidate.ID},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "DuplicateCheck", "identity vector search failed")
	}
	if len(hits) == 0 {
		return &CheckResult{}, nil
	}

	created := make(map[string]time.Time, len(hits))
	for _, hit := range hits {
		artifact, err := s.artifacts.FindByID(ctx, hit.ConceptID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// An index entry without a backing artifact is stale; it
				// cannot be the duplicate target.
				s.logger.Warn("identity hit has no backing artifact",
					zap.String("conceptId", hit.ConceptID))
				continue
			}
			return nil, apperrors.Wrap(err, "DuplicateCheck", "artifact lookup failed")
		}
		created[hit.ConceptID] = artifact.CreatedAt
	}

	considered := hits[:0]
	for _, hit := range hits {
		if _, ok := created[hit.ConceptID]; ok {
			considered = append(considered, hit)
		}
	}
	if len(considered) == 0 {
		return &CheckResult{}, nil
	}

	sort.SliceStable(considered, func(i, j int) bool {
		if considered[i].Score != considered[j].Score {
			return considered[i].Score > considered[j].Score
		}
		return created[considered[i].ConceptID].Before(created[considered[j].ConceptID])
	})

	best := considered[0]
	return &CheckResult{
		IsDuplicate: true,
		ExistingID:  best.ConceptID,
		Similarity:  best.Score,
		Considered:  append([]vectorindex.Match(nil), considered...),
	}, nil
}
