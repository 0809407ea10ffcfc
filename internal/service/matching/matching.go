// Package matching ranks existing folders as placement candidates for an
// incoming concept, by grouping context-vector search hits per folder and
// scoring each folder with a weighted composite.
package matching

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"curator-backend/internal/config"
	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/infrastructure/vectorindex"
	"curator-backend/internal/repository"
)

// Match is one scored (concept, folder) association from a search.
type Match struct {
	ConceptID string
	FolderID  string
	Score     float64
	IsPrimary bool
}

// FolderCandidate is a folder ranked as a placement target, retaining its
// constituent matches for the decision rationale.
type FolderCandidate struct {
	FolderID string
	Path     folder.Path
	Score    float64
	AvgScore float64
	MaxScore float64
	Matches  []Match
}

// FolderStats summarizes a folder for presentation and review tooling.
type FolderStats struct {
	FolderID       string
	Path           folder.Path
	MemberCount    int
	MeanConfidence float64
}

// Service runs folder-candidate search and scoring.
type Service struct {
	index   vectorindex.Index
	folders repository.FolderRepository
	cfg     config.Matching
	logger  *zap.Logger
}

// NewService creates a folder matching service.
func NewService(index vectorindex.Index, folders repository.FolderRepository, cfg config.Matching, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:   index,
		folders: folders,
		cfg:     cfg,
		logger:  logger.Named("folder_matching"),
	}
}

// MatchFolders searches context vectors above the given floor and returns
// folders ranked by composite score, descending. excludeConceptID removes
// the candidate itself from consideration on re-routing.
func (s *Service) MatchFolders(ctx context.Context, contextVector []float64, floor float64, excludeConceptID string) ([]FolderCandidate, error) {
	filter := &vectorindex.Filter{Kind: vectorindex.KindContext}
	if excludeConceptID != "" {
		filter.ExcludeConcepts = []string{excludeConceptID}
	}

	hits, err := s.index.Search(ctx, contextVector, floor, s.cfg.SearchBreadth, filter)
	if err != nil {
		return nil, apperrors.Wrap(err, "MatchFolders", "context vector search failed")
	}

	byFolder := make(map[string][]Match)
	for _, hit := range hits {
		if hit.Placement.PrimaryFolder != "" {
			byFolder[hit.Placement.PrimaryFolder] = append(byFolder[hit.Placement.PrimaryFolder], Match{
				ConceptID: hit.ConceptID,
				FolderID:  hit.Placement.PrimaryFolder,
				Score:     hit.Score,
				IsPrimary: true,
			})
		}
		for _, ref := range hit.Placement.ReferenceFolders {
			byFolder[ref] = append(byFolder[ref], Match{
				ConceptID: hit.ConceptID,
				FolderID:  ref,
				Score:     hit.Score,
			})
		}
	}

	candidates := make([]FolderCandidate, 0, len(byFolder))
	for folderID, matches := range byFolder {
		record, err := s.folders.FindByID(ctx, folderID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// Placement references a folder that no longer exists;
				// skip it rather than rank a dangling target.
				s.logger.Warn("skipping match group for missing folder",
					zap.String("folderId", folderID))
				continue
			}
			return nil, apperrors.Wrap(err, "MatchFolders", "folder lookup failed")
		}

		avg, max := summarize(matches)
		candidates = append(candidates, FolderCandidate{
			FolderID: folderID,
			Path:     record.Path,
			Score:    s.composite(avg, max, len(matches)),
			AvgScore: avg,
			MaxScore: max,
			Matches:  matches,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Path.Compare(candidates[j].Path) < 0
	})
	return candidates, nil
}

// composite combines average similarity, maximum similarity and a bounded
// match-count bonus: avg*wAvg + max*wMax + min(count,cap)/cap*wCount. With
// weights summing to at most 1 the result stays in [0,1].
func (s *Service) composite(avg, max float64, count int) float64 {
	capped := count
	if capped > s.cfg.CountCap {
		capped = s.cfg.CountCap
	}
	countBonus := float64(capped) / float64(s.cfg.CountCap)
	return avg*s.cfg.AvgWeight + max*s.cfg.MaxWeight + countBonus*s.cfg.CountWeight
}

func summarize(matches []Match) (avg, max float64) {
	if len(matches) == 0 {
		return 0, 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Score
		if m.Score > max {
			max = m.Score
		}
	}
	return sum / float64(len(matches)), max
}

// Stats returns member count and mean placement confidence for a folder.
func (s *Service) Stats(ctx context.Context, folderID string) (*FolderStats, error) {
	record, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		return nil, err
	}

	records, err := s.index.ScrollByFolder(ctx, folderID)
	if err != nil {
		return nil, apperrors.Wrap(err, "Stats", "folder scroll failed")
	}

	var sum float64
	n := 0
	for _, rec := range records {
		if c, ok := rec.Placement.Confidences[folderID]; ok {
			sum += c
			n++
		}
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}

	return &FolderStats{
		FolderID:       folderID,
		Path:           record.Path,
		MemberCount:    record.MemberCount,
		MeanConfidence: mean,
	}, nil
}

// UnsortedSimilar finds concepts already parked in Unsorted that resemble
// the given vector, used to surface near-duplicates awaiting review.
func (s *Service) UnsortedSimilar(ctx context.Context, contextVector []float64, threshold float64, limit int) ([]vectorindex.Match, error) {
	hits, err := s.index.Search(ctx, contextVector, threshold, limit, &vectorindex.Filter{
		Kind:         vectorindex.KindContext,
		UnsortedOnly: true,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "UnsortedSimilar", "unsorted vector search failed")
	}
	return hits, nil
}
