// Package discovery finds concepts related to a given concept across folder
// boundaries and classifies each relationship by how the two folders sit in
// the hierarchy. Results are cached per folder and invalidated when the
// folder's membership changes.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"curator-backend/internal/config"
	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/infrastructure/cache"
	"curator-backend/internal/infrastructure/vectorindex"
	"curator-backend/internal/repository"
)

// RelationType classifies how a related concept's folder relates to the
// source concept's folder.
type RelationType string

const (
	// RelationPrerequisite points to a concept in an ancestor folder: more
	// general material the source builds on.
	RelationPrerequisite RelationType = "prerequisite"
	// RelationAdvanced points to a concept in a descendant folder: a more
	// specific refinement of the source.
	RelationAdvanced RelationType = "advanced"
	// RelationParallel points to a concept in a sibling folder at the same
	// level of the hierarchy.
	RelationParallel RelationType = "parallel"
	// RelationApplication points to a concept in an unrelated branch: the
	// same idea applied in another domain.
	RelationApplication RelationType = "application"
)

// RelatedConcept is one discovery result.
type RelatedConcept struct {
	ConceptID  string       `json:"conceptId"`
	FolderID   string       `json:"folderId"`
	FolderPath string       `json:"folderPath"`
	Similarity float64      `json:"similarity"`
	Relation   RelationType `json:"relation"`
}

// Service runs cross-folder related-concept discovery.
type Service struct {
	index   vectorindex.Index
	folders repository.FolderRepository
	cache   *cache.Cache
	cfg     config.Discovery
	logger  *zap.Logger
}

// NewService creates a discovery service.
func NewService(index vectorindex.Index, folders repository.FolderRepository, c *cache.Cache, cfg config.Discovery, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:   index,
		folders: folders,
		cache:   c,
		cfg:     cfg,
		logger:  logger.Named("discovery"),
	}
}

// Related returns concepts similar to the given one that live in other
// folders, classified by hierarchy relation. The source concept must be
// routed; unsorted concepts have no folder to discover from.
func (s *Service) Related(ctx context.Context, conceptID string) ([]RelatedConcept, error) {
	source, err := s.index.Fetch(ctx, conceptID, vectorindex.KindContext)
	if err != nil {
		return nil, err
	}
	if source.Placement.PrimaryFolder == "" {
		return nil, apperrors.Validation("CONCEPT_UNSORTED", "discovery requires a routed concept").
			WithContext("conceptId", conceptID)
	}

	key := cacheKey(source.Placement.PrimaryFolder, conceptID)
	if s.cache != nil {
		if raw, ok := s.cache.Get(key); ok {
			var cached []RelatedConcept
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			s.cache.Delete(key)
		}
	}

	sourceFolder, err := s.folders.FindByID(ctx, source.Placement.PrimaryFolder)
	if err != nil {
		return nil, err
	}

	// Over-fetch so filtering out same-folder hits still fills the limit.
	hits, err := s.index.Search(ctx, source.Vector, s.cfg.RelevanceThreshold, s.cfg.Limit*2, &vectorindex.Filter{
		Kind:            vectorindex.KindContext,
		ExcludeConcepts: []string{conceptID},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "Related", "discovery search failed")
	}

	paths := make(map[string]folder.Path)
	results := make([]RelatedConcept, 0, s.cfg.Limit)
	for _, hit := range hits {
		if len(results) == s.cfg.Limit {
			break
		}
		hitFolderID := hit.Placement.PrimaryFolder
		if hitFolderID == "" || hitFolderID == sourceFolder.ID {
			continue
		}

		hitPath, ok := paths[hitFolderID]
		if !ok {
			rec, err := s.folders.FindByID(ctx, hitFolderID)
			if err != nil {
				if apperrors.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			hitPath = rec.Path
			paths[hitFolderID] = hitPath
		}

		results = append(results, RelatedConcept{
			ConceptID:  hit.ConceptID,
			FolderID:   hitFolderID,
			FolderPath: hitPath.String(),
			Similarity: hit.Score,
			Relation:   classify(sourceFolder.Path, hitPath),
		})
	}

	if s.cache != nil {
		if raw, err := json.Marshal(results); err == nil {
			s.cache.Set(key, raw, s.cfg.CacheTTL)
		}
	}
	return results, nil
}

// InvalidateFolder drops every cached discovery result for the folder. Called
// after each placement into or removal from the folder.
func (s *Service) InvalidateFolder(folderID string) {
	if s.cache == nil {
		return
	}
	n := s.cache.InvalidatePrefix(cachePrefix(folderID))
	if n > 0 {
		s.logger.Debug("discovery cache invalidated",
			zap.String("folderId", folderID), zap.Int("entries", n))
	}
}

func cacheKey(folderID, conceptID string) string {
	return cachePrefix(folderID) + conceptID
}

func cachePrefix(folderID string) string {
	return fmt.Sprintf("discovery:%s:", folderID)
}

// classify maps the hierarchy relation between the source folder and the
// related concept's folder onto a relation type.
func classify(source, other folder.Path) RelationType {
	switch {
	case other.IsAncestorOf(source):
		return RelationPrerequisite
	case other.IsDescendantOf(source):
		return RelationAdvanced
	case other.IsSiblingOf(source):
		return RelationParallel
	default:
		return RelationApplication
	}
}
