package routing

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"curator-backend/internal/domain/decision"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/service/clustering"
)

// AnalyzeReorganization inspects the recent decision window for folders that
// absorb a large share of placements while losing internal coherence, and
// proposes splitting them into subfolders. Proposals are advisory: they are
// recorded as reorganize decisions and returned, but nothing is moved until
// a human approves the plan.
func (e *Engine) AnalyzeReorganization(ctx context.Context) ([]*decision.Decision, error) {
	_, clusterCfg := e.snapshot()

	recent, err := e.audit.Recent(ctx, clusterCfg.ReorganizationWindow)
	if err != nil {
		return nil, apperrors.Wrap(err, "AnalyzeReorganization", "audit window read failed")
	}
	window := len(recent)
	if window == 0 {
		return nil, nil
	}

	counts := make(map[string]int)
	for _, d := range recent {
		if d.Action == decision.ActionRoute && d.FolderID != "" {
			counts[d.FolderID]++
		}
	}

	folderIDs := make([]string, 0, len(counts))
	for id := range counts {
		folderIDs = append(folderIDs, id)
	}
	sort.Strings(folderIDs)

	var proposals []*decision.Decision
	for _, folderID := range folderIDs {
		concentration := float64(counts[folderID]) / float64(window)
		if concentration < clusterCfg.ConcentrationMinimum {
			continue
		}

		proposal, err := e.proposeSplit(ctx, folderID, concentration, window, clusterCfg.CoherenceFloor)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if proposal != nil {
			proposals = append(proposals, proposal)
		}
	}
	return proposals, nil
}

func (e *Engine) proposeSplit(ctx context.Context, folderID string, concentration float64, window int, coherenceFloor float64) (*decision.Decision, error) {
	_, clusterCfg := e.snapshot()

	record, err := e.folders.FindByID(ctx, folderID)
	if err != nil {
		return nil, err
	}

	stored, err := e.index.ScrollByFolder(ctx, folderID)
	if err != nil {
		return nil, apperrors.Wrap(err, "proposeSplit", "folder scroll failed")
	}
	if len(stored) < clusterCfg.MinimumClusterSize*2 {
		// Too few members to carve out even two subfolders.
		return nil, nil
	}

	vectors := make([]clustering.Vector, 0, len(stored))
	raw := make([][]float64, 0, len(stored))
	for _, rec := range stored {
		vectors = append(vectors, clustering.Vector{ConceptID: rec.ConceptID, Values: rec.Vector})
		raw = append(raw, rec.Vector)
	}

	current := clustering.Coherence(raw)
	if current >= coherenceFloor {
		return nil, nil
	}

	clusters := clustering.FindClusters(vectors, clusterCfg)
	subfolders := make([]decision.CreateFolderSpec, 0, len(clusters))
	var coherenceSum float64
	for i, c := range clusters {
		if c.Suggested != clustering.ActionCreateFolder {
			continue
		}
		child, err := record.Path.Child(fmt.Sprintf("subtopic-%d", i+1))
		if err != nil {
			// Folder sits at maximum depth; it cannot be split downward.
			return nil, nil
		}
		subfolders = append(subfolders, decision.CreateFolderSpec{
			Path:      child,
			MemberIDs: c.ConceptIDs,
			Coherence: c.Coherence,
		})
		coherenceSum += c.Coherence
	}
	if len(subfolders) < 2 {
		return nil, nil
	}

	improvement := coherenceSum/float64(len(subfolders)) - current
	if improvement <= 0 {
		return nil, nil
	}

	plan := decision.ReorganizationPlan{
		FolderID:         folderID,
		FolderPath:       record.Path,
		Subfolders:       subfolders,
		ImprovementScore: improvement,
		WindowSize:       window,
	}
	d := decision.Reorganize(plan, improvement, decision.Rationale{
		Summary: fmt.Sprintf("folder %s absorbed %.0f%% of the last %d decisions with coherence %.3f",
			record.Path.String(), concentration*100, window, current),
		Signals: []decision.Signal{
			{Name: "concentration", Value: concentration},
			{Name: "coherence", Value: current},
			{Name: "improvement", Value: improvement},
		},
	})

	e.audit.Append(ctx, d)
	if e.metrics != nil {
		e.metrics.DecisionsTotal.WithLabelValues(string(decision.ActionReorganize)).Inc()
	}
	e.logger.Info("reorganization proposed",
		zap.String("folderId", folderID),
		zap.String("path", record.Path.String()),
		zap.Int("subfolders", len(subfolders)),
		zap.Float64("improvement", improvement))
	return d, nil
}
