// Package routing implements the decision engine: for each candidate it
// resolves exactly one of route, create_folder, duplicate or unsorted, writes
// the placement, and appends an auditable decision. Reorganization proposals
// are produced out of band by the same engine.
//
// Infrastructure failures never surface to the caller as errors; the engine
// degrades to an unsorted decision with confidence zero and queues the
// candidate for review.
package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"curator-backend/internal/config"
	"curator-backend/internal/domain/concept"
	"curator-backend/internal/domain/decision"
	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/infrastructure/folderlock"
	"curator-backend/internal/infrastructure/observability"
	"curator-backend/internal/infrastructure/vectorindex"
	"curator-backend/internal/repository"
	"curator-backend/internal/service/clustering"
	"curator-backend/internal/service/duplicate"
	"curator-backend/internal/service/matching"
)

// placementRetries bounds reload-and-retry cycles on folder version
// conflicts. Conflicts are already rare because writers hold the per-folder
// lock; retries only cover out-of-process writers.
const placementRetries = 3

// Dependencies bundles everything the engine needs. All fields are required
// except Metrics and Logger.
type Dependencies struct {
	Duplicates *duplicate.Service
	Matcher    *matching.Service
	Index      vectorindex.Index
	Artifacts  repository.ArtifactRepository
	Folders    repository.FolderRepository
	Audit      repository.AuditRepository
	Review     repository.ReviewQueue
	Locks      *folderlock.Guard
	Metrics    *observability.Metrics
	Logger     *zap.Logger

	// OnPlacement, when set, runs after each successful placement into a
	// folder. The composition root points it at discovery cache
	// invalidation.
	OnPlacement func(folderID string)
}

// Engine is the routing decision engine.
type Engine struct {
	duplicates *duplicate.Service
	matcher    *matching.Service
	index      vectorindex.Index
	artifacts  repository.ArtifactRepository
	folders    repository.FolderRepository
	audit      repository.AuditRepository
	review     repository.ReviewQueue
	locks      *folderlock.Guard
	metrics    *observability.Metrics
	logger     *zap.Logger

	onPlacement func(folderID string)

	mu         sync.RWMutex
	routingCfg config.Routing
	clusterCfg config.Clustering
}

// NewEngine creates a routing engine.
func NewEngine(deps Dependencies, routingCfg config.Routing, clusterCfg config.Clustering) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := deps.Locks
	if locks == nil {
		locks = folderlock.NewGuard()
	}
	return &Engine{
		duplicates:  deps.Duplicates,
		matcher:     deps.Matcher,
		index:       deps.Index,
		artifacts:   deps.Artifacts,
		folders:     deps.Folders,
		audit:       deps.Audit,
		review:      deps.Review,
		locks:       locks,
		metrics:     deps.Metrics,
		logger:      logger.Named("routing_engine"),
		onPlacement: deps.OnPlacement,
		routingCfg:  routingCfg,
		clusterCfg:  clusterCfg,
	}
}

// ApplyConfig swaps thresholds on a validated config reload. In-flight
// decisions finish with the snapshot they started with.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	e.mu.Lock()
	e.routingCfg = cfg.Routing
	e.clusterCfg = cfg.Clustering
	e.mu.Unlock()
	e.duplicates.SetThreshold(cfg.Routing.DuplicateThreshold)
	if e.metrics != nil {
		e.metrics.ConfigReloads.Inc()
	}
	e.logger.Info("routing thresholds reloaded",
		zap.Float64("duplicateThreshold", cfg.Routing.DuplicateThreshold),
		zap.Float64("highConfidenceThreshold", cfg.Routing.HighConfidenceThreshold),
		zap.Float64("lowConfidenceThreshold", cfg.Routing.LowConfidenceThreshold))
}

func (e *Engine) snapshot() (config.Routing, config.Clustering) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.routingCfg, e.clusterCfg
}

// RouteCandidate resolves one candidate into a decision and applies its side
// effects. Re-submitting already-routed content returns the recorded outcome
// without re-placing anything. Infrastructure failures degrade to an
// unsorted decision rather than returning an error; only invalid input
// surfaces as an error.
func (e *Engine) RouteCandidate(ctx context.Context, candidate *concept.Candidate) (*decision.Decision, error) {
	start := time.Now()
	cfg, clusterCfg := e.snapshot()

	if candidate == nil || candidate.ID == "" {
		return nil, apperrors.Validation("EMPTY_CANDIDATE", "cannot route an empty candidate")
	}

	if existing, err := e.artifacts.FindByID(ctx, candidate.ID); err == nil && existing.DecisionID != "" {
		e.logger.Debug("candidate already decided",
			zap.String("candidateId", candidate.ID),
			zap.String("decisionId", existing.DecisionID))
		return replayDecision(existing), nil
	}

	if err := e.artifacts.Save(ctx, concept.NewArtifact(candidate)); err != nil {
		return nil, apperrors.Wrap(err, "RouteCandidate", "artifact save failed")
	}

	dup, err := e.duplicates.Check(ctx, candidate)
	if err != nil {
		return e.degrade(ctx, candidate, "duplicate check failed", err, start), nil
	}
	if dup.IsDuplicate {
		return e.finalizeDuplicate(ctx, candidate, dup, start)
	}

	// Index the identity vector so later submissions can detect this
	// candidate as their duplicate target.
	if err := e.index.Upsert(ctx, candidate.ID, vectorindex.KindIdentity, candidate.TitleVector.Vector, vectorindex.Payload{
		ConceptID: candidate.ID,
	}); err != nil {
		return e.degrade(ctx, candidate, "identity vector upsert failed", err, start), nil
	}

	total, err := e.artifacts.Count(ctx)
	if err != nil {
		return e.degrade(ctx, candidate, "concept count failed", err, start), nil
	}
	state := StateFor(total, cfg)

	candidates, err := e.matcher.MatchFolders(ctx, candidate.ContextVector.Vector, cfg.LowConfidenceThreshold, candidate.ID)
	if err != nil {
		return e.degrade(ctx, candidate, "folder matching failed", err, start), nil
	}

	switch {
	case len(candidates) > 0 && candidates[0].Score >= cfg.HighConfidenceThreshold:
		return e.finalizeRoute(ctx, candidate, candidates, cfg, start)

	case len(candidates) > 0 && candidates[0].Score >= cfg.LowConfidenceThreshold:
		// Best composite sits in [low, high): ambiguous, a human decides.
		// Individual matches can clear the search floor while the composite
		// does not; those fall through to the no-candidate branches.
		return e.finalizeAmbiguous(ctx, candidate, candidates, cfg, start)

	case state == StateBootstrap:
		return e.finalizeBootstrap(ctx, candidate, cfg, clusterCfg, start)

	default:
		return e.finalizeUnsorted(ctx, candidate, 0,
			decision.Rationale{Summary: "no folder candidate reached the confidence floor"}, start)
	}
}

// finalizeRoute places the candidate in the winning folder. Within TieEpsilon
// of the top score the shallower (less specific) path wins.
func (e *Engine) finalizeRoute(ctx context.Context, candidate *concept.Candidate, candidates []matching.FolderCandidate, cfg config.Routing, start time.Time) (*decision.Decision, error) {
	winner := pickWinner(candidates, cfg.TieEpsilon)

	if err := e.placeInFolder(ctx, winner.FolderID, candidate.ContextVector.Vector); err != nil {
		if apperrors.IsValidation(err) {
			return nil, err
		}
		return e.degrade(ctx, candidate, "folder placement failed", err, start), nil
	}

	if err := e.index.Upsert(ctx, candidate.ID, vectorindex.KindContext, candidate.ContextVector.Vector, vectorindex.Payload{
		ConceptID:            candidate.ID,
		PrimaryFolder:        winner.FolderID,
		PlacementConfidences: map[string]float64{winner.FolderID: winner.Score},
	}); err != nil {
		return e.degrade(ctx, candidate, "context vector upsert failed", err, start), nil
	}

	rationale := decision.Rationale{
		Summary: fmt.Sprintf("routed to %s with composite score %.3f", winner.Path.String(), winner.Score),
		Signals: []decision.Signal{
			{Name: "composite", Value: winner.Score},
			{Name: "avgSimilarity", Value: winner.AvgScore},
			{Name: "maxSimilarity", Value: winner.MaxScore},
			{Name: "matchCount", Value: float64(len(winner.Matches))},
		},
		Alternatives: alternatives(candidates, winner.FolderID, cfg.ReviewAlternatives),
	}
	d := decision.Route(candidate.ID, winner.FolderID, winner.Score, rationale)

	if err := e.artifacts.UpdateRouting(ctx, candidate.ID, concept.RoutingUpdate{
		Status:     concept.StatusRouted,
		FolderID:   winner.FolderID,
		DecisionID: d.ID,
	}); err != nil {
		return e.degrade(ctx, candidate, "artifact routing update failed", err, start), nil
	}

	e.record(ctx, d, start)
	return d, nil
}

// finalizeAmbiguous parks the candidate and queues it for human review with
// the top alternatives attached.
func (e *Engine) finalizeAmbiguous(ctx context.Context, candidate *concept.Candidate, candidates []matching.FolderCandidate, cfg config.Routing, start time.Time) (*decision.Decision, error) {
	alts := alternatives(candidates, "", cfg.ReviewAlternatives)
	rationale := decision.Rationale{
		Summary: fmt.Sprintf("best folder score %.3f is below the high-confidence threshold %.2f",
			candidates[0].Score, cfg.HighConfidenceThreshold),
		Alternatives: alts,
	}

	d, err := e.parkUnsorted(ctx, candidate, candidates[0].Score, rationale)
	if err != nil {
		return e.degrade(ctx, candidate, "unsorted placement failed", err, start), nil
	}

	if err := e.review.AddForReview(ctx, candidate.ID, repository.ReasonAmbiguousRouting, alts); err != nil {
		// The decision stands; a lost review item is recoverable from the
		// audit log.
		e.logger.Warn("review enqueue failed",
			zap.String("candidateId", candidate.ID), zap.Error(err))
	} else if e.metrics != nil {
		e.metrics.ReviewQueueAdds.Inc()
	}

	e.record(ctx, d, start)
	return d, nil
}

// finalizeBootstrap attempts clustering-driven folder creation during the
// cold-start phase, falling back to unsorted when no coherent cluster forms.
func (e *Engine) finalizeBootstrap(ctx context.Context, candidate *concept.Candidate, cfg config.Routing, clusterCfg config.Clustering, start time.Time) (*decision.Decision, error) {
	hits, err := e.matcher.UnsortedSimilar(ctx, candidate.ContextVector.Vector, clusterCfg.SimilarityThreshold, cfg.BootstrapBatchCap)
	if err != nil {
		return e.degrade(ctx, candidate, "unsorted similarity search failed", err, start), nil
	}

	vectors := make([]clustering.Vector, 0, len(hits)+1)
	vectors = append(vectors, clustering.Vector{ConceptID: candidate.ID, Values: candidate.ContextVector.Vector})
	for _, hit := range hits {
		vectors = append(vectors, clustering.Vector{ConceptID: hit.ConceptID, Values: hit.Vector})
	}

	cluster := clusterContaining(clustering.FindClusters(vectors, clusterCfg), candidate.ID)
	if cluster == nil || cluster.Suggested != clustering.ActionCreateFolder {
		return e.finalizeUnsorted(ctx, candidate, 0,
			decision.Rationale{Summary: "bootstrap: no coherent cluster formed around the candidate"}, start)
	}

	path, err := folder.Provisional(folderName(candidate.Title))
	if err != nil {
		// Title produced no usable folder name; park rather than guess.
		return e.finalizeUnsorted(ctx, candidate, 0,
			decision.Rationale{Summary: "bootstrap: cluster formed but candidate title yields no valid folder name"}, start)
	}

	record, err := e.ensureFolder(ctx, path)
	if err != nil {
		return e.degrade(ctx, candidate, "provisional folder creation failed", err, start), nil
	}

	if err := e.placeInFolder(ctx, record.ID, candidate.ContextVector.Vector); err != nil {
		return e.degrade(ctx, candidate, "folder placement failed", err, start), nil
	}
	if err := e.index.Upsert(ctx, candidate.ID, vectorindex.KindContext, candidate.ContextVector.Vector, vectorindex.Payload{
		ConceptID:            candidate.ID,
		PrimaryFolder:        record.ID,
		PlacementConfidences: map[string]float64{record.ID: cluster.Coherence},
	}); err != nil {
		return e.degrade(ctx, candidate, "context vector upsert failed", err, start), nil
	}

	spec := decision.CreateFolderSpec{
		Path:      path,
		MemberIDs: cluster.ConceptIDs,
		Coherence: cluster.Coherence,
	}
	d := decision.CreateFolder(candidate.ID, spec, cluster.Coherence, decision.Rationale{
		Summary: fmt.Sprintf("bootstrap cluster of %d concepts with coherence %.3f", len(cluster.ConceptIDs), cluster.Coherence),
		Signals: []decision.Signal{
			{Name: "clusterSize", Value: float64(len(cluster.ConceptIDs))},
			{Name: "coherence", Value: cluster.Coherence},
		},
	})

	if err := e.artifacts.UpdateRouting(ctx, candidate.ID, concept.RoutingUpdate{
		Status:     concept.StatusRouted,
		FolderID:   record.ID,
		DecisionID: d.ID,
	}); err != nil {
		return e.degrade(ctx, candidate, "artifact routing update failed", err, start), nil
	}

	e.record(ctx, d, start)
	return d, nil
}

// finalizeDuplicate records the duplicate verdict. The duplicate's vectors
// are not indexed; future copies keep collapsing onto the original.
func (e *Engine) finalizeDuplicate(ctx context.Context, candidate *concept.Candidate, dup *duplicate.CheckResult, start time.Time) (*decision.Decision, error) {
	d := decision.Duplicate(candidate.ID, dup.ExistingID, dup.Similarity, decision.Rationale{
		Summary: fmt.Sprintf("identity similarity %.3f to existing artifact", dup.Similarity),
		Signals: []decision.Signal{{Name: "identitySimilarity", Value: dup.Similarity}},
	})

	if err := e.artifacts.UpdateRouting(ctx, candidate.ID, concept.RoutingUpdate{
		Status:      concept.StatusDuplicate,
		DuplicateOf: dup.ExistingID,
		DecisionID:  d.ID,
	}); err != nil {
		return e.degrade(ctx, candidate, "artifact routing update failed", err, start), nil
	}

	e.record(ctx, d, start)
	return d, nil
}

// finalizeUnsorted parks the candidate with no review item.
func (e *Engine) finalizeUnsorted(ctx context.Context, candidate *concept.Candidate, confidence float64, rationale decision.Rationale, start time.Time) (*decision.Decision, error) {
	d, err := e.parkUnsorted(ctx, candidate, confidence, rationale)
	if err != nil {
		return e.degrade(ctx, candidate, "unsorted placement failed", err, start), nil
	}
	e.record(ctx, d, start)
	return d, nil
}

// parkUnsorted writes the unsorted state: context vector indexed with no
// primary folder so bootstrap clustering keeps seeing it, artifact marked
// unsorted.
func (e *Engine) parkUnsorted(ctx context.Context, candidate *concept.Candidate, confidence float64, rationale decision.Rationale) (*decision.Decision, error) {
	if err := e.index.Upsert(ctx, candidate.ID, vectorindex.KindContext, candidate.ContextVector.Vector, vectorindex.Payload{
		ConceptID: candidate.ID,
	}); err != nil {
		return nil, err
	}
	d := decision.Unsorted(candidate.ID, confidence, rationale)
	if err := e.artifacts.UpdateRouting(ctx, candidate.ID, concept.RoutingUpdate{
		Status:     concept.StatusUnsorted,
		DecisionID: d.ID,
	}); err != nil {
		return nil, err
	}
	return d, nil
}

// degrade converts an infrastructure failure into an unsorted decision with
// confidence zero, annotated with the failure, and queues the candidate for
// review. The error itself never reaches the caller.
func (e *Engine) degrade(ctx context.Context, candidate *concept.Candidate, summary string, cause error, start time.Time) *decision.Decision {
	e.logger.Error("routing degraded to unsorted",
		zap.String("candidateId", candidate.ID),
		zap.String("reason", summary),
		zap.Error(cause))

	d := decision.Unsorted(candidate.ID, 0, decision.Rationale{
		Summary:    summary,
		InfraError: cause.Error(),
	})

	// Best effort from here on: the decision must come out even if the
	// stores stay unreachable.
	if err := e.artifacts.UpdateRouting(ctx, candidate.ID, concept.RoutingUpdate{
		Status:     concept.StatusUnsorted,
		DecisionID: d.ID,
	}); err != nil {
		e.logger.Warn("degraded routing update failed",
			zap.String("candidateId", candidate.ID), zap.Error(err))
	}
	if err := e.review.AddForReview(ctx, candidate.ID, repository.ReasonInfraDegraded, nil); err != nil {
		e.logger.Warn("degraded review enqueue failed",
			zap.String("candidateId", candidate.ID), zap.Error(err))
	} else if e.metrics != nil {
		e.metrics.ReviewQueueAdds.Inc()
	}

	e.audit.Append(ctx, d)
	if e.metrics != nil {
		e.metrics.DegradedTotal.Inc()
		e.metrics.ObserveDecision(string(d.Action), start)
	}
	return d
}

// placeInFolder folds the vector into the folder aggregate under the
// per-folder lock, reloading and retrying on version conflicts from
// out-of-process writers.
func (e *Engine) placeInFolder(ctx context.Context, folderID string, vector []float64) error {
	e.locks.Lock(folderID)
	defer e.locks.Unlock(folderID)

	var lastErr error
	for attempt := 0; attempt < placementRetries; attempt++ {
		record, err := e.folders.FindByID(ctx, folderID)
		if err != nil {
			return err
		}
		updated, err := record.ApplyPlacement(vector)
		if err != nil {
			return err
		}
		if err := e.folders.Update(ctx, updated); err != nil {
			if apperrors.IsConcurrency(err) {
				lastErr = err
				continue
			}
			return err
		}
		if e.onPlacement != nil {
			e.onPlacement(folderID)
		}
		return nil
	}
	return apperrors.Wrap(lastErr, "placeInFolder", "folder update kept conflicting")
}

// ensureFolder creates the folder at path, reusing an existing record when a
// concurrent bootstrap already created it.
func (e *Engine) ensureFolder(ctx context.Context, path folder.Path) (*folder.Record, error) {
	if existing, err := e.folders.FindByPath(ctx, path); err == nil {
		return existing, nil
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	record := folder.NewRecord(path)
	if err := e.folders.Create(ctx, record); err != nil {
		if apperrors.IsValidation(err) {
			// Lost the race; the winner's record is the one to use.
			return e.folders.FindByPath(ctx, path)
		}
		return nil, err
	}
	return record, nil
}

func (e *Engine) record(ctx context.Context, d *decision.Decision, start time.Time) {
	e.audit.Append(ctx, d)
	if e.metrics != nil {
		e.metrics.ObserveDecision(string(d.Action), start)
	}
	e.logger.Info("routing decision",
		zap.String("candidateId", d.CandidateID),
		zap.String("action", string(d.Action)),
		zap.Float64("confidence", d.Confidence))
}

// pickWinner returns the best candidate, preferring shallower paths among
// those within epsilon of the top score. Candidates arrive sorted by score.
func pickWinner(candidates []matching.FolderCandidate, epsilon float64) matching.FolderCandidate {
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if candidates[0].Score-c.Score > epsilon {
			break
		}
		if c.Path.Depth() < winner.Path.Depth() {
			winner = c
		}
	}
	return winner
}

// alternatives renders up to limit non-winning candidates for the rationale.
func alternatives(candidates []matching.FolderCandidate, winnerID string, limit int) []decision.Alternative {
	out := make([]decision.Alternative, 0, limit)
	for _, c := range candidates {
		if c.FolderID == winnerID {
			continue
		}
		out = append(out, decision.Alternative{
			FolderID: c.FolderID,
			Path:     c.Path.String(),
			Score:    c.Score,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

func clusterContaining(clusters []clustering.Cluster, conceptID string) *clustering.Cluster {
	for i := range clusters {
		for _, id := range clusters[i].ConceptIDs {
			if id == conceptID {
				return &clusters[i]
			}
		}
	}
	return nil
}

// replayDecision reconstructs the recorded outcome for an already-routed
// candidate from its persisted routing state.
func replayDecision(a *concept.Artifact) *decision.Decision {
	d := &decision.Decision{
		ID:          a.DecisionID,
		CandidateID: a.ID,
		Confidence:  1,
		Rationale:   decision.Rationale{Summary: "candidate was already routed"},
		CreatedAt:   a.UpdatedAt,
	}
	switch a.Status {
	case concept.StatusRouted:
		d.Action = decision.ActionRoute
		d.FolderID = a.FolderID
	case concept.StatusDuplicate:
		d.Action = decision.ActionDuplicate
		d.DuplicateOf = a.DuplicateOf
	default:
		d.Action = decision.ActionUnsorted
	}
	return d
}

// folderName derives a folder segment from a candidate title: forbidden
// characters stripped, whitespace collapsed to dashes, lowercased, truncated
// to the segment limit.
func folderName(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	if len(name) > folder.MaxSegmentLength {
		name = strings.Trim(name[:folder.MaxSegmentLength], "-")
	}
	return name
}
