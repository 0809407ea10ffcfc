package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator-backend/internal/config"
	"curator-backend/internal/domain/concept"
	"curator-backend/internal/domain/decision"
	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/infrastructure/vectorindex"
	"curator-backend/internal/repository"
	"curator-backend/internal/repository/memory"
	"curator-backend/internal/service/duplicate"
	"curator-backend/internal/service/matching"
)

type fixture struct {
	engine    *Engine
	index     *vectorindex.MemoryIndex
	artifacts *memory.ArtifactRepository
	folders   *memory.FolderRepository
	audit     *memory.AuditRepository
	review    *memory.ReviewQueue
}

func newEngineFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	idx := vectorindex.NewMemoryIndex(nil)
	artifacts := memory.NewArtifactRepository()
	folders := memory.NewFolderRepository()
	audit := memory.NewAuditRepository(nil)
	review := memory.NewReviewQueue()

	engine := NewEngine(Dependencies{
		Duplicates: duplicate.NewService(idx, artifacts, cfg.Matching, cfg.Routing.DuplicateThreshold, nil),
		Matcher:    matching.NewService(idx, folders, cfg.Matching, nil),
		Index:      idx,
		Artifacts:  artifacts,
		Folders:    folders,
		Audit:      audit,
		Review:     review,
	}, cfg.Routing, cfg.Clustering)

	return &fixture{engine: engine, index: idx, artifacts: artifacts, folders: folders, audit: audit, review: review}
}

func newTestCandidate(t *testing.T, title string, identity, contextVec []float64) *concept.Candidate {
	t.Helper()
	titleEmb, err := concept.NewEmbedding(identity, concept.HashContent(title), "stub")
	require.NoError(t, err)
	ctxEmb, err := concept.NewEmbedding(contextVec, concept.HashContent(title), "stub")
	require.NoError(t, err)
	cand, err := concept.NewCandidate(title, title+" body", titleEmb, ctxEmb)
	require.NoError(t, err)
	return cand
}

// seedMember places an existing concept into a folder: artifact, context
// vector and folder aggregate.
func (f *fixture) seedMember(t *testing.T, id string, folderID string, vector []float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.artifacts.Save(ctx, &concept.Artifact{
		ID: id, Title: id, Content: id, Status: concept.StatusRouted, FolderID: folderID,
	}))
	require.NoError(t, f.index.Upsert(ctx, id, vectorindex.KindContext, vector, vectorindex.Payload{
		ConceptID: id, PrimaryFolder: folderID,
	}))
}

func (f *fixture) createFolder(t *testing.T, pathStr string) *folder.Record {
	t.Helper()
	path, err := folder.FromString(pathStr)
	require.NoError(t, err)
	rec := folder.NewRecord(path)
	require.NoError(t, f.folders.Create(context.Background(), rec))
	return rec
}

func TestRouteCandidateHighConfidence(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	rec := f.createFolder(t, "/Algorithms/Sorting")
	f.seedMember(t, "existing", rec.ID, []float64{1, 0})

	cand := newTestCandidate(t, "quick sort", []float64{0, 1}, []float64{1, 0.01})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	assert.Equal(t, decision.ActionRoute, d.Action)
	assert.Equal(t, rec.ID, d.FolderID)
	assert.GreaterOrEqual(t, d.Confidence, 0.8)

	artifact, err := f.artifacts.FindByID(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, concept.StatusRouted, artifact.Status)
	assert.Equal(t, rec.ID, artifact.FolderID)
	assert.Equal(t, d.ID, artifact.DecisionID)

	updated, err := f.folders.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MemberCount)

	require.Len(t, f.audit.All(), 1)
}

func TestRouteCandidateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	rec := f.createFolder(t, "/Algorithms/Sorting")
	f.seedMember(t, "existing", rec.ID, []float64{1, 0})

	cand := newTestCandidate(t, "quick sort", []float64{0, 1}, []float64{1, 0.01})
	first, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	second, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, first.FolderID, second.FolderID)

	// The folder aggregate must not count the candidate twice.
	updated, err := f.folders.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MemberCount)
	require.Len(t, f.audit.All(), 1, "replay appends no new decision")
}

func TestRouteCandidateAmbiguousGoesToReview(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	rec := f.createFolder(t, "/Algorithms/Sorting")
	// cos with the candidate context vector is 0.85: composite lands at
	// 0.85*0.5 + 0.85*0.3 + 0.04 = 0.72, inside [0.60, 0.80).
	f.seedMember(t, "existing", rec.ID, []float64{0.85, 0.5268})

	cand := newTestCandidate(t, "some concept", []float64{0, 1}, []float64{1, 0})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	assert.Equal(t, decision.ActionUnsorted, d.Action)
	assert.NotEmpty(t, d.Rationale.Alternatives)

	items := f.review.Items()
	require.Len(t, items, 1)
	assert.Equal(t, cand.ID, items[0].CandidateID)
	assert.Equal(t, repository.ReasonAmbiguousRouting, items[0].Reason)
	assert.NotEmpty(t, items[0].SuggestedActions)

	artifact, err := f.artifacts.FindByID(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, concept.StatusUnsorted, artifact.Status)
}

func TestRouteCandidateDuplicateShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	rec := f.createFolder(t, "/Algorithms/Sorting")
	f.seedMember(t, "original", rec.ID, []float64{1, 0})
	require.NoError(t, f.index.Upsert(ctx, "original", vectorindex.KindIdentity, []float64{1, 0}, vectorindex.Payload{ConceptID: "original"}))

	cand := newTestCandidate(t, "same thing", []float64{1, 0}, []float64{1, 0})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	assert.Equal(t, decision.ActionDuplicate, d.Action)
	assert.Equal(t, "original", d.DuplicateOf)

	artifact, err := f.artifacts.FindByID(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, concept.StatusDuplicate, artifact.Status)
	assert.Equal(t, "original", artifact.DuplicateOf)

	// The duplicate never touches the folder aggregate.
	updated, err := f.folders.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.MemberCount)
}

func TestRouteCandidateBootstrapCreatesFolder(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Clustering.MinimumClusterSize = 2
	})
	// Two unsorted concepts very close to the incoming candidate.
	require.NoError(t, f.index.Upsert(ctx, "parked-1", vectorindex.KindContext, []float64{1, 0.01}, vectorindex.Payload{ConceptID: "parked-1"}))
	require.NoError(t, f.index.Upsert(ctx, "parked-2", vectorindex.KindContext, []float64{1, 0.02}, vectorindex.Payload{ConceptID: "parked-2"}))

	cand := newTestCandidate(t, "Sorting Algorithms", []float64{0, 1}, []float64{1, 0})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	require.Equal(t, decision.ActionCreateFolder, d.Action)
	require.NotNil(t, d.CreateSpec)
	assert.True(t, d.CreateSpec.Path.IsProvisional())
	assert.Equal(t, "sorting-algorithms", d.CreateSpec.Path.Leaf())
	assert.Contains(t, d.CreateSpec.MemberIDs, cand.ID)
	assert.Contains(t, d.CreateSpec.MemberIDs, "parked-1")

	created, err := f.folders.FindByPath(ctx, d.CreateSpec.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, created.MemberCount)

	artifact, err := f.artifacts.FindByID(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, concept.StatusRouted, artifact.Status)
	assert.Equal(t, created.ID, artifact.FolderID)
}

func TestRouteCandidateBootstrapWithoutClusterParks(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)

	cand := newTestCandidate(t, "isolated idea", []float64{0, 1}, []float64{1, 0})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	assert.Equal(t, decision.ActionUnsorted, d.Action)
	assert.Empty(t, f.review.Items(), "plain unsorted is not a review case")
}

func TestRouteCandidateSubFloorCompositeIsNotAmbiguous(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Routing.BootstrapThreshold = 1
		cfg.Routing.MatureThreshold = 100
	})
	rec := f.createFolder(t, "/Algorithms/Sorting")
	// cos 0.62 clears the search floor, but the composite lands at
	// 0.62*0.5 + 0.62*0.3 + 0.04 = 0.536, below the 0.60 floor.
	f.seedMember(t, "existing", rec.ID, []float64{0.62, 0.7846})

	cand := newTestCandidate(t, "weakly related", []float64{0, 1}, []float64{1, 0})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	assert.Equal(t, decision.ActionUnsorted, d.Action)
	assert.Empty(t, f.review.Items(), "sub-floor composites are not review cases")
}

func TestRouteCandidateCompositeAtFloorIsAmbiguous(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, func(cfg *config.Config) {
		// Composite reduces to the average similarity, so a cos of exactly
		// 3/5 lands the composite exactly on the 0.60 floor.
		cfg.Matching.AvgWeight = 1
		cfg.Matching.MaxWeight = 0
		cfg.Matching.CountWeight = 0
	})
	rec := f.createFolder(t, "/Algorithms/Sorting")
	f.seedMember(t, "existing", rec.ID, []float64{3, 4})

	cand := newTestCandidate(t, "borderline concept", []float64{0, 1}, []float64{1, 0})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)

	assert.Equal(t, decision.ActionUnsorted, d.Action)
	assert.Equal(t, 0.6, d.Confidence)

	items := f.review.Items()
	require.Len(t, items, 1, "the floor itself is inclusive")
	assert.Equal(t, repository.ReasonAmbiguousRouting, items[0].Reason)
}

func TestRouteCandidateGrowingBelowFloorParks(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, func(cfg *config.Config) {
		cfg.Routing.BootstrapThreshold = 1
		cfg.Routing.MatureThreshold = 100
	})

	cand := newTestCandidate(t, "lonely concept", []float64{0, 1}, []float64{1, 0})
	d, err := f.engine.RouteCandidate(ctx, cand)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionUnsorted, d.Action)
}

// failingIndex fails every call with an infrastructure error.
type failingIndex struct{}

func (failingIndex) Upsert(ctx context.Context, conceptID string, kind vectorindex.Kind, vector []float64, payload vectorindex.Payload) error {
	return apperrors.Infrastructure("INDEX_DOWN", "index unavailable")
}

func (failingIndex) Fetch(ctx context.Context, conceptID string, kind vectorindex.Kind) (*vectorindex.Record, error) {
	return nil, apperrors.Infrastructure("INDEX_DOWN", "index unavailable")
}

func (failingIndex) Search(ctx context.Context, vector []float64, threshold float64, limit int, filter *vectorindex.Filter) ([]vectorindex.Match, error) {
	return nil, apperrors.Infrastructure("INDEX_DOWN", "index unavailable")
}

func (failingIndex) ScrollByFolder(ctx context.Context, folderID string) ([]vectorindex.Record, error) {
	return nil, apperrors.Infrastructure("INDEX_DOWN", "index unavailable")
}

func (failingIndex) Delete(ctx context.Context, conceptID string) error {
	return apperrors.Infrastructure("INDEX_DOWN", "index unavailable")
}

func TestRouteCandidateDegradesOnInfrastructureFailure(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	artifacts := memory.NewArtifactRepository()
	folders := memory.NewFolderRepository()
	audit := memory.NewAuditRepository(nil)
	review := memory.NewReviewQueue()
	idx := failingIndex{}

	engine := NewEngine(Dependencies{
		Duplicates: duplicate.NewService(idx, artifacts, cfg.Matching, cfg.Routing.DuplicateThreshold, nil),
		Matcher:    matching.NewService(idx, folders, cfg.Matching, nil),
		Index:      idx,
		Artifacts:  artifacts,
		Folders:    folders,
		Audit:      audit,
		Review:     review,
	}, cfg.Routing, cfg.Clustering)

	cand := newTestCandidate(t, "anything", []float64{0, 1}, []float64{1, 0})
	d, err := engine.RouteCandidate(ctx, cand)
	require.NoError(t, err, "infrastructure failures never surface as errors")

	assert.Equal(t, decision.ActionUnsorted, d.Action)
	assert.Zero(t, d.Confidence)
	assert.NotEmpty(t, d.Rationale.InfraError)

	items := review.Items()
	require.Len(t, items, 1)
	assert.Equal(t, repository.ReasonInfraDegraded, items[0].Reason)

	require.Len(t, audit.All(), 1)
}

func TestApplyConfigSwapsThresholds(t *testing.T) {
	f := newEngineFixture(t, nil)
	cfg := config.Default()
	cfg.Routing.HighConfidenceThreshold = 0.9
	f.engine.ApplyConfig(cfg)

	got, _ := f.engine.snapshot()
	assert.Equal(t, 0.9, got.HighConfidenceThreshold)
}

func TestStateFor(t *testing.T) {
	cfg := config.Default().Routing

	assert.Equal(t, StateBootstrap, StateFor(0, cfg))
	assert.Equal(t, StateBootstrap, StateFor(cfg.BootstrapThreshold-1, cfg))
	assert.Equal(t, StateGrowing, StateFor(cfg.BootstrapThreshold, cfg))
	assert.Equal(t, StateGrowing, StateFor(cfg.MatureThreshold-1, cfg))
	assert.Equal(t, StateMature, StateFor(cfg.MatureThreshold, cfg))
}

func TestPickWinnerPrefersShallowerPathWithinEpsilon(t *testing.T) {
	shallow, err := folder.FromString("/Algorithms")
	require.NoError(t, err)
	deep, err := folder.FromString("/Algorithms/Sorting/Quick")
	require.NoError(t, err)

	candidates := []matching.FolderCandidate{
		{FolderID: "deep", Path: deep, Score: 0.90},
		{FolderID: "shallow", Path: shallow, Score: 0.89},
	}
	winner := pickWinner(candidates, 0.02)
	assert.Equal(t, "shallow", winner.FolderID, "less specific path wins inside the tie band")

	// Outside epsilon the higher score stands.
	winner = pickWinner(candidates, 0.005)
	assert.Equal(t, "deep", winner.FolderID)
}

func TestFolderName(t *testing.T) {
	assert.Equal(t, "sorting-algorithms", folderName("Sorting Algorithms!"))
	assert.Equal(t, "b-trees", folderName("  B-Trees  "))
	assert.Equal(t, "", folderName("!!!"))
}
