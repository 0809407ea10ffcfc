package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator-backend/internal/config"
	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/infrastructure/cache"
	"curator-backend/internal/infrastructure/vectorindex"
	"curator-backend/internal/repository/memory"
)

type fixture struct {
	svc     *Service
	index   *vectorindex.MemoryIndex
	folders *memory.FolderRepository
	cache   *cache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx := vectorindex.NewMemoryIndex(nil)
	folders := memory.NewFolderRepository()
	c := cache.New(config.Cache{MaxItems: 100, MaxMemory: 1 << 20, TTL: time.Minute}, nil)
	cfg := config.Discovery{RelevanceThreshold: 0.5, Limit: 10, CacheTTL: time.Minute, CacheMaxItems: 100}
	return &fixture{
		svc:     NewService(idx, folders, c, cfg, nil),
		index:   idx,
		folders: folders,
		cache:   c,
	}
}

func (f *fixture) addFolder(t *testing.T, pathStr string) *folder.Record {
	t.Helper()
	path, err := folder.FromString(pathStr)
	require.NoError(t, err)
	rec := folder.NewRecord(path)
	require.NoError(t, f.folders.Create(context.Background(), rec))
	return rec
}

func (f *fixture) place(t *testing.T, conceptID, folderID string, vector []float64) {
	t.Helper()
	require.NoError(t, f.index.Upsert(context.Background(), conceptID, vectorindex.KindContext, vector, vectorindex.Payload{
		ConceptID: conceptID, PrimaryFolder: folderID,
	}))
}

func TestRelatedClassifiesByHierarchy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sorting := f.addFolder(t, "/Algorithms/Sorting")
	algorithms := f.addFolder(t, "/Algorithms")
	quick := f.addFolder(t, "/Algorithms/Sorting/Quick")
	graphs := f.addFolder(t, "/Algorithms/Graphs")
	cooking := f.addFolder(t, "/Cooking")

	f.place(t, "source", sorting.ID, []float64{1, 0})
	f.place(t, "general", algorithms.ID, []float64{1, 0.1})
	f.place(t, "specific", quick.ID, []float64{1, 0.2})
	f.place(t, "sibling", graphs.ID, []float64{1, 0.3})
	f.place(t, "elsewhere", cooking.ID, []float64{1, 0.4})
	// Same folder: must never appear.
	f.place(t, "neighbor", sorting.ID, []float64{1, 0.05})

	results, err := f.svc.Related(ctx, "source")
	require.NoError(t, err)
	require.Len(t, results, 4)

	byID := make(map[string]RelatedConcept, len(results))
	for _, r := range results {
		byID[r.ConceptID] = r
	}
	assert.Equal(t, RelationPrerequisite, byID["general"].Relation)
	assert.Equal(t, RelationAdvanced, byID["specific"].Relation)
	assert.Equal(t, RelationParallel, byID["sibling"].Relation)
	assert.Equal(t, RelationApplication, byID["elsewhere"].Relation)
	assert.NotContains(t, byID, "neighbor")
}

func TestRelatedOrderedBySimilarity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addFolder(t, "/A")
	b := f.addFolder(t, "/B")

	f.place(t, "source", a.ID, []float64{1, 0})
	f.place(t, "near", b.ID, []float64{1, 0.1})
	f.place(t, "far", b.ID, []float64{1, 0.8})

	results, err := f.svc.Related(ctx, "source")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "near", results[0].ConceptID)
	assert.Equal(t, "far", results[1].ConceptID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestRelatedRejectsUnsortedSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.index.Upsert(ctx, "parked", vectorindex.KindContext, []float64{1, 0}, vectorindex.Payload{
		ConceptID: "parked",
	}))

	_, err := f.svc.Related(ctx, "parked")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRelatedUnknownConcept(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Related(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRelatedUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addFolder(t, "/A")
	b := f.addFolder(t, "/B")

	f.place(t, "source", a.ID, []float64{1, 0})
	f.place(t, "related", b.ID, []float64{1, 0.1})

	first, err := f.svc.Related(ctx, "source")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A new concept appears; the cached result hides it until invalidation.
	f.place(t, "newcomer", b.ID, []float64{1, 0.2})

	cached, err := f.svc.Related(ctx, "source")
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	f.svc.InvalidateFolder(a.ID)

	fresh, err := f.svc.Related(ctx, "source")
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}
