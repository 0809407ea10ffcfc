package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadNormalization(t *testing.T) {
	t.Run("LegacyFolderIDOnly", func(t *testing.T) {
		p := Payload{ConceptID: "c1", FolderID: "algorithms-sorting"}
		placement := p.Normalize()

		assert.Equal(t, "algorithms-sorting", placement.PrimaryFolder)
		assert.Empty(t, placement.ReferenceFolders)
	})

	t.Run("ModernFieldsWin", func(t *testing.T) {
		p := Payload{
			ConceptID:        "c1",
			FolderID:         "old-folder",
			PrimaryFolder:    "new-folder",
			ReferenceFolders: []string{"ref-a"},
		}
		placement := p.Normalize()

		assert.Equal(t, "new-folder", placement.PrimaryFolder)
		assert.Equal(t, []string{"ref-a"}, placement.ReferenceFolders)
	})

	t.Run("RoundTripKeepsLegacyFieldInSync", func(t *testing.T) {
		placement := Placement{ConceptID: "c1", PrimaryFolder: "f1", ReferenceFolders: []string{"f2"}}
		payload := placement.ToPayload()

		assert.Equal(t, "f1", payload.FolderID)
		assert.Equal(t, "f1", payload.PrimaryFolder)
	})
}

func TestUpsertFullReplacementSemantics(t *testing.T) {
	// Re-upserting the same concept id must leave zero membership in the
	// previously referenced folders.
	ctx := context.Background()
	idx := NewMemoryIndex(nil)

	vec := []float64{1, 0, 0}
	require.NoError(t, idx.Upsert(ctx, "heap-sort", KindContext, vec, Payload{
		ConceptID:            "heap-sort",
		PrimaryFolder:        "algorithms-sorting",
		ReferenceFolders:     []string{"data-structures-heaps"},
		PlacementConfidences: map[string]float64{"algorithms-sorting": 0.9},
	}))

	require.NoError(t, idx.Upsert(ctx, "heap-sort", KindContext, vec, Payload{
		ConceptID:        "heap-sort",
		PrimaryFolder:    "algorithms-advanced",
		ReferenceFolders: []string{"complexity-analysis"},
	}))

	for folderID, want := range map[string]int{
		"algorithms-sorting":    0,
		"data-structures-heaps": 0,
		"algorithms-advanced":   1,
		"complexity-analysis":   1,
	} {
		recs, err := idx.ScrollByFolder(ctx, folderID)
		require.NoError(t, err)
		assert.Len(t, recs, want, "folder %s", folderID)
	}

	matches, err := idx.Search(ctx, vec, 0.5, 10, &Filter{FolderID: "algorithms-sorting"})
	require.NoError(t, err)
	assert.Empty(t, matches, "search must show no stale membership")
}

func TestSearchThresholdAndOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(nil)

	require.NoError(t, idx.Upsert(ctx, "exact", KindContext, []float64{1, 0}, Payload{ConceptID: "exact"}))
	require.NoError(t, idx.Upsert(ctx, "close", KindContext, []float64{1, 0.2}, Payload{ConceptID: "close"}))
	require.NoError(t, idx.Upsert(ctx, "orthogonal", KindContext, []float64{0, 1}, Payload{ConceptID: "orthogonal"}))

	matches, err := idx.Search(ctx, []float64{1, 0}, 0.5, 10, nil)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].ConceptID)
	assert.Equal(t, "close", matches[1].ConceptID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(nil)

	require.NoError(t, idx.Upsert(ctx, "a", KindContext, []float64{1, 0}, Payload{ConceptID: "a", PrimaryFolder: "f1"}))
	require.NoError(t, idx.Upsert(ctx, "b", KindContext, []float64{1, 0}, Payload{ConceptID: "b"}))
	require.NoError(t, idx.Upsert(ctx, "a-title", KindIdentity, []float64{1, 0}, Payload{ConceptID: "a-title"}))

	t.Run("KindSeparation", func(t *testing.T) {
		matches, err := idx.Search(ctx, []float64{1, 0}, 0.9, 10, &Filter{Kind: KindIdentity})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a-title", matches[0].ConceptID)
	})

	t.Run("ExcludeConcepts", func(t *testing.T) {
		matches, err := idx.Search(ctx, []float64{1, 0}, 0.9, 10, &Filter{ExcludeConcepts: []string{"a"}})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "b", matches[0].ConceptID)
	})

	t.Run("UnsortedOnly", func(t *testing.T) {
		matches, err := idx.Search(ctx, []float64{1, 0}, 0.9, 10, &Filter{UnsortedOnly: true})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "b", matches[0].ConceptID)
	})
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(nil)

	require.NoError(t, idx.Upsert(ctx, "a", KindContext, []float64{1}, Payload{ConceptID: "a"}))
	require.NoError(t, idx.Upsert(ctx, "a", KindIdentity, []float64{1}, Payload{ConceptID: "a"}))
	require.NoError(t, idx.Delete(ctx, "a"))
	require.NoError(t, idx.Delete(ctx, "a"))
	assert.Zero(t, idx.Count())
}

func TestCosineZeroMagnitude(t *testing.T) {
	assert.Zero(t, cosine([]float64{0, 0}, []float64{1, 0}))
	assert.Zero(t, cosine([]float64{1, 0}, []float64{1}))
}
