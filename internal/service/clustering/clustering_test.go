package clustering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator-backend/internal/config"
	apperrors "curator-backend/internal/errors"
)

func clusterConfig() config.Clustering {
	return config.Clustering{
		SimilarityThreshold: 0.70,
		MinimumClusterSize:  2,
		MaximumClusterSize:  4,
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("IdenticalVectors", func(t *testing.T) {
		assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	})

	t.Run("OrthogonalVectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	})

	t.Run("OppositeVectors", func(t *testing.T) {
		assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	})

	t.Run("ZeroMagnitudeIsZeroNotError", func(t *testing.T) {
		assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 0}))
	})

	t.Run("DimensionMismatchIsZero", func(t *testing.T) {
		assert.Zero(t, CosineSimilarity([]float64{1}, []float64{1, 0}))
	})
}

func TestCentroid(t *testing.T) {
	t.Run("Mean", func(t *testing.T) {
		c, err := Centroid([][]float64{{1, 0}, {0, 1}, {1, 1}})
		require.NoError(t, err)
		assert.InDelta(t, 2.0/3.0, c[0], 1e-9)
		assert.InDelta(t, 2.0/3.0, c[1], 1e-9)
	})

	t.Run("EmptyInputIsError", func(t *testing.T) {
		_, err := Centroid(nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("DimensionMismatchIsError", func(t *testing.T) {
		_, err := Centroid([][]float64{{1, 0}, {1}})
		require.Error(t, err)
	})
}

func TestCoherence(t *testing.T) {
	t.Run("IdenticalVectorsEqualsOne", func(t *testing.T) {
		vs := [][]float64{{0.5, 0.5, 0}, {0.5, 0.5, 0}, {0.5, 0.5, 0}}
		assert.InDelta(t, 1.0, Coherence(vs), 1e-9)
	})

	t.Run("MutuallyOrthogonalUnitVectorsEqualsZero", func(t *testing.T) {
		vs := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
		assert.InDelta(t, 0.0, Coherence(vs), 1e-9)
	})

	t.Run("SingletonIsPerfectlyCoherent", func(t *testing.T) {
		assert.Equal(t, 1.0, Coherence([][]float64{{1, 0}}))
	})

	t.Run("OpposedVectorsFlooredAtZero", func(t *testing.T) {
		vs := [][]float64{{1, 0}, {-1, 0}}
		assert.Equal(t, 0.0, Coherence(vs))
	})
}

func TestFindClusters(t *testing.T) {
	t.Run("TransitiveMembership", func(t *testing.T) {
		// a~b and b~c but a and c are below threshold pairwise; the chain
		// still puts all three in one cluster.
		vectors := []Vector{
			{ConceptID: "a", Values: []float64{1, 0}},
			{ConceptID: "b", Values: []float64{0.9, 0.436}},
			{ConceptID: "c", Values: []float64{0.6, 0.8}},
			{ConceptID: "far", Values: []float64{-1, 0}},
		}
		cfg := clusterConfig()
		cfg.SimilarityThreshold = 0.85

		require.GreaterOrEqual(t, CosineSimilarity(vectors[0].Values, vectors[1].Values), 0.85)
		require.GreaterOrEqual(t, CosineSimilarity(vectors[1].Values, vectors[2].Values), 0.85)
		require.Less(t, CosineSimilarity(vectors[0].Values, vectors[2].Values), 0.85)

		clusters := FindClusters(vectors, cfg)
		require.Len(t, clusters, 1)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, clusters[0].ConceptIDs)
	})

	t.Run("SmallComponentsDiscarded", func(t *testing.T) {
		vectors := []Vector{
			{ConceptID: "lonely", Values: []float64{1, 0}},
			{ConceptID: "pair1", Values: []float64{0, 1}},
			{ConceptID: "pair2", Values: []float64{0, 1}},
		}
		clusters := FindClusters(vectors, clusterConfig())
		require.Len(t, clusters, 1)
		assert.ElementsMatch(t, []string{"pair1", "pair2"}, clusters[0].ConceptIDs)
	})

	t.Run("OversizedComponentFlaggedNotSplit", func(t *testing.T) {
		cfg := clusterConfig()
		cfg.MaximumClusterSize = 3
		var vectors []Vector
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			vectors = append(vectors, Vector{ConceptID: id, Values: []float64{1, 0}})
		}
		clusters := FindClusters(vectors, cfg)
		require.Len(t, clusters, 1)
		assert.True(t, clusters[0].NeedsSplit)
		assert.Equal(t, ActionRouteTogether, clusters[0].Suggested)
		assert.Len(t, clusters[0].ConceptIDs, 5, "members are kept intact")
	})

	t.Run("CoherentClusterSuggestsCreateFolder", func(t *testing.T) {
		vectors := []Vector{
			{ConceptID: "a", Values: []float64{1, 0.01}},
			{ConceptID: "b", Values: []float64{1, 0.02}},
			{ConceptID: "c", Values: []float64{1, 0.03}},
		}
		clusters := FindClusters(vectors, clusterConfig())
		require.Len(t, clusters, 1)
		assert.Equal(t, ActionCreateFolder, clusters[0].Suggested)
		assert.Greater(t, clusters[0].Coherence, 0.9)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		assert.Nil(t, FindClusters(nil, clusterConfig()))
	})
}

func TestDetermineSuggestedAction(t *testing.T) {
	cfg := clusterConfig()
	assert.Equal(t, ActionCreateFolder, DetermineSuggestedAction(3, 0.9, cfg))
	assert.Equal(t, ActionRouteTogether, DetermineSuggestedAction(1, 0.9, cfg))
	assert.Equal(t, ActionRouteTogether, DetermineSuggestedAction(3, 0.5, cfg))
	// Boundary: coherence exactly at threshold qualifies.
	assert.Equal(t, ActionCreateFolder, DetermineSuggestedAction(2, cfg.SimilarityThreshold, cfg))
}
