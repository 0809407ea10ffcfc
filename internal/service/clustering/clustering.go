// Package clustering provides the pure vector math behind bootstrap grouping
// and reorganization proposals: cosine similarity, centroids, coherence, and
// connected-component clustering over a similarity threshold graph. The
// package has no side effects and no I/O.
package clustering

import (
	"math"

	"curator-backend/internal/config"
	apperrors "curator-backend/internal/errors"
)

// SuggestedAction is what a cluster's shape recommends doing with it.
type SuggestedAction string

const (
	// ActionCreateFolder recommends promoting the cluster to its own folder.
	ActionCreateFolder SuggestedAction = "create_folder"
	// ActionRouteTogether recommends routing the members to the same
	// existing folder without creating a new one.
	ActionRouteTogether SuggestedAction = "route_together"
)

// Vector pairs a concept id with its embedding.
type Vector struct {
	ConceptID string
	Values    []float64
}

// Cluster is a transient grouping produced for bootstrap or reorganization
// analysis.
type Cluster struct {
	ConceptIDs []string
	Centroid   []float64
	Coherence  float64
	Suggested  SuggestedAction
	// NeedsSplit flags connected components larger than the configured
	// maximum. No splitting strategy is applied; oversized clusters are
	// excluded from create_folder suggestions and surfaced for review.
	NeedsSplit bool
}

// CosineSimilarity returns the cosine similarity of two vectors. Zero
// magnitude or mismatched dimensions yield 0 rather than an error.
func CosineSimilarity(a, b []float64) float64 {
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

// Centroid returns the component-wise arithmetic mean. Empty input is an
// error; mismatched dimensions are a validation error.
func Centroid(vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, apperrors.Validation("EMPTY_INPUT", "centroid of an empty vector set is undefined")
	}
	dim := len(vectors[0])
	out := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, apperrors.Validation("DIMENSION_MISMATCH", "vectors disagree on dimension")
		}
		for i, x := range v {
			out[i] += x
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out, nil
}

// Coherence measures how tightly a vector set agrees, in [0,1]. It is the
// mean cosine similarity across all unordered pairs, floored at 0 so opposed
// vectors cannot push it negative; the similarity-to-centroid alternative was
// rejected because orthogonal unit vectors must score 0. Sets of fewer than
// two vectors are perfectly coherent by definition.
func Coherence(vectors [][]float64) float64 {
	n := len(vectors)
	if n < 2 {
		return 1.0
	}
	var sum float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += CosineSimilarity(vectors[i], vectors[j])
			pairs++
		}
	}
	mean := sum / float64(pairs)
	if mean < 0 {
		return 0
	}
	return mean
}

// FindClusters groups concepts into clusters: two concepts share a cluster
// iff a chain of pairwise similarities >= SimilarityThreshold connects them
// (connected components over the threshold graph, via union-find).
// Components below MinimumClusterSize are discarded; components above
// MaximumClusterSize are kept but flagged NeedsSplit.
func FindClusters(vectors []Vector, cfg config.Clustering) []Cluster {
	if len(vectors) == 0 {
		return nil
	}

	ids := make([]string, len(vectors))
	byID := make(map[string][]float64, len(vectors))
	for i, v := range vectors {
		ids[i] = v.ConceptID
		byID[v.ConceptID] = v.Values
	}

	uf := newUnionFind(ids)
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			if CosineSimilarity(vectors[i].Values, vectors[j].Values) >= cfg.SimilarityThreshold {
				uf.union(vectors[i].ConceptID, vectors[j].ConceptID)
			}
		}
	}

	var clusters []Cluster
	for _, members := range uf.components() {
		if len(members) < cfg.MinimumClusterSize {
			continue
		}
		memberVectors := make([][]float64, len(members))
		for i, id := range members {
			memberVectors[i] = byID[id]
		}
		centroid, err := Centroid(memberVectors)
		if err != nil {
			continue
		}
		coherence := Coherence(memberVectors)
		cluster := Cluster{
			ConceptIDs: members,
			Centroid:   centroid,
			Coherence:  coherence,
			NeedsSplit: len(members) > cfg.MaximumClusterSize,
		}
		if cluster.NeedsSplit {
			cluster.Suggested = ActionRouteTogether
		} else {
			cluster.Suggested = DetermineSuggestedAction(len(members), coherence, cfg)
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// DetermineSuggestedAction recommends create_folder for clusters large and
// coherent enough to warrant their own folder, route_together otherwise.
func DetermineSuggestedAction(size int, coherence float64, cfg config.Clustering) SuggestedAction {
	if size >= cfg.MinimumClusterSize && coherence >= cfg.SimilarityThreshold {
		return ActionCreateFolder
	}
	return ActionRouteTogether
}
