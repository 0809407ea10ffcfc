package clustering

import "sort"

// unionFind implements union-find with path compression and union by rank,
// keyed by concept id.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{
		parent: make(map[string]string, len(ids)),
		rank:   make(map[string]int, len(ids)),
	}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (uf *unionFind) find(id string) string {
	parent, ok := uf.parent[id]
	if !ok {
		return id
	}
	if parent != id {
		root := uf.find(parent)
		uf.parent[id] = root
		return root
	}
	return id
}

func (uf *unionFind) union(a, b string) {
	rootA := uf.find(a)
	rootB := uf.find(b)
	if rootA == rootB {
		return
	}
	switch {
	case uf.rank[rootA] < uf.rank[rootB]:
		uf.parent[rootA] = rootB
	case uf.rank[rootA] > uf.rank[rootB]:
		uf.parent[rootB] = rootA
	default:
		uf.parent[rootB] = rootA
		uf.rank[rootA]++
	}
}

// components returns the connected components, each sorted, ordered by their
// first member for determinism.
func (uf *unionFind) components() [][]string {
	groups := make(map[string][]string)
	for id := range uf.parent {
		root := uf.find(id)
		groups[root] = append(groups[root], id)
	}
	out := make([][]string, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
