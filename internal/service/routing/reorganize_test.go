package routing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator-backend/internal/domain/decision"
	"curator-backend/internal/infrastructure/vectorindex"
)

// seedIncoherentFolder fills a folder with two well-separated vector groups
// and a decision window concentrated on it.
func seedIncoherentFolder(t *testing.T, f *fixture) string {
	t.Helper()
	ctx := context.Background()
	rec := f.createFolder(t, "/Topics")

	groups := [][]float64{{1, 0, 0}, {0, 1, 0}}
	n := 0
	for gi, base := range groups {
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("member-%d-%d", gi, i)
			v := append([]float64(nil), base...)
			v[2] = 0.01 * float64(i)
			require.NoError(t, f.index.Upsert(ctx, id, vectorindex.KindContext, v, vectorindex.Payload{
				ConceptID: id, PrimaryFolder: rec.ID,
			}))
			n++
		}
	}

	for i := 0; i < n; i++ {
		f.audit.Append(ctx, decision.Route(fmt.Sprintf("cand-%d", i), rec.ID, 0.9, decision.Rationale{}))
	}
	return rec.ID
}

func TestAnalyzeReorganizationProposesSplit(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	folderID := seedIncoherentFolder(t, f)

	proposals, err := f.engine.AnalyzeReorganization(ctx)
	require.NoError(t, err)
	require.Len(t, proposals, 1)

	d := proposals[0]
	assert.Equal(t, decision.ActionReorganize, d.Action)
	require.NotNil(t, d.ReorgPlan)
	assert.Equal(t, folderID, d.ReorgPlan.FolderID)
	assert.Len(t, d.ReorgPlan.Subfolders, 2)
	assert.Greater(t, d.ReorgPlan.ImprovementScore, 0.0)

	for _, sub := range d.ReorgPlan.Subfolders {
		assert.Len(t, sub.MemberIDs, 3)
		assert.Greater(t, sub.Coherence, 0.9)
	}

	// Advisory only: no folders were created, nothing moved.
	all, err := f.folders.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAnalyzeReorganizationSkipsCoherentFolders(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	rec := f.createFolder(t, "/Topics")

	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("member-%d", i)
		require.NoError(t, f.index.Upsert(ctx, id, vectorindex.KindContext, []float64{1, 0.01 * float64(i), 0}, vectorindex.Payload{
			ConceptID: id, PrimaryFolder: rec.ID,
		}))
		f.audit.Append(ctx, decision.Route(fmt.Sprintf("cand-%d", i), rec.ID, 0.9, decision.Rationale{}))
	}

	proposals, err := f.engine.AnalyzeReorganization(ctx)
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestAnalyzeReorganizationSkipsDiffuseWindows(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)

	// Ten folders, one decision each: no folder reaches the concentration
	// minimum.
	for i := 0; i < 10; i++ {
		rec := f.createFolder(t, fmt.Sprintf("/Topic%d", i))
		f.audit.Append(ctx, decision.Route(fmt.Sprintf("cand-%d", i), rec.ID, 0.9, decision.Rationale{}))
	}

	proposals, err := f.engine.AnalyzeReorganization(ctx)
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestAnalyzeReorganizationEmptyWindow(t *testing.T) {
	f := newEngineFixture(t, nil)
	proposals, err := f.engine.AnalyzeReorganization(context.Background())
	require.NoError(t, err)
	assert.Nil(t, proposals)
}
