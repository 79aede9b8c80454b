package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forest is an in-memory parent map that serves both lookups.
type forest map[uuid.UUID]*uuid.UUID

func (f forest) ParentOf(_ context.Context, id uuid.UUID) (*uuid.UUID, error) {
	parent, ok := f[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return parent, nil
}

func (f forest) ChildrenOf(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for child, parent := range f {
		if parent != nil && *parent == id {
			out = append(out, child)
		}
	}
	return out, nil
}

func (f forest) chain(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
		if i == 0 {
			f[ids[i]] = nil
			continue
		}
		parent := ids[i-1]
		f[ids[i]] = &parent
	}
	return ids
}

func newTestTracker(f forest) (*LineageTracker, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	return NewLineageTracker(f, f, logger), hook
}

func TestBuildLineage_RootFirst(t *testing.T) {
	f := forest{}
	ids := f.chain(4)
	tracker, hook := newTestTracker(f)

	lineage, err := tracker.BuildLineage(context.Background(), ids[3])
	require.NoError(t, err)
	assert.Equal(t, ids[:3], lineage.Ancestors)
	assert.Equal(t, 3, lineage.Depth())
	assert.False(t, lineage.Anomalous())
	assert.Empty(t, hook.AllEntries())
}

func TestBuildLineage_RootHasNoAncestors(t *testing.T) {
	f := forest{}
	ids := f.chain(1)
	tracker, _ := newTestTracker(f)

	lineage, err := tracker.BuildLineage(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Empty(t, lineage.Ancestors)
	assert.Equal(t, 0, lineage.Depth())
}

func TestBuildLineage_TerminatesOnCycle(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := forest{a: &b, b: &a}
	tracker, hook := newTestTracker(f)

	lineage, err := tracker.BuildLineage(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, lineage.CycleDetected)
	assert.Equal(t, []uuid.UUID{b}, lineage.Ancestors)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, b, hook.LastEntry().Data["repeated"])
}

func TestBuildLineage_SelfParent(t *testing.T) {
	a := uuid.New()
	f := forest{a: &a}
	tracker, _ := newTestTracker(f)

	lineage, err := tracker.BuildLineage(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, lineage.CycleDetected)
	assert.Empty(t, lineage.Ancestors)
}

func TestBuildLineage_CapsDepth(t *testing.T) {
	f := forest{}
	ids := f.chain(MaxLineageDepth + 5)
	tracker, hook := newTestTracker(f)

	lineage, err := tracker.BuildLineage(context.Background(), ids[len(ids)-1])
	require.NoError(t, err)
	assert.True(t, lineage.Truncated)
	assert.Len(t, lineage.Ancestors, MaxLineageDepth)
	assert.Equal(t, ids[len(ids)-1-MaxLineageDepth], lineage.Ancestors[0])
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestBuildLineage_ExactlyAtCapIsNotTruncated(t *testing.T) {
	f := forest{}
	ids := f.chain(MaxLineageDepth + 1)
	tracker, _ := newTestTracker(f)

	lineage, err := tracker.BuildLineage(context.Background(), ids[len(ids)-1])
	require.NoError(t, err)
	assert.False(t, lineage.Truncated)
	assert.Equal(t, MaxLineageDepth, lineage.Depth())
}

func TestBuildLineage_UnknownAsset(t *testing.T) {
	tracker, _ := newTestTracker(forest{})
	_, err := tracker.BuildLineage(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestGetDescendants(t *testing.T) {
	f := forest{}
	ids := f.chain(4)
	sibling := uuid.New()
	f[sibling] = &ids[0]
	tracker, _ := newTestTracker(f)
	ctx := context.Background()

	direct, err := tracker.GetDescendants(ctx, ids[0], false, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{ids[1], sibling}, direct)

	all, err := tracker.GetDescendants(ctx, ids[0], true, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{ids[1], ids[2], ids[3], sibling}, all)

	limited, err := tracker.GetDescendants(ctx, ids[0], true, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestGetDescendants_TerminatesOnCycle(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := forest{a: &b, b: &a}
	tracker, _ := newTestTracker(f)

	out, err := tracker.GetDescendants(context.Background(), a, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, out)
}

func TestChainFor(t *testing.T) {
	f := forest{}
	ids := f.chain(3)
	tracker, _ := newTestTracker(f)

	chain, err := tracker.ChainFor(context.Background(), ids[2])
	require.NoError(t, err)
	assert.Equal(t, ids, chain)

	deep := f.chain(MaxLineageDepth + 1)
	_, err = tracker.ChainFor(context.Background(), deep[len(deep)-1])
	assert.Equal(t, KindValidation, KindOf(err))

	a, b := uuid.New(), uuid.New()
	f[a], f[b] = &b, &a
	_, err = tracker.ChainFor(context.Background(), a)
	assert.Equal(t, KindConflict, KindOf(err))
}
