package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
)

func TestGetOwners_AtInstant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	asset := env.root(t, a)
	beforeTransfer := env.clock.Now()
	env.transfer(t, asset, a, b, 4000)

	past, err := env.ownership.GetOwners(ctx, asset, &beforeTransfer)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, 10000, past[0].ShareBps)

	current, err := env.ownership.GetOwners(ctx, asset, nil)
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, 6000, current[0].ShareBps, "largest share first")

	beforeCreation := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	none, err := env.ownership.GetOwners(ctx, asset, &beforeCreation)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGetOwnershipSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	parent := env.root(t, a)
	env.transfer(t, parent, a, b, 3000)
	child := env.derive(t, parent, c)
	env.flag(t, env.activeRecord(t, child.Asset.ID, b).ID, uuid.New())

	summary, err := env.ownership.GetOwnershipSummary(ctx, child.Asset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FullShareBps, summary.TotalActiveBps)
	assert.Equal(t, 3, summary.OwnerCount)
	assert.Equal(t, 6000, summary.SharesByType[models.OwnershipTypePrimary])
	assert.Equal(t, 4000, summary.SharesByType[models.OwnershipTypeContributor])
	assert.Equal(t, 1, summary.DisputedCount)
	assert.True(t, summary.IsDerivative)
	assert.Equal(t, 1, summary.DerivationLevel)
}

func TestGetOwnershipHistory(t *testing.T) {
	env := newTestEnv(t)
	a, b := uuid.New(), uuid.New()
	asset := env.root(t, a)
	env.transfer(t, asset, a, b, 4000)

	history, err := env.ownership.GetOwnershipHistory(context.Background(), asset)
	require.NoError(t, err)
	require.Len(t, history.Records, 3)
	assert.NotNil(t, history.Records[0].EndDate, "the original record was ended, not deleted")
	for i := 1; i < len(history.Records); i++ {
		assert.False(t, history.Records[i].StartDate.Before(history.Records[i-1].StartDate))
	}
	require.Len(t, history.AuditTrail, 2)
	assert.Equal(t, models.AuditActionAssetConfirmed, history.AuditTrail[0].Action)
	assert.Equal(t, history.AuditTrail[0].EntryHash, history.AuditTrail[1].PreviousHash)
}

func TestGetCreatorAssets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	first := env.root(t, a)
	second := env.root(t, a)
	retired := env.root(t, a)
	env.transfer(t, first, a, b, 10000)
	_, err := env.assets.RetireAsset(ctx, retired, a, false, RetireAssetRequest{})
	require.NoError(t, err)

	active, err := env.ownership.GetCreatorAssets(ctx, a, CreatorAssetsFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second, active[0].AssetID)
	require.NotNil(t, active[0].Asset)

	withExpired, err := env.ownership.GetCreatorAssets(ctx, a, CreatorAssetsFilter{IncludeExpired: true})
	require.NoError(t, err)
	assert.Len(t, withExpired, 2, "retired assets are excluded even with expired records")

	secondary := models.OwnershipTypeSecondary
	forB, err := env.ownership.GetCreatorAssets(ctx, b, CreatorAssetsFilter{OwnershipType: &secondary})
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, first, forB[0].AssetID)
}

func TestPreviewValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mid := start.Add(48 * time.Hour)
	a, b := uuid.New(), uuid.New()

	res, err := env.ownership.PreviewValidation(ctx, PreviewValidationRequest{Records: []ProposedRecord{
		{CreatorID: a, ShareBps: 6000, StartDate: start},
		{CreatorID: b, ShareBps: 4000, StartDate: start},
	}})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = env.ownership.PreviewValidation(ctx, PreviewValidationRequest{Records: []ProposedRecord{
		{CreatorID: a, ShareBps: 6000, StartDate: start, EndDate: &mid},
		{CreatorID: b, ShareBps: 4000, StartDate: start},
	}})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.NotEmpty(t, res.Violations)
	assert.Equal(t, ledger.ViolationConservation, res.Violations[0].Kind)
	assert.Equal(t, 4000, res.Violations[0].Observed)

	asset := env.root(t, a)
	res, err = env.ownership.PreviewValidation(ctx, PreviewValidationRequest{
		AssetID:          &asset,
		MergeWithCurrent: true,
		Records:          []ProposedRecord{{CreatorID: b, ShareBps: 1000, StartDate: env.clock.Now()}},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid, "an extra 1000 bps on top of a full ledger breaks conservation")

	_, err = env.ownership.PreviewValidation(ctx, PreviewValidationRequest{
		MergeWithCurrent: true,
		Records:          []ProposedRecord{{CreatorID: b, ShareBps: 1000, StartDate: start}},
	})
	assert.Equal(t, ledger.KindValidation, ledger.KindOf(err))
}

func TestAuditLedgers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	good := env.root(t, uuid.New())
	broken := env.root(t, uuid.New())
	require.NoError(t, env.db.Model(&models.OwnershipRecord{}).Where("asset_id = ?", broken).UpdateColumn("share_bps", 9000).Error)

	all, err := env.ownership.AuditLedgers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	invalid, err := env.ownership.AuditLedgers(ctx, true)
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, broken, invalid[0].AssetID)
	assert.NotEqual(t, good, invalid[0].AssetID)
}
