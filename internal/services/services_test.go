package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/testsupport"
)

type testEnv struct {
	db            *gorm.DB
	store         *database.LedgerStore
	cfg           *config.Config
	clock         *testsupport.Clock
	notifications *NotificationService
	assets        *AssetService
	lineage       *LineageService
	ownership     *OwnershipService
	disputes      *DisputeService
	transfers     *TransferService
	exports       *ExportService
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Environment: "test",
		AWS: config.AWSConfig{
			S3Bucket:     "snapshots",
			ExportPrefix: "ownership",
		},
		Ledger: config.LedgerConfig{
			DerivativeCreatorBps:    6000,
			OriginalContributorsBps: 4000,
			RetryMaxAttempts:        5,
			RetryInitialInterval:    time.Millisecond,
			RetryMaxInterval:        5 * time.Millisecond,
			DescendantLimit:         100,
			ExportDir:               t.TempDir(),
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testsupport.OpenDB(t)
	store := database.NewLedgerStore(db)
	cfg := testConfig(t)
	clock := testsupport.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	env := &testEnv{db: db, store: store, cfg: cfg, clock: clock}
	env.notifications = NewNotificationService(db, nil)
	t.Cleanup(env.notifications.Wait)

	env.lineage = NewLineageService(store, cfg)
	env.assets = NewAssetService(store, cfg, env.lineage)
	env.ownership = NewOwnershipService(store, cfg)
	env.disputes = NewDisputeService(store, cfg, env.notifications)
	env.transfers = NewTransferService(store, cfg, env.notifications)
	env.exports = NewExportServiceWithClient(store, cfg, nil)

	env.lineage.now = clock.Now
	env.assets.now = clock.Now
	env.ownership.now = clock.Now
	env.disputes.now = clock.Now
	env.transfers.now = clock.Now
	env.exports.now = clock.Now
	return env
}

// root confirms a fresh root asset fully owned by creator.
func (e *testEnv) root(t *testing.T, creator uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := e.assets.ConfirmAsset(context.Background(), ConfirmAssetRequest{AssetID: id, CreatorID: creator})
	require.NoError(t, err)
	return id
}

func (e *testEnv) derive(t *testing.T, parent, creator uuid.UUID) *AssetResult {
	t.Helper()
	res, err := e.assets.CreateDerivative(context.Background(), CreateDerivativeRequest{
		ParentAssetID: parent,
		NewAssetID:    uuid.New(),
		CreatorID:     creator,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) transfer(t *testing.T, asset, from, to uuid.UUID, share int) {
	t.Helper()
	_, err := e.transfers.Transfer(context.Background(), asset, from, false, TransferRequest{
		FromCreatorID: from,
		ToCreatorID:   to,
		ShareBps:      share,
	})
	require.NoError(t, err)
}

func (e *testEnv) records(t *testing.T, asset uuid.UUID) []models.OwnershipRecord {
	t.Helper()
	var records []models.OwnershipRecord
	require.NoError(t, e.db.Where("asset_id = ?", asset).Order("start_date ASC, creator_id ASC").Find(&records).Error)
	return records
}

func (e *testEnv) activeShare(t *testing.T, asset, creator uuid.UUID) int {
	t.Helper()
	owners, err := e.ownership.GetOwners(context.Background(), asset, nil)
	require.NoError(t, err)
	total := 0
	for _, r := range owners {
		if r.CreatorID == creator {
			total += r.ShareBps
		}
	}
	return total
}

func (e *testEnv) requireChainIntact(t *testing.T, asset uuid.UUID, entries int) {
	t.Helper()
	report, err := e.store.VerifyAuditChain(context.Background(), asset)
	require.NoError(t, err)
	require.True(t, report.Intact, "audit chain broken at %d", report.BrokenAt)
	require.Equal(t, entries, report.Entries)
}
