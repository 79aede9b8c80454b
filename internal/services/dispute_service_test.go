package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-ownership/internal/ledger"
	"github.com/javajoker/imi-ownership/internal/models"
	"github.com/javajoker/imi-ownership/internal/utils"
)

func (e *testEnv) activeRecord(t *testing.T, asset, creator uuid.UUID) models.OwnershipRecord {
	t.Helper()
	owners, err := e.ownership.GetOwners(context.Background(), asset, nil)
	require.NoError(t, err)
	for _, r := range owners {
		if r.CreatorID == creator {
			return r
		}
	}
	t.Fatalf("creator %s holds nothing on %s", creator, asset)
	return models.OwnershipRecord{}
}

func (e *testEnv) flag(t *testing.T, ownershipID, flagger uuid.UUID) *models.OwnershipRecord {
	t.Helper()
	record, err := e.disputes.FlagDispute(context.Background(), ownershipID, flagger, FlagDisputeRequest{Reason: "contract says otherwise"})
	require.NoError(t, err)
	return record
}

func TestFlagDispute_NotifiesStakeholders(t *testing.T) {
	env := newTestEnv(t)
	a, b, flagger := uuid.New(), uuid.New(), uuid.New()
	asset := env.root(t, a)
	env.transfer(t, asset, a, b, 4000)
	target := env.activeRecord(t, asset, b)

	flagged, err := env.disputes.FlagDispute(context.Background(), target.ID, flagger, FlagDisputeRequest{
		Reason:   "license was never signed",
		Evidence: []string{"s3://evidence/contract.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusDisputed, flagged.DisputeStatus)
	assert.Equal(t, flagger, *flagged.DisputedBy)
	assert.Equal(t, 4000, flagged.ShareBps)

	stored, err := env.store.FindRecord(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusDisputed, stored.DisputeStatus)
	assert.Equal(t, models.TextArray{"s3://evidence/contract.pdf"}, stored.DisputeEvidence)

	env.notifications.Wait()
	var notifications []models.AdminNotification
	require.NoError(t, env.db.Where("type = ?", models.NotificationTypeDisputeFlagged).Find(&notifications).Error)
	recipients := map[string]bool{}
	for _, n := range notifications {
		if n.RecipientID == nil {
			recipients["admin"] = true
			continue
		}
		recipients[n.RecipientID.String()] = true
	}
	assert.Equal(t, map[string]bool{a.String(): true, b.String(): true, "admin": true}, recipients)

	// transfer (1) and flag (2) on top of confirmation
	env.requireChainIntact(t, asset, 3)
}

func TestFlagDispute_ExclusiveAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := uuid.New()
	asset := env.root(t, a)
	target := env.activeRecord(t, asset, a)
	req := FlagDisputeRequest{Reason: "duplicate registration", IdempotencyKey: "flag-1"}

	first, err := env.disputes.FlagDispute(ctx, target.ID, uuid.New(), req)
	require.NoError(t, err)
	replay, err := env.disputes.FlagDispute(ctx, target.ID, uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, first.DisputedBy, replay.DisputedBy)

	_, err = env.disputes.FlagDispute(ctx, target.ID, uuid.New(), FlagDisputeRequest{Reason: "again"})
	assert.Equal(t, ledger.KindValidation, ledger.KindOf(err))

	_, err = env.disputes.FlagDispute(ctx, uuid.New(), uuid.New(), FlagDisputeRequest{Reason: "nothing there"})
	assert.ErrorIs(t, err, ledger.ErrOwnershipNotFound)

	env.requireChainIntact(t, asset, 2)
}

func TestFlagDispute_IdempotencyKeyBoundToRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := uuid.New()
	first := env.activeRecord(t, env.root(t, a), a)
	second := env.activeRecord(t, env.root(t, a), a)

	_, err := env.disputes.FlagDispute(ctx, first.ID, uuid.New(), FlagDisputeRequest{Reason: "copied", IdempotencyKey: "flag-2"})
	require.NoError(t, err)

	_, err = env.disputes.FlagDispute(ctx, second.ID, uuid.New(), FlagDisputeRequest{Reason: "copied too", IdempotencyKey: "flag-2"})
	require.Error(t, err)
	assert.Equal(t, ledger.KindConflict, ledger.KindOf(err))

	untouched := env.activeRecord(t, second.AssetID, a)
	assert.Equal(t, models.DisputeStatusNone, untouched.DisputeStatus)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, *models.AdminNotification) error {
	return errors.New("mail relay down")
}

func TestFlagDispute_NotificationFailureDoesNotRollBack(t *testing.T) {
	env := newTestEnv(t)
	hook := logtest.NewGlobal()
	notifications := NewNotificationService(env.db, failingNotifier{})
	disputes := NewDisputeService(env.store, env.cfg, notifications)
	disputes.now = env.clock.Now

	a := uuid.New()
	asset := env.root(t, a)
	target := env.activeRecord(t, asset, a)

	_, err := disputes.FlagDispute(context.Background(), target.ID, uuid.New(), FlagDisputeRequest{Reason: "wrong owner"})
	require.NoError(t, err)
	notifications.Wait()

	stored, err := env.store.FindRecord(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusDisputed, stored.DisputeStatus)

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "Failed to deliver notification" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestResolveDispute_Confirm(t *testing.T) {
	env := newTestEnv(t)
	a := uuid.New()
	asset := env.root(t, a)
	target := env.activeRecord(t, asset, a)
	env.flag(t, target.ID, uuid.New())

	res, err := env.disputes.ResolveDispute(context.Background(), target.ID, uuid.New(), ResolveDisputeRequest{Action: models.ResolutionConfirm, Notes: "verified"})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, res.After.DisputeStatus)
	assert.Equal(t, models.DisputeStatusDisputed, res.Before.DisputeStatus)
	assert.Empty(t, res.Created)

	_, err = env.disputes.FlagDispute(context.Background(), target.ID, uuid.New(), FlagDisputeRequest{Reason: "once more"})
	assert.Equal(t, ledger.KindValidation, ledger.KindOf(err), "resolved records cannot be re-flagged")

	_, err = env.disputes.ResolveDispute(context.Background(), target.ID, uuid.New(), ResolveDisputeRequest{Action: models.ResolutionConfirm})
	assert.Equal(t, ledger.KindValidation, ledger.KindOf(err))

	var trail []models.AuditLog
	trail, err = env.store.AuditTrail(context.Background(), asset)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, models.AuditActionDisputeConfirmed, trail[2].Action)
	assert.NotEmpty(t, trail[2].OldValues)
	assert.NotEmpty(t, trail[2].NewValues)
}

func TestResolveDispute_ModifyThatBreaksConservationFails(t *testing.T) {
	env := newTestEnv(t)
	a, b := uuid.New(), uuid.New()
	asset := env.root(t, a)
	env.transfer(t, asset, a, b, 7000)
	target := env.activeRecord(t, asset, a)
	env.flag(t, target.ID, uuid.New())
	before := env.records(t, asset)

	share := 2000
	_, err := env.disputes.ResolveDispute(context.Background(), target.ID, uuid.New(), ResolveDisputeRequest{
		Action:       models.ResolutionModify,
		ModifiedData: &ledger.ModifiedData{ShareBps: &share},
	})

	var invErr *ledger.InvariantViolationError
	require.ErrorAs(t, err, &invErr)
	require.NotEmpty(t, invErr.Violations)
	assert.Equal(t, 9000, invErr.Violations[0].Observed)

	after := env.records(t, asset)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ShareBps, after[i].ShareBps)
		assert.Equal(t, before[i].DisputeStatus, after[i].DisputeStatus)
	}
	stored, err := env.store.FindRecord(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusDisputed, stored.DisputeStatus)
	assert.Equal(t, 3000, stored.ShareBps)
}

func TestResolveDispute_ModifyWithAdjustment(t *testing.T) {
	env := newTestEnv(t)
	a, b := uuid.New(), uuid.New()
	asset := env.root(t, a)
	env.transfer(t, asset, a, b, 7000)
	target := env.activeRecord(t, asset, a)
	other := env.activeRecord(t, asset, b)
	env.flag(t, target.ID, uuid.New())

	share := 2000
	res, err := env.disputes.ResolveDispute(context.Background(), target.ID, uuid.New(), ResolveDisputeRequest{
		Action: models.ResolutionModify,
		ModifiedData: &ledger.ModifiedData{
			ShareBps:    &share,
			Adjustments: []ledger.ShareAdjustment{{OwnershipID: other.ID, ShareBps: 8000}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2000, res.After.ShareBps)
	assert.Equal(t, 2000, env.activeShare(t, asset, a))
	assert.Equal(t, 8000, env.activeShare(t, asset, b))
	assert.True(t, ledger.Validate(env.records(t, asset)).Valid)
}

func TestResolveDispute_RemoveSpreadsShare(t *testing.T) {
	env := newTestEnv(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	asset := env.root(t, a)
	env.transfer(t, asset, a, b, 6000)
	env.transfer(t, asset, a, c, 3000)
	target := env.activeRecord(t, asset, a)
	require.Equal(t, 1000, target.ShareBps)
	env.flag(t, target.ID, uuid.New())

	res, err := env.disputes.ResolveDispute(context.Background(), target.ID, uuid.New(), ResolveDisputeRequest{Action: models.ResolutionRemove})
	require.NoError(t, err)
	require.NotNil(t, res.After.EndDate)
	assert.Equal(t, models.DisputeStatusResolved, res.After.DisputeStatus)

	assert.Equal(t, 0, env.activeShare(t, asset, a))
	assert.Equal(t, 6667, env.activeShare(t, asset, b))
	assert.Equal(t, 3333, env.activeShare(t, asset, c))
	assert.True(t, ledger.Validate(env.records(t, asset)).Valid)
	env.requireChainIntact(t, asset, 5)
}

func TestResolveDispute_RemoveReassigns(t *testing.T) {
	env := newTestEnv(t)
	a, b, heir := uuid.New(), uuid.New(), uuid.New()
	asset := env.root(t, a)
	env.transfer(t, asset, a, b, 5000)
	target := env.activeRecord(t, asset, b)
	env.flag(t, target.ID, uuid.New())

	_, err := env.disputes.ResolveDispute(context.Background(), target.ID, uuid.New(), ResolveDisputeRequest{
		Action:       models.ResolutionRemove,
		ModifiedData: &ledger.ModifiedData{ReassignTo: &heir},
	})
	require.NoError(t, err)
	assert.Equal(t, 5000, env.activeShare(t, asset, heir))
	assert.Equal(t, 5000, env.activeShare(t, asset, a))
	assert.Equal(t, 0, env.activeShare(t, asset, b))
}

func TestGetDisputedOwnerships(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b, flagger := uuid.New(), uuid.New(), uuid.New()
	first := env.root(t, a)
	second := env.root(t, b)

	env.flag(t, env.activeRecord(t, first, a).ID, flagger)
	env.clock.Advance(24 * time.Hour)
	cutoff := env.clock.Peek()
	env.flag(t, env.activeRecord(t, second, b).ID, uuid.New())

	page := utils.PaginationParams{Page: 1, Limit: 20}

	all, err := env.disputes.GetDisputedOwnerships(ctx, DisputeFilter{PaginationParams: page})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
	records := all.Data.([]models.OwnershipRecord)
	assert.Equal(t, second, records[0].AssetID, "most recently flagged first")

	byAsset, err := env.disputes.GetDisputedOwnerships(ctx, DisputeFilter{PaginationParams: page, AssetID: &first})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byAsset.Total)

	byFlagger, err := env.disputes.GetDisputedOwnerships(ctx, DisputeFilter{PaginationParams: page, DisputedBy: &flagger})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byFlagger.Total)

	recent, err := env.disputes.GetDisputedOwnerships(ctx, DisputeFilter{PaginationParams: page, From: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, int64(1), recent.Total)
	assert.Equal(t, second, recent.Data.([]models.OwnershipRecord)[0].AssetID)

	paged, err := env.disputes.GetDisputedOwnerships(ctx, DisputeFilter{PaginationParams: utils.PaginationParams{Page: 2, Limit: 1}})
	require.NoError(t, err)
	assert.Len(t, paged.Data.([]models.OwnershipRecord), 1)
	assert.Equal(t, 2, paged.TotalPages)

	_, err = env.disputes.GetDisputedOwnerships(ctx, DisputeFilter{PaginationParams: page, Status: models.DisputeStatusNone})
	assert.Equal(t, ledger.KindValidation, ledger.KindOf(err))
}
