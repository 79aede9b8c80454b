package ledger

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-ownership/internal/models"
)

func intPtr(v int) *int {
	return &v
}

func disputed(r models.OwnershipRecord) models.OwnershipRecord {
	flagged, err := FlagDispute(r, FlagInput{Reason: "contract says otherwise", FlaggerID: uuid.New(), At: day(2)})
	if err != nil {
		panic(err)
	}
	return flagged
}

func TestFlagDispute(t *testing.T) {
	r := rec(uuid.New(), uuid.New(), 10000, day(0), nil)
	flagger := uuid.New()

	flagged, err := FlagDispute(r, FlagInput{Reason: "wrong owner", Evidence: []string{"s3://evidence/1"}, FlaggerID: flagger, At: day(1)})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusDisputed, flagged.DisputeStatus)
	assert.Equal(t, "wrong owner", flagged.DisputeReason)
	assert.Equal(t, models.TextArray{"s3://evidence/1"}, flagged.DisputeEvidence)
	assert.Equal(t, flagger, *flagged.DisputedBy)
	assert.True(t, flagged.DisputedAt.Equal(day(1)))
	assert.Equal(t, r.ShareBps, flagged.ShareBps)
	assert.Nil(t, flagged.EndDate)
	assert.Equal(t, models.DisputeStatusNone, r.DisputeStatus, "input must not change")
}

func TestFlagDispute_CannotReflag(t *testing.T) {
	r := disputed(rec(uuid.New(), uuid.New(), 10000, day(0), nil))

	_, err := FlagDispute(r, FlagInput{Reason: "again", FlaggerID: uuid.New(), At: day(3)})
	assert.Equal(t, KindValidation, KindOf(err))

	res, err := ResolveDispute([]models.OwnershipRecord{r}, r.ID, ResolveInput{Action: models.ResolutionConfirm, ResolverID: uuid.New(), At: day(3)})
	require.NoError(t, err)

	_, err = FlagDispute(res.After, FlagInput{Reason: "again", FlaggerID: uuid.New(), At: day(4)})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFlagDispute_RequiresReason(t *testing.T) {
	_, err := FlagDispute(rec(uuid.New(), uuid.New(), 10000, day(0), nil), FlagInput{Reason: "  ", FlaggerID: uuid.New(), At: day(1)})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestResolveDispute_NotDisputed(t *testing.T) {
	r := rec(uuid.New(), uuid.New(), 10000, day(0), nil)
	_, err := ResolveDispute([]models.OwnershipRecord{r}, r.ID, ResolveInput{Action: models.ResolutionConfirm, At: day(1)})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ResolveDispute([]models.OwnershipRecord{r}, uuid.New(), ResolveInput{Action: models.ResolutionConfirm, At: day(1)})
	assert.ErrorIs(t, err, ErrOwnershipNotFound)
}

func TestResolveDispute_Confirm(t *testing.T) {
	r := disputed(rec(uuid.New(), uuid.New(), 10000, day(0), nil))
	resolver := uuid.New()

	res, err := ResolveDispute([]models.OwnershipRecord{r}, r.ID, ResolveInput{Action: models.ResolutionConfirm, Notes: "checked", ResolverID: resolver, At: day(3)})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, res.After.DisputeStatus)
	assert.Equal(t, models.ResolutionConfirm, res.After.ResolutionAction)
	assert.Equal(t, resolver, *res.After.ResolvedBy)
	assert.Equal(t, 10000, res.After.ShareBps)
	assert.Equal(t, models.DisputeStatusDisputed, res.Before.DisputeStatus)
	assert.Len(t, res.Changes.Updated, 1)
	assert.Empty(t, res.Changes.Created)
}

func TestResolveDispute_ModifyBreakingConservationFails(t *testing.T) {
	asset := uuid.New()
	target := disputed(rec(asset, uuid.New(), 3000, day(0), nil))
	other := rec(asset, uuid.New(), 7000, day(0), nil)
	records := []models.OwnershipRecord{target, other}
	snapshot := []models.OwnershipRecord{target.Clone(), other.Clone()}

	_, err := ResolveDispute(records, target.ID, ResolveInput{
		Action:     models.ResolutionModify,
		ResolverID: uuid.New(),
		Modified:   &ModifiedData{ShareBps: intPtr(2000)},
		At:         day(3),
	})

	var invErr *InvariantViolationError
	require.ErrorAs(t, err, &invErr)
	require.Len(t, invErr.Violations, 1)
	assert.Equal(t, 9000, invErr.Violations[0].Observed)
	assert.True(t, invErr.Violations[0].Start.Equal(day(0)))
	assert.Empty(t, cmp.Diff(snapshot, records))
	assert.Equal(t, models.DisputeStatusDisputed, records[0].DisputeStatus)
}

func TestResolveDispute_ModifyWithAdjustment(t *testing.T) {
	asset := uuid.New()
	target := disputed(rec(asset, uuid.New(), 3000, day(0), nil))
	other := rec(asset, uuid.New(), 7000, day(0), nil)

	res, err := ResolveDispute([]models.OwnershipRecord{target, other}, target.ID, ResolveInput{
		Action:     models.ResolutionModify,
		ResolverID: uuid.New(),
		Modified: &ModifiedData{
			ShareBps:    intPtr(2000),
			Adjustments: []ShareAdjustment{{OwnershipID: other.ID, ShareBps: 8000}},
		},
		At: day(3),
	})
	require.NoError(t, err)
	assert.Equal(t, 2000, res.After.ShareBps)
	assert.Equal(t, models.DisputeStatusResolved, res.After.DisputeStatus)
	require.Len(t, res.Changes.Updated, 2)
	assert.True(t, Validate(res.Changes.Apply([]models.OwnershipRecord{target, other})).Valid)
}

func TestResolveDispute_ModifyRequiresData(t *testing.T) {
	r := disputed(rec(uuid.New(), uuid.New(), 10000, day(0), nil))
	_, err := ResolveDispute([]models.OwnershipRecord{r}, r.ID, ResolveInput{Action: models.ResolutionModify, At: day(3)})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ResolveDispute([]models.OwnershipRecord{r}, r.ID, ResolveInput{Action: models.ResolutionModify, Modified: &ModifiedData{ShareBps: intPtr(0)}, At: day(3)})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestResolveDispute_RemoveSpreadsProportionally(t *testing.T) {
	asset := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	target := disputed(rec(asset, a, 1000, day(0), nil))
	records := []models.OwnershipRecord{
		target,
		rec(asset, b, 6000, day(0), nil),
		rec(asset, c, 3000, day(0), nil),
	}

	res, err := ResolveDispute(records, target.ID, ResolveInput{Action: models.ResolutionRemove, ResolverID: uuid.New(), At: day(5)})
	require.NoError(t, err)
	require.NotNil(t, res.After.EndDate)
	assert.True(t, res.After.EndDate.Equal(day(5)))
	assert.Equal(t, models.DisputeStatusResolved, res.After.DisputeStatus)

	after := res.Changes.Apply(records)
	assert.True(t, Validate(after).Valid)
	// 1000 * 6/9 = 666, 1000 * 3/9 = 333, remainder 1 to the larger holder.
	assert.Equal(t, 6667, ActiveShare(after, b, day(5)))
	assert.Equal(t, 3333, ActiveShare(after, c, day(5)))
	assert.Equal(t, 0, ActiveShare(after, a, day(5)))
	assert.Equal(t, 1000, ActiveShare(after, a, day(4)))
}

func TestResolveDispute_RemoveReassigns(t *testing.T) {
	asset := uuid.New()
	a, b, newcomer := uuid.New(), uuid.New(), uuid.New()
	target := disputed(rec(asset, a, 4000, day(0), nil))
	records := []models.OwnershipRecord{target, rec(asset, b, 6000, day(0), nil)}

	res, err := ResolveDispute(records, target.ID, ResolveInput{
		Action:     models.ResolutionRemove,
		ResolverID: uuid.New(),
		Modified:   &ModifiedData{ReassignTo: &newcomer},
		At:         day(5),
	})
	require.NoError(t, err)

	after := res.Changes.Apply(records)
	assert.True(t, Validate(after).Valid)
	assert.Equal(t, 4000, ActiveShare(after, newcomer, day(6)))
	assert.Equal(t, 6000, ActiveShare(after, b, day(6)))
	require.Len(t, res.Changes.Created, 1)
	assert.Equal(t, models.OwnershipTypeSecondary, res.Changes.Created[0].OwnershipType)
}

func TestResolveDispute_RemoveDoesNotTouchAnotherDispute(t *testing.T) {
	asset := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	target := disputed(rec(asset, a, 1000, day(0), nil))
	other := disputed(rec(asset, b, 6000, day(0), nil))
	records := []models.OwnershipRecord{target, other, rec(asset, c, 3000, day(0), nil)}

	_, err := ResolveDispute(records, target.ID, ResolveInput{Action: models.ResolutionRemove, ResolverID: uuid.New(), At: day(5)})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, ErrRecordDisputed)

	_, err = ResolveDispute(records, target.ID, ResolveInput{
		Action:     models.ResolutionRemove,
		ResolverID: uuid.New(),
		Modified:   &ModifiedData{ReassignTo: &b},
		At:         day(5),
	})
	assert.ErrorIs(t, err, ErrRecordDisputed)

	// Once the other dispute is settled the removal goes through.
	confirmed, err := ResolveDispute(records, other.ID, ResolveInput{Action: models.ResolutionConfirm, ResolverID: uuid.New(), At: day(4)})
	require.NoError(t, err)
	records = confirmed.Changes.Apply(records)
	res, err := ResolveDispute(records, target.ID, ResolveInput{Action: models.ResolutionRemove, ResolverID: uuid.New(), At: day(5)})
	require.NoError(t, err)
	assert.True(t, Validate(res.Changes.Apply(records)).Valid)
}

func TestResolveDispute_RemoveSoleOwnerFails(t *testing.T) {
	r := disputed(rec(uuid.New(), uuid.New(), 10000, day(0), nil))
	_, err := ResolveDispute([]models.OwnershipRecord{r}, r.ID, ResolveInput{Action: models.ResolutionRemove, ResolverID: uuid.New(), At: day(5)})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestResolveDispute_UnknownAction(t *testing.T) {
	r := disputed(rec(uuid.New(), uuid.New(), 10000, day(0), nil))
	_, err := ResolveDispute([]models.OwnershipRecord{r}, r.ID, ResolveInput{Action: "ARCHIVE", At: day(5)})
	assert.Equal(t, KindValidation, KindOf(err))
}
