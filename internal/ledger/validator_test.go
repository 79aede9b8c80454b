package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/imi-ownership/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return t0.AddDate(0, 0, n)
}

func rec(assetID, creatorID uuid.UUID, share int, start time.Time, end *time.Time) models.OwnershipRecord {
	return models.OwnershipRecord{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		AssetID:       assetID,
		CreatorID:     creatorID,
		ShareBps:      share,
		OwnershipType: models.OwnershipTypePrimary,
		StartDate:     start,
		EndDate:       end,
		DisputeStatus: models.DisputeStatusNone,
	}
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestValidate_SingleFullOwner(t *testing.T) {
	asset := uuid.New()
	res := Validate([]models.OwnershipRecord{rec(asset, uuid.New(), 10000, day(0), nil)})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Violations)
	assert.NoError(t, res.Err())
}

func TestValidate_EmptySetIsValid(t *testing.T) {
	assert.True(t, Validate(nil).Valid)
}

func TestValidate_ShortOpenTail(t *testing.T) {
	asset := uuid.New()
	a, b := uuid.New(), uuid.New()
	res := Validate([]models.OwnershipRecord{
		rec(asset, a, 3000, day(0), nil),
		rec(asset, b, 7000, day(0), ptr(day(10))),
	})

	require.False(t, res.Valid)
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, ViolationConservation, v.Kind)
	assert.Equal(t, 3000, v.Observed)
	assert.Equal(t, 10000, v.Expected)
	assert.True(t, v.Start.Equal(day(10)))
	assert.Nil(t, v.End)

	var invErr *InvariantViolationError
	assert.ErrorAs(t, res.Err(), &invErr)
	assert.Equal(t, KindConflict, KindOf(res.Err()))
}

func TestValidate_HandOverWithoutGap(t *testing.T) {
	asset := uuid.New()
	a, b := uuid.New(), uuid.New()
	res := Validate([]models.OwnershipRecord{
		rec(asset, a, 10000, day(0), ptr(day(5))),
		rec(asset, a, 4000, day(5), nil),
		rec(asset, b, 6000, day(5), nil),
	})
	assert.True(t, res.Valid, "%v", res.Violations)
}

func TestValidate_GapInsideSpan(t *testing.T) {
	asset := uuid.New()
	a := uuid.New()
	res := Validate([]models.OwnershipRecord{
		rec(asset, a, 10000, day(0), ptr(day(3))),
		rec(asset, a, 10000, day(5), nil),
	})

	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, ViolationConservation, v.Kind)
	assert.Equal(t, 0, v.Observed)
	assert.True(t, v.Start.Equal(day(3)))
	assert.True(t, v.End.Equal(day(5)))
}

func TestValidate_FullyClosedLedgerHasNoTail(t *testing.T) {
	asset := uuid.New()
	res := Validate([]models.OwnershipRecord{
		rec(asset, uuid.New(), 10000, day(0), ptr(day(30))),
	})
	assert.True(t, res.Valid)
}

func TestValidate_OverAllocation(t *testing.T) {
	asset := uuid.New()
	res := Validate([]models.OwnershipRecord{
		rec(asset, uuid.New(), 10000, day(0), nil),
		rec(asset, uuid.New(), 500, day(2), ptr(day(4))),
	})

	require.Len(t, res.Violations, 1)
	assert.Equal(t, 10500, res.Violations[0].Observed)
	assert.True(t, res.Violations[0].Start.Equal(day(2)))
	assert.True(t, res.Violations[0].End.Equal(day(4)))
}

func TestValidate_ShareBoundsAndEmptyWindow(t *testing.T) {
	asset := uuid.New()
	zero := rec(asset, uuid.New(), 0, day(0), nil)
	empty := rec(asset, uuid.New(), 100, day(1), ptr(day(1)))
	full := rec(asset, uuid.New(), 10000, day(0), nil)

	res := Validate([]models.OwnershipRecord{zero, empty, full})
	require.False(t, res.Valid)

	kinds := map[ViolationKind]int{}
	for _, v := range res.Violations {
		kinds[v.Kind]++
	}
	assert.Equal(t, 1, kinds[ViolationShareOutOfRange])
	assert.Equal(t, 1, kinds[ViolationEmptyWindow])
	assert.Zero(t, kinds[ViolationConservation])
	assert.Equal(t, zero.ID, *res.Violations[0].RecordID)
}

func TestValidate_CreatorOverlap(t *testing.T) {
	asset := uuid.New()
	a, b := uuid.New(), uuid.New()
	res := Validate([]models.OwnershipRecord{
		rec(asset, a, 5000, day(0), ptr(day(10))),
		rec(asset, a, 1000, day(5), ptr(day(10))),
		rec(asset, b, 4000, day(0), ptr(day(5))),
		rec(asset, b, 3000, day(5), ptr(day(10))),
	})

	var overlaps []Violation
	for _, v := range res.Violations {
		if v.Kind == ViolationCreatorOverlap {
			overlaps = append(overlaps, v)
		}
	}
	require.Len(t, overlaps, 1)
	assert.Equal(t, a, *overlaps[0].CreatorID)
	assert.True(t, overlaps[0].Start.Equal(day(5)))
}

func TestValidateTemporalOwnership_GroupsByAsset(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	res := ValidateTemporalOwnership([]models.OwnershipRecord{
		rec(good, uuid.New(), 10000, day(0), nil),
		rec(bad, uuid.New(), 9000, day(0), nil),
	})

	require.False(t, res.Valid)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, bad, *res.Violations[0].AssetID)
	assert.Equal(t, 9000, res.Violations[0].Observed)
}

func TestActiveShare(t *testing.T) {
	asset := uuid.New()
	a := uuid.New()
	records := []models.OwnershipRecord{
		rec(asset, a, 10000, day(0), ptr(day(5))),
		rec(asset, a, 4000, day(5), nil),
	}
	assert.Equal(t, 10000, ActiveShare(records, a, day(1)))
	assert.Equal(t, 4000, ActiveShare(records, a, day(5)))
	assert.Equal(t, 0, ActiveShare(records, a, day(-1)))
}
