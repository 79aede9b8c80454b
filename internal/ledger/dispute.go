package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/models"
)

type FlagInput struct {
	Reason    string
	Evidence  []string
	FlaggerID uuid.UUID
	At        time.Time
}

// FlagDispute moves a record from none to disputed. Share and window are left alone.
func FlagDispute(record models.OwnershipRecord, in FlagInput) (models.OwnershipRecord, error) {
	switch record.DisputeStatus {
	case models.DisputeStatusNone, "":
	case models.DisputeStatusDisputed:
		return record, NewValidationError("dispute_status", "ownership record %s is already disputed", record.ID)
	case models.DisputeStatusResolved:
		return record, NewValidationError("dispute_status", "ownership record %s has a resolved dispute and cannot be flagged again", record.ID)
	default:
		return record, NewValidationError("dispute_status", "unknown dispute status %q", record.DisputeStatus)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return record, NewValidationError("reason", "is required")
	}

	out := record.Clone()
	at := in.At
	flagger := in.FlaggerID
	out.DisputeStatus = models.DisputeStatusDisputed
	out.DisputeReason = in.Reason
	out.DisputeEvidence = append(models.TextArray(nil), in.Evidence...)
	out.DisputedBy = &flagger
	out.DisputedAt = &at
	out.UpdatedBy = &flagger
	return out, nil
}

type ShareAdjustment struct {
	OwnershipID uuid.UUID `json:"ownership_id" validate:"required"`
	ShareBps    int       `json:"share_bps" validate:"bps"`
}

// ModifiedData carries the data a MODIFY or REMOVE resolution needs.
type ModifiedData struct {
	// ShareBps is the corrected share of the disputed record (MODIFY).
	ShareBps *int `json:"share_bps,omitempty"`
	// Adjustments rebalance other records of the same asset alongside a MODIFY.
	Adjustments []ShareAdjustment `json:"adjustments,omitempty" validate:"omitempty,dive"`
	// ReassignTo receives the removed share on REMOVE. Without it the share is spread
	// over the remaining owners in proportion to their holdings.
	ReassignTo *uuid.UUID `json:"reassign_to,omitempty"`
}

type ResolveInput struct {
	Action     models.ResolutionAction
	Notes      string
	ResolverID uuid.UUID
	Modified   *ModifiedData
	At         time.Time
}

// Resolution is the outcome of resolving a dispute: the target before and after, plus the
// full change set to commit.
type Resolution struct {
	Before  models.OwnershipRecord
	After   models.OwnershipRecord
	Changes ChangeSet
}

// ResolveDispute plans the resolution of a disputed record within its asset's full record
// set. Nothing in records is modified.
func ResolveDispute(records []models.OwnershipRecord, targetID uuid.UUID, in ResolveInput) (*Resolution, error) {
	target, ok := find(records, targetID)
	if !ok {
		return nil, ErrOwnershipNotFound
	}
	if target.DisputeStatus != models.DisputeStatusDisputed {
		return nil, NewValidationError("dispute_status", "ownership record %s is not disputed", targetID)
	}

	resolver := in.ResolverID
	at := in.At
	resolved := target.Clone()
	resolved.DisputeStatus = models.DisputeStatusResolved
	resolved.ResolutionAction = in.Action
	resolved.ResolutionNotes = in.Notes
	resolved.ResolvedBy = &resolver
	resolved.ResolvedAt = &at
	resolved.UpdatedBy = &resolver

	var (
		changes ChangeSet
		err     error
	)
	switch in.Action {
	case models.ResolutionConfirm:
		changes.update(resolved)
	case models.ResolutionModify:
		changes, err = planModify(records, resolved, in.Modified, &resolver)
	case models.ResolutionRemove:
		changes, err = planRemove(records, resolved, in.Modified, at, &resolver)
	default:
		return nil, NewValidationError("action", "unknown resolution action %q", in.Action)
	}
	if err != nil {
		return nil, err
	}

	after := resolved
	for _, r := range changes.Updated {
		if r.ID == targetID {
			after = r
		}
	}
	return &Resolution{Before: target, After: after, Changes: changes}, nil
}

func planModify(records []models.OwnershipRecord, resolved models.OwnershipRecord, data *ModifiedData, actor *uuid.UUID) (ChangeSet, error) {
	if data == nil || data.ShareBps == nil {
		return ChangeSet{}, NewValidationError("modified_data.share_bps", "is required for MODIFY")
	}
	if err := checkShare("modified_data.share_bps", *data.ShareBps); err != nil {
		return ChangeSet{}, err
	}

	var changes ChangeSet
	resolved.ShareBps = *data.ShareBps
	changes.update(resolved)

	for _, adj := range data.Adjustments {
		if adj.OwnershipID == resolved.ID {
			return ChangeSet{}, NewValidationError("modified_data.adjustments", "must not include the disputed record")
		}
		if err := checkShare("modified_data.adjustments.share_bps", adj.ShareBps); err != nil {
			return ChangeSet{}, err
		}
		other, ok := find(records, adj.OwnershipID)
		if !ok {
			return ChangeSet{}, NewValidationError("modified_data.adjustments", "ownership record %s does not belong to this asset", adj.OwnershipID)
		}
		other.ShareBps = adj.ShareBps
		other.UpdatedBy = actor
		changes.update(other)
	}

	if err := Validate(changes.Apply(records)).Err(); err != nil {
		return ChangeSet{}, err
	}
	return changes, nil
}

func planRemove(records []models.OwnershipRecord, resolved models.OwnershipRecord, data *ModifiedData, at time.Time, actor *uuid.UUID) (ChangeSet, error) {
	if resolved.EndDate != nil && !resolved.EndDate.After(at) {
		return ChangeSet{}, NewValidationError("end_date", "ownership record %s has already ended", resolved.ID)
	}

	ended, err := endAt(resolved, at, actor)
	if err != nil {
		return ChangeSet{}, err
	}
	var changes ChangeSet
	changes.update(ended)

	removed := resolved.ShareBps
	provenance := func() models.JSONB {
		return models.JSONB{"source": "dispute_remove", "removed_record_id": resolved.ID.String()}
	}

	if data != nil && data.ReassignTo != nil {
		recipient := *data.ReassignTo
		if recipient == resolved.CreatorID {
			return ChangeSet{}, NewValidationError("modified_data.reassign_to", "must differ from the removed owner")
		}
		if err := grant(&changes, records, recipient, resolved.AssetID, removed, at, actor, provenance()); err != nil {
			return ChangeSet{}, err
		}
	} else {
		var remaining []models.OwnershipRecord
		total := 0
		for _, r := range ActiveAt(records, at) {
			if r.ID == resolved.ID {
				continue
			}
			remaining = append(remaining, r)
			total += r.ShareBps
		}
		if total == 0 {
			return ChangeSet{}, NewValidationError("action", "no remaining owner can absorb the removed share")
		}

		// ActiveAt orders by share descending; ties fall back to creator id so the
		// remainder always lands on the same holder.
		sort.SliceStable(remaining, func(i, j int) bool {
			if remaining[i].ShareBps != remaining[j].ShareBps {
				return remaining[i].ShareBps > remaining[j].ShareBps
			}
			return remaining[i].CreatorID.String() < remaining[j].CreatorID.String()
		})
		extras := make([]int, len(remaining))
		given := 0
		for i, r := range remaining {
			extras[i] = int(int64(removed) * int64(r.ShareBps) / int64(total))
			given += extras[i]
		}
		extras[0] += removed - given

		for i, r := range remaining {
			if extras[i] == 0 {
				continue
			}
			if err := replaceable(r); err != nil {
				return ChangeSet{}, err
			}
			closed, err := endAt(r, at, actor)
			if err != nil {
				return ChangeSet{}, err
			}
			changes.update(closed)
			changes.Created = append(changes.Created, successor(r, at, r.ShareBps+extras[i], actor, provenance()))
		}
	}

	if err := Validate(changes.Apply(records)).Err(); err != nil {
		return ChangeSet{}, err
	}
	return changes, nil
}

// grant gives share to recipient from t: an active record is ended and replaced with the
// summed share, otherwise a new secondary record is opened.
func grant(changes *ChangeSet, records []models.OwnershipRecord, recipient, assetID uuid.UUID, share int, t time.Time, actor *uuid.UUID, provenance models.JSONB) error {
	for _, r := range records {
		if r.CreatorID != recipient || !r.ActiveAt(t) {
			continue
		}
		if r.ShareBps+share > models.FullShareBps {
			return NewValidationError("share_bps", "recipient share would exceed %d bps", models.FullShareBps)
		}
		if err := replaceable(r); err != nil {
			return err
		}
		closed, err := endAt(r.Clone(), t, actor)
		if err != nil {
			return err
		}
		changes.update(closed)
		changes.Created = append(changes.Created, successor(r, t, r.ShareBps+share, actor, provenance))
		return nil
	}

	changes.Created = append(changes.Created, models.OwnershipRecord{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		AssetID:       assetID,
		CreatorID:     recipient,
		ShareBps:      share,
		OwnershipType: models.OwnershipTypeSecondary,
		StartDate:     t,
		DisputeStatus: models.DisputeStatusNone,
		Provenance:    provenance,
		CreatedBy:     actor,
		UpdatedBy:     actor,
	})
	return nil
}

func checkShare(field string, share int) error {
	if share <= 0 || share > models.FullShareBps {
		return NewValidationError(field, "must be between 1 and %d bps, got %d", models.FullShareBps, share)
	}
	return nil
}
