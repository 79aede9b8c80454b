package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/models"
)

type TransferInput struct {
	AssetID       uuid.UUID
	FromCreatorID uuid.UUID
	ToCreatorID   uuid.UUID
	ShareBps      int
	RequesterID   uuid.UUID
	Provenance    map[string]interface{}
	At            time.Time
}

// PlanTransfer moves ShareBps from one creator to another at In.At. The source record is
// ended and, if anything remains, replaced by a residual record of the same type. The
// destination is extended or opened as a secondary owner.
func PlanTransfer(records []models.OwnershipRecord, in TransferInput) (ChangeSet, error) {
	if err := checkShare("share_bps", in.ShareBps); err != nil {
		return ChangeSet{}, err
	}
	if in.FromCreatorID == in.ToCreatorID {
		return ChangeSet{}, NewValidationError("to_creator_id", "must differ from from_creator_id")
	}
	if in.ToCreatorID == uuid.Nil {
		return ChangeSet{}, NewValidationError("to_creator_id", "is required")
	}

	available := ActiveShare(records, in.FromCreatorID, in.At)
	if in.ShareBps > available {
		return ChangeSet{}, &InsufficientOwnershipError{
			AssetID:   in.AssetID,
			CreatorID: in.FromCreatorID,
			Requested: in.ShareBps,
			Available: available,
		}
	}

	actor := in.RequesterID
	provenance := func() models.JSONB {
		p := models.JSONB{
			"source":          "transfer",
			"from_creator_id": in.FromCreatorID.String(),
			"to_creator_id":   in.ToCreatorID.String(),
			"share_bps":       in.ShareBps,
		}
		for k, v := range in.Provenance {
			p[k] = v
		}
		return p
	}

	var changes ChangeSet
	remaining := in.ShareBps
	for _, r := range records {
		if r.CreatorID != in.FromCreatorID || !r.ActiveAt(in.At) {
			continue
		}
		if err := replaceable(r); err != nil {
			return ChangeSet{}, err
		}
		closed, err := endAt(r.Clone(), in.At, &actor)
		if err != nil {
			return ChangeSet{}, err
		}
		changes.update(closed)

		taken := r.ShareBps
		if taken > remaining {
			taken = remaining
		}
		remaining -= taken
		if residual := r.ShareBps - taken; residual > 0 {
			changes.Created = append(changes.Created, successor(r, in.At, residual, &actor, provenance()))
		}
		if remaining == 0 {
			break
		}
	}

	if err := grant(&changes, records, in.ToCreatorID, in.AssetID, in.ShareBps, in.At, &actor, provenance()); err != nil {
		return ChangeSet{}, err
	}

	if err := Validate(changes.Apply(records)).Err(); err != nil {
		return ChangeSet{}, err
	}
	return changes, nil
}
