package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/imi-ownership/internal/models"
)

// ChangeSet is everything one operation writes to an asset's ledger. Updated records keep
// their ids; Created records carry fresh ids.
type ChangeSet struct {
	Updated []models.OwnershipRecord
	Created []models.OwnershipRecord
}

func (c ChangeSet) Empty() bool {
	return len(c.Updated) == 0 && len(c.Created) == 0
}

// Apply returns the record set that results from committing c on top of records.
// The input is not modified.
func (c ChangeSet) Apply(records []models.OwnershipRecord) []models.OwnershipRecord {
	updated := make(map[uuid.UUID]models.OwnershipRecord, len(c.Updated))
	for _, r := range c.Updated {
		updated[r.ID] = r
	}

	out := make([]models.OwnershipRecord, 0, len(records)+len(c.Created))
	for _, r := range records {
		if u, ok := updated[r.ID]; ok {
			out = append(out, u.Clone())
			continue
		}
		out = append(out, r.Clone())
	}
	for _, r := range c.Created {
		out = append(out, r.Clone())
	}
	return out
}

func (c *ChangeSet) update(r models.OwnershipRecord) {
	for i := range c.Updated {
		if c.Updated[i].ID == r.ID {
			c.Updated[i] = r
			return
		}
	}
	c.Updated = append(c.Updated, r)
}

func find(records []models.OwnershipRecord, id uuid.UUID) (models.OwnershipRecord, bool) {
	for _, r := range records {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return models.OwnershipRecord{}, false
}

// endAt closes r at t. A record that starts at or after t cannot be ended there without an
// empty window, which only happens when two writes land on the same clock tick.
func endAt(r models.OwnershipRecord, t time.Time, actor *uuid.UUID) (models.OwnershipRecord, error) {
	if !t.After(r.StartDate) {
		return r, ErrConcurrentModification
	}
	end := t
	r.EndDate = &end
	r.UpdatedBy = actor
	return r, nil
}

// replaceable rejects ending r to open a successor while r is disputed. The dispute
// must stay on the record that carries the holder's current share.
func replaceable(r models.OwnershipRecord) error {
	if r.DisputeStatus != models.DisputeStatusDisputed {
		return nil
	}
	return &ConflictError{
		Reason: fmt.Sprintf("ownership record %s must be resolved before its share changes", r.ID),
		Err:    ErrRecordDisputed,
	}
}

// successor opens a record that continues r's creator and type from t with a new share.
func successor(r models.OwnershipRecord, t time.Time, share int, actor *uuid.UUID, provenance models.JSONB) models.OwnershipRecord {
	if provenance == nil {
		provenance = models.JSONB{}
	}
	provenance["replaces"] = r.ID.String()
	return models.OwnershipRecord{
		BaseModel:     models.BaseModel{ID: uuid.New()},
		AssetID:       r.AssetID,
		CreatorID:     r.CreatorID,
		ShareBps:      share,
		OwnershipType: r.OwnershipType,
		StartDate:     t,
		DisputeStatus: models.DisputeStatusNone,
		Provenance:    provenance,
		CreatedBy:     actor,
		UpdatedBy:     actor,
	}
}

// PlanRetirement ends every record still open at t.
func PlanRetirement(records []models.OwnershipRecord, t time.Time, actor *uuid.UUID) (ChangeSet, error) {
	var changes ChangeSet
	for _, r := range records {
		if r.EndDate != nil && !r.EndDate.After(t) {
			continue
		}
		ended, err := endAt(r.Clone(), t, actor)
		if err != nil {
			return ChangeSet{}, err
		}
		changes.update(ended)
	}
	return changes, nil
}
