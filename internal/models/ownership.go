// internal/models/ownership.go
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FullShareBps is the total every asset's active ownership must add up to.
const FullShareBps = 10000

// OwnershipRecord is a time-bounded assertion that a creator holds ShareBps of an asset.
// StartDate is inclusive, EndDate exclusive; a nil EndDate is open-ended.
type OwnershipRecord struct {
	BaseModel
	AssetID       uuid.UUID     `json:"asset_id" gorm:"type:uuid;not null;uniqueIndex:uq_ownership_asset_creator_start,priority:1;index"`
	CreatorID     uuid.UUID     `json:"creator_id" gorm:"type:uuid;not null;uniqueIndex:uq_ownership_asset_creator_start,priority:2;index"`
	ShareBps      int           `json:"share_bps" gorm:"not null"`
	OwnershipType OwnershipType `json:"ownership_type" gorm:"type:varchar(20);not null;index"`
	StartDate     time.Time     `json:"start_date" gorm:"not null;uniqueIndex:uq_ownership_asset_creator_start,priority:3"`
	EndDate       *time.Time    `json:"end_date,omitempty" gorm:"index"`

	// Dispute state
	DisputeStatus    DisputeStatus    `json:"dispute_status" gorm:"type:varchar(20);not null;default:'none';index"`
	DisputeReason    string           `json:"dispute_reason,omitempty" gorm:"type:text"`
	DisputeEvidence  TextArray        `json:"dispute_evidence,omitempty"`
	DisputedBy       *uuid.UUID       `json:"disputed_by,omitempty" gorm:"type:uuid"`
	DisputedAt       *time.Time       `json:"disputed_at,omitempty"`
	ResolutionAction ResolutionAction `json:"resolution_action,omitempty" gorm:"type:varchar(20)"`
	ResolutionNotes  string           `json:"resolution_notes,omitempty" gorm:"type:text"`
	ResolvedBy       *uuid.UUID       `json:"resolved_by,omitempty" gorm:"type:uuid"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`

	Provenance JSONB      `json:"provenance,omitempty"`
	CreatedBy  *uuid.UUID `json:"created_by,omitempty" gorm:"type:uuid"`
	UpdatedBy  *uuid.UUID `json:"updated_by,omitempty" gorm:"type:uuid"`

	// Relationships
	Asset *Asset `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
}

var (
	errShareOutOfRange = errors.New("ownership share must be between 1 and 10000 bps")
	errEmptyWindow     = errors.New("ownership end date must be after its start date")
)

func (r *OwnershipRecord) BeforeSave(tx *gorm.DB) error {
	if r.ShareBps <= 0 || r.ShareBps > FullShareBps {
		return errShareOutOfRange
	}
	if r.EndDate != nil && !r.EndDate.After(r.StartDate) {
		return errEmptyWindow
	}
	if r.DisputeStatus == "" {
		r.DisputeStatus = DisputeStatusNone
	}
	return nil
}

// ActiveAt reports whether t falls inside the record's validity window.
func (r *OwnershipRecord) ActiveAt(t time.Time) bool {
	if t.Before(r.StartDate) {
		return false
	}
	return r.EndDate == nil || t.Before(*r.EndDate)
}

// Ended reports whether the record has a closed window.
func (r *OwnershipRecord) Ended() bool {
	return r.EndDate != nil
}

// Clone returns a deep copy, safe to mutate without touching the original.
func (r OwnershipRecord) Clone() OwnershipRecord {
	out := r
	if r.EndDate != nil {
		end := *r.EndDate
		out.EndDate = &end
	}
	if r.DisputeEvidence != nil {
		out.DisputeEvidence = append(TextArray(nil), r.DisputeEvidence...)
	}
	if r.Provenance != nil {
		out.Provenance = make(JSONB, len(r.Provenance))
		for k, v := range r.Provenance {
			out.Provenance[k] = v
		}
	}
	out.Asset = nil
	return out
}
