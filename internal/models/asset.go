// internal/models/asset.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Asset is an identifiable unit of intellectual property. Parent pointers form a forest.
type Asset struct {
	BaseModel
	ParentAssetID *uuid.UUID     `json:"parent_asset_id,omitempty" gorm:"type:uuid;index"`
	CreatorID     uuid.UUID      `json:"creator_id" gorm:"type:uuid;not null;index"`
	LedgerVersion int64          `json:"ledger_version" gorm:"not null;default:0"`
	DeletedAt     gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// Relationships
	Derivative *DerivativeMetadata `json:"derivative,omitempty" gorm:"foreignKey:AssetID"`
}

// DerivativeMetadata is immutable after creation except for the permission flags.
// Lineage and DerivationLevel are a cached view and may go stale on re-parenting.
type DerivativeMetadata struct {
	BaseModel
	AssetID             uuid.UUID      `json:"asset_id" gorm:"type:uuid;not null;uniqueIndex"`
	SourceAssetID       uuid.UUID      `json:"source_asset_id" gorm:"type:uuid;not null;index"`
	DerivativeType      DerivativeType `json:"derivative_type" gorm:"type:varchar(20);not null"`
	Modifications       string         `json:"modifications" gorm:"type:text"`
	Tools               TextArray      `json:"tools"`
	DerivationLevel     int            `json:"derivation_level" gorm:"not null"`
	Lineage             TextArray      `json:"lineage"`
	CreatorRatioBps     int            `json:"creator_ratio_bps" gorm:"not null"`
	ContributorRatioBps int            `json:"contributor_ratio_bps" gorm:"not null"`

	AllowCommercialUse      bool `json:"allow_commercial_use" gorm:"not null"`
	AllowFurtherDerivatives bool `json:"allow_further_derivatives" gorm:"not null"`
}

func (DerivativeMetadata) TableName() string {
	return "derivative_metadata"
}

// LineageIDs returns the cached ancestor chain as uuids, skipping malformed entries.
func (d *DerivativeMetadata) LineageIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.Lineage))
	for _, raw := range d.Lineage {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// IdempotencyKey remembers the resource produced by a creation request so a replay
// returns the original result instead of creating a second one.
type IdempotencyKey struct {
	Key        string    `json:"key" gorm:"primaryKey;size:128"`
	Operation  string    `json:"operation" gorm:"size:50;not null"`
	ResourceID uuid.UUID `json:"resource_id" gorm:"type:uuid;not null"`
	CreatedAt  time.Time `json:"created_at"`
}
