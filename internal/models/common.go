// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

func (JSONB) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// TextArray is stored as text[] on PostgreSQL and as the same literal form elsewhere.
type TextArray []string

func (a TextArray) Value() (driver.Value, error) {
	return pq.StringArray(a).Value()
}

func (a *TextArray) Scan(src interface{}) error {
	return (*pq.StringArray)(a).Scan(src)
}

func (TextArray) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// ToJSONB converts any JSON-serializable value into a JSONB snapshot.
func ToJSONB(v interface{}) JSONB {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return JSONB{"marshal_error": err.Error()}
	}
	var out JSONB
	if err := json.Unmarshal(raw, &out); err != nil {
		return JSONB{"value": string(raw)}
	}
	return out
}

// Enums

type OwnershipType string

const (
	OwnershipTypePrimary     OwnershipType = "primary"
	OwnershipTypeSecondary   OwnershipType = "secondary"
	OwnershipTypeContributor OwnershipType = "contributor"
	OwnershipTypeDerivative  OwnershipType = "derivative"
)

func (t OwnershipType) Valid() bool {
	switch t {
	case OwnershipTypePrimary, OwnershipTypeSecondary, OwnershipTypeContributor, OwnershipTypeDerivative:
		return true
	}
	return false
}

type DisputeStatus string

const (
	DisputeStatusNone     DisputeStatus = "none"
	DisputeStatusDisputed DisputeStatus = "disputed"
	DisputeStatusResolved DisputeStatus = "resolved"
)

func (s DisputeStatus) Valid() bool {
	switch s {
	case DisputeStatusNone, DisputeStatusDisputed, DisputeStatusResolved:
		return true
	}
	return false
}

type ResolutionAction string

const (
	ResolutionConfirm ResolutionAction = "CONFIRM"
	ResolutionModify  ResolutionAction = "MODIFY"
	ResolutionRemove  ResolutionAction = "REMOVE"
)

func (a ResolutionAction) Valid() bool {
	switch a {
	case ResolutionConfirm, ResolutionModify, ResolutionRemove:
		return true
	}
	return false
}

type DerivativeType string

const (
	DerivativeTypeRemix       DerivativeType = "remix"
	DerivativeTypeAdaptation  DerivativeType = "adaptation"
	DerivativeTypeTranslation DerivativeType = "translation"
	DerivativeTypeCompilation DerivativeType = "compilation"
	DerivativeTypeOther       DerivativeType = "other"
)

func (t DerivativeType) Valid() bool {
	switch t {
	case DerivativeTypeRemix, DerivativeTypeAdaptation, DerivativeTypeTranslation,
		DerivativeTypeCompilation, DerivativeTypeOther:
		return true
	}
	return false
}

type AuditAction string

const (
	AuditActionAssetConfirmed     AuditAction = "ASSET_CONFIRMED"
	AuditActionDerivativeCreated  AuditAction = "DERIVATIVE_CREATED"
	AuditActionAssetRetired       AuditAction = "ASSET_RETIRED"
	AuditActionParentAttached     AuditAction = "PARENT_ATTACHED"
	AuditActionLineageRecomputed  AuditAction = "LINEAGE_RECOMPUTED"
	AuditActionPermissionsUpdated AuditAction = "PERMISSIONS_UPDATED"
	AuditActionOwnershipTransfer  AuditAction = "OWNERSHIP_TRANSFER"
	AuditActionDisputeFlagged     AuditAction = "DISPUTE_FLAGGED"
	AuditActionDisputeConfirmed   AuditAction = "DISPUTE_RESOLVED_CONFIRM"
	AuditActionDisputeModified    AuditAction = "DISPUTE_RESOLVED_MODIFY"
	AuditActionDisputeRemoved     AuditAction = "DISPUTE_RESOLVED_REMOVE"
)
