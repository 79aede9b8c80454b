// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is append-only. EntryHash chains each entry to the previous one for the same asset.
type AuditLog struct {
	BaseModel
	ActorID      *uuid.UUID  `json:"actor_id" gorm:"type:uuid;index"`
	ActorType    string      `json:"actor_type,omitempty" gorm:"size:20"`
	RequestID    string      `json:"request_id,omitempty" gorm:"size:64;index"`
	Action       AuditAction `json:"action" gorm:"size:100;not null;index"`
	ResourceType string      `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID  `json:"resource_id" gorm:"type:uuid;index"`
	AssetID      *uuid.UUID  `json:"asset_id" gorm:"type:uuid;index"`
	OldValues    JSONB       `json:"old_values"`
	NewValues    JSONB       `json:"new_values"`
	IPAddress    string      `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent    string      `json:"user_agent,omitempty" gorm:"type:text"`
	Sequence     int64       `json:"sequence" gorm:"not null;default:0;index"`
	PreviousHash string      `json:"previous_hash" gorm:"size:64"`
	EntryHash    string      `json:"entry_hash" gorm:"size:64;not null"`
}

type AdminNotification struct {
	BaseModel
	RecipientID         *uuid.UUID `json:"recipient_id,omitempty" gorm:"type:uuid;index"`
	Type                string     `json:"type" gorm:"type:varchar(50);not null;index"`
	Title               string     `json:"title" gorm:"size:255;not null"`
	Message             string     `json:"message" gorm:"type:text;not null"`
	Priority            string     `json:"priority" gorm:"type:varchar(20);default:'medium';index"`
	Status              string     `json:"status" gorm:"type:varchar(20);default:'unread';index"`
	RelatedResourceType string     `json:"related_resource_type,omitempty" gorm:"size:50"`
	RelatedResourceID   *uuid.UUID `json:"related_resource_id" gorm:"type:uuid"`
	ReadAt              *time.Time `json:"read_at"`
}

const (
	NotificationTypeDisputeFlagged  = "ownership_dispute"
	NotificationTypeDisputeResolved = "ownership_dispute_resolved"
	NotificationTypeTransfer        = "ownership_transfer"
)
