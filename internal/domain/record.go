package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Record is one logical QR code: a short key mapped to a destination target.
// The short key is assigned at creation and never reassigned.
type Record struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ShortKey string    `gorm:"uniqueIndex;not null;size:16;column:short_key" json:"short_key"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Name     string    `gorm:"column:name" json:"name"`
	Target   string    `gorm:"type:text;not null;column:target" json:"target"`
	IsActive bool      `gorm:"not null;default:true;column:is_active" json:"is_active"`

	// EnableSmartRouting gates the external routing-decision collaborator.
	EnableSmartRouting bool `gorm:"not null;default:false;column:enable_smart_routing" json:"enable_smart_routing"`

	// StyleOptions is an opaque rendering blob; nothing in this repo
	// interprets it.
	StyleOptions datatypes.JSON `gorm:"type:jsonb;column:style_options" json:"style_options,omitempty"`

	// ScanCount only moves through the event-recording path, via a SQL-side
	// increment. Monotonically non-decreasing.
	ScanCount      int64      `gorm:"not null;default:0;column:scan_count" json:"scan_count"`
	LastActivityAt *time.Time `gorm:"column:last_activity_at" json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (Record) TableName() string { return "records" }
