package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ScanEvent is one scan/visit of a Record. Immutable once created; only bulk
// retention cleanup ever removes rows, and that lives outside this repo.
type ScanEvent struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RecordID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"record_id"`
	Record    *Record    `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"record,omitempty"`
	VariantID *uuid.UUID `gorm:"type:uuid;index" json:"variant_id,omitempty"`
	Variant   *Variant   `gorm:"constraint:OnDelete:SET NULL;foreignKey:VariantID;references:ID" json:"variant,omitempty"`

	UserAgent string `gorm:"type:text;column:user_agent" json:"user_agent"`
	IP        string `gorm:"size:64;column:ip" json:"ip"`
	Device    string `gorm:"size:64;column:device" json:"device"`
	OS        string `gorm:"size:64;column:os" json:"os"`
	Browser   string `gorm:"size:64;column:browser" json:"browser"`

	AdditionalData datatypes.JSON `gorm:"type:jsonb;column:additional_data" json:"additional_data,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (ScanEvent) TableName() string { return "events" }
