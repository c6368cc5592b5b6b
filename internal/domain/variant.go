package domain

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Variant is an alternative destination for a Record. Conditions are opaque
// here; the external routing collaborator evaluates them.
type Variant struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RecordID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"record_id"`
	Record     *Record        `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"record,omitempty"`
	Target     string         `gorm:"type:text;not null;column:target" json:"target"`
	Weight     int            `gorm:"not null;default:1;column:weight" json:"weight"`
	Conditions datatypes.JSON `gorm:"type:jsonb;column:conditions" json:"conditions,omitempty"`
	IsActive   bool           `gorm:"not null;default:true;column:is_active" json:"is_active"`
}

func (Variant) TableName() string { return "variants" }
