package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Name      string    `gorm:"not null;column:name" json:"name"`
	Plan      PlanTier  `gorm:"not null;default:'BASE';column:plan" json:"plan"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// RecordCeiling is the advisory per-plan limit checked by CreateRecord.
func (u *User) RecordCeiling() int { return u.Plan.RecordCeiling() }
