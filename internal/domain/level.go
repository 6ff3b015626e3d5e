package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Level is a student cohort (class level). Code is the external identifier
// attendance exports declare, usually numeric-looking ("100", "200").
type Level struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Code        string `gorm:"type:text;not null;uniqueIndex" json:"code"`
	DisplayName string `gorm:"type:text;not null;default:''" json:"display_name"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Level) TableName() string { return "level" }
