package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StudentStatusActive   = "active"
	StudentStatusInactive = "inactive"
)

// Student is a roster member. MatricNo is stored canonicalized (upper-cased,
// inner whitespace collapsed) so raw-row lookups hit without re-normalizing
// the stored side.
type Student struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	MatricNo string `gorm:"type:text;not null;uniqueIndex" json:"matric_no"`
	FullName string `gorm:"type:text;not null" json:"full_name"`
	Gender   string `gorm:"type:text;not null;default:''" json:"gender"`

	LevelID uuid.UUID `gorm:"type:uuid;not null;index" json:"level_id"`
	Status  string    `gorm:"type:text;not null;default:'active';index" json:"status"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Student) TableName() string { return "student" }
