package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ExeatStatusActive    = "active"
	ExeatStatusEnded     = "ended"
	ExeatStatusCancelled = "cancelled"
)

// Exeat is an approved leave window. A student is exempt from a gathering
// when an active exeat covers the gathering date, both bounds inclusive.
type Exeat struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	StudentID uuid.UUID `gorm:"type:uuid;not null;index" json:"student_id"`

	StartDate time.Time `gorm:"type:date;not null;index" json:"start_date"`
	EndDate   time.Time `gorm:"type:date;not null;index" json:"end_date"`
	Status    string    `gorm:"type:text;not null;default:'active';index" json:"status"`
	Reason    string    `gorm:"type:text;not null;default:''" json:"reason"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Exeat) TableName() string { return "exeat" }
