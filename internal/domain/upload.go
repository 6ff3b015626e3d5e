package domain

import (
	"time"

	"github.com/google/uuid"
)

// Upload is one accepted attendance file for a (gathering, level) pair.
// ContentHash is the sha256 hex of the raw bytes; the composite unique
// index is what makes re-submitting the same file idempotent.
type Upload struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	GatheringID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_upload_gathering_level_hash,unique,priority:1" json:"gathering_id"`
	LevelID     uuid.UUID `gorm:"type:uuid;not null;index;index:idx_upload_gathering_level_hash,unique,priority:2" json:"level_id"`
	ContentHash string    `gorm:"type:text;not null;index:idx_upload_gathering_level_hash,unique,priority:3" json:"content_hash"`

	StoragePath string    `gorm:"type:text;not null" json:"storage_path"`
	Filename    string    `gorm:"type:text;not null;default:''" json:"filename"`
	UploadedBy  uuid.UUID `gorm:"type:uuid;not null;index" json:"uploaded_by"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Upload) TableName() string { return "upload" }
