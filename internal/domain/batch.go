package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Batch is one immutable reconciliation result for an upload. Re-running a
// commit never rewrites a batch; it mints the next version. The partition
// paths point at the JSON arrays in the blob store; the row itself is the
// commit point.
type Batch struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	UploadID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_batch_upload_version,unique,priority:1" json:"upload_id"`
	Version  int       `gorm:"not null;index:idx_batch_upload_version,unique,priority:2" json:"version"`

	PresentPath string `gorm:"type:text;not null" json:"present_path"`
	AbsentPath  string `gorm:"type:text;not null" json:"absent_path"`
	ExemptPath  string `gorm:"type:text;not null" json:"exempt_path"`
	IssuesPath  string `gorm:"type:text;not null" json:"issues_path"`

	Summary datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"summary"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Batch) TableName() string { return "batch" }

// BatchSummary is the shape serialized into Batch.Summary.
type BatchSummary struct {
	TotalRows int `json:"total_rows"`
	Present   int `json:"present"`
	Absent    int `json:"absent"`
	Exempt    int `json:"exempt"`
	Issues    int `json:"issues"`
}
