package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type IssueType string

const (
	IssueTypeMissingIdentifier IssueType = "missing_identifier"
	IssueTypeUnmatchedStudent  IssueType = "unmatched_student"
	IssueTypeLevelMismatch     IssueType = "level_mismatch"
	IssueTypeDuplicateScan     IssueType = "duplicate_scan"
)

// Issue is a row-level anomaly recorded during a commit. StudentID is set
// only when the row resolved to a roster member (level mismatch, duplicate
// scan). RawPayload keeps the offending row verbatim for manual review.
type Issue struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	BatchID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"batch_id"`
	StudentID *uuid.UUID `gorm:"type:uuid;index" json:"student_id,omitempty"`

	IssueType   IssueType      `gorm:"type:text;not null;index" json:"issue_type"`
	Description string         `gorm:"type:text;not null;default:''" json:"description"`
	RawPayload  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"raw_payload"`

	Resolved   bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedBy *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `gorm:"index" json:"resolved_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Issue) TableName() string { return "issue" }
