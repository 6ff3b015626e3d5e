package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	GatheringCategoryCommunion = "communion"
	GatheringCategoryMidweek   = "midweek"
	GatheringCategorySpecial   = "special"
)

// Gathering is a scheduled assembly students are expected to attend.
// EligibleLevelIDs is a uuid list; empty means every level may ingest.
type Gathering struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Title         string    `gorm:"type:text;not null" json:"title"`
	Category      string    `gorm:"type:text;not null;index" json:"category"`
	ScheduledDate time.Time `gorm:"type:date;not null;index" json:"scheduled_date"`
	StartTime     string    `gorm:"type:text;not null;default:''" json:"start_time"`

	EligibleLevelIDs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"eligible_level_ids"`

	LockedAfterIngestion bool `gorm:"not null;default:false;index" json:"locked_after_ingestion"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Gathering) TableName() string { return "gathering" }

// EligibleLevels decodes the jsonb level list. Empty list means open.
func (g *Gathering) EligibleLevels() ([]uuid.UUID, error) {
	if len(g.EligibleLevelIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(g.EligibleLevelIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// LevelEligible reports whether the level may ingest for this gathering.
func (g *Gathering) LevelEligible(levelID uuid.UUID) (bool, error) {
	ids, err := g.EligibleLevels()
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return true, nil
	}
	for _, id := range ids {
		if id == levelID {
			return true, nil
		}
	}
	return false, nil
}
