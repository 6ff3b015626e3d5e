package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/data/repos"
	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/reconcile"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/gcs"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

type PreviewDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Gatherings repos.GatheringRepo
	Levels     repos.LevelRepo
	Students   repos.StudentRepo
	Exeats     repos.ExeatRepo
	Uploads    repos.UploadRepo
	Batches    repos.BatchRepo
	Bucket     gcs.BucketService
}

// PreviewInput names its source either way: raw FileBytes for a not yet
// registered file (GatheringID/LevelID required), or the UploadID of a
// registered upload to re-preview.
type PreviewInput struct {
	GatheringID  uuid.UUID
	LevelID      uuid.UUID
	Filename     string
	FileBytes    []byte
	UploadID     uuid.UUID
	RejectLocked bool
}

type PreviewSummary struct {
	Total          int `json:"total"`
	MatchedCount   int `json:"matched_count"`
	UnmatchedCount int `json:"unmatched_count"`
}

type PreviewOutput struct {
	Matched         []reconcile.Record    `json:"matched"`
	Unmatched       []reconcile.Unmatched `json:"unmatched"`
	Duplicates      []reconcile.Unmatched `json:"duplicates,omitempty"`
	GatheringLocked bool                  `json:"gathering_locked"`
	Summary         PreviewSummary        `json:"summary"`
}

// Preview runs the full reconciliation without persisting anything, so a
// human can review matches and issues before confirming a commit.
func Preview(ctx context.Context, deps PreviewDeps, in PreviewInput) (PreviewOutput, error) {
	out := PreviewOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Gatherings == nil || deps.Levels == nil || deps.Students == nil || deps.Exeats == nil || deps.Uploads == nil || deps.Batches == nil || deps.Bucket == nil {
		return out, fmt.Errorf("preview: missing deps")
	}

	dbc := dbctx.Context{Ctx: ctx}

	var (
		upload   *types.Upload
		filename = in.Filename
		data     = in.FileBytes
		err      error
	)
	gatheringID, levelID := in.GatheringID, in.LevelID

	if in.UploadID != uuid.Nil {
		upload, err = deps.Uploads.GetByID(dbc, in.UploadID)
		if err != nil {
			return out, fmt.Errorf("preview: load upload: %w", err)
		}
		if upload == nil {
			return out, ErrUnknownUpload
		}
		gatheringID, levelID = upload.GatheringID, upload.LevelID
		filename = upload.Filename
	}
	if gatheringID == uuid.Nil || levelID == uuid.Nil {
		return out, fmt.Errorf("preview: missing gathering_id or level_id")
	}
	if upload == nil && len(data) == 0 {
		return out, fmt.Errorf("preview: no file bytes and no upload_id")
	}

	gathering, level, err := loadGatheringLevel(dbc, deps.Gatherings, deps.Levels, gatheringID, levelID)
	if err != nil {
		return out, err
	}

	// A previewed file not yet registered may still dedup to a known
	// upload; the gate then sees its commit history.
	if upload == nil && gathering.LockedAfterIngestion {
		upload, err = deps.Uploads.GetByGatheringLevelHash(dbc, gatheringID, levelID, hashBytes(data))
		if err != nil {
			return out, fmt.Errorf("preview: dedup probe: %w", err)
		}
	}
	if err := lockGate(dbc, deps.Batches, gathering, in.RejectLocked, upload); err != nil {
		return out, err
	}

	if len(data) == 0 {
		data, err = deps.Bucket.ReadAll(ctx, upload.StoragePath)
		if err != nil {
			return out, fmt.Errorf("preview: download upload: %w", err)
		}
	}

	res, total, err := reconcileFile(dbc, deps.Students, deps.Exeats, gathering, level, filename, data)
	if err != nil {
		return out, err
	}

	out.Matched = res.Present
	out.Unmatched = res.Unmatched
	out.Duplicates = res.Duplicates
	out.GatheringLocked = gathering.LockedAfterIngestion
	out.Summary = PreviewSummary{
		Total:          total,
		MatchedCount:   len(res.Present),
		UnmatchedCount: len(res.Unmatched),
	}
	return out, nil
}
