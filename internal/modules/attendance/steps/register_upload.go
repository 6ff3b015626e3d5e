package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/data/repos"
	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/keys"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/gcs"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

const defaultMaxUploadBytes = 10 << 20

type RegisterUploadDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Gatherings repos.GatheringRepo
	Levels     repos.LevelRepo
	Uploads    repos.UploadRepo
	Bucket     gcs.BucketService
}

type RegisterUploadInput struct {
	GatheringID uuid.UUID
	LevelID     uuid.UUID
	Filename    string
	FileBytes   []byte
	UploadedBy  uuid.UUID
	MaxBytes    int64 // 0 means the default cap
}

type RegisterUploadOutput struct {
	UploadID    uuid.UUID `json:"upload_id"`
	IsDuplicate bool      `json:"is_duplicate"`
	ContentHash string    `json:"content_hash"`
	StoragePath string    `json:"storage_path"`
}

// RegisterUpload is the hash and dedup gate. Byte-identical re-submission
// for the same gathering/level returns the prior upload with no new write
// of any kind; otherwise the raw bytes land at a content-addressed key and
// a fresh Upload row records them. Losing a create race against a
// concurrent identical submission degrades to the duplicate outcome.
func RegisterUpload(ctx context.Context, deps RegisterUploadDeps, in RegisterUploadInput) (RegisterUploadOutput, error) {
	out := RegisterUploadOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Gatherings == nil || deps.Levels == nil || deps.Uploads == nil || deps.Bucket == nil {
		return out, fmt.Errorf("register_upload: missing deps")
	}
	if in.GatheringID == uuid.Nil {
		return out, fmt.Errorf("register_upload: missing gathering_id")
	}
	if in.LevelID == uuid.Nil {
		return out, fmt.Errorf("register_upload: missing level_id")
	}
	if in.UploadedBy == uuid.Nil {
		return out, fmt.Errorf("register_upload: missing uploaded_by")
	}
	if len(in.FileBytes) == 0 {
		return out, fmt.Errorf("register_upload: empty file")
	}
	maxBytes := in.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	if int64(len(in.FileBytes)) > maxBytes {
		return out, fmt.Errorf("%w: %d bytes (limit %d)", ErrUploadTooLarge, len(in.FileBytes), maxBytes)
	}

	dbc := dbctx.Context{Ctx: ctx}

	gathering, err := deps.Gatherings.GetByID(dbc, in.GatheringID)
	if err != nil {
		return out, fmt.Errorf("register_upload: load gathering: %w", err)
	}
	if gathering == nil {
		return out, ErrUnknownGathering
	}
	level, err := deps.Levels.GetByID(dbc, in.LevelID)
	if err != nil {
		return out, fmt.Errorf("register_upload: load level: %w", err)
	}
	if level == nil {
		return out, ErrUnknownLevel
	}

	out.ContentHash = hashBytes(in.FileBytes)

	existing, err := deps.Uploads.GetByGatheringLevelHash(dbc, in.GatheringID, in.LevelID, out.ContentHash)
	if err != nil {
		return out, fmt.Errorf("register_upload: dedup probe: %w", err)
	}
	if existing != nil {
		out.UploadID = existing.ID
		out.IsDuplicate = true
		out.StoragePath = existing.StoragePath
		deps.Log.Info("duplicate upload detected",
			"gathering_id", in.GatheringID,
			"level_code", level.Code,
			"upload_id", existing.ID)
		return out, nil
	}

	// Blob first: the key is content-addressed, so a crash or a lost race
	// after this write leaves reusable bytes, never a dangling row.
	key := keys.RawUploadKey(in.GatheringID, level.Code, out.ContentHash, in.Filename)
	if err := deps.Bucket.UploadBytes(dbc, key, in.FileBytes); err != nil {
		return out, fmt.Errorf("register_upload: store raw file: %w", err)
	}

	row := &types.Upload{
		ID:          uuid.New(),
		GatheringID: in.GatheringID,
		LevelID:     in.LevelID,
		ContentHash: out.ContentHash,
		StoragePath: key,
		Filename:    in.Filename,
		UploadedBy:  in.UploadedBy,
	}
	created, err := deps.Uploads.Create(dbc, row)
	if err != nil {
		if isUniqueViolation(err) {
			winner, werr := deps.Uploads.GetByGatheringLevelHash(dbc, in.GatheringID, in.LevelID, out.ContentHash)
			if werr != nil || winner == nil {
				return out, fmt.Errorf("register_upload: lost create race and re-read failed: %w", err)
			}
			out.UploadID = winner.ID
			out.IsDuplicate = true
			out.StoragePath = winner.StoragePath
			return out, nil
		}
		return out, fmt.Errorf("register_upload: create upload row: %w", err)
	}

	out.UploadID = created.ID
	out.StoragePath = created.StoragePath
	deps.Log.Info("upload registered",
		"gathering_id", in.GatheringID,
		"level_code", level.Code,
		"upload_id", created.ID,
		"size_bytes", len(in.FileBytes))
	return out, nil
}
