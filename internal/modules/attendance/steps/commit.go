package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/data/repos"
	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/keys"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/gcs"
	"github.com/campuschapel/attendance-backend/internal/platform/locks"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

const (
	defaultIngestLockTTL     = 2 * time.Minute
	defaultCommitMaxAttempts = 3
)

type CommitDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	Gatherings repos.GatheringRepo
	Levels     repos.LevelRepo
	Students   repos.StudentRepo
	Exeats     repos.ExeatRepo
	Uploads    repos.UploadRepo
	Batches    repos.BatchRepo
	Issues     repos.IssueRepo
	Bucket     gcs.BucketService

	// Optional. Serializes same-pair ingests early; version assignment is
	// already safe without it via the upload row lock and unique index.
	Locker locks.IngestLocker
}

type CommitInput struct {
	UploadID     uuid.UUID
	RejectLocked bool
	LockTTL      time.Duration // 0 means the default
	MaxAttempts  int           // 0 means the default
}

type CommitOutput struct {
	UploadID         uuid.UUID         `json:"upload_id"`
	BatchID          uuid.UUID         `json:"batch_id"`
	Version          int               `json:"version"`
	RecordsProcessed int               `json:"records_processed"`
	MatchedCount     int               `json:"matched_count"`
	UnmatchedCount   int               `json:"unmatched_count"`
	StoragePaths     map[string]string `json:"storage_paths"`
}

// Commit reconciles a registered upload and persists the result as the
// upload's next batch version. Partition objects are written before the
// relational rows; the Batch insert is the commit point. A crash in
// between leaves orphaned objects that are inert without a Batch row and
// get swept by the janitor. Once Commit returns, the batch is final:
// corrections mint a new version, never an edit.
func Commit(ctx context.Context, deps CommitDeps, in CommitInput) (CommitOutput, error) {
	out := CommitOutput{}
	if deps.DB == nil || deps.Log == nil || deps.Gatherings == nil || deps.Levels == nil || deps.Students == nil || deps.Exeats == nil || deps.Uploads == nil || deps.Batches == nil || deps.Issues == nil || deps.Bucket == nil {
		return out, fmt.Errorf("commit: missing deps")
	}
	if in.UploadID == uuid.Nil {
		return out, fmt.Errorf("commit: missing upload_id")
	}

	dbc := dbctx.Context{Ctx: ctx}

	upload, err := deps.Uploads.GetByID(dbc, in.UploadID)
	if err != nil {
		return out, fmt.Errorf("commit: load upload: %w", err)
	}
	if upload == nil {
		return out, ErrUnknownUpload
	}
	out.UploadID = upload.ID

	if deps.Locker != nil {
		ttl := in.LockTTL
		if ttl <= 0 {
			ttl = defaultIngestLockTTL
		}
		guard, err := deps.Locker.Acquire(ctx, keys.IngestLockKey(upload.GatheringID, upload.LevelID), ttl)
		if err != nil {
			return out, fmt.Errorf("commit: acquire ingest lock: %w", err)
		}
		defer func() {
			if rerr := guard.Release(context.WithoutCancel(ctx)); rerr != nil {
				deps.Log.Warn("release ingest lock", "upload_id", upload.ID, "error", rerr)
			}
		}()
	}

	// Gathering state is read under the advisory lock so a racing commit's
	// post-commit lock flag is visible here.
	gathering, level, err := loadGatheringLevel(dbc, deps.Gatherings, deps.Levels, upload.GatheringID, upload.LevelID)
	if err != nil {
		return out, err
	}
	if err := lockGate(dbc, deps.Batches, gathering, in.RejectLocked, upload); err != nil {
		return out, err
	}

	data, err := deps.Bucket.ReadAll(ctx, upload.StoragePath)
	if err != nil {
		return out, fmt.Errorf("commit: download upload: %w", err)
	}

	res, total, err := reconcileFile(dbc, deps.Students, deps.Exeats, gathering, level, upload.Filename, data)
	if err != nil {
		return out, err
	}
	issues := res.Issues()

	paths := map[string]string{}
	payloads := map[string]any{
		keys.PartitionPresent: res.Present,
		keys.PartitionAbsent:  res.Absent,
		keys.PartitionExempt:  res.Exempt,
		keys.PartitionIssues:  issues,
	}
	for _, partition := range keys.Partitions() {
		paths[partition] = keys.PartitionPath(gathering.ScheduledDate, gathering.ID, level.Code, partition)
	}

	// Partition paths derive from (date, gathering, level) alone, so the
	// content is identical on a version-conflict retry; objects are
	// written once, up front.
	g, gctx := errgroup.WithContext(ctx)
	for _, partition := range keys.Partitions() {
		key := paths[partition]
		payload := payloads[partition]
		g.Go(func() error {
			if err := deps.Bucket.UploadBytes(dbctx.Context{Ctx: gctx}, key, mustJSON(payload)); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("commit: store partitions: %w", err)
	}

	summary := types.BatchSummary{
		TotalRows: total,
		Present:   len(res.Present),
		Absent:    len(res.Absent),
		Exempt:    len(res.Exempt),
		Issues:    len(issues),
	}

	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultCommitMaxAttempts
	}

	var batch *types.Batch
	for attempt := 1; ; attempt++ {
		batch = nil
		err := deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txc := dbctx.Context{Ctx: ctx, Tx: tx}

			version, err := deps.Batches.NextVersion(txc, upload.ID)
			if err != nil {
				return err
			}

			now := time.Now()
			row := &types.Batch{
				ID:          uuid.New(),
				UploadID:    upload.ID,
				Version:     version,
				PresentPath: paths[keys.PartitionPresent],
				AbsentPath:  paths[keys.PartitionAbsent],
				ExemptPath:  paths[keys.PartitionExempt],
				IssuesPath:  paths[keys.PartitionIssues],
				Summary:     datatypes.JSON(mustJSON(summary)),
				CreatedAt:   now,
			}
			created, err := deps.Batches.Create(txc, row)
			if err != nil {
				return err
			}

			issueRows := make([]*types.Issue, 0, len(issues))
			for _, u := range issues {
				issueRows = append(issueRows, &types.Issue{
					ID:          uuid.New(),
					BatchID:     created.ID,
					StudentID:   u.StudentID,
					IssueType:   u.Type,
					Description: u.Reason,
					RawPayload:  datatypes.JSON(issuePayload(u)),
					CreatedAt:   now,
					UpdatedAt:   now,
				})
			}
			if _, err := deps.Issues.Create(txc, issueRows); err != nil {
				return err
			}

			batch = created
			return nil
		})
		if err == nil {
			break
		}
		if isUniqueViolation(err) {
			if attempt < maxAttempts {
				deps.Log.Warn("batch version conflict, retrying",
					"upload_id", upload.ID,
					"attempt", attempt)
				continue
			}
			return out, fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
		return out, fmt.Errorf("commit: persist batch: %w", err)
	}

	out.BatchID = batch.ID
	out.Version = batch.Version
	out.RecordsProcessed = total
	out.MatchedCount = len(res.Present)
	out.UnmatchedCount = len(res.Unmatched)
	out.StoragePaths = paths

	deps.Log.Info("batch committed",
		"upload_id", upload.ID,
		"batch_id", batch.ID,
		"version", batch.Version,
		"present", summary.Present,
		"absent", summary.Absent,
		"exempt", summary.Exempt,
		"issues", summary.Issues)
	return out, nil
}
