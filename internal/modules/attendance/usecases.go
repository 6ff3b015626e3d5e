// Package attendance is the ingestion and reconciliation engine: it takes
// a raw attendance export for one gathering/level pair, dedups it by
// content hash, reconciles it against the enrolled roster with exeat
// exemptions, and persists the result as an immutable versioned batch.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/data/repos"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/steps"
	"github.com/campuschapel/attendance-backend/internal/observability"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/gcs"
	"github.com/campuschapel/attendance-backend/internal/platform/locks"
	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

// Config holds the engine's policy switches. Per-call policy fields on the
// step inputs are overridden from here; callers toggle behavior through
// configuration, not per request.
type Config struct {
	// LockGatheringOnCommit locks the gathering after a successful commit,
	// run as a visible post-commit hook rather than inside the writer.
	LockGatheringOnCommit bool
	// RejectLockedGatherings refuses first-time ingests into a locked
	// gathering. Re-commits of an already ingested upload stay possible.
	RejectLockedGatherings bool

	MaxUploadBytes    int64
	IngestLockTTL     time.Duration
	CommitMaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		LockGatheringOnCommit:  true,
		RejectLockedGatherings: true,
	}
}

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Gatherings repos.GatheringRepo
	Levels     repos.LevelRepo
	Students   repos.StudentRepo
	Exeats     repos.ExeatRepo
	Uploads    repos.UploadRepo
	Batches    repos.BatchRepo
	Issues     repos.IssueRepo

	Bucket gcs.BucketService
	Locker locks.IngestLocker

	Config Config
}

// Engine is the facade the transport layer talks to.
type Engine struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Engine { return Engine{deps: deps} }

func (e Engine) WithLog(log *logger.Logger) Engine {
	e.deps.Log = log
	return e
}

type (
	RegisterUploadInput  = steps.RegisterUploadInput
	RegisterUploadOutput = steps.RegisterUploadOutput

	PreviewInput   = steps.PreviewInput
	PreviewOutput  = steps.PreviewOutput
	PreviewSummary = steps.PreviewSummary

	CommitInput  = steps.CommitInput
	CommitOutput = steps.CommitOutput
)

// RegisterUpload runs the hash and dedup gate for raw export bytes.
func (e Engine) RegisterUpload(ctx context.Context, in RegisterUploadInput) (RegisterUploadOutput, error) {
	ctx, end := observability.StartSpan(ctx, "attendance.register_upload",
		attribute.String("gathering_id", in.GatheringID.String()))
	in.MaxBytes = e.deps.Config.MaxUploadBytes
	out, err := steps.RegisterUpload(ctx, steps.RegisterUploadDeps{
		DB:         e.deps.DB,
		Log:        e.deps.Log,
		Gatherings: e.deps.Gatherings,
		Levels:     e.deps.Levels,
		Uploads:    e.deps.Uploads,
		Bucket:     e.deps.Bucket,
	}, steps.RegisterUploadInput(in))
	end(err)
	return out, err
}

// Preview reconciles without persisting, for human review before commit.
func (e Engine) Preview(ctx context.Context, in PreviewInput) (PreviewOutput, error) {
	ctx, end := observability.StartSpan(ctx, "attendance.preview",
		attribute.String("upload_id", in.UploadID.String()))
	in.RejectLocked = e.deps.Config.RejectLockedGatherings
	out, err := steps.Preview(ctx, steps.PreviewDeps{
		DB:         e.deps.DB,
		Log:        e.deps.Log,
		Gatherings: e.deps.Gatherings,
		Levels:     e.deps.Levels,
		Students:   e.deps.Students,
		Exeats:     e.deps.Exeats,
		Uploads:    e.deps.Uploads,
		Batches:    e.deps.Batches,
		Bucket:     e.deps.Bucket,
	}, steps.PreviewInput(in))
	end(err)
	return out, err
}

// Commit persists the reconciliation as the upload's next batch version,
// then runs the gathering-lock hook when configured. The batch is durable
// once Output.BatchID is set; an error after that point is a hook failure,
// not a failed commit.
func (e Engine) Commit(ctx context.Context, in CommitInput) (CommitOutput, error) {
	ctx, end := observability.StartSpan(ctx, "attendance.commit",
		attribute.String("upload_id", in.UploadID.String()))
	in.RejectLocked = e.deps.Config.RejectLockedGatherings
	in.LockTTL = e.deps.Config.IngestLockTTL
	in.MaxAttempts = e.deps.Config.CommitMaxAttempts
	out, err := steps.Commit(ctx, steps.CommitDeps{
		DB:         e.deps.DB,
		Log:        e.deps.Log,
		Gatherings: e.deps.Gatherings,
		Levels:     e.deps.Levels,
		Students:   e.deps.Students,
		Exeats:     e.deps.Exeats,
		Uploads:    e.deps.Uploads,
		Batches:    e.deps.Batches,
		Issues:     e.deps.Issues,
		Bucket:     e.deps.Bucket,
		Locker:     e.deps.Locker,
	}, steps.CommitInput(in))
	if err != nil {
		end(err)
		return out, err
	}

	if e.deps.Config.LockGatheringOnCommit {
		if lerr := e.lockGathering(ctx, out.UploadID); lerr != nil {
			e.deps.Log.Error("post-commit gathering lock failed",
				"upload_id", out.UploadID,
				"batch_id", out.BatchID,
				"error", lerr)
			end(lerr)
			return out, fmt.Errorf("batch %s committed; gathering lock hook: %w", out.BatchID, lerr)
		}
	}
	end(nil)
	return out, nil
}

func (e Engine) lockGathering(ctx context.Context, uploadID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	upload, err := e.deps.Uploads.GetByID(dbc, uploadID)
	if err != nil {
		return err
	}
	if upload == nil {
		return steps.ErrUnknownUpload
	}
	return e.deps.Gatherings.MarkLocked(dbc, upload.GatheringID)
}
