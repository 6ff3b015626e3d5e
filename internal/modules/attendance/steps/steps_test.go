package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuschapel/attendance-backend/internal/data/repos"
	"github.com/campuschapel/attendance-backend/internal/data/repos/testutil"
	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/keys"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/reconcile"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
	"github.com/campuschapel/attendance-backend/internal/platform/gcs"
)

// memBucket is an in-memory gcs.BucketService; Writes counts every object
// put so dedup tests can assert that nothing new was stored.
type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	Writes  int
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}}
}

func (b *memBucket) UploadFile(dbc dbctx.Context, key string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	return b.UploadBytes(dbc, key, data)
}

func (b *memBucket) UploadBytes(dbc dbctx.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	b.Writes++
	return nil
}

func (b *memBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := b.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (b *memBucket) ReadAll(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (b *memBucket) DeleteFile(dbc dbctx.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []string{}
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *memBucket) GetObjectAttrs(ctx context.Context, key string) (*gcs.ObjectAttrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &gcs.ObjectAttrs{Size: int64(len(data))}, nil
}

func (b *memBucket) GetPublicURL(key string) string { return "mem://" + key }

type harness struct {
	tx        *gorm.DB
	bucket    *memBucket
	gathering *types.Gathering
	level     *types.Level
	students  []*types.Student

	gatherings repos.GatheringRepo
	levels     repos.LevelRepo
	studentsR  repos.StudentRepo
	exeats     repos.ExeatRepo
	uploads    repos.UploadRepo
	batches    repos.BatchRepo
	issues     repos.IssueRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()

	h := &harness{tx: tx, bucket: newMemBucket()}
	h.gathering = testutil.SeedGathering(t, ctx, tx, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	h.level = testutil.SeedLevel(t, ctx, tx, "100")
	h.students = []*types.Student{
		testutil.SeedStudent(t, ctx, tx, h.level.ID, "CS/100/01"),
		testutil.SeedStudent(t, ctx, tx, h.level.ID, "CS/100/02"),
		testutil.SeedStudent(t, ctx, tx, h.level.ID, "CS/100/03"),
	}

	h.gatherings = repos.NewGatheringRepo(tx, log)
	h.levels = repos.NewLevelRepo(tx, log)
	h.studentsR = repos.NewStudentRepo(tx, log)
	h.exeats = repos.NewExeatRepo(tx, log)
	h.uploads = repos.NewUploadRepo(tx, log)
	h.batches = repos.NewBatchRepo(tx, log)
	h.issues = repos.NewIssueRepo(tx, log)
	return h
}

func (h *harness) registerDeps(t *testing.T) RegisterUploadDeps {
	return RegisterUploadDeps{
		DB:         h.tx,
		Log:        testutil.Logger(t),
		Gatherings: h.gatherings,
		Levels:     h.levels,
		Uploads:    h.uploads,
		Bucket:     h.bucket,
	}
}

func (h *harness) previewDeps(t *testing.T) PreviewDeps {
	return PreviewDeps{
		DB:         h.tx,
		Log:        testutil.Logger(t),
		Gatherings: h.gatherings,
		Levels:     h.levels,
		Students:   h.studentsR,
		Exeats:     h.exeats,
		Uploads:    h.uploads,
		Batches:    h.batches,
		Bucket:     h.bucket,
	}
}

func (h *harness) commitDeps(t *testing.T) CommitDeps {
	return CommitDeps{
		DB:         h.tx,
		Log:        testutil.Logger(t),
		Gatherings: h.gatherings,
		Levels:     h.levels,
		Students:   h.studentsR,
		Exeats:     h.exeats,
		Uploads:    h.uploads,
		Batches:    h.batches,
		Issues:     h.issues,
		Bucket:     h.bucket,
	}
}

const exportCSV = "Matric No,Full Name,Level\n" +
	"cs/100/01,Ada Obi,100\n" +
	"CS/100/04,Not Enrolled,100\n"

func TestRegisterUploadDedup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := RegisterUploadInput{
		GatheringID: h.gathering.ID,
		LevelID:     h.level.ID,
		Filename:    "export.csv",
		FileBytes:   []byte(exportCSV),
		UploadedBy:  uuid.New(),
	}

	first, err := RegisterUpload(ctx, h.registerDeps(t), in)
	if err != nil {
		t.Fatalf("RegisterUpload: %v", err)
	}
	if first.IsDuplicate || first.UploadID == uuid.Nil || first.ContentHash == "" {
		t.Fatalf("first register: %+v", first)
	}
	writesAfterFirst := h.bucket.Writes

	second, err := RegisterUpload(ctx, h.registerDeps(t), in)
	if err != nil {
		t.Fatalf("RegisterUpload again: %v", err)
	}
	if !second.IsDuplicate || second.UploadID != first.UploadID {
		t.Fatalf("second register: %+v (first id %s)", second, first.UploadID)
	}
	if h.bucket.Writes != writesAfterFirst {
		t.Fatalf("duplicate performed %d new writes", h.bucket.Writes-writesAfterFirst)
	}

	// Same bytes for a different gathering is a fresh upload.
	other := testutil.SeedGathering(t, ctx, h.tx, time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC))
	in.GatheringID = other.ID
	third, err := RegisterUpload(ctx, h.registerDeps(t), in)
	if err != nil || third.IsDuplicate || third.UploadID == first.UploadID {
		t.Fatalf("third register: %+v err=%v", third, err)
	}
}

func TestRegisterUploadTooLarge(t *testing.T) {
	h := newHarness(t)
	_, err := RegisterUpload(context.Background(), h.registerDeps(t), RegisterUploadInput{
		GatheringID: h.gathering.ID,
		LevelID:     h.level.ID,
		Filename:    "export.csv",
		FileBytes:   []byte(exportCSV),
		UploadedBy:  uuid.New(),
		MaxBytes:    4,
	})
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("want ErrUploadTooLarge, got %v", err)
	}
}

func TestPreviewFromBytes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// CS/100/02 is on exeat over the gathering date.
	testutil.SeedExeat(t, ctx, h.tx, h.students[1].ID,
		time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC))

	out, err := Preview(ctx, h.previewDeps(t), PreviewInput{
		GatheringID: h.gathering.ID,
		LevelID:     h.level.ID,
		Filename:    "export.csv",
		FileBytes:   []byte(exportCSV),
	})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(out.Matched) != 1 || out.Matched[0].ExternalID != "CS/100/01" {
		t.Fatalf("matched: %+v", out.Matched)
	}
	if len(out.Unmatched) != 1 || out.Unmatched[0].Reason != reconcile.ReasonNotInRoster {
		t.Fatalf("unmatched: %+v", out.Unmatched)
	}
	if out.Summary.Total != 2 || out.Summary.MatchedCount != 1 || out.Summary.UnmatchedCount != 1 {
		t.Fatalf("summary: %+v", out.Summary)
	}
	if out.GatheringLocked {
		t.Fatalf("gathering should not be locked")
	}
}

func TestPreviewUnknownLevel(t *testing.T) {
	h := newHarness(t)
	_, err := Preview(context.Background(), h.previewDeps(t), PreviewInput{
		GatheringID: h.gathering.ID,
		LevelID:     uuid.New(),
		FileBytes:   []byte(exportCSV),
	})
	if !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("want ErrUnknownLevel, got %v", err)
	}
}

func TestCommitVersionsAndPartitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	testutil.SeedExeat(t, ctx, h.tx, h.students[1].ID,
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	reg, err := RegisterUpload(ctx, h.registerDeps(t), RegisterUploadInput{
		GatheringID: h.gathering.ID,
		LevelID:     h.level.ID,
		Filename:    "export.csv",
		FileBytes:   []byte(exportCSV),
		UploadedBy:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("RegisterUpload: %v", err)
	}

	out, err := Commit(ctx, h.commitDeps(t), CommitInput{UploadID: reg.UploadID})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if out.Version != 1 {
		t.Fatalf("version: got %d want 1", out.Version)
	}
	if out.RecordsProcessed != 2 || out.MatchedCount != 1 || out.UnmatchedCount != 1 {
		t.Fatalf("counts: %+v", out)
	}

	// The four partitions exist and carry the reconciliation.
	wantPrefix := keys.BatchPrefix(h.gathering.ScheduledDate, h.gathering.ID, h.level.Code)
	present := readRecords(t, h.bucket, out.StoragePaths[keys.PartitionPresent])
	absent := readRecords(t, h.bucket, out.StoragePaths[keys.PartitionAbsent])
	exempt := readRecords(t, h.bucket, out.StoragePaths[keys.PartitionExempt])
	if !strings.HasPrefix(out.StoragePaths[keys.PartitionPresent], wantPrefix) {
		t.Fatalf("present path %q lacks prefix %q", out.StoragePaths[keys.PartitionPresent], wantPrefix)
	}
	if len(present) != 1 || present[0].ExternalID != "CS/100/01" {
		t.Fatalf("present partition: %+v", present)
	}
	if len(absent) != 1 || absent[0].ExternalID != "CS/100/03" {
		t.Fatalf("absent partition: %+v", absent)
	}
	if len(exempt) != 1 || exempt[0].ExternalID != "CS/100/02" {
		t.Fatalf("exempt partition: %+v", exempt)
	}

	dbc := dbctx.Context{Ctx: ctx, Tx: h.tx}
	batch, err := h.batches.GetByID(dbc, out.BatchID)
	if err != nil || batch == nil {
		t.Fatalf("batch row: %v %v", batch, err)
	}
	issues, err := h.issues.ListByBatch(dbc, out.BatchID)
	if err != nil || len(issues) != 1 {
		t.Fatalf("issue rows: n=%d err=%v", len(issues), err)
	}
	if issues[0].IssueType != types.IssueTypeUnmatchedStudent || issues[0].Resolved {
		t.Fatalf("issue row: %+v", issues[0])
	}

	// Second commit of the same upload: next version, same canonical paths.
	again, err := Commit(ctx, h.commitDeps(t), CommitInput{UploadID: reg.UploadID})
	if err != nil {
		t.Fatalf("Commit again: %v", err)
	}
	if again.Version != 2 {
		t.Fatalf("second version: got %d want 2", again.Version)
	}
	if again.BatchID == out.BatchID {
		t.Fatalf("second commit reused batch id")
	}
	if again.StoragePaths[keys.PartitionPresent] != out.StoragePaths[keys.PartitionPresent] {
		t.Fatalf("canonical path changed across versions")
	}
}

func TestCommitLockedGathering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg, err := RegisterUpload(ctx, h.registerDeps(t), RegisterUploadInput{
		GatheringID: h.gathering.ID,
		LevelID:     h.level.ID,
		Filename:    "export.csv",
		FileBytes:   []byte(exportCSV),
		UploadedBy:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("RegisterUpload: %v", err)
	}
	if _, err := Commit(ctx, h.commitDeps(t), CommitInput{UploadID: reg.UploadID, RejectLocked: true}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	dbc := dbctx.Context{Ctx: ctx, Tx: h.tx}
	if err := h.gatherings.MarkLocked(dbc, h.gathering.ID); err != nil {
		t.Fatalf("MarkLocked: %v", err)
	}

	// Corrections of the committed upload still version up.
	again, err := Commit(ctx, h.commitDeps(t), CommitInput{UploadID: reg.UploadID, RejectLocked: true})
	if err != nil {
		t.Fatalf("recommit under lock: %v", err)
	}
	if again.Version != 2 {
		t.Fatalf("recommit version: %d", again.Version)
	}

	// A different file is a first-time ingest and is refused.
	reg2, err := RegisterUpload(ctx, h.registerDeps(t), RegisterUploadInput{
		GatheringID: h.gathering.ID,
		LevelID:     h.level.ID,
		Filename:    "export2.csv",
		FileBytes:   []byte(exportCSV + "CS/100/03,Late Row,100\n"),
		UploadedBy:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("RegisterUpload second file: %v", err)
	}
	if _, err := Commit(ctx, h.commitDeps(t), CommitInput{UploadID: reg2.UploadID, RejectLocked: true}); !errors.Is(err, ErrGatheringLocked) {
		t.Fatalf("want ErrGatheringLocked, got %v", err)
	}
	// Policy off: the same commit goes through.
	if _, err := Commit(ctx, h.commitDeps(t), CommitInput{UploadID: reg2.UploadID}); err != nil {
		t.Fatalf("commit with policy off: %v", err)
	}
}

func TestCommitLevelNotEligible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg, err := RegisterUpload(ctx, h.registerDeps(t), RegisterUploadInput{
		GatheringID: h.gathering.ID,
		LevelID:     h.level.ID,
		Filename:    "export.csv",
		FileBytes:   []byte(exportCSV),
		UploadedBy:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("RegisterUpload: %v", err)
	}

	restricted := datatypes.JSON([]byte(fmt.Sprintf(`["%s"]`, uuid.New())))
	if err := h.tx.WithContext(ctx).Model(&types.Gathering{}).
		Where("id = ?", h.gathering.ID).
		Update("eligible_level_ids", restricted).Error; err != nil {
		t.Fatalf("restrict gathering: %v", err)
	}

	if _, err := Commit(ctx, h.commitDeps(t), CommitInput{UploadID: reg.UploadID}); !errors.Is(err, ErrLevelNotEligible) {
		t.Fatalf("want ErrLevelNotEligible, got %v", err)
	}
}

func readRecords(t *testing.T, bucket *memBucket, key string) []reconcile.Record {
	t.Helper()
	data, err := bucket.ReadAll(context.Background(), key)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	var out []reconcile.Record
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", key, err)
	}
	return out
}
