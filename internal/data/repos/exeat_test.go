package repos

import (
	"context"
	"testing"
	"time"

	"github.com/campuschapel/attendance-backend/internal/data/repos/testutil"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
)

func TestExeatRepoActiveStudentIDsOn(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewExeatRepo(db, testutil.Logger(t))

	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	level := testutil.SeedLevel(t, ctx, tx, "100")
	otherLevel := testutil.SeedLevel(t, ctx, tx, "200")

	covered := testutil.SeedStudent(t, ctx, tx, level.ID, "CS/100/01")
	startsToday := testutil.SeedStudent(t, ctx, tx, level.ID, "CS/100/02")
	endsToday := testutil.SeedStudent(t, ctx, tx, level.ID, "CS/100/03")
	expired := testutil.SeedStudent(t, ctx, tx, level.ID, "CS/100/04")
	cancelled := testutil.SeedStudent(t, ctx, tx, level.ID, "CS/100/05")
	elsewhere := testutil.SeedStudent(t, ctx, tx, otherLevel.ID, "CS/200/01")

	testutil.SeedExeat(t, ctx, tx, covered.ID, day.AddDate(0, 0, -2), day.AddDate(0, 0, 2))
	// Range bounds are inclusive on both ends.
	testutil.SeedExeat(t, ctx, tx, startsToday.ID, day, day.AddDate(0, 0, 3))
	testutil.SeedExeat(t, ctx, tx, endsToday.ID, day.AddDate(0, 0, -3), day)
	testutil.SeedExeat(t, ctx, tx, expired.ID, day.AddDate(0, 0, -10), day.AddDate(0, 0, -1))
	testutil.SeedExeat(t, ctx, tx, elsewhere.ID, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))

	c := testutil.SeedExeat(t, ctx, tx, cancelled.ID, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	if err := repo.Cancel(dbc, c.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	ids, err := repo.ActiveStudentIDsOn(dbc, level.ID, day)
	if err != nil {
		t.Fatalf("ActiveStudentIDsOn: %v", err)
	}
	want := map[string]bool{
		covered.ID.String():     true,
		startsToday.ID.String(): true,
		endsToday.ID.String():   true,
	}
	if len(ids) != len(want) {
		t.Fatalf("exempt set: want %d ids, got %d (%v)", len(want), len(ids), ids)
	}
	for _, id := range ids {
		if !want[id.String()] {
			t.Fatalf("unexpected exempt student %s", id)
		}
	}

	rows, err := repo.GetByStudentID(dbc, covered.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByStudentID: err=%v len=%d", err, len(rows))
	}
}
