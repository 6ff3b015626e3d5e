package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/campuschapel/attendance-backend/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedGathering(tb testing.TB, ctx context.Context, tx *gorm.DB, date time.Time) *types.Gathering {
	tb.Helper()
	g := &types.Gathering{
		ID:               uuid.New(),
		Title:            "Sunday Communion",
		Category:         types.GatheringCategoryCommunion,
		ScheduledDate:    date,
		StartTime:        "07:00",
		EligibleLevelIDs: datatypes.JSON([]byte("[]")),
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed gathering: %v", err)
	}
	return g
}

func SeedLevel(tb testing.TB, ctx context.Context, tx *gorm.DB, code string) *types.Level {
	tb.Helper()
	l := &types.Level{
		ID:          uuid.New(),
		Code:        code,
		DisplayName: code + " Level",
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed level: %v", err)
	}
	return l
}

func SeedStudent(tb testing.TB, ctx context.Context, tx *gorm.DB, levelID uuid.UUID, matricNo string) *types.Student {
	tb.Helper()
	s := &types.Student{
		ID:       uuid.New(),
		MatricNo: matricNo,
		FullName: fmt.Sprintf("Student %s", matricNo),
		Gender:   "F",
		LevelID:  levelID,
		Status:   types.StudentStatusActive,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed student: %v", err)
	}
	return s
}

func SeedExeat(tb testing.TB, ctx context.Context, tx *gorm.DB, studentID uuid.UUID, start, end time.Time) *types.Exeat {
	tb.Helper()
	e := &types.Exeat{
		ID:        uuid.New(),
		StudentID: studentID,
		StartDate: start,
		EndDate:   end,
		Status:    types.ExeatStatusActive,
		Reason:    "medical",
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed exeat: %v", err)
	}
	return e
}

func SeedUpload(tb testing.TB, ctx context.Context, tx *gorm.DB, gatheringID, levelID uuid.UUID, contentHash string) *types.Upload {
	tb.Helper()
	u := &types.Upload{
		ID:          uuid.New(),
		GatheringID: gatheringID,
		LevelID:     levelID,
		ContentHash: contentHash,
		StoragePath: "uploads/test/" + contentHash + ".csv",
		Filename:    "attendance.csv",
		UploadedBy:  uuid.New(),
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed upload: %v", err)
	}
	return u
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
