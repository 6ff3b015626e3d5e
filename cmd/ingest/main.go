package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/campuschapel/attendance-backend/internal/app"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/keys"
)

func main() {
	var (
		gatheringArg = flag.String("gathering", "", "gathering id the export belongs to")
		levelArg     = flag.String("level", "", "level id the export belongs to")
		fileArg      = flag.String("file", "", "path to the attendance export (.csv or .xlsx)")
		uploaderArg  = flag.String("uploader", "", "id of the person uploading")
		commitArg    = flag.Bool("commit", false, "persist the reconciliation as a batch; default is preview only")
		configArg    = flag.String("config", "", "YAML config overlay file (optional)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using system env")
	}

	gatheringID, err := uuid.Parse(strings.TrimSpace(*gatheringArg))
	if err != nil {
		fmt.Printf("invalid -gathering: %v\n", err)
		os.Exit(2)
	}
	levelID, err := uuid.Parse(strings.TrimSpace(*levelArg))
	if err != nil {
		fmt.Printf("invalid -level: %v\n", err)
		os.Exit(2)
	}
	uploadedBy, err := uuid.Parse(strings.TrimSpace(*uploaderArg))
	if err != nil {
		fmt.Printf("invalid -uploader: %v\n", err)
		os.Exit(2)
	}
	if strings.TrimSpace(*fileArg) == "" {
		fmt.Println("missing -file")
		os.Exit(2)
	}
	data, err := os.ReadFile(*fileArg)
	if err != nil {
		fmt.Printf("read %s: %v\n", *fileArg, err)
		os.Exit(1)
	}

	application, err := app.NewWithConfigFile(strings.TrimSpace(*configArg))
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()

	reg, err := application.Attendance.RegisterUpload(ctx, attendance.RegisterUploadInput{
		GatheringID: gatheringID,
		LevelID:     levelID,
		Filename:    filepath.Base(*fileArg),
		FileBytes:   data,
		UploadedBy:  uploadedBy,
	})
	if err != nil {
		exitWithIngestError("register upload", err)
	}
	if reg.IsDuplicate {
		fmt.Printf("file already uploaded for this gathering/level; reusing upload %s\n", reg.UploadID)
	} else {
		fmt.Printf("registered upload %s (sha256 %s)\n", reg.UploadID, reg.ContentHash)
	}

	if !*commitArg {
		preview, err := application.Attendance.Preview(ctx, attendance.PreviewInput{
			UploadID: reg.UploadID,
		})
		if err != nil {
			exitWithIngestError("preview", err)
		}
		printPreview(preview)
		return
	}

	out, err := application.Attendance.Commit(ctx, attendance.CommitInput{
		UploadID: reg.UploadID,
	})
	if err != nil {
		if out.BatchID != uuid.Nil {
			// The batch is durable; only the post-commit hook failed.
			fmt.Printf("batch %s committed as version %d, but: %v\n", out.BatchID, out.Version, err)
			os.Exit(1)
		}
		exitWithIngestError("commit", err)
	}
	fmt.Printf("committed batch %s as version %d\n", out.BatchID, out.Version)
	fmt.Printf("rows=%d matched=%d unmatched=%d\n", out.RecordsProcessed, out.MatchedCount, out.UnmatchedCount)
	for _, partition := range keys.Partitions() {
		fmt.Printf("  %s -> %s\n", partition, out.StoragePaths[partition])
	}
}

func printPreview(p attendance.PreviewOutput) {
	fmt.Printf("preview: total=%d matched=%d unmatched=%d\n",
		p.Summary.Total, p.Summary.MatchedCount, p.Summary.UnmatchedCount)
	if p.GatheringLocked {
		fmt.Println("note: gathering is locked; only re-commits of existing uploads are accepted")
	}
	for _, u := range p.Unmatched {
		if u.MatricNo != "" {
			fmt.Printf("  row %d: %s (matric_no=%s)\n", u.RowNumber, u.Reason, u.MatricNo)
			continue
		}
		fmt.Printf("  row %d: %s\n", u.RowNumber, u.Reason)
	}
	for _, d := range p.Duplicates {
		fmt.Printf("  row %d: %s (informational)\n", d.RowNumber, d.Reason)
	}
}

func exitWithIngestError(stage string, err error) {
	var parseErr *attendance.ParseError
	switch {
	case errors.As(err, &parseErr):
		fmt.Printf("%s: file is not parseable (%s): %s\n", stage, parseErr.Format, parseErr.Reason)
	case errors.Is(err, attendance.ErrUnknownGathering):
		fmt.Printf("%s: gathering does not exist\n", stage)
	case errors.Is(err, attendance.ErrUnknownLevel):
		fmt.Printf("%s: level does not exist\n", stage)
	case errors.Is(err, attendance.ErrLevelNotEligible):
		fmt.Printf("%s: level is not eligible for this gathering\n", stage)
	case errors.Is(err, attendance.ErrGatheringLocked):
		fmt.Printf("%s: gathering is locked for new ingests\n", stage)
	case errors.Is(err, attendance.ErrUploadTooLarge):
		fmt.Printf("%s: %v\n", stage, err)
	default:
		fmt.Printf("%s: %v\n", stage, err)
	}
	os.Exit(1)
}
