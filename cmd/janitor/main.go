package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/campuschapel/attendance-backend/internal/app"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
)

// A commit writes its four partition objects before inserting the batch
// row, so a crash between the two leaves objects no row points at. This
// tool lists the partition tree, keeps everything some batch references,
// and deletes the rest.
func main() {
	var (
		prefixArg = flag.String("prefix", "batches/", "object key prefix to sweep")
		dryRun    = flag.Bool("dry-run", false, "print orphaned objects without deleting")
		minAge    = flag.Duration("min-age", 10*time.Minute, "leave objects newer than this alone")
		configArg = flag.String("config", "", "YAML config overlay file (optional)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using system env")
	}

	application, err := app.NewWithConfigFile(strings.TrimSpace(*configArg))
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	listed, err := application.Bucket.ListKeys(ctx, *prefixArg)
	if err != nil {
		fmt.Printf("list objects under %q: %v\n", *prefixArg, err)
		os.Exit(1)
	}
	if len(listed) == 0 {
		fmt.Printf("no objects under %q\n", *prefixArg)
		return
	}

	referenced, err := application.Repos.Batch.ReferencedPaths(dbc, listed)
	if err != nil {
		fmt.Printf("load referenced paths: %v\n", err)
		os.Exit(1)
	}

	swept, recent := 0, 0
	for _, key := range listed {
		if _, ok := referenced[key]; ok {
			continue
		}
		attrs, err := application.Bucket.GetObjectAttrs(ctx, key)
		if err != nil {
			fmt.Printf("attrs %s: %v\n", key, err)
			continue
		}
		// A fresh object may belong to a commit still between its object
		// writes and the batch-row insert; leave it for the next sweep.
		if time.Since(attrs.Updated) < *minAge {
			recent++
			continue
		}
		if *dryRun {
			fmt.Printf("[dry-run] orphan %s\n", key)
			swept++
			continue
		}
		if err := application.Bucket.DeleteFile(dbc, key); err != nil {
			fmt.Printf("delete %s: %v\n", key, err)
			continue
		}
		fmt.Printf("deleted orphan %s\n", key)
		swept++
	}

	fmt.Printf("done; listed=%d referenced=%d orphans=%d skipped_recent=%d\n", len(listed), len(referenced), swept, recent)
}
