// Package keys builds the deterministic blob-store paths for attendance
// objects. Batch partition paths are derived from exactly (gathering date,
// gathering ID, level code): re-commits overwrite the canonical objects
// while the relational batch rows keep the version history.
package keys

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PartitionPresent = "present"
	PartitionAbsent  = "absent"
	PartitionExempt  = "exempt"
	PartitionIssues  = "issues"

	batchRoot  = "batches"
	uploadRoot = "uploads"
)

// Partitions lists the four batch partitions in persistence order.
func Partitions() []string {
	return []string{PartitionPresent, PartitionAbsent, PartitionExempt, PartitionIssues}
}

// BatchPrefix is `batches/{yyyy-mm-dd}/{gatheringID}/{levelCode}`.
func BatchPrefix(date time.Time, gatheringID uuid.UUID, levelCode string) string {
	return path.Join(batchRoot, date.Format("2006-01-02"), gatheringID.String(), sanitizeSegment(levelCode))
}

// PartitionPath is BatchPrefix + `/{partition}.json`.
func PartitionPath(date time.Time, gatheringID uuid.UUID, levelCode, partition string) string {
	return path.Join(BatchPrefix(date, gatheringID, levelCode), partition+".json")
}

// RawUploadKey is the content-addressed home of an accepted raw file:
// `uploads/{gatheringID}/{levelCode}/{contentHash}{ext}`. The extension is
// carried over from the original filename so the stored object keeps its
// content type.
func RawUploadKey(gatheringID uuid.UUID, levelCode, contentHash, filename string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	switch ext {
	case ".csv", ".xlsx", ".txt":
	default:
		ext = ""
	}
	name := fmt.Sprintf("%s%s", strings.ToLower(strings.TrimSpace(contentHash)), ext)
	return path.Join(uploadRoot, gatheringID.String(), sanitizeSegment(levelCode), name)
}

// IngestLockKey names the advisory lock serializing same-pair ingests.
func IngestLockKey(gatheringID, levelID uuid.UUID) string {
	return fmt.Sprintf("attendance:ingest:%s:%s", gatheringID, levelID)
}

func sanitizeSegment(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
