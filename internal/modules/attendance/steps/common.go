// Package steps holds the pipeline stages of attendance ingestion:
// RegisterUpload (hash and dedup gate), Preview (read-only reconciliation),
// and Commit (versioned batch persistence). Each step is a plain function
// over an explicit deps struct so stages compose and test independently.
package steps

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/campuschapel/attendance-backend/internal/data/repos"
	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/parse"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/reconcile"
	"github.com/campuschapel/attendance-backend/internal/platform/dbctx"
)

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}

// loadGatheringLevel resolves and gates the pair every stage works on.
func loadGatheringLevel(dbc dbctx.Context, gatherings repos.GatheringRepo, levels repos.LevelRepo, gatheringID, levelID uuid.UUID) (*types.Gathering, *types.Level, error) {
	gathering, err := gatherings.GetByID(dbc, gatheringID)
	if err != nil {
		return nil, nil, fmt.Errorf("load gathering: %w", err)
	}
	if gathering == nil {
		return nil, nil, ErrUnknownGathering
	}

	level, err := levels.GetByID(dbc, levelID)
	if err != nil {
		return nil, nil, fmt.Errorf("load level: %w", err)
	}
	if level == nil {
		return nil, nil, ErrUnknownLevel
	}

	eligible, err := gathering.LevelEligible(level.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("eligible levels for gathering %s: %w", gathering.ID, err)
	}
	if !eligible {
		return gathering, level, ErrLevelNotEligible
	}
	return gathering, level, nil
}

// lockGate rejects ingestion into a locked gathering unless the upload
// already owns a committed batch: corrections of an ingested upload mint a
// new version; a locked gathering only refuses first-time ingests.
func lockGate(dbc dbctx.Context, batches repos.BatchRepo, gathering *types.Gathering, reject bool, upload *types.Upload) error {
	if !reject || !gathering.LockedAfterIngestion {
		return nil
	}
	if upload == nil {
		return ErrGatheringLocked
	}
	prior, err := batches.LatestForUpload(dbc, upload.ID)
	if err != nil {
		return fmt.Errorf("probe prior batch: %w", err)
	}
	if prior == nil {
		return ErrGatheringLocked
	}
	return nil
}

// reconcileFile runs parse + roster fetch + exemption fetch + the pure
// matcher for one gathering/level pair. Store failures are fatal and keep
// their taxonomy; they must never degrade into an empty roster or an empty
// exemption set.
func reconcileFile(dbc dbctx.Context, students repos.StudentRepo, exeats repos.ExeatRepo, gathering *types.Gathering, level *types.Level, filename string, data []byte) (*reconcile.Result, int, error) {
	rows, err := parse.Rows(filename, data)
	if err != nil {
		return nil, 0, err
	}

	roster, err := students.GetActiveByLevelID(dbc, level.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRosterUnavailable, err)
	}
	exemptIDs, err := exeats.ActiveStudentIDsOn(dbc, level.ID, gathering.ScheduledDate)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrExeatUnavailable, err)
	}

	res, err := reconcile.Reconcile(rows, rosterMembers(roster), reconcile.ExemptSet(exemptIDs), level.Code)
	if err != nil {
		return nil, 0, err
	}
	return res, len(rows), nil
}

func rosterMembers(students []*types.Student) []reconcile.Member {
	out := make([]reconcile.Member, 0, len(students))
	for _, s := range students {
		if s == nil {
			continue
		}
		out = append(out, reconcile.Member{
			InternalID:  s.ID,
			ExternalID:  s.MatricNo,
			DisplayName: s.FullName,
			Gender:      s.Gender,
		})
	}
	return out
}

func issuePayload(u reconcile.Unmatched) []byte {
	return mustJSON(map[string]any{
		"row_number": u.RowNumber,
		"matric_no":  u.MatricNo,
		"cells":      u.RawPayload,
	})
}
