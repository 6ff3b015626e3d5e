package steps

import "errors"

// Pipeline failure taxonomy. Fatal conditions only; row-level problems are
// recorded as issues and never abort a batch. A duplicate upload is not an
// error either: RegisterUpload reports it as a normal outcome.
var (
	ErrUnknownGathering = errors.New("unknown gathering")
	ErrUnknownLevel     = errors.New("unknown level")
	ErrUnknownUpload    = errors.New("unknown upload")
	ErrLevelNotEligible = errors.New("level not eligible for gathering")
	ErrGatheringLocked  = errors.New("gathering locked after ingestion")
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")

	// Upstream stores failing must propagate; treating them as an empty
	// roster or an empty exemption set would misclassify absentees.
	ErrRosterUnavailable = errors.New("roster unavailable")
	ErrExeatUnavailable  = errors.New("exeat register unavailable")

	// Two commits raced on one upload's version number; the loser retries
	// with a fresh read instead of overwriting.
	ErrVersionConflict = errors.New("concurrent version conflict")
)
