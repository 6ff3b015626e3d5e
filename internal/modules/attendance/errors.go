package attendance

import (
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/parse"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/steps"
)

// Pipeline sentinels re-exported so callers match on them without
// importing the steps package.
var (
	ErrUnknownGathering  = steps.ErrUnknownGathering
	ErrUnknownLevel      = steps.ErrUnknownLevel
	ErrUnknownUpload     = steps.ErrUnknownUpload
	ErrLevelNotEligible  = steps.ErrLevelNotEligible
	ErrGatheringLocked   = steps.ErrGatheringLocked
	ErrUploadTooLarge    = steps.ErrUploadTooLarge
	ErrRosterUnavailable = steps.ErrRosterUnavailable
	ErrExeatUnavailable  = steps.ErrExeatUnavailable
	ErrVersionConflict   = steps.ErrVersionConflict
)

// ParseError is the fatal file-level failure; match with errors.As on a
// *ParseError. Row-level problems never surface here.
type ParseError = parse.Error
