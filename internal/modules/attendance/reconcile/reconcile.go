// Package reconcile classifies every active roster member of one
// gathering/level pair into present, absent, or exempt, given the parsed
// rows of an export. It is pure in-memory computation: no I/O, no clock,
// no randomness. Callers resolve the roster and the exemption set first
// and must treat failures there as fatal; an unavailable exemption lookup
// fed in as an empty set would silently misclassify absentees.
package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/parse"
)

// Member is one active roster entry. ExternalID is the canonicalized
// matric number; matching trusts the member record, never the raw row,
// for authoritative fields.
type Member struct {
	InternalID  uuid.UUID
	ExternalID  string
	DisplayName string
	Gender      string
}

// Record is one classified roster member as persisted in the present,
// absent, and exempt partitions.
type Record struct {
	InternalID  uuid.UUID `json:"internalId"`
	ExternalID  string    `json:"externalId"`
	DisplayName string    `json:"displayName"`
	Gender      string    `json:"gender,omitempty"`
}

// Unmatched is a raw row that could not be cleanly reconciled, annotated
// with the reason and the original payload for review.
type Unmatched struct {
	RowNumber  int               `json:"rowNumber,omitempty"`
	Type       types.IssueType   `json:"type"`
	Reason     string            `json:"reason"`
	MatricNo   string            `json:"matricNo,omitempty"`
	StudentID  *uuid.UUID        `json:"studentId,omitempty"`
	RawPayload map[string]string `json:"rawPayload,omitempty"`
}

// Result partitions the roster. Present, Absent, and Exempt together cover
// every roster member exactly once. Duplicates are informational: repeat
// scans of a member already counted in Present.
type Result struct {
	Present    []Record
	Absent     []Record
	Exempt     []Record
	Unmatched  []Unmatched
	Duplicates []Unmatched
}

// Issues flattens the reviewable rows in persistence order: genuine
// unmatched rows first, then duplicate-scan notices.
func (r *Result) Issues() []Unmatched {
	out := make([]Unmatched, 0, len(r.Unmatched)+len(r.Duplicates))
	out = append(out, r.Unmatched...)
	out = append(out, r.Duplicates...)
	return out
}

const (
	ReasonMissingIdentifier = "missing identifier"
	ReasonNotInRoster       = "student not found in roster"
)

// Reconcile runs the matching pass and the remainder split in one
// interleaved computation, so a member is classified exactly once against
// a single snapshot of roster and exemptions.
//
// A roster member without an external identifier is a contract violation
// of the roster source and fails the whole call; it must not be silently
// skipped into the absent set.
func Reconcile(rows []parse.RawRow, roster []Member, exemptIDs map[uuid.UUID]bool, expectedLevelCode string) (*Result, error) {
	index := make(map[string]Member, len(roster))
	for _, m := range roster {
		ext := parse.NormalizeMatric(m.ExternalID)
		if ext == "" {
			return nil, fmt.Errorf("reconcile: roster member %s has no external identifier", m.InternalID)
		}
		index[ext] = m
	}

	res := &Result{
		Present:    []Record{},
		Absent:     []Record{},
		Exempt:     []Record{},
		Unmatched:  []Unmatched{},
		Duplicates: []Unmatched{},
	}

	seen := make(map[uuid.UUID]bool, len(rows))
	for _, row := range rows {
		if row.Kind == parse.RowMalformed || row.MatricNo == "" {
			res.Unmatched = append(res.Unmatched, Unmatched{
				RowNumber:  row.RowNumber,
				Type:       types.IssueTypeMissingIdentifier,
				Reason:     ReasonMissingIdentifier,
				RawPayload: row.RawPayload,
			})
			continue
		}

		m, ok := index[row.MatricNo]
		if !ok {
			res.Unmatched = append(res.Unmatched, Unmatched{
				RowNumber:  row.RowNumber,
				Type:       types.IssueTypeUnmatchedStudent,
				Reason:     ReasonNotInRoster,
				MatricNo:   row.MatricNo,
				RawPayload: row.RawPayload,
			})
			continue
		}

		if !levelsEqual(row.LevelCode, expectedLevelCode) {
			id := m.InternalID
			res.Unmatched = append(res.Unmatched, Unmatched{
				RowNumber:  row.RowNumber,
				Type:       types.IssueTypeLevelMismatch,
				Reason:     fmt.Sprintf("level mismatch: expected %s, got %s", expectedLevelCode, row.LevelCode),
				MatricNo:   row.MatricNo,
				StudentID:  &id,
				RawPayload: row.RawPayload,
			})
			continue
		}

		if seen[m.InternalID] {
			// Never a second present entry; surfaced for review only.
			id := m.InternalID
			res.Duplicates = append(res.Duplicates, Unmatched{
				RowNumber:  row.RowNumber,
				Type:       types.IssueTypeDuplicateScan,
				Reason:     fmt.Sprintf("duplicate scan for %s", m.ExternalID),
				MatricNo:   row.MatricNo,
				StudentID:  &id,
				RawPayload: row.RawPayload,
			})
			continue
		}

		seen[m.InternalID] = true
		res.Present = append(res.Present, recordFor(m))
	}

	for _, m := range roster {
		if seen[m.InternalID] {
			continue
		}
		if exemptIDs[m.InternalID] {
			res.Exempt = append(res.Exempt, recordFor(m))
		} else {
			res.Absent = append(res.Absent, recordFor(m))
		}
	}

	sortRecords(res.Present)
	sortRecords(res.Absent)
	sortRecords(res.Exempt)
	sortUnmatched(res.Unmatched)
	sortUnmatched(res.Duplicates)
	return res, nil
}

// ExemptSet builds the lookup Reconcile wants from a repository's ID list.
func ExemptSet(ids []uuid.UUID) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func recordFor(m Member) Record {
	return Record{
		InternalID:  m.InternalID,
		ExternalID:  m.ExternalID,
		DisplayName: m.DisplayName,
		Gender:      m.Gender,
	}
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ExternalID < rs[j].ExternalID })
}

func sortUnmatched(us []Unmatched) {
	sort.Slice(us, func(i, j int) bool { return us[i].RowNumber < us[j].RowNumber })
}

// levelsEqual compares a declared level code against the level the upload
// was registered for. Numeric codes are coerced before comparing, so
// "100", 100, and "100.0" all agree; non-numeric codes compare as folded
// strings. An empty declared code passes: many exports carry no level
// column at all, and the upload itself already names the level.
func levelsEqual(declared, expected string) bool {
	d := strings.TrimSpace(declared)
	if d == "" {
		return true
	}
	e := strings.TrimSpace(expected)
	if strings.EqualFold(d, e) {
		return true
	}
	dn, derr := strconv.ParseFloat(d, 64)
	en, eerr := strconv.ParseFloat(e, 64)
	return derr == nil && eerr == nil && dn == en
}
