package reconcile

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/campuschapel/attendance-backend/internal/domain"
	"github.com/campuschapel/attendance-backend/internal/modules/attendance/parse"
)

func member(ext, name string) Member {
	return Member{InternalID: uuid.New(), ExternalID: ext, DisplayName: name, Gender: "F"}
}

func row(n int, matric, level string) parse.RawRow {
	r := parse.RawRow{
		RowNumber:  n,
		Kind:       parse.RowValid,
		MatricNo:   parse.NormalizeMatric(matric),
		LevelCode:  level,
		RawPayload: map[string]string{"Matric No": matric},
	}
	if r.MatricNo == "" {
		r.Kind = parse.RowMalformed
	}
	return r
}

func externalIDs(rs []Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ExternalID)
	}
	return out
}

func TestReconcileKnownAndUnknownRows(t *testing.T) {
	roster := []Member{member("CS/100/01", "Ada Obi"), member("CS/100/02", "Bola Ade")}
	rows := []parse.RawRow{row(2, "cs/100/01", "100"), row(3, "cs/100/03", "100")}

	res, err := Reconcile(rows, roster, nil, "100")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := externalIDs(res.Present); len(got) != 1 || got[0] != "CS/100/01" {
		t.Fatalf("present: %v", got)
	}
	if got := externalIDs(res.Absent); len(got) != 1 || got[0] != "CS/100/02" {
		t.Fatalf("absent: %v", got)
	}
	if len(res.Exempt) != 0 {
		t.Fatalf("exempt: %v", res.Exempt)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].Reason != ReasonNotInRoster || res.Unmatched[0].MatricNo != "CS/100/03" {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
	if res.Unmatched[0].Type != types.IssueTypeUnmatchedStudent {
		t.Fatalf("unmatched type: %s", res.Unmatched[0].Type)
	}
}

func TestReconcileEmptyFileSplitsRemainderByExemption(t *testing.T) {
	roster := []Member{member("CS/100/01", "Ada Obi"), member("CS/100/02", "Bola Ade")}
	exempt := ExemptSet([]uuid.UUID{roster[1].InternalID})

	res, err := Reconcile(nil, roster, exempt, "100")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(res.Present) != 0 {
		t.Fatalf("present: %v", res.Present)
	}
	if got := externalIDs(res.Absent); len(got) != 1 || got[0] != "CS/100/01" {
		t.Fatalf("absent: %v", got)
	}
	if got := externalIDs(res.Exempt); len(got) != 1 || got[0] != "CS/100/02" {
		t.Fatalf("exempt: %v", got)
	}
}

func TestReconcilePresenceBeatsExemption(t *testing.T) {
	roster := []Member{member("CS/100/01", "Ada Obi")}
	exempt := ExemptSet([]uuid.UUID{roster[0].InternalID})

	res, err := Reconcile([]parse.RawRow{row(2, "CS/100/01", "100")}, roster, exempt, "100")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(res.Present) != 1 || len(res.Exempt) != 0 || len(res.Absent) != 0 {
		t.Fatalf("partitions: present=%d exempt=%d absent=%d", len(res.Present), len(res.Exempt), len(res.Absent))
	}
}

func TestReconcilePartitionCompleteness(t *testing.T) {
	roster := []Member{
		member("CS/100/03", "Cee"),
		member("CS/100/01", "Ada"),
		member("CS/100/04", "Dee"),
		member("CS/100/02", "Bee"),
	}
	exempt := ExemptSet([]uuid.UUID{roster[2].InternalID})
	rows := []parse.RawRow{
		row(2, "cs/100/02", "100"),
		row(3, "unknown/99", "100"),
		row(4, "", ""),
	}

	res, err := Reconcile(rows, roster, exempt, "100")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	union := map[uuid.UUID]int{}
	for _, part := range [][]Record{res.Present, res.Absent, res.Exempt} {
		for _, r := range part {
			union[r.InternalID]++
		}
	}
	if len(union) != len(roster) {
		t.Fatalf("union covers %d members, roster has %d", len(union), len(roster))
	}
	for _, m := range roster {
		if union[m.InternalID] != 1 {
			t.Fatalf("member %s classified %d times", m.ExternalID, union[m.InternalID])
		}
	}

	// Two kinds of bad row, two unmatched entries, roster untouched by them.
	if len(res.Unmatched) != 2 {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
	if res.Unmatched[0].Reason != ReasonNotInRoster || res.Unmatched[1].Reason != ReasonMissingIdentifier {
		t.Fatalf("unmatched reasons: %q, %q", res.Unmatched[0].Reason, res.Unmatched[1].Reason)
	}

	// Sorted by matric for stable persistence.
	if got := externalIDs(res.Absent); !sortedAsc(got) {
		t.Fatalf("absent not sorted: %v", got)
	}
}

func TestReconcileDuplicateScan(t *testing.T) {
	roster := []Member{member("CS/100/01", "Ada Obi")}
	rows := []parse.RawRow{row(2, "CS/100/01", "100"), row(3, "cs/100/01 ", "100")}

	res, err := Reconcile(rows, roster, nil, "100")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(res.Present) != 1 {
		t.Fatalf("present: %+v", res.Present)
	}
	if len(res.Duplicates) != 1 || res.Duplicates[0].Type != types.IssueTypeDuplicateScan {
		t.Fatalf("duplicates: %+v", res.Duplicates)
	}
	if len(res.Unmatched) != 0 {
		t.Fatalf("duplicate leaked into unmatched: %+v", res.Unmatched)
	}
	if res.Duplicates[0].RowNumber != 3 {
		t.Fatalf("duplicate row number: %d", res.Duplicates[0].RowNumber)
	}
	if issues := res.Issues(); len(issues) != 1 || issues[0].Type != types.IssueTypeDuplicateScan {
		t.Fatalf("issues: %+v", issues)
	}
}

func TestReconcileLevelMismatch(t *testing.T) {
	roster := []Member{member("CS/100/01", "Ada Obi")}

	res, err := Reconcile([]parse.RawRow{row(2, "CS/100/01", "200")}, roster, nil, "100")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(res.Present) != 0 {
		t.Fatalf("mismatched row marked present: %+v", res.Present)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].Type != types.IssueTypeLevelMismatch {
		t.Fatalf("unmatched: %+v", res.Unmatched)
	}
	if want := "level mismatch: expected 100, got 200"; res.Unmatched[0].Reason != want {
		t.Fatalf("reason: %q", res.Unmatched[0].Reason)
	}
	if res.Unmatched[0].StudentID == nil || *res.Unmatched[0].StudentID != roster[0].InternalID {
		t.Fatalf("mismatch should carry the matched member id: %+v", res.Unmatched[0])
	}
	// The mismatched member still lands in the remainder.
	if got := externalIDs(res.Absent); len(got) != 1 || got[0] != "CS/100/01" {
		t.Fatalf("absent: %v", got)
	}
}

func TestLevelsEqualCoercion(t *testing.T) {
	cases := []struct {
		declared, expected string
		want               bool
	}{
		{"100", "100", true},
		{"100.0", "100", true},
		{" 100 ", "100", true},
		{"", "100", true},
		{"200", "100", false},
		{"ND1", "nd1", true},
		{"ND1", "ND2", false},
	}
	for _, c := range cases {
		if got := levelsEqual(c.declared, c.expected); got != c.want {
			t.Fatalf("levelsEqual(%q, %q): got %v want %v", c.declared, c.expected, got, c.want)
		}
	}
}

func TestReconcileRejectsRosterWithoutIdentifier(t *testing.T) {
	roster := []Member{{InternalID: uuid.New(), ExternalID: "  ", DisplayName: "Ghost"}}
	_, err := Reconcile(nil, roster, nil, "100")
	if err == nil || !strings.Contains(err.Error(), "no external identifier") {
		t.Fatalf("want contract violation, got %v", err)
	}
}

func sortedAsc(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i-1] > ss[i] {
			return false
		}
	}
	return true
}
