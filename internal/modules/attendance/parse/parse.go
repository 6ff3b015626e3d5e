// Package parse materializes raw attendance exports (CSV or XLSX) into
// row records for reconciliation. The whole file is small enough to hold
// in memory; parsing is restartable and order-preserving.
//
// Failure is split by blast radius: a file whose tabular structure cannot
// be read at all yields a *Error and nothing else, while an individual row
// without a usable identifier comes through as a malformed row for the
// matcher to report. A bad row never aborts the batch.
package parse

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RowKind discriminates the row union produced by Rows.
type RowKind string

const (
	RowValid     RowKind = "valid"
	RowMalformed RowKind = "malformed"
)

// RawRow is one scan line lifted from an export. MatricNo and LevelCode are
// normalized for matching; everything else the file said about the row
// lives only in RawPayload, preserved verbatim for issue reporting.
type RawRow struct {
	RowNumber  int // 1-based position in the source file, header row included
	Kind       RowKind
	MatricNo   string // normalized identifier; empty iff Kind == RowMalformed
	LevelCode  string // declared cohort level, "" when the file has no level column
	FullName   string
	RawPayload map[string]string // original cells keyed by header
}

// Error is a file-level parse failure: the bytes could not be interpreted
// as tabular data. Nothing downstream of a *Error is persisted.
type Error struct {
	Format string // "csv" or "xlsx"
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Format, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Rows reads every data row of an export. The filename is only a format
// hint; the xlsx zip signature wins over the extension because export
// tools routinely lie about both.
func Rows(filename string, data []byte) ([]RawRow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &Error{Format: formatHint(filename, data), Reason: "empty file"}
	}

	var (
		table  []tableRow
		format string
		err    error
	)
	if isXLSX(filename, data) {
		format = "xlsx"
		table, err = xlsxTable(data)
	} else {
		format = "csv"
		table, err = csvTable(data)
	}
	if err != nil {
		return nil, &Error{Format: format, Reason: "unreadable tabular structure", Err: err}
	}

	return buildRows(format, table)
}

func formatHint(filename string, data []byte) string {
	if isXLSX(filename, data) {
		return "xlsx"
	}
	return "csv"
}

func isXLSX(filename string, data []byte) bool {
	if len(data) >= 4 && bytes.Equal(data[:4], []byte{'P', 'K', 0x03, 0x04}) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".xlsx")
}

// -------------------- table readers --------------------

// tableRow keeps the source line alongside the cells so issue reports can
// point at the row the uploader actually sees. encoding/csv drops blank
// lines from its record stream and quoted fields may span lines, so the
// record index alone is not the line number.
type tableRow struct {
	line  int
	cells []string
}

func csvTable(data []byte) ([]tableRow, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var out []tableRow
	for {
		record, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		out = append(out, tableRow{line: line, cells: record})
	}
}

func xlsxTable(data []byte) ([]tableRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	out := make([]tableRow, 0, len(rows))
	for i, cells := range rows {
		out = append(out, tableRow{line: i + 1, cells: cells})
	}
	return out, nil
}

// -------------------- row construction --------------------

func buildRows(format string, table []tableRow) ([]RawRow, error) {
	headerIdx := -1
	for i, row := range table {
		if !rowEmpty(row.cells) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, &Error{Format: format, Reason: "no header row"}
	}

	header := table[headerIdx].cells
	idCol, levelCol, nameCol := -1, -1, -1
	for i, cell := range header {
		switch key := headerKey(cell); {
		case identifierAliases[key] && idCol < 0:
			idCol = i
		case levelAliases[key] && levelCol < 0:
			levelCol = i
		case nameAliases[key] && nameCol < 0:
			nameCol = i
		}
	}
	if idCol < 0 {
		return nil, &Error{Format: format, Reason: "no recognizable identifier column"}
	}

	out := make([]RawRow, 0, len(table)-headerIdx-1)
	for _, row := range table[headerIdx+1:] {
		if rowEmpty(row.cells) {
			continue
		}

		rr := RawRow{
			RowNumber:  row.line,
			MatricNo:   NormalizeMatric(cellAt(row.cells, idCol)),
			RawPayload: payloadFor(header, row.cells),
		}
		if levelCol >= 0 {
			rr.LevelCode = NormalizeLevelCode(cellAt(row.cells, levelCol))
		}
		if nameCol >= 0 {
			rr.FullName = cleanCell(cellAt(row.cells, nameCol))
		}

		rr.Kind = RowValid
		if rr.MatricNo == "" {
			rr.Kind = RowMalformed
		}
		out = append(out, rr)
	}
	return out, nil
}

func payloadFor(header, row []string) map[string]string {
	payload := make(map[string]string, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		key := ""
		if i < len(header) {
			key = strings.TrimSpace(header[i])
		}
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		payload[key] = cell
	}
	return payload
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
