// Package table reads uploaded CSV and Excel files into a code-keyed table
// of raw data columns.
package table

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/regionmap/internal/geography"
	"github.com/sells-group/regionmap/internal/series"
)

// Table is an uploaded dataset: the first column holds region codes and every
// further column is a data series. Tables are never modified after Read.
type Table struct {
	Name   string     `json:"name"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"-"`
	// Fingerprint identifies the uploaded bytes.
	Fingerprint string `json:"fingerprint"`
}

var zipMagic = []byte("PK\x03\x04")

// Read parses an upload, choosing CSV or XLSX from the file name and, when
// the extension is unknown, from the content.
func Read(name string, data []byte) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, uploadError(KindEmpty, name, "", nil)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return ReadCSV(name, data)
	case ".xlsx", ".xlsm":
		return ReadXLSX(name, data, "")
	case ".xls", ".ods", ".numbers":
		return nil, uploadError(KindUnsupportedFormat, name, filepath.Ext(name), nil)
	}
	if bytes.HasPrefix(data, zipMagic) {
		return ReadXLSX(name, data, "")
	}
	return ReadCSV(name, data)
}

// ReadCSV parses comma, semicolon or tab separated text.
func ReadCSV(name string, data []byte) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, uploadError(KindEmpty, name, "", nil)
	}
	text, err := decodeText(data)
	if err != nil {
		return nil, uploadError(KindEncoding, name, "", err)
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, uploadError(KindMalformed, name, "", err)
		}
		records = append(records, record)
	}
	return build(name, data, records)
}

// ReadXLSX parses a workbook. An empty sheet name selects the first sheet.
func ReadXLSX(name string, data []byte, sheetName string) (*Table, error) {
	if len(data) == 0 {
		return nil, uploadError(KindEmpty, name, "", nil)
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, uploadError(KindMalformed, name, "xlsx", err)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, uploadError(KindMalformed, name, fmt.Sprintf("sheet %q not found", sheetName), nil)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, uploadError(KindEmpty, name, "workbook has no sheets", nil)
		}
		sheet = f.Sheets[0]
	}

	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			records = append(records, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			if cell != nil {
				cells[j] = cell.String()
			}
		}
		records = append(records, cells)
	}
	return build(name, data, records)
}

// sniffDelimiter picks the separator occurring most often in the first line.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// build trims cells, drops blank rows, pads rows to the header width and
// validates the shape.
func build(name string, raw []byte, records [][]string) (*Table, error) {
	var rows [][]string
	for _, rec := range records {
		blank := true
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
			if rec[i] != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, rec)
		}
	}
	if len(rows) == 0 {
		return nil, uploadError(KindEmpty, name, "", nil)
	}

	header := trimTrailingEmpty(rows[0])
	if len(header) < 2 {
		return nil, uploadError(KindNoDataColumns, name, fmt.Sprintf("%d column(s)", len(header)), nil)
	}
	for i, h := range header {
		if h == "" {
			header[i] = fmt.Sprintf("Column %d", i+1)
		}
	}

	data := make([][]string, 0, len(rows)-1)
	for _, rec := range rows[1:] {
		row := make([]string, len(header))
		copy(row, rec)
		if row[0] == "" {
			continue
		}
		data = append(data, row)
	}
	if len(data) == 0 {
		return nil, uploadError(KindNoRows, name, "", nil)
	}

	sum := sha256.Sum256(raw)
	return &Table{
		Name:        name,
		Header:      header,
		Rows:        data,
		Fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

func trimTrailingEmpty(rec []string) []string {
	n := len(rec)
	for n > 0 && rec[n-1] == "" {
		n--
	}
	out := make([]string, n)
	copy(out, rec[:n])
	return out
}

// Columns returns the data column names.
func (t *Table) Columns() []string {
	return t.Header[1:]
}

// Codes returns the region code of every row.
func (t *Table) Codes() []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[0]
	}
	return out
}

// Detect resolves the geography levels present in the code column.
func (t *Table) Detect() (geography.Detection, error) {
	return geography.Detect(t.Codes())
}

// Filter returns a table holding only the rows whose code resolves to level.
// The receiver is not modified and the fingerprint is kept.
func (t *Table) Filter(level geography.Level) *Table {
	return &Table{
		Name:        t.Name,
		Header:      t.Header,
		Rows:        geography.FilterRows(t.Rows, level),
		Fingerprint: t.Fingerprint,
	}
}

// Series returns one series per data column, in column order.
func (t *Table) Series() []series.Series {
	codes := t.Codes()
	out := make([]series.Series, 0, len(t.Header)-1)
	for c := 1; c < len(t.Header); c++ {
		raw := make([]string, len(t.Rows))
		for i, row := range t.Rows {
			raw[i] = row[c]
		}
		out = append(out, series.New(t.Header[c], codes, raw))
	}
	return out
}
