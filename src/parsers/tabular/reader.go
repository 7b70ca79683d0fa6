// Package tabular turns uploaded files into header-keyed rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/username/tradejournal/src/models"
)

const (
	FileTypeCSV  = "csv"
	FileTypeTSV  = "tsv"
	FileTypeXLSX = "xlsx"
	FileTypeXML  = "xml"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoHeader        = errors.New("no header row found")

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// Table is a parsed upload: the header row plus every data row.
type Table struct {
	FileType string       `json:"fileType"`
	Headers  []string     `json:"headers"`
	Rows     []models.Row `json:"-"`
}

// Sample returns at most n rows, used for detection and previews.
func (t *Table) Sample(n int) []models.Row {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// Slice returns rows [offset, offset+limit), clamped to the table.
func (t *Table) Slice(offset, limit int) []models.Row {
	if offset >= len(t.Rows) || limit <= 0 {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	end := offset + limit
	if end > len(t.Rows) {
		end = len(t.Rows)
	}
	return t.Rows[offset:end]
}

// DetectFileType picks the reader from the extension, then the content type,
// then the first bytes.
func DetectFileType(data []byte, filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FileTypeCSV
	case ".tsv":
		return FileTypeTSV
	case ".xlsx":
		return FileTypeXLSX
	case ".xml":
		return FileTypeXML
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "spreadsheetml"):
		return FileTypeXLSX
	case strings.Contains(ct, "xml"):
		return FileTypeXML
	case strings.Contains(ct, "tab-separated"):
		return FileTypeTSV
	case strings.Contains(ct, "csv"), strings.HasPrefix(ct, "text/"):
		return FileTypeCSV
	}
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	switch {
	case bytes.HasPrefix(trimmed, []byte("PK\x03\x04")):
		return FileTypeXLSX
	case bytes.HasPrefix(trimmed, []byte("<")):
		return FileTypeXML
	}
	return FileTypeCSV
}

// Read parses data according to its detected type.
func Read(data []byte, filename, contentType string) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	switch fileType := DetectFileType(data, filename, contentType); fileType {
	case FileTypeCSV, FileTypeTSV:
		t, err := ReadDelimited(data)
		if err != nil {
			return nil, err
		}
		if fileType == FileTypeTSV || t.FileType == FileTypeTSV {
			t.FileType = FileTypeTSV
		}
		return t, nil
	case FileTypeXLSX:
		return ReadXLSX(data)
	case FileTypeXML:
		return ReadFlexXML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

// ReadDelimited reads CSV-like text, sniffing the delimiter.
func ReadDelimited(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	delim := SniffDelimiter(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read delimited file: %w", err)
		}
		records = append(records, record)
	}

	t, err := fromRecords(records)
	if err != nil {
		return nil, err
	}
	t.FileType = FileTypeCSV
	if delim == '\t' {
		t.FileType = FileTypeTSV
	}
	return t, nil
}

// SniffDelimiter picks the candidate that splits the first lines into the
// same, largest number of fields. Comma wins when nothing is consistent.
func SniffDelimiter(data []byte) rune {
	lines := firstLines(data, 10)
	best, bestFields := ',', 1
	for _, d := range []rune{',', ';', '\t', '|'} {
		fields := -1
		consistent := true
		for _, line := range lines {
			n := strings.Count(line, string(d)) + 1
			if fields == -1 {
				fields = n
			} else if n != fields {
				consistent = false
				break
			}
		}
		if consistent && fields > bestFields {
			best, bestFields = d, fields
		}
	}
	return best
}

func firstLines(data []byte, n int) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	t, err := fromRecords(records)
	if err != nil {
		return nil, err
	}
	t.FileType = FileTypeXLSX
	return t, nil
}

// fromRecords uses the first non-empty record as the header row.
func fromRecords(records [][]string) (*Table, error) {
	start := -1
	for i, r := range records {
		if !blank(r) {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, ErrNoHeader
	}

	headers := uniqueHeaders(records[start])

	t := &Table{Headers: headers, Rows: []models.Row{}}
	for _, r := range records[start+1:] {
		if blank(r) {
			continue
		}
		row := make(models.Row, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(r) {
				row[h] = strings.TrimSpace(r[i])
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// uniqueHeaders trims headers and renames repeats to "Name_2", "Name_3" so
// every column keeps its own value in the row map.
func uniqueHeaders(record []string) []string {
	headers := make([]string, len(record))
	seen := make(map[string]bool, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		if h != "" && seen[h] {
			base := h
			for n := 2; seen[h]; n++ {
				h = fmt.Sprintf("%s_%d", base, n)
			}
		}
		seen[h] = true
		headers[i] = h
	}
	return headers
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
