package dataprocessing

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SourceEncoding is the text encoding of a CSV ledger.
type SourceEncoding string

const (
	// EncodingAuto treats valid UTF-8 as UTF-8 and anything else as Shift_JIS.
	EncodingAuto     SourceEncoding = "auto"
	EncodingUTF8     SourceEncoding = "utf-8"
	EncodingShiftJIS SourceEncoding = "shift_jis"
)

// ErrEmptySource is returned for a source without a header line.
var ErrEmptySource = errors.New("source has no header row")

var zipMagic = []byte("PK\x03\x04")

// ReadSource parses one uploaded ledger. Workbooks are recognised by
// extension or by their zip signature; everything else is read as CSV.
func ReadSource(name string, data []byte, enc SourceEncoding) (Sheet, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".xlsx" || ext == ".xlsm" || bytes.HasPrefix(data, zipMagic) {
		return ReadXLSX(name, bytes.NewReader(data))
	}
	return ReadCSV(name, data, enc)
}

// ReadCSV parses a CSV ledger. A UTF-8 byte order mark is dropped.
func ReadCSV(name string, data []byte, enc SourceEncoding) (Sheet, error) {
	r, err := decodeText(data, enc)
	if err != nil {
		return Sheet{}, fmt.Errorf("%s: %w", name, err)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Sheet{}, fmt.Errorf("%s: read csv: %w", name, err)
		}
		// empty lines never reach Read, so keep each record's own line
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return buildSheet(name, records, lines)
}

// ReadXLSX parses the first worksheet of a workbook. Cell values are read
// raw, so date cells arrive as day serials.
func ReadXLSX(name string, r io.Reader) (Sheet, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return Sheet{}, fmt.Errorf("%s: open workbook: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, fmt.Errorf("%s: %w", name, ErrEmptySource)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Sheet{}, fmt.Errorf("%s: read sheet %q: %w", name, sheets[0], err)
	}
	return buildSheet(name, rows, nil)
}

func decodeText(data []byte, enc SourceEncoding) (io.Reader, error) {
	switch enc {
	case EncodingShiftJIS:
		return transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder()), nil
	case EncodingUTF8:
	case EncodingAuto, "":
		if !utf8.Valid(data) {
			return transform.NewReader(bytes.NewReader(data), japanese.ShiftJIS.NewDecoder()), nil
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
	return transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
}

// buildSheet takes the first non-blank record as the header. lines holds the
// 1-based source line of each record; nil means records are consecutive.
func buildSheet(name string, records [][]string, lines []int) (Sheet, error) {
	lineOf := func(i int) int {
		if lines == nil {
			return i + 1
		}
		return lines[i]
	}

	header := -1
	for i, rec := range records {
		if !blankRecord(rec) {
			header = i
			break
		}
	}
	if header < 0 {
		return Sheet{}, fmt.Errorf("%s: %w", name, ErrEmptySource)
	}

	columns := make([]string, len(records[header]))
	for i, col := range records[header] {
		columns[i] = CleanHeader(col)
	}

	sheet := Sheet{Name: name, Columns: columns}
	for i := header + 1; i < len(records); i++ {
		rec := records[i]
		if blankRecord(rec) {
			continue
		}
		line := lineOf(i) - lineOf(header)
		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(rec) && col != "" {
				fields[col] = rec[i]
			}
		}
		sheet.Rows = append(sheet.Rows, RawRow{Source: name, Line: line, Fields: fields})
	}
	return sheet, nil
}

// CleanHeader strips byte order marks, zero-width characters and spaces
// that spreadsheet exports leave around column names.
func CleanHeader(col string) string {
	col = strings.TrimSpace(col)
	col = strings.Trim(col, "\u200B\u200C\u200D\u2060\uFEFF")
	return strings.TrimSpace(col)
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
