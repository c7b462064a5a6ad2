package testutil

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"

	"github.com/xuri/excelize/v2"
)

// LedgerHeader is the column order of a broker trade history export.
var LedgerHeader = []string{
	"取引番号", "取引銘柄", "HIGH/LOW", "取引オプション",
	"日付", "判定レート", "終了時刻", "レート",
	"購入金額", "ペイアウト",
}

// LedgerRow is one trade in export form. Amounts are raw cell text.
type LedgerRow struct {
	ID         string
	Instrument string
	Direction  string
	OpenedAt   string
	ClosedAt   string
	Stake      string
	Payout     string
}

func (r LedgerRow) cells() []string {
	return []string{
		r.ID, r.Instrument, r.Direction, "30秒",
		r.OpenedAt, "150.123", r.ClosedAt, "150.456",
		r.Stake, r.Payout,
	}
}

// Trade builds a 30 second trade opened at 2024-01-15 hh:mm:00 with a
// ¥1,000 stake.
func Trade(id, instrument, direction string, hh, mm int, payout int) LedgerRow {
	return LedgerRow{
		ID:         id,
		Instrument: instrument,
		Direction:  direction,
		OpenedAt:   fmt.Sprintf("2024-01-15T%02d:%02d:00", hh, mm),
		ClosedAt:   fmt.Sprintf("2024-01-15T%02d:%02d:30", hh, mm),
		Stake:      "¥1,000",
		Payout:     fmt.Sprintf("¥%d", payout),
	}
}

// LedgerCSV renders rows as a UTF-8 CSV export with a byte order mark.
func LedgerCSV(t testing.TB, rows ...LedgerRow) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("\uFEFF")
	w := csv.NewWriter(&buf)
	if err := w.Write(LedgerHeader); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, r := range rows {
		if err := w.Write(r.cells()); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush csv: %v", err)
	}
	return buf.Bytes()
}

// LedgerXLSX renders rows as a single-sheet workbook.
func LedgerXLSX(t testing.TB, rows ...LedgerRow) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	write := func(line int, cells []string) {
		values := make([]interface{}, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &values); err != nil {
			t.Fatalf("write sheet row %d: %v", line, err)
		}
	}
	write(1, LedgerHeader)
	for i, r := range rows {
		write(i+2, r.cells())
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}
