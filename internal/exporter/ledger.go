package exporter

import (
	"fmt"
	"io"
	"strconv"

	"tradelens/internal/dataprocessing"
	"tradelens/internal/validation"
	"tradelens/pkg/contracts/domain"
)

// Derived column headers appended after the ledger columns.
const (
	ColumnProfit         = "利益"
	ColumnOutcome        = "結果"
	ColumnOutcomeNumeric = "結果(数値)"
	ColumnWeekday        = "曜日"
	ColumnTimeBucket     = "時間帯"
	ColumnDuration       = "取引時間"
)

// DerivedColumns lists the derived headers in output order.
var DerivedColumns = []string{
	ColumnProfit,
	ColumnOutcome,
	ColumnOutcomeNumeric,
	ColumnWeekday,
	ColumnTimeBucket,
	ColumnDuration,
}

// LedgerCSVWriter renders trade records as a ledger CSV.
type LedgerCSVWriter struct {
	columns dataprocessing.Columns
	dates   *dataprocessing.DateResolver
}

// NewLedgerCSVWriter returns a writer using the given column names. Dates
// are formatted with the resolver's layout in its business zone, so a
// normalizer configured the same way reads them back unchanged.
func NewLedgerCSVWriter(columns dataprocessing.Columns, dates *dataprocessing.DateResolver) *LedgerCSVWriter {
	return &LedgerCSVWriter{columns: columns, dates: dates}
}

// Headers returns the ledger columns followed by DerivedColumns. Ignored
// ledger columns are kept, empty, so the file passes schema validation.
func (l *LedgerCSVWriter) Headers() []string {
	c := l.columns
	headers := []string{c.TradeID, c.Instrument, c.Direction, c.OpenedAt, c.ClosedAt, c.Stake, c.Payout}
	headers = append(headers, c.Ignored...)
	return append(headers, DerivedColumns...)
}

// Row renders one record in Headers order.
func (l *LedgerCSVWriter) Row(rec domain.TradeRecord) []string {
	row := []string{
		validation.SanitizeForFormulaInjection(rec.TradeID()),
		validation.SanitizeForFormulaInjection(rec.Instrument()),
		string(rec.Direction()),
		l.dates.Format(rec.OpenedAt()),
		l.dates.Format(rec.ClosedAt()),
		strconv.FormatInt(rec.Stake(), 10),
		strconv.FormatInt(rec.Payout(), 10),
	}
	for range l.columns.Ignored {
		row = append(row, "")
	}
	return append(row,
		strconv.FormatInt(rec.Profit(), 10),
		string(rec.Outcome()),
		strconv.Itoa(rec.Outcome().Numeric()),
		rec.Weekday().String(),
		rec.TimeBucket().Label(),
		rec.DurationBucket().Label(),
	)
}

// Write streams records to w with a UTF-8 byte order mark and header line.
func (l *LedgerCSVWriter) Write(w io.Writer, records []domain.TradeRecord) error {
	stream, err := NewStreamWriter(w, l.Headers(), true)
	if err != nil {
		return err
	}
	for i, rec := range records {
		if err := stream.WriteRecord(l.Row(rec)); err != nil {
			return fmt.Errorf("failed to write trade %d: %w", i, err)
		}
	}
	return stream.Flush()
}

// WriteFile writes records to path, creating its directory.
func (l *LedgerCSVWriter) WriteFile(path string, records []domain.TradeRecord) error {
	stream, err := CreateStreamWriter(path, l.Headers())
	if err != nil {
		return err
	}
	for i, rec := range records {
		if err := stream.WriteRecord(l.Row(rec)); err != nil {
			stream.Close()
			return fmt.Errorf("failed to write trade %d: %w", i, err)
		}
	}
	return stream.Close()
}
