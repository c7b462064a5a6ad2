package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tradelens/pkg/contracts/domain"
)

// RowErrorPolicy decides what a row that cannot be normalized does to its
// batch.
type RowErrorPolicy string

const (
	// RowErrorSkip drops the row, keeps going and reports it in the result.
	RowErrorSkip RowErrorPolicy = "skip"
	// RowErrorAbort fails the whole batch on the first bad row.
	RowErrorAbort RowErrorPolicy = "abort"
)

// Columns maps ledger header names to the fields of a trade. Ignored lists
// columns that must be present in the header but are not read.
type Columns struct {
	OpenedAt   string
	Stake      string
	Payout     string
	ClosedAt   string
	Instrument string
	Direction  string
	TradeID    string
	Ignored    []string
}

// DefaultColumns is the header of the broker's Japanese ledger export.
func DefaultColumns() Columns {
	return Columns{
		OpenedAt:   "日付",
		Stake:      "購入金額",
		Payout:     "ペイアウト",
		ClosedAt:   "終了時刻",
		Instrument: "取引銘柄",
		Direction:  "HIGH/LOW",
		TradeID:    "取引番号",
		Ignored:    []string{"判定レート", "レート", "取引オプション"},
	}
}

// Required returns every column a source header must contain, in ledger
// order.
func (c Columns) Required() []string {
	cols := []string{c.OpenedAt, c.Stake, c.Payout, c.ClosedAt}
	cols = append(cols, c.Ignored...)
	return append(cols, c.Instrument, c.Direction, c.TradeID)
}

// NormalizerConfig is everything the normalizer needs. It is passed in
// explicitly; nothing is read from globals.
type NormalizerConfig struct {
	Location   *time.Location
	DateLayout string
	Columns    Columns
	Policy     RowErrorPolicy
}

// DefaultNormalizerConfig returns the Asia/Tokyo ledger setup.
func DefaultNormalizerConfig() NormalizerConfig {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.FixedZone("JST", 9*60*60)
	}
	return NormalizerConfig{
		Location:   loc,
		DateLayout: DefaultDateLayout,
		Columns:    DefaultColumns(),
		Policy:     RowErrorSkip,
	}
}

// RawRow is one ledger line as read: header name to cell text. Line is the
// 1-based data row number within Source, counted from the header with blank
// lines included.
type RawRow struct {
	Source string
	Line   int
	Fields map[string]string
}

// Sheet is one parsed source: its cleaned header and its data rows.
type Sheet struct {
	Name    string
	Columns []string
	Rows    []RawRow
}

// NormalizeResult is the canonical trade sequence of a batch, sorted by
// opening time, together with what was dropped on the way.
type NormalizeResult struct {
	Records  []domain.TradeRecord
	Dropped  []*RowError
	Sources  []string
	RowsRead int
}

// Normalizer turns raw ledger rows into trade records.
type Normalizer struct {
	cfg    NormalizerConfig
	dates  *DateResolver
	logger *slog.Logger
}

// NewNormalizer validates cfg and builds a normalizer.
func NewNormalizer(cfg NormalizerConfig, logger *slog.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Policy {
	case "":
		cfg.Policy = RowErrorSkip
	case RowErrorSkip, RowErrorAbort:
	default:
		return nil, fmt.Errorf("unknown row error policy %q", cfg.Policy)
	}
	if cfg.Columns.OpenedAt == "" {
		cfg.Columns = DefaultColumns()
	}
	dates, err := NewDateResolver(cfg.DateLayout, cfg.Location)
	if err != nil {
		return nil, err
	}
	cfg.DateLayout = dates.Layout()
	return &Normalizer{
		cfg:    cfg,
		dates:  dates,
		logger: logger.With(slog.String("component", "normalizer")),
	}, nil
}

// Config returns the effective configuration.
func (n *Normalizer) Config() NormalizerConfig { return n.cfg }

// Dates returns the resolver used for timestamp cells.
func (n *Normalizer) Dates() *DateResolver { return n.dates }

// ValidateSchema checks that sheet's header holds every required column.
func (n *Normalizer) ValidateSchema(sheet Sheet) error {
	present := make(map[string]bool, len(sheet.Columns))
	for _, c := range sheet.Columns {
		present[c] = true
	}
	var missing []string
	for _, c := range n.cfg.Columns.Required() {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Source: sheet.Name, Missing: missing, Present: sheet.Columns}
	}
	return nil
}

// MergeSheets concatenates the rows of sheets in the order given. Rows are
// not de-duplicated.
func MergeSheets(sheets ...Sheet) []RawRow {
	total := 0
	for _, s := range sheets {
		total += len(s.Rows)
	}
	rows := make([]RawRow, 0, total)
	for _, s := range sheets {
		rows = append(rows, s.Rows...)
	}
	return rows
}

// Normalize validates every sheet header, merges the sheets and converts
// each row. Schema failures stop the batch before any row is read. Row
// failures follow the configured policy. When no record survives the
// returned error is an *EmptyResultError and the result is still returned.
func (n *Normalizer) Normalize(ctx context.Context, sheets ...Sheet) (*NormalizeResult, error) {
	result := &NormalizeResult{Records: []domain.TradeRecord{}}
	for _, sheet := range sheets {
		if err := n.ValidateSchema(sheet); err != nil {
			n.logger.WarnContext(ctx, "ledger schema rejected",
				slog.String("source", sheet.Name),
				slog.String("error", err.Error()))
			return nil, err
		}
		result.Sources = append(result.Sources, sheet.Name)
	}

	rows := MergeSheets(sheets...)
	result.RowsRead = len(rows)
	result.Records = make([]domain.TradeRecord, 0, len(rows))

	for i, row := range rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, rowErr := n.normalizeRow(row)
		if rowErr != nil {
			if err := n.handleRowError(ctx, result, rowErr); err != nil {
				return nil, err
			}
			continue
		}
		result.Records = append(result.Records, rec)
	}

	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].OpenedAt().Before(result.Records[j].OpenedAt())
	})

	n.logger.InfoContext(ctx, "ledger normalized",
		slog.Int("sources", len(result.Sources)),
		slog.Int("rows_read", result.RowsRead),
		slog.Int("records", len(result.Records)),
		slog.Int("dropped", len(result.Dropped)))

	if len(result.Records) == 0 {
		return result, &EmptyResultError{Sources: result.Sources, RowsRead: result.RowsRead, Dropped: len(result.Dropped)}
	}
	return result, nil
}

// handleRowError is the only place a failed row is dealt with, so both
// policies behave the same everywhere.
func (n *Normalizer) handleRowError(ctx context.Context, result *NormalizeResult, rowErr *RowError) error {
	if n.cfg.Policy == RowErrorAbort {
		n.logger.ErrorContext(ctx, "row rejected, aborting batch",
			slog.String("source", rowErr.Source),
			slog.Int("row", rowErr.Row),
			slog.String("column", rowErr.Column),
			slog.String("error", rowErr.Cause.Error()))
		return rowErr
	}
	n.logger.WarnContext(ctx, "row dropped",
		slog.String("source", rowErr.Source),
		slog.Int("row", rowErr.Row),
		slog.String("column", rowErr.Column),
		slog.String("value", rowErr.Value),
		slog.String("error", rowErr.Cause.Error()))
	result.Dropped = append(result.Dropped, rowErr)
	return nil
}

func (n *Normalizer) normalizeRow(row RawRow) (domain.TradeRecord, *RowError) {
	cols := n.cfg.Columns
	fail := func(column string, cause error) *RowError {
		return &RowError{Source: row.Source, Row: row.Line, Column: column, Value: row.Fields[column], Cause: cause}
	}

	stake, err := CoerceCurrencyInt(cols.Stake, row.Fields[cols.Stake])
	if err != nil {
		return domain.TradeRecord{}, fail(cols.Stake, err)
	}
	payout, err := CoerceCurrencyInt(cols.Payout, row.Fields[cols.Payout])
	if err != nil {
		return domain.TradeRecord{}, fail(cols.Payout, err)
	}
	openedAt, err := n.dates.Resolve(cols.OpenedAt, row.Fields[cols.OpenedAt])
	if err != nil {
		return domain.TradeRecord{}, fail(cols.OpenedAt, err)
	}
	closedAt, err := n.dates.Resolve(cols.ClosedAt, row.Fields[cols.ClosedAt])
	if err != nil {
		return domain.TradeRecord{}, fail(cols.ClosedAt, err)
	}
	direction, err := domain.ParseDirection(row.Fields[cols.Direction])
	if err != nil {
		return domain.TradeRecord{}, fail(cols.Direction, &MalformedFieldError{
			Column: cols.Direction,
			Value:  row.Fields[cols.Direction],
			Kind:   KindDirection,
			Reason: "expected HIGH or LOW",
		})
	}

	rec, err := domain.NewTradeRecord(domain.TradeInput{
		TradeID:    unescapeCell(row.Fields[cols.TradeID]),
		OpenedAt:   openedAt,
		ClosedAt:   closedAt,
		Instrument: unescapeCell(row.Fields[cols.Instrument]),
		Direction:  direction,
		Stake:      stake,
		Payout:     payout,
	})
	if err != nil {
		return domain.TradeRecord{}, fail(cols.ClosedAt, err)
	}
	return rec, nil
}
