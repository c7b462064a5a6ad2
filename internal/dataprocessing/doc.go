// Package dataprocessing turns exported binary-options trade ledgers into
// canonical trade records and derives performance analytics from them.
//
// # Architecture
//
// The package is organized leaf-first:
//
// 1. Coercion: CoerceCurrencyInt reads amounts such as "¥1,000"
// 2. Dates: DateResolver reads escaped literals and spreadsheet day serials
// 3. Reader: ReadSource turns CSV (UTF-8 or Shift_JIS) and XLSX files into Sheets
// 4. Normalizer: validates headers, merges sheets and builds domain.TradeRecord values
// 5. Statistics: Summarize computes win rate, averages, streaks and drawdown
// 6. Grouping: Group aggregates records per category with zero-filled tables
//
// # Usage
//
//	sheet, err := dataprocessing.ReadSource("ledger.csv", data, dataprocessing.EncodingAuto)
//	if err != nil {
//	    return err
//	}
//	normalizer, err := dataprocessing.NewNormalizer(dataprocessing.DefaultNormalizerConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	result, err := normalizer.Normalize(ctx, sheet)
//	if err != nil {
//	    return err
//	}
//	stats := dataprocessing.Summarize(result.Records)
//	byWeekday, _ := dataprocessing.Group(result.Records, domain.GroupByWeekday)
//
// # Data Flow
//
//	Ledger file → Reader → Sheet → Normalizer → []domain.TradeRecord → Statistics / Grouping
//
// Statistics is order dependent and expects the ascending opening-time order
// Normalize returns. Grouping is a pure reduction and ignores order.
//
// # Error Handling
//
// Every failure keeps the context needed to fix the source file:
//
//   - *SchemaError: required columns missing; the batch is rejected before any row is read
//   - *MalformedFieldError: one cell could not be coerced
//   - *RowError: one row could not become a record; carries source, row, column and value
//   - *EmptyResultError: no record survived
//
// Row failures are handled by the configured RowErrorPolicy: RowErrorSkip
// drops the row and lists it in NormalizeResult.Dropped, RowErrorAbort fails
// the batch with the first *RowError.
package dataprocessing
