// Package exporter writes processed trade ledgers back out as CSV.
//
// LedgerCSVWriter renders normalized records in the ledger's own column
// layout followed by the derived columns, so the output can be uploaded
// again and normalizes to the same trades:
//
//	w := exporter.NewLedgerCSVWriter(cfg.Columns, normalizer.Dates())
//	err := w.Write(out, result.Records)
//
// Output starts with a UTF-8 byte order mark for spreadsheet applications.
// Free-text cells are escaped against formula injection.
package exporter
