// Package shared holds helpers used by more than one package.
//
// The testutil subpackage provides a capturing slog handler for asserting on
// log output, and ledger fixtures that render trade rows as the CSV and XLSX
// exports the pipeline ingests:
//
//	data := testutil.LedgerCSV(t,
//	    testutil.Trade("T1", "USD/JPY", "HIGH", 9, 0, 1900),
//	    testutil.Trade("T2", "EUR/USD", "LOW", 9, 1, 0),
//	)
package shared
