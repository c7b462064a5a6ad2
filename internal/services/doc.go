// Package services implements the business logic layer of tradelens. It
// sits between the HTTP handlers and the dataprocessing pipeline.
//
// # Available Services
//
//	- LedgerService: reads uploaded ledgers, normalizes them and computes
//	  summary statistics, grouping tables and CSV exports
//	- HealthService: liveness, readiness and version information
//
// # Ledger Pipeline
//
// LedgerService.Analyze runs one ingest-compute cycle:
//
//	uploads -> ReadSource (concurrent, order kept) -> Normalize
//	        -> Summarize + GroupAll -> Analysis
//
// Analyses are memoized in an in-process cache keyed by a digest of the
// pipeline configuration, the requested groups and the raw upload bytes.
// A cached Analysis is returned as a copy with Cached set.
//
// # Error Handling
//
// Upload problems are returned as *errors.AppError wrapping one of the
// sentinels in errors.go, so handlers can map them with errors.Is.
// Normalization errors from dataprocessing pass through unchanged.
package services
