// Package http implements the HTTP handlers of tradelens. Handlers are a
// thin layer over the services package: they parse the request, call the
// service and format the response.
//
// # Endpoints
//
//	POST /api/ledger/analyze   multipart "files", optional ?group=hour,weekday
//	POST /api/ledger/export    multipart "files", optional ?filename=name
//	GET  /api/health           liveness, /ready and /live below it
//	GET  /api/version          build information
//	POST /api/log              client-side log entries
//	GET  /metrics              Prometheus exposition
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → dataprocessing
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Error Handling
//
// All errors follow RFC 7807 Problem Details and are rendered by
// errors.ErrorHandler. Ledger failures carry extensions describing the
// offending source, row, column and value:
//
//	{
//	    "type": "/errors/ledger/missing-columns",
//	    "title": "Missing Required Columns",
//	    "status": 422,
//	    "detail": "...",
//	    "instance": "/api/ledger/analyze",
//	    "missing_columns": ["日付"],
//	    "present_columns": ["id", "amount"]
//	}
//
// A batch in which no trade survives returns 422 with the empty summary
// attached as the "summary" extension.
//
// # Testing
//
// Handlers are tested with httptest against a testify mock of
// LedgerServiceInterface, and end to end against a real LedgerService fed
// with generated ledgers.
package http
