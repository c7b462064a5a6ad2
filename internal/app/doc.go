// Package app wires tradelens together and manages its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, YAML, .env, environment)
//	2. Initialize logging and OpenTelemetry
//	3. Build the ledger and health services
//	4. Set up middleware and routes
//	5. Configure the HTTP server
//
// # Routes
//
//	GET  /api/health, /api/health/ready, /api/health/live
//	GET  /api/version
//	POST /api/log
//	POST /api/ledger/analyze
//	POST /api/ledger/export
//	GET  /metrics
//
// # Usage
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return app.Run()
package app
