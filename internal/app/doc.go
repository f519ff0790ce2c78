// Package app wires the QDF service together: configuration, logging and
// OpenTelemetry, the observation store, the DataQuery client, the job queue
// with its runners, the services and the HTTP router.
//
// # Initialization Flow
//
//	1. Load configuration from defaults, a YAML file and MSY_* variables
//	2. Initialize logging and observability
//	3. Open the observation store (memory or PostgreSQL)
//	4. Build the DataQuery client when credentials are available
//	5. Register the analysis and download job runners
//	6. Mount handlers and middleware on a chi router
//
// # Usage
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return app.Run()
//
// # Graceful Shutdown
//
// Run handles SIGINT and SIGTERM. Stop drains HTTP requests, cancels running
// jobs, disconnects WebSocket clients, closes the store and flushes
// telemetry. The package never calls os.Exit.
package app
