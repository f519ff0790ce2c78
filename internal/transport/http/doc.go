// Package http implements the REST and WebSocket handlers of the QDF
// service. Handlers only parse and validate requests, call the services
// layer and render the result; errors are written as RFC 7807 problem
// details by errors.ErrorHandler.
//
// # Routes
//
//	GET    /health                          health with runtime statistics
//	GET    /health/live, /health/ready      probes
//	GET    /version                         build information
//	GET    /metrics                         Prometheus exposition
//	POST   /api/v1/panel/zn-scores          zn-scores (?async=true queues a job)
//	POST   /api/v1/panel/linear-composite   linear composite
//	POST   /api/v1/panel/historic-vol       historic volatility
//	POST   /api/v1/jobs/download            queue a JPMaQS download
//	GET    /api/v1/jobs                     list jobs
//	GET    /api/v1/jobs/{id}                job status
//	DELETE /api/v1/jobs/{id}                cancel a job
//	GET    /api/v1/series                   stored series by ticker, cid or xcat
//	GET    /api/v1/series/tickers           stored tickers
//	GET    /api/v1/exports                  exported frame files (?format=csv|xlsx)
//	GET    /api/v1/exports/latest           download the newest export
//	GET    /api/v1/exports/{name}           download an exported file
//	GET    /ws                              job events
//
// Handlers expose Routes for mounting on a chi router.
package http
