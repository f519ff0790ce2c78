// Package services implements the business logic behind the HTTP API.
// Handlers decode and validate requests into the DTOs defined here; services
// load observations from the store, run the panel computations, persist
// results and submit long-running work to the job queue.
//
// # Available Services
//
//	- AnalysisService: zn-scores, linear composites and historic volatility
//	  computed synchronously over stored observations
//	- SeriesService: queries of stored observations and tickers
//	- JobService: submission, inspection and cancellation of background jobs
//	- HealthService: liveness, readiness and runtime statistics
//
// # Job Runners
//
// DownloadRunner and AnalysisRunner implement operations.Runner. They are
// registered with the job queue under JobTypeDownload, JobTypeZnScores,
// JobTypeLinearComposite and JobTypeHistoricVol.
//
// # Error Handling
//
// Services return *errors.AppError values (validation, not found, download
// failures) which the HTTP layer maps onto RFC 7807 problem responses.
package services
