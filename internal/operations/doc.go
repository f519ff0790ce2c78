// Package operations runs long-lived work as asynchronous jobs.
//
// A JobQueue owns a fixed pool of workers fed by a bounded channel. Each job
// has a type; the queue dispatches it to the Runner registered for that type
// and records its lifecycle in a JobStore:
//
//	pending -> running -> completed | failed | cancelled
//
// Runners report progress through a callback. Every transition and progress
// report is persisted and broadcast to a WebSocketHub so clients can follow
// a job without polling. Jobs can be cancelled while pending or running;
// running jobs observe cancellation through their context.
//
// Panics inside a runner are recovered and turn the job into a failure.
package operations
