package config

import "time"

// Application constants
const (
	AppName    = "macrosynergy"
	AppVersion = "0.1.0"

	// Rate Limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// File Paths (relative to the base directory)
	DefaultDataDir         = "data"
	DefaultExportsDir      = "data/exports"
	DefaultLogsDir         = "logs"
	DefaultCredentialsFile = "client_credentials.json"

	// Operation Timeouts
	DefaultOperationTimeout = 2 * time.Hour
	DownloadJobTimeout      = 30 * time.Minute

	// Job Queue
	DefaultJobWorkers   = 2
	DefaultJobQueueSize = 100
)
