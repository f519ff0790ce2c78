package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/store"
)

// QueueStatsProvider reports job queue statistics. *operations.JobQueue
// implements it.
type QueueStatsProvider interface {
	GetQueueStats() map[string]interface{}
}

// ClientCounter reports connected WebSocket clients.
type ClientCounter interface {
	ClientCount() int
}

// ConnectionChecker probes the upstream data API.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) bool
}

// HealthDeps are the components a health check inspects. Nil fields are
// skipped.
type HealthDeps struct {
	Store    store.Store
	Jobs     QueueStatsProvider
	Hub      ClientCounter
	Upstream ConnectionChecker
	Runtime  *infrastructure.RuntimeCollector
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	deps      HealthDeps
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                       `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Version   string                       `json:"version"`
	Uptime    string                       `json:"uptime"`
	Runtime   *infrastructure.RuntimeStats `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth     `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

const (
	statusReady    = "ready"
	statusNotReady = "not_ready"
	statusDegraded = "degraded"
)

// NewHealthService creates a health service.
func NewHealthService(version, buildTime string, deps HealthDeps, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		deps:      deps,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status with runtime statistics.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := hs.status("ok")
	status.Runtime = hs.runtimeStats(ctx)
	return status
}

// ReadinessCheck probes each dependency. The upstream API only degrades
// readiness since stored data stays servable without it.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := hs.status(statusReady)
	status.Services = map[string]ServiceHealth{
		"store": hs.checkStore(ctx),
		"jobs":  hs.checkJobs(),
	}
	if hs.deps.Hub != nil {
		status.Services["websocket"] = ServiceHealth{
			Status:  statusReady,
			Details: map[string]interface{}{"clients": hs.deps.Hub.ClientCount()},
		}
	}
	if hs.deps.Upstream != nil {
		status.Services["dataquery"] = hs.checkUpstream(ctx)
	}

	for name, svc := range status.Services {
		switch svc.Status {
		case statusNotReady:
			status.Status = statusNotReady
		case statusDegraded:
			if status.Status == statusReady {
				status.Status = statusDegraded
			}
		}
		if svc.Status != statusReady {
			hs.logger.WarnContext(ctx, "dependency not ready",
				slog.String("service", name),
				slog.String("status", svc.Status),
				slog.String("message", svc.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return hs.status("alive")
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"start_time": hs.startTime.Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

// Ready reports whether the service can take traffic.
func (s HealthStatus) Ready() bool {
	return s.Status != statusNotReady
}

func (hs *HealthService) status(s string) HealthStatus {
	return HealthStatus{
		Status:    s,
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Uptime:    time.Since(hs.startTime).Round(time.Second).String(),
	}
}

func (hs *HealthService) runtimeStats(ctx context.Context) *infrastructure.RuntimeStats {
	if hs.deps.Runtime != nil {
		stats := hs.deps.Runtime.Collect(ctx)
		return &stats
	}
	return &infrastructure.RuntimeStats{
		Goroutines:    runtime.NumGoroutine(),
		CPUCount:      runtime.NumCPU(),
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		Timestamp:     time.Now().UTC(),
	}
}

func (hs *HealthService) checkStore(ctx context.Context) ServiceHealth {
	if hs.deps.Store == nil {
		return ServiceHealth{Status: statusNotReady, Message: "store not initialized"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	tickers, err := hs.deps.Store.Tickers(ctx)
	if err != nil {
		return ServiceHealth{Status: statusNotReady, Message: fmt.Sprintf("store error: %v", err)}
	}
	return ServiceHealth{Status: statusReady, Details: map[string]interface{}{"tickers": len(tickers)}}
}

func (hs *HealthService) checkJobs() ServiceHealth {
	if hs.deps.Jobs == nil {
		return ServiceHealth{Status: statusNotReady, Message: "job queue not initialized"}
	}
	return ServiceHealth{Status: statusReady, Details: hs.deps.Jobs.GetQueueStats()}
}

func (hs *HealthService) checkUpstream(ctx context.Context) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if !hs.deps.Upstream.CheckConnection(ctx) {
		return ServiceHealth{Status: statusDegraded, Message: "DataQuery heartbeat failed"}
	}
	return ServiceHealth{Status: statusReady}
}
