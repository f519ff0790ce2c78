package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"macrosynergy/internal/config"
)

func lastEntry(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := InitializeLogger(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())

	logger.Info("download finished", "observations", 42)
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	entry := lastEntry(t, content)
	assert.Equal(t, "download finished", entry["msg"])
	assert.Equal(t, float64(42), entry["observations"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestInitializeLogger_Once(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	cfg := config.LoggingConfig{Level: "info", Output: "stdout"}
	first, err := InitializeLogger(cfg)
	require.NoError(t, err)
	second, err := InitializeLogger(config.LoggingConfig{Level: "debug", Output: "stdout"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestNewLogger_TraceInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "debug"}, &buf)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(WithTraceID(context.Background(), "req-123"), sc)

	logger.InfoContext(ctx, "zn-scores computed")

	entry := lastEntry(t, buf.Bytes())
	assert.Equal(t, "req-123", entry["trace_id"])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", entry["otel_trace_id"])
	assert.Equal(t, "b7ad6b7169203331", entry["span_id"])
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level    string
		logged   []string
		expected string
	}{
		{"debug", []string{"DEBUG", "INFO"}, "INFO"},
		{"info", []string{"INFO", "WARN"}, "WARN"},
		{"warning", []string{"WARN"}, "WARN"},
		{"error", []string{"ERROR"}, "ERROR"},
		{"bogus", []string{"INFO"}, "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(config.LoggingConfig{Level: tt.level}, &buf)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			var levels []string
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var entry map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(line), &entry))
				levels = append(levels, entry["level"].(string))
			}
			assert.Subset(t, levels, tt.logged)
			assert.Contains(t, levels, tt.expected)
			if tt.level != "debug" {
				assert.NotContains(t, levels, "DEBUG")
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background())
	traceID := GetTraceID(ctx)
	assert.NotEmpty(t, traceID)

	assert.Equal(t, traceID, GetTraceID(EnsureTraceID(ctx)))
	assert.NotEmpty(t, GetTraceID(EnsureTraceID(context.Background())))
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "info"}, &buf)

	WithComponent(logger, "downloader").Info("component test")
	assert.Equal(t, "downloader", lastEntry(t, buf.Bytes())["component"])

	buf.Reset()
	WithError(logger, os.ErrNotExist).Info("error test")
	assert.Contains(t, lastEntry(t, buf.Bytes())["error"], "file does not exist")

	buf.Reset()
	WithFields(logger, map[string]interface{}{"cid": "AUD", "xcat": "FXXR_NSA"}).Info("fields test")
	entry := lastEntry(t, buf.Bytes())
	assert.Equal(t, "AUD", entry["cid"])
	assert.Equal(t, "FXXR_NSA", entry["xcat"])

	assert.Same(t, logger, WithError(logger, nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "info", cfg.Level)
}
