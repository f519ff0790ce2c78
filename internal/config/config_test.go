package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory so no config.yaml is found.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvPrefix+"_CONFIG_FILE", "")
	return dir
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.True(t, cfg.DataQuery.OAuth)
				assert.Equal(t, 20, cfg.DataQuery.BatchSize)
				assert.Equal(t, 300*time.Millisecond, cfg.DataQuery.Delay)
				assert.Equal(t, "memory", cfg.Store.Driver)
				assert.Equal(t, "json", cfg.Logging.Format)
			},
		},
		{
			name: "file overrides defaults",
			file: "server:\n  port: 9090\ndataquery:\n  batch_size: 10\n  client_id: file-id\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 10, cfg.DataQuery.BatchSize)
				assert.Equal(t, "file-id", cfg.DataQuery.ClientID)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			},
		},
		{
			name: "env overrides file",
			file: "server:\n  port: 9090\n",
			env: map[string]string{
				"MSY_SERVER_PORT":             "7070",
				"MSY_DATAQUERY_CLIENT_SECRET": "env-secret",
				"MSY_STORE_DRIVER":            "POSTGRES",
				"MSY_STORE_DSN":               "postgres://localhost/msy",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, "env-secret", cfg.DataQuery.ClientSecret)
				assert.Equal(t, "postgres", cfg.Store.Driver)
			},
		},
		{
			name:    "batch size above the API limit",
			env:     map[string]string{"MSY_DATAQUERY_BATCH_SIZE": "50"},
			wantErr: true,
		},
		{
			name:    "postgres without dsn",
			env:     map[string]string{"MSY_STORE_DRIVER": "postgres"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "server: [",
			wantErr: true,
		},
		{
			name:    "bad env value",
			env:     map[string]string{"MSY_SERVER_PORT": "eighty"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			if tt.file != "" {
				path := filepath.Join(dir, "custom.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o600))
				t.Setenv(EnvPrefix+"_CONFIG_FILE", path)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestGetConfigFilePath(t *testing.T) {
	dir := isolate(t)
	assert.Equal(t, "", getConfigFilePath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{}"), 0o600))
	assert.Equal(t, "config.yaml", getConfigFilePath())

	t.Setenv(EnvPrefix+"_CONFIG_FILE", "/etc/msy.yaml")
	assert.Equal(t, "/etc/msy.yaml", getConfigFilePath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"write timeout", func(c *Config) { c.Server.WriteTimeout = -time.Second }},
		{"origins", func(c *Config) { c.Security.AllowedOrigins = nil }},
		{"log output", func(c *Config) { c.Logging.Output = "console" }},
		{"batch size", func(c *Config) { c.DataQuery.BatchSize = 0 }},
		{"concurrency", func(c *Config) { c.DataQuery.Concurrency = 0 }},
		{"delay", func(c *Config) { c.DataQuery.Delay = -time.Millisecond }},
		{"store driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}

	cfg := Default()
	cfg.Logging.Format = "text"
	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", ServerConfig{Host: "127.0.0.1", Port: 8080}.Addr())
	assert.Equal(t, ":9000", ServerConfig{Port: 9000}.Addr())
}
