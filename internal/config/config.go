package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. MSY_SERVER_PORT.
const EnvPrefix = "MSY"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	DataQuery DataQueryConfig `yaml:"dataquery" envconfig:"DATAQUERY"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Export    ExportConfig    `yaml:"export" envconfig:"EXPORT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host             string        `yaml:"host" envconfig:"HOST"`
	Port             int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system paths configuration. Relative paths
// resolve against BaseDir, or the executable directory when BaseDir is empty.
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ExportsDir string `yaml:"exports_dir" envconfig:"EXPORTS_DIR"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// DataQueryConfig selects the DataQuery credentials and client tuning.
// With OAuth set, ClientID/ClientSecret or CredentialsFile are used;
// otherwise Username, Password, CertFile and KeyFile.
type DataQueryConfig struct {
	OAuth           bool          `yaml:"oauth" envconfig:"OAUTH"`
	ClientID        string        `yaml:"client_id" envconfig:"CLIENT_ID"`
	ClientSecret    string        `yaml:"client_secret" envconfig:"CLIENT_SECRET"`
	CredentialsFile string        `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	Username        string        `yaml:"username" envconfig:"USERNAME"`
	Password        string        `yaml:"password" envconfig:"PASSWORD"`
	CertFile        string        `yaml:"cert_file" envconfig:"CERT_FILE"`
	KeyFile         string        `yaml:"key_file" envconfig:"KEY_FILE"`
	BaseURL         string        `yaml:"base_url" envconfig:"BASE_URL"`
	TokenURL        string        `yaml:"token_url" envconfig:"TOKEN_URL"`
	ResourceID      string        `yaml:"resource_id" envconfig:"RESOURCE_ID"`
	BatchSize       int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	Concurrency     int           `yaml:"concurrency" envconfig:"CONCURRENCY"`
	Delay           time.Duration `yaml:"delay" envconfig:"DELAY"`
	MaxRetries      int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Proxy           string        `yaml:"proxy" envconfig:"PROXY"`
}

// StoreConfig selects the observation store.
type StoreConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"`
	DSN    string `yaml:"dsn" envconfig:"DSN"`
}

// TelemetryConfig toggles OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TracingEnabled bool    `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	SampleRate     float64 `yaml:"sample_rate" envconfig:"SAMPLE_RATE"`
}

// ExportConfig configures uploads of exported frames. An empty bucket
// disables S3.
type ExportConfig struct {
	S3Bucket string `yaml:"s3_bucket" envconfig:"S3_BUCKET"`
	S3Prefix string `yaml:"s3_prefix" envconfig:"S3_PREFIX"`
	S3Region string `yaml:"s3_region" envconfig:"S3_REGION"`
}

// Load builds the configuration from defaults, then the YAML file named by
// MSY_CONFIG_FILE (or the first config.yaml found), then MSY_* variables.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file
// keep their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Resolve returns the resolved paths for this configuration.
func (c *Config) Resolve() (*Paths, error) {
	base := c.Paths.BaseDir
	if base == "" {
		p, err := GetPaths()
		if err != nil {
			return nil, err
		}
		base = p.ExecutableDir
	}
	return NewPaths(base, c.Paths), nil
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("logging output must be stdout, file or both, got %q", c.Logging.Output)
	}
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	dq := c.DataQuery
	if dq.BatchSize < 1 || dq.BatchSize > 20 {
		return fmt.Errorf("dataquery batch size must be between 1 and 20, got %d", dq.BatchSize)
	}
	if dq.Concurrency < 1 {
		return fmt.Errorf("dataquery concurrency must be positive")
	}
	if dq.Delay < 0 || dq.MaxRetries < 0 {
		return fmt.Errorf("dataquery delay and max retries must not be negative")
	}

	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	c.Store.Driver = strings.ToLower(c.Store.Driver)

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be in [0, 1]")
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		filepath.Join("configs", "config.yaml"),
		filepath.Join("..", "configs", "config.yaml"),
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20, // 1MB
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: DefaultOperationTimeout,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: filepath.Join(DefaultLogsDir, "app.log"),
		},
		Paths: PathsConfig{
			DataDir:    DefaultDataDir,
			ExportsDir: DefaultExportsDir,
			LogsDir:    DefaultLogsDir,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      WebSocketPingPeriod,
			PongWait:        WebSocketPongWait,
		},
		DataQuery: DataQueryConfig{
			OAuth:           true,
			CredentialsFile: DefaultCredentialsFile,
			BatchSize:       20,
			Concurrency:     8,
			Delay:           300 * time.Millisecond,
			MaxRetries:      5,
			Timeout:         5 * time.Minute,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			MetricsEnabled: true,
			TraceExporter:  "stdout",
			SampleRate:     1,
		},
	}
}
