package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains all the application paths
// This is the single source of truth for ALL file paths in the application
type Paths struct {
	ExecutableDir string
	DataDir       string
	ExportsDir    string
	CacheDir      string
	LogsDir       string

	CredentialsFile string
}

// GetPaths returns the default application paths relative to the executable
// location, never the current working directory.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks to get the actual executable location
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return NewPaths(filepath.Dir(exe), Default().Paths), nil
}

// NewPaths resolves the configured directories against base. Absolute
// entries are kept as they are.
//
//	base/
//	  ├── client_credentials.json
//	  ├── data/
//	  │   ├── exports/   (CSV/XLSX frames)
//	  │   └── cache/
//	  └── logs/
func NewPaths(base string, cfg PathsConfig) *Paths {
	resolve := func(p, fallback string) string {
		if p == "" {
			p = fallback
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	dataDir := resolve(cfg.DataDir, DefaultDataDir)
	return &Paths{
		ExecutableDir:   base,
		DataDir:         dataDir,
		ExportsDir:      resolve(cfg.ExportsDir, DefaultExportsDir),
		CacheDir:        filepath.Join(dataDir, "cache"),
		LogsDir:         resolve(cfg.LogsDir, DefaultLogsDir),
		CredentialsFile: filepath.Join(base, DefaultCredentialsFile),
	}
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.ExportsDir,
		p.CacheDir,
		p.LogsDir,
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// GetRelativePath returns a path relative to the base directory
func (p *Paths) GetRelativePath(subpath string) string {
	return filepath.Join(p.ExecutableDir, subpath)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetExportPath returns the full path to an exported file.
func (p *Paths) GetExportPath(filename string) string {
	return filepath.Join(p.ExportsDir, filename)
}

// GetLogPath returns the full path to a log file.
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetCachePath returns the full path to a cache file.
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetCredentialsPath returns the configured credentials file, falling back to
// the base directory.
func (p *Paths) GetCredentialsPath(configured string) string {
	if configured == "" {
		return p.CredentialsFile
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(p.ExecutableDir, configured)
}

// LogPathResolution logs all resolved paths for debugging
func (p *Paths) LogPathResolution() {
	slog.Info("Path resolution complete",
		slog.String("base_dir", p.ExecutableDir),
		slog.String("data_dir", p.DataDir),
		slog.String("exports_dir", p.ExportsDir),
		slog.String("cache_dir", p.CacheDir),
		slog.String("logs_dir", p.LogsDir),
		slog.Bool("credentials_exist", FileExists(p.CredentialsFile)))
}
