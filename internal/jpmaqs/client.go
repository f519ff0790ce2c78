package jpmaqs

import (
	"log/slog"

	"macrosynergy/internal/config"
	"macrosynergy/internal/dataquery"
)

// Authenticator builds the DataQuery authenticator selected by cfg. With
// OAuth and no inline client id the credentials file is read.
func Authenticator(cfg config.DataQueryConfig, paths *config.Paths) (dataquery.Authenticator, error) {
	if !cfg.OAuth {
		return dataquery.NewCertAuth(cfg.Username, cfg.Password, cfg.CertFile, cfg.KeyFile)
	}

	creds := Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	if creds.ClientID == "" && creds.ClientSecret == "" {
		path := cfg.CredentialsFile
		if paths != nil {
			path = paths.GetCredentialsPath(cfg.CredentialsFile)
		}
		var err error
		if creds, err = LoadCredentials(path); err != nil {
			return nil, err
		}
	}
	auth, err := creds.OAuth()
	if err != nil {
		return nil, err
	}
	if cfg.TokenURL != "" {
		auth.TokenURL = cfg.TokenURL
	}
	if cfg.ResourceID != "" {
		auth.ResourceID = cfg.ResourceID
	}
	return auth, nil
}

// NewClient builds a DataQuery client from the application configuration.
func NewClient(cfg config.DataQueryConfig, paths *config.Paths, logger *slog.Logger) (*dataquery.Client, error) {
	auth, err := Authenticator(cfg, paths)
	if err != nil {
		return nil, err
	}
	return dataquery.NewClient(dataquery.Config{
		Auth:        auth,
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		Delay:       cfg.Delay,
		MaxRetries:  cfg.MaxRetries,
		Proxy:       cfg.Proxy,
		Logger:      logger,
	})
}
