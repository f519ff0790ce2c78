// Package config provides centralized configuration management. It loads
// configuration from defaults, an optional YAML file and MSY_* environment
// variables, validates it, and resolves the file system paths the commands
// and the server use.
//
// # Configuration Sources
//
// Later sources override earlier ones:
//
//	1. Default values
//	2. YAML file (MSY_CONFIG_FILE, config.yaml or configs/config.yaml)
//	3. Environment variables
//
// # Environment Variables
//
// Variables follow the pattern MSY_<SECTION>_<FIELD>:
//
//	MSY_SERVER_PORT=8080
//	MSY_LOGGING_LEVEL=debug
//	MSY_DATAQUERY_CLIENT_ID=...
//	MSY_DATAQUERY_CLIENT_SECRET=...
//	MSY_STORE_DRIVER=postgres
//	MSY_STORE_DSN=postgres://...
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	paths, err := cfg.Resolve()
package config
