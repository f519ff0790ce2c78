package jpmaqs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"macrosynergy/internal/dataquery"
	apperrors "macrosynergy/internal/errors"
)

// DefaultCredentialsFile is read when no path is configured.
const DefaultCredentialsFile = "client_credentials.json"

// Credentials are the OAuth client credentials issued for DataQuery.
type Credentials struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
}

// LoadCredentials reads a JSON or YAML credentials file.
func LoadCredentials(path string) (Credentials, error) {
	var c Credentials
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, apperrors.NewNotFoundError("credentials file " + path)
		}
		return c, fmt.Errorf("read credentials: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &c)
	default:
		return c, apperrors.Validationf("credentials file must be JSON or YAML: %s", path)
	}
	if err != nil {
		return c, apperrors.NewParsingError("credentials file "+path, err)
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return c, apperrors.Validationf("credentials file %s lacks client_id or client_secret", path)
	}
	return c, nil
}

// OAuth returns a DataQuery authenticator for the credentials.
func (c Credentials) OAuth() (*dataquery.OAuth, error) {
	return dataquery.NewOAuth(c.ClientID, c.ClientSecret)
}
