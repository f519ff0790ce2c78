package jpmaqs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/config"
	"macrosynergy/internal/dataquery"
	apperrors "macrosynergy/internal/errors"
)

func TestAuthenticator(t *testing.T) {
	dir := t.TempDir()
	paths := config.NewPaths(dir, config.PathsConfig{})

	t.Run("inline client credentials", func(t *testing.T) {
		auth, err := Authenticator(config.DataQueryConfig{
			OAuth: true, ClientID: "id", ClientSecret: "secret", TokenURL: "https://auth.test/token",
		}, paths)
		require.NoError(t, err)
		oauth, ok := auth.(*dataquery.OAuth)
		require.True(t, ok)
		assert.Equal(t, "id", oauth.ClientID)
		assert.Equal(t, "https://auth.test/token", oauth.TokenURL)
		assert.Equal(t, dataquery.OAuthDQResourceID, oauth.ResourceID)
	})

	t.Run("credentials file relative to base", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "creds.json"),
			[]byte(`{"client_id":"fid","client_secret":"fsecret"}`), 0o600))
		auth, err := Authenticator(config.DataQueryConfig{OAuth: true, CredentialsFile: "creds.json"}, paths)
		require.NoError(t, err)
		assert.Equal(t, "fid", auth.(*dataquery.OAuth).ClientID)
	})

	t.Run("missing credentials file", func(t *testing.T) {
		_, err := Authenticator(config.DataQueryConfig{OAuth: true}, paths)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFoundError(err))
	})

	t.Run("certificate auth needs files", func(t *testing.T) {
		_, err := Authenticator(config.DataQueryConfig{Username: "u", Password: "p"}, paths)
		require.Error(t, err)
	})
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(config.DataQueryConfig{
		OAuth: true, ClientID: "id", ClientSecret: "secret",
		BaseURL: "https://dq.test/api/v2/", BatchSize: 20, Concurrency: 2,
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://dq.test/api/v2", client.BaseURL())
}
