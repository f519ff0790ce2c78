package jpmaqs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "macrosynergy/internal/errors"
)

func TestExpression(t *testing.T) {
	e := Expression("USD_EQXR_NSA", "value")
	assert.Equal(t, "DB(JPMAQS,USD_EQXR_NSA,value)", e)

	ticker, metric, err := Deconstruct(e)
	require.NoError(t, err)
	assert.Equal(t, "USD_EQXR_NSA", ticker)
	assert.Equal(t, "value", metric)

	for _, bad := range []string{"USD_EQXR_NSA", "DB(JPMAQS,USD_EQXR_NSA)", "DB(JPMAQS,USD_EQXR_NSA,value", "DB(JPMAQS,,value)"} {
		_, _, err := Deconstruct(bad)
		assert.True(t, apperrors.IsValidationError(err), bad)
	}
}

func TestDefaultCids(t *testing.T) {
	cids := DefaultCids()
	assert.Len(t, cids, 37)
	assert.IsIncreasing(t, cids)
	assert.Contains(t, cids, "NLG")
}

func TestConstructExpressions(t *testing.T) {
	exprs, err := ConstructExpressions(
		[]string{"GBP_FXXR_NSA"}, []string{"AUD", "CAD"}, []string{"FXXR_NSA"}, []string{"value", "grading"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"DB(JPMAQS,GBP_FXXR_NSA,value)", "DB(JPMAQS,GBP_FXXR_NSA,grading)",
		"DB(JPMAQS,AUD_FXXR_NSA,value)", "DB(JPMAQS,AUD_FXXR_NSA,grading)",
		"DB(JPMAQS,CAD_FXXR_NSA,value)", "DB(JPMAQS,CAD_FXXR_NSA,grading)",
	}, exprs)

	exprs, err = ConstructExpressions(nil, nil, []string{"EQXR_NSA"}, []string{"value"})
	require.NoError(t, err)
	assert.Len(t, exprs, len(DefaultCids()))

	exprs, err = ConstructExpressions([]string{"AUD_FXXR_NSA"}, []string{"AUD"}, []string{"FXXR_NSA"}, []string{"value"})
	require.NoError(t, err)
	assert.Len(t, exprs, 1)

	tests := []struct {
		name    string
		tickers []string
		metrics []string
	}{
		{"unknown metric", []string{"AUD_FXXR_NSA"}, []string{"close"}},
		{"no metrics", []string{"AUD_FXXR_NSA"}, nil},
		{"no tickers", nil, []string{"value"}},
		{"bad ticker", []string{"AUDFXXR"}, []string{"value"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConstructExpressions(tt.tickers, nil, nil, tt.metrics)
			assert.True(t, apperrors.IsValidationError(err))
		})
	}
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	c, err := LoadCredentials(write("creds.json", `{"client_id":"id","client_secret":"secret"}`))
	require.NoError(t, err)
	assert.Equal(t, Credentials{ClientID: "id", ClientSecret: "secret"}, c)

	c, err = LoadCredentials(write("creds.yaml", "client_id: yid\nclient_secret: ysecret\n"))
	require.NoError(t, err)
	assert.Equal(t, "yid", c.ClientID)

	auth, err := c.OAuth()
	require.NoError(t, err)
	assert.Equal(t, "ysecret", auth.ClientSecret)

	_, err = LoadCredentials(filepath.Join(dir, "missing.json"))
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = LoadCredentials(write("creds.txt", "client_id=id"))
	assert.True(t, apperrors.IsValidationError(err))

	_, err = LoadCredentials(write("broken.json", "{"))
	assert.Equal(t, apperrors.ErrTypeParsing, apperrors.TypeOf(err))

	_, err = LoadCredentials(write("partial.json", `{"client_id":"id"}`))
	assert.True(t, apperrors.IsValidationError(err))
}
