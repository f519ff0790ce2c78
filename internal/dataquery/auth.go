package dataquery

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	apperrors "macrosynergy/internal/errors"
)

// Authenticator decorates API requests with credentials.
type Authenticator interface {
	// Authorize sets the credentials on req.
	Authorize(ctx context.Context, req *http.Request) error
	// BaseURL is the API root served for this kind of credentials.
	BaseURL() string
	// Configure adjusts the transport, e.g. for client certificates.
	Configure(t *http.Transport) error
}

// OAuth authenticates with the client-credentials grant. Tokens are cached
// until shortly before they expire.
type OAuth struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	ResourceID   string

	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewOAuth validates the credentials and applies default endpoints.
func NewOAuth(clientID, clientSecret string) (*OAuth, error) {
	if clientID == "" || clientSecret == "" {
		return nil, apperrors.NewAppValidationError("client_id and client_secret are required for OAuth")
	}
	return &OAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     OAuthTokenURL,
		ResourceID:   OAuthDQResourceID,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}, nil
}

// TokenData is the form posted to the token endpoint.
func (o *OAuth) TokenData() url.Values {
	return url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {o.ClientID},
		"client_secret": {o.ClientSecret},
		"aud":           {o.ResourceID},
	}
}

func (o *OAuth) BaseURL() string { return OAuthBaseURL }

func (o *OAuth) Configure(*http.Transport) error { return nil }

// Authorize sets a bearer token, requesting a new one when needed.
func (o *OAuth) Authorize(ctx context.Context, req *http.Request) error {
	token, err := o.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (o *OAuth) validToken() bool {
	return o.token != "" && o.now().Before(o.expires)
}

// Token returns the cached access token or fetches a new one.
func (o *OAuth) Token(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.validToken() {
		return o.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.TokenURL, strings.NewReader(o.TokenData().Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	created := o.now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewNetworkError("token request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewNetworkError("read token response", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", apperrors.NewAuthenticationError(
			fmt.Sprintf("token endpoint returned %d for client %s", resp.StatusCode, o.ClientID), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewInvalidResponseError(
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.AccessToken == "" {
		return "", apperrors.NewInvalidResponseError("token response carries no access token", err)
	}
	o.token = payload.AccessToken
	// Renew a minute early.
	o.expires = created.Add(time.Duration(payload.ExpiresIn)*time.Second - time.Minute)
	return o.token, nil
}

// CertAuth authenticates with basic credentials and a client certificate.
type CertAuth struct {
	Username string
	Password string
	Crt      string
	Key      string

	auth string
}

// NewCertAuth checks that the certificate and key files exist.
func NewCertAuth(username, password, crt, key string) (*CertAuth, error) {
	if username == "" || password == "" {
		return nil, apperrors.NewAppValidationError("username and password are required for certificate authentication")
	}
	for _, path := range []string{crt, key} {
		if path == "" {
			return nil, apperrors.NewAppValidationError("certificate and key paths are required")
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return nil, apperrors.NewNotFoundError("file " + path)
		}
	}
	return &CertAuth{
		Username: username,
		Password: password,
		Crt:      crt,
		Key:      key,
		auth:     base64.StdEncoding.EncodeToString([]byte(username + ":" + password)),
	}, nil
}

// Header is the value of the Authorization header.
func (c *CertAuth) Header() string { return "Basic " + c.auth }

func (c *CertAuth) BaseURL() string { return CertBaseURL }

func (c *CertAuth) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", c.Header())
	return nil
}

// Configure installs the client certificate.
func (c *CertAuth) Configure(t *http.Transport) error {
	pair, err := tls.LoadX509KeyPair(c.Crt, c.Key)
	if err != nil {
		return apperrors.NewConfigError("load client certificate", err)
	}
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	t.TLSClientConfig.Certificates = []tls.Certificate{pair}
	return nil
}
