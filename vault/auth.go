// Package vault is a client for the Forged Alliance Forever map vault API:
// OAuth2 client-credentials authentication and paginated JSON:API map
// discovery with rate limiting and retries.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTokenURL is the FAF OAuth2 token endpoint.
	DefaultTokenURL = "https://hydra.faforever.com/oauth2/token"
	// DefaultScope is the scope requested for API access.
	DefaultScope = "public_profile"

	// Tokens are refreshed this long before their reported expiry.
	tokenExpiryBuffer = 5 * time.Minute

	authTimeout = 30 * time.Second
)

// ErrAuth is wrapped by all authentication failures.
var ErrAuth = errors.New("authentication failed")

// Credentials are OAuth2 client credentials.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// CredentialsFromEnvironment reads credentials from the FAF_CLIENT_ID and
// FAF_CLIENT_SECRET environment variables. The second return value reports
// whether both were set.
func CredentialsFromEnvironment() (Credentials, bool) {
	creds := Credentials{
		ClientID:     os.Getenv("FAF_CLIENT_ID"),
		ClientSecret: os.Getenv("FAF_CLIENT_SECRET"),
	}
	return creds, creds.ClientID != "" && creds.ClientSecret != ""
}

// Token is an OAuth2 access token.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Scope       string
}

// Valid reports whether the token can still be used at the given time,
// keeping a refresh buffer before the actual expiry.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-tokenExpiryBuffer))
}

// AuthorizationHeader returns the value for the Authorization header.
func (t Token) AuthorizationHeader() string {
	return t.TokenType + " " + t.AccessToken
}

// AuthParams configure an AuthClient. Zero values select the FAF defaults.
type AuthParams struct {
	TokenURL   string
	Scope      string
	HTTPClient *http.Client
}

// AuthClient obtains tokens via the OAuth2 client-credentials flow and
// caches them until shortly before expiry. It is safe for concurrent use.
type AuthClient struct {
	credentials Credentials
	tokenURL    string
	scope       string
	httpClient  *http.Client
	now         func() time.Time

	mu    sync.Mutex
	token Token
}

func NewAuthClient(credentials Credentials, params AuthParams) *AuthClient {
	if params.TokenURL == "" {
		params.TokenURL = DefaultTokenURL
	}
	if params.Scope == "" {
		params.Scope = DefaultScope
	}
	if params.HTTPClient == nil {
		params.HTTPClient = &http.Client{Timeout: authTimeout}
	}
	return &AuthClient{
		credentials: credentials,
		tokenURL:    params.TokenURL,
		scope:       params.Scope,
		httpClient:  params.HTTPClient,
		now:         time.Now,
	}
}

// AuthClientFromEnvironment builds an AuthClient from the FAF_CLIENT_ID and
// FAF_CLIENT_SECRET environment variables.
func AuthClientFromEnvironment(params AuthParams) (*AuthClient, error) {
	creds, ok := CredentialsFromEnvironment()
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: environment variable FAF_CLIENT_ID is not set", ErrAuth)
	}
	if !ok {
		return nil, fmt.Errorf("%w: environment variable FAF_CLIENT_SECRET is not set", ErrAuth)
	}
	return NewAuthClient(creds, params), nil
}

// Token returns a valid access token, requesting a new one when the cached
// token is missing or about to expire.
func (c *AuthClient) Token(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid(c.now()) {
		return c.token, nil
	}
	token, err := c.requestToken(ctx)
	if err != nil {
		return Token{}, err
	}
	c.token = token
	return token, nil
}

// ClearToken drops the cached token, forcing a refresh on the next call.
func (c *AuthClient) ClearToken() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
}

func (c *AuthClient) requestToken(ctx context.Context) (Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.credentials.ClientID},
		"client_secret": {c.credentials.ClientSecret},
		"scope":         {c.scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return Token{}, fmt.Errorf("%w: invalid client credentials", ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return Token{}, fmt.Errorf("%w: token request returned HTTP %d: %s", ErrAuth, resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Token{}, fmt.Errorf("%w: invalid token response: %w", ErrAuth, err)
	}
	if payload.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: token response has no access_token", ErrAuth)
	}
	if payload.TokenType == "" {
		payload.TokenType = "Bearer"
	}
	if payload.ExpiresIn == 0 {
		payload.ExpiresIn = 3600
	}
	if payload.Scope == "" {
		payload.Scope = c.scope
	}

	return Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
		ExpiresAt:   c.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		Scope:       payload.Scope,
	}, nil
}
