// Package oauth owns marketplace OAuth credentials: the token endpoint client and
// the per-key token lifecycle manager.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
)

const maxTokenResponseSize = 1 << 20

var (
	// ErrGrantRejected means the provider refused the grant (revoked, expired or reused refresh token).
	// It is terminal for the credential.
	ErrGrantRejected = errors.New("oauth: grant rejected by provider")
	// ErrProviderUnavailable covers network failures and 5xx/429 from the token endpoint; it is retryable.
	ErrProviderUnavailable = errors.New("oauth: token endpoint unavailable")
	// ErrInvalidTokenResponse means the endpoint answered 2xx without a usable token
	ErrInvalidTokenResponse = errors.New("oauth: invalid token response")
)

// ProviderConfig describes one marketplace's OAuth application
type ProviderConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Validate validates the provider configuration
func (c ProviderConfig) Validate() error {
	if strings.TrimSpace(c.TokenURL) == "" {
		return errors.New("oauth: token url is required")
	}
	if c.ClientID == "" {
		return errors.New("oauth: client id is required")
	}
	return nil
}

// ProviderClient performs the two OAuth2 token endpoint grants the engine needs.
type ProviderClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (*integration.TokenGrant, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*integration.TokenGrant, error)
}

// HTTPProviderClient is the default form-post implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
	config     ProviderConfig
}

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(cfg ProviderConfig, client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client, config: cfg}
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *HTTPProviderClient) RefreshToken(ctx context.Context, refreshToken string) (*integration.TokenGrant, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrGrantRejected)
	}
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return c.postToken(ctx, data)
}

// ExchangeCode performs the authorization-code exchange of the OAuth callback.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*integration.TokenGrant, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrGrantRejected)
	}
	if redirectURI == "" {
		redirectURI = c.config.RedirectURI
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	return c.postToken(ctx, data)
}

func (c *HTTPProviderClient) postToken(ctx context.Context, data url.Values) (*integration.TokenGrant, error) {
	data.Set("client_id", c.config.ClientID)
	if c.config.ClientSecret != "" {
		data.Set("client_secret", c.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status=%d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status=%d error=%s", ErrGrantRejected, resp.StatusCode, oauthErrorCode(body))
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: unexpected status=%d", ErrInvalidTokenResponse, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidTokenResponse, err)
	}

	grant := &integration.TokenGrant{
		AccessToken:    stringValue(raw["access_token"]),
		RefreshToken:   stringValue(raw["refresh_token"]),
		Scope:          stringValue(raw["scope"]),
		ExternalUserID: stringValue(raw["user_id"]),
		ExpiresIn:      time.Duration(int64Value(raw["expires_in"])) * time.Second,
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrInvalidTokenResponse)
	}
	if grant.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: missing expires_in", ErrInvalidTokenResponse)
	}
	return grant, nil
}

func oauthErrorCode(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "unknown"
	}
	if code := stringValue(raw["error"]); code != "" {
		return code
	}
	return "unknown"
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

var _ ProviderClient = (*HTTPProviderClient)(nil)
