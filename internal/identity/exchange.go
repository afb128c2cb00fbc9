package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"user-gateway/internal/apperr"
)

var (
	ErrInvalidCredentials  = apperr.Authentication("invalid_credentials", "invalid credentials")
	ErrUpstreamUnavailable = apperr.Upstream("upstream_unavailable", "identity provider unreachable")
	ErrUpstreamProtocol    = apperr.Upstream("upstream_protocol", "unexpected identity provider response")
	ErrMissingCredentials  = apperr.ClientInput("missing_credentials", "username and password are required")
)

// HTTPDoer is the subset of *http.Client used by the exchanger.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenResponse is the provider's token payload. Only LoginResponse fields
// leave this package.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	IDToken          string `json:"id_token"`
	NotBeforePolicy  int    `json:"not-before-policy"`
	SessionState     string `json:"session_state"`
	Scope            string `json:"scope"`
}

// LoginResponse is what this service returns to its own clients.
type LoginResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

func (t TokenResponse) narrow() LoginResponse {
	return LoginResponse{
		AccessToken:      t.AccessToken,
		TokenType:        t.TokenType,
		ExpiresIn:        t.ExpiresIn,
		RefreshToken:     t.RefreshToken,
		RefreshExpiresIn: t.RefreshExpiresIn,
	}
}

type ExchangerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// Exchanger forwards username/password pairs to the token endpoint using
// the password grant. Credentials are never logged or retained.
type Exchanger struct {
	cfg    ExchangerConfig
	client HTTPDoer
}

func NewExchanger(cfg ExchangerConfig, client HTTPDoer) (*Exchanger, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("identity: token url is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("identity: client id is required")
	}
	if cfg.Scope == "" {
		cfg.Scope = "email openid"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Exchanger{cfg: cfg, client: client}, nil
}

// Exchange performs a single token request. It is never retried.
func (e *Exchanger) Exchange(ctx context.Context, username, password string) (LoginResponse, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return LoginResponse{}, ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("scope", e.cfg.Scope)
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return LoginResponse{}, apperr.Internal(fmt.Errorf("build token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// Do not wrap err: *url.Error carries the request URL.
		return LoginResponse{}, ErrUpstreamUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return LoginResponse{}, ErrUpstreamUnavailable.Wrap(err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return LoginResponse{}, ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return LoginResponse{}, ErrUpstreamProtocol.Wrap(fmt.Errorf("token endpoint status %d", resp.StatusCode))
	}

	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return LoginResponse{}, ErrUpstreamProtocol.Wrap(fmt.Errorf("decode token response: %w", err))
	}
	if tok.AccessToken == "" {
		return LoginResponse{}, ErrUpstreamProtocol.Wrap(fmt.Errorf("token response without access_token"))
	}
	return tok.narrow(), nil
}
