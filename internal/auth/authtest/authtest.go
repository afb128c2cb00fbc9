// Package authtest runs a fake identity provider for tests: an RSA signing
// key published on an httptest JWKS endpoint, and helpers to mint tokens
// and obtain validated auth.Claims.
package authtest

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"user-gateway/internal/auth"
)

const (
	Issuer   = "http://idp.test/realms/api-template"
	ClientID = "api"
)

type signingKey struct {
	kid string
	key *rsa.PrivateKey
}

// Provider is a fake JWKS endpoint. Keys can be rotated while it runs.
type Provider struct {
	t      testing.TB
	server *httptest.Server

	mu     sync.RWMutex
	active signingKey
	keys   []signingKey

	// Fetches counts JWKS requests served.
	Fetches atomic.Int32
}

func NewProvider(t testing.TB) *Provider {
	t.Helper()
	p := &Provider{t: t}
	p.active = p.newKey("key-1")
	p.keys = []signingKey{p.active}

	p.server = httptest.NewServer(http.HandlerFunc(p.serveJWKS))
	t.Cleanup(p.server.Close)
	return p
}

// CertsURL is the JWKS URL to hand to auth.NewKeySet.
func (p *Provider) CertsURL() string { return p.server.URL + "/protocol/openid-connect/certs" }

// Rotate publishes a new active key; the old key stays published.
func (p *Provider) Rotate(kid string) {
	k := p.newKey(kid)
	p.mu.Lock()
	p.active = k
	p.keys = append(p.keys, k)
	p.mu.Unlock()
}

// UnpublishedKey returns a key that never appears on the JWKS endpoint.
func (p *Provider) UnpublishedKey(kid string) *rsa.PrivateKey {
	return p.newKey(kid).key
}

// Validator builds a validator wired to this provider with no refresh
// spacing, so rotation tests are deterministic.
func (p *Provider) Validator() *auth.Validator {
	p.t.Helper()
	v, err := auth.NewValidator(auth.NewKeySet(p.CertsURL(), p.server.Client(), 0), auth.ValidatorConfig{
		Issuer:   Issuer,
		ClientID: ClientID,
		Leeway:   5 * time.Second,
	})
	if err != nil {
		p.t.Fatalf("validator: %v", err)
	}
	return v
}

// Token describes the claims of a minted token.
type Token struct {
	Subject     string
	Audiences   []string
	RealmRoles  []string
	ClientRoles []string
	ExpiresIn   time.Duration
	Issuer      string
	Extra       map[string]any
}

// Sign mints a token signed with the active key.
func (p *Provider) Sign(tok Token) string {
	p.mu.RLock()
	k := p.active
	p.mu.RUnlock()
	return p.SignWith(k.kid, k.key, tok)
}

// SignWith mints a token with an explicit kid and key.
func (p *Provider) SignWith(kid string, key *rsa.PrivateKey, tok Token) string {
	p.t.Helper()
	if tok.Subject == "" {
		tok.Subject = "6f1c2d9e-8a4b-4c3d-9e2f-1a2b3c4d5e6f"
	}
	if tok.ExpiresIn == 0 {
		tok.ExpiresIn = 5 * time.Minute
	}
	if tok.Issuer == "" {
		tok.Issuer = Issuer
	}
	now := time.Now()
	mc := jwt.MapClaims{
		"sub":                tok.Subject,
		"iss":                tok.Issuer,
		"iat":                now.Unix(),
		"exp":                now.Add(tok.ExpiresIn).Unix(),
		"preferred_username": "alice",
		"realm_access":       map[string]any{"roles": tok.RealmRoles},
		"resource_access": map[string]any{
			ClientID: map[string]any{"roles": tok.ClientRoles},
		},
	}
	if len(tok.Audiences) > 0 {
		mc["aud"] = tok.Audiences
	}
	for k, v := range tok.Extra {
		mc[k] = v
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	t.Header["kid"] = kid
	s, err := t.SignedString(key)
	if err != nil {
		p.t.Fatalf("sign token: %v", err)
	}
	return s
}

// Claims mints a token and validates it, yielding real auth.Claims.
func (p *Provider) Claims(tok Token) auth.Claims {
	p.t.Helper()
	c, err := p.Validator().Validate(context.Background(), p.Sign(tok))
	if err != nil {
		p.t.Fatalf("validate minted token: %v", err)
	}
	return c
}

func (p *Provider) newKey(kid string) signingKey {
	p.t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		p.t.Fatalf("generate rsa key: %v", err)
	}
	return signingKey{kid: kid, key: key}
}

func (p *Provider) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	p.Fetches.Add(1)
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]map[string]string, 0, len(p.keys))
	for _, k := range p.keys {
		pub := k.key.PublicKey
		keys = append(keys, map[string]string{
			"kty": "RSA",
			"kid": k.kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}
