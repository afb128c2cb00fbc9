package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

var ErrUnknownKey = errors.New("auth: signing key not found")

// fetchTimeout bounds one JWKS fetch. The fetch is detached from the caller
// that triggered it, so this is the only deadline it runs under.
const fetchTimeout = 10 * time.Second

// HTTPDoer is the subset of *http.Client used to fetch signing keys.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// keySnapshot is never mutated after it is published.
type keySnapshot struct {
	keys map[string]any // kid -> *rsa.PublicKey | *ecdsa.PublicKey
}

// KeySet caches the identity provider's JWKS. Lookups read an immutable
// snapshot and never block; a lookup for an unknown kid triggers one
// coalesced refresh (key rotation) which swaps in a new snapshot.
// Refreshes are spaced by at least minRefresh.
//
// KeySet is safe for concurrent use.
type KeySet struct {
	url        string
	client     HTTPDoer
	minRefresh time.Duration
	now        func() time.Time

	snap        atomic.Pointer[keySnapshot]
	lastAttempt atomic.Int64 // unix nanos of the last completed fetch
	group       singleflight.Group
}

func NewKeySet(certsURL string, client HTTPDoer, minRefresh time.Duration) *KeySet {
	if client == nil {
		client = http.DefaultClient
	}
	return &KeySet{url: certsURL, client: client, minRefresh: minRefresh, now: time.Now}
}

// Key returns the public key for kid.
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	if s := k.snap.Load(); s != nil {
		if key, ok := s.keys[kid]; ok {
			return key, nil
		}
	}
	if !k.refreshAllowed() {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}

	s, err := k.refresh(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	return key, nil
}

// Refresh fetches the key set now, regardless of the refresh interval.
// Used to warm the cache at startup. A failed warmup does not count toward
// the interval, so the first lookup after the provider recovers fetches again.
func (k *KeySet) Refresh(ctx context.Context) error {
	_, err := k.refresh(ctx)
	if err != nil {
		k.lastAttempt.Store(0)
	}
	return err
}

func (k *KeySet) refreshAllowed() bool {
	last := k.lastAttempt.Load()
	return last == 0 || k.now().Sub(time.Unix(0, last)) >= k.minRefresh
}

func (k *KeySet) refresh(ctx context.Context) (*keySnapshot, error) {
	v, err, _ := k.group.Do("jwks", func() (any, error) {
		// Waiters share this fetch, so one caller going away must not fail it.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		keys, err := fetchJWKS(fctx, k.client, k.url)
		k.lastAttempt.Store(k.now().UnixNano())
		if err != nil {
			return nil, err
		}
		s := &keySnapshot{keys: keys}
		k.snap.Store(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keySnapshot), nil
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func fetchJWKS(ctx context.Context, client HTTPDoer, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build jwks request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: jwks request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: jwks endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: read jwks: %w", err)
	}
	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("auth: parse jwks: %w", err)
	}

	keys := make(map[string]any, len(doc.Keys))
	for _, k := range doc.Keys {
		// Encryption keys share the endpoint with signing keys.
		if k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		switch k.Kty {
		case "RSA":
			if pub, err := parseRSAKey(k.N, k.E); err == nil {
				keys[k.Kid] = pub
			}
		case "EC":
			if pub, err := parseECKey(k.Crv, k.X, k.Y); err == nil {
				keys[k.Kid] = pub
			}
		}
	}
	return keys, nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("auth: bad rsa exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}

func parseECKey(crv, x, y string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("auth: unsupported curve %q", crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(y)
	if err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{Curve: curve, X: new(big.Int).SetBytes(xb), Y: new(big.Int).SetBytes(yb)}, nil
}
