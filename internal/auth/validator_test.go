package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"user-gateway/internal/auth"
	"user-gateway/internal/auth/authtest"
)

func TestValidate_ProducesClaims(t *testing.T) {
	p := authtest.NewProvider(t)
	raw := p.Sign(authtest.Token{
		Subject:     "u-1",
		Audiences:   []string{"account", "api"},
		RealmRoles:  []string{"user"},
		ClientRoles: []string{"administrator"},
	})

	c, err := p.Validator().Validate(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "u-1", c.Subject())
	assert.Equal(t, []string{"account", "api"}, c.Audiences())
	assert.Equal(t, []string{"administrator", "user"}, c.Roles())
	assert.True(t, c.HasRole("administrator"))
	assert.Equal(t, "alice", c.PreferredUsername())
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), c.Expiry(), 5*time.Second)
}

func TestValidate_Failures(t *testing.T) {
	p := authtest.NewProvider(t)
	v := p.Validator()

	foreign := p.UnpublishedKey("key-1")
	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"expired", p.Sign(authtest.Token{ExpiresIn: -time.Hour}), auth.ErrExpired},
		{"garbage", "not-a-jwt", auth.ErrMalformedToken},
		{"empty", "", auth.ErrMissingToken},
		{"wrong key same kid", p.SignWith("key-1", foreign, authtest.Token{}), auth.ErrInvalidSignature},
		{"unknown kid", p.SignWith("ghost", foreign, authtest.Token{}), auth.ErrInvalidSignature},
		{"wrong issuer", p.Sign(authtest.Token{Issuer: "http://evil.test/realms/x"}), auth.ErrInvalidSignature},
		{"alg none", noneTok, auth.ErrInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tc.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestValidate_AcceptedAudiences(t *testing.T) {
	p := authtest.NewProvider(t)
	v, err := auth.NewValidator(auth.NewKeySet(p.CertsURL(), http.DefaultClient, 0), auth.ValidatorConfig{
		Issuer:            authtest.Issuer,
		AcceptedAudiences: []string{"account"},
	})
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), p.Sign(authtest.Token{Audiences: []string{"other"}}))
	assert.True(t, errors.Is(err, auth.ErrAudienceMismatch))

	_, err = v.Validate(context.Background(), p.Sign(authtest.Token{Audiences: []string{"other", "account"}}))
	assert.NoError(t, err)
}

func TestKeySet_RefreshesOnRotation(t *testing.T) {
	p := authtest.NewProvider(t)
	v := p.Validator()

	_, err := v.Validate(context.Background(), p.Sign(authtest.Token{}))
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), p.Sign(authtest.Token{}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.Fetches.Load(), "known kid must be served from cache")

	p.Rotate("key-2")
	_, err = v.Validate(context.Background(), p.Sign(authtest.Token{}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.Fetches.Load())
}

func TestKeySet_RefreshIntervalLimitsFetches(t *testing.T) {
	p := authtest.NewProvider(t)
	keys := auth.NewKeySet(p.CertsURL(), http.DefaultClient, time.Hour)
	require.NoError(t, keys.Refresh(context.Background()))

	for i := 0; i < 5; i++ {
		_, err := keys.Key(context.Background(), "forged")
		assert.ErrorIs(t, err, auth.ErrUnknownKey)
	}
	assert.EqualValues(t, 1, p.Fetches.Load())
}

func TestKeySet_ConcurrentMissesCoalesce(t *testing.T) {
	p := authtest.NewProvider(t)
	keys := auth.NewKeySet(p.CertsURL(), http.DefaultClient, 0)
	require.NoError(t, keys.Refresh(context.Background()))
	p.Rotate("key-2")
	before := p.Fetches.Load()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := keys.Key(context.Background(), "key-2")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Fetches.Load()-before, int32(20))
	assert.GreaterOrEqual(t, p.Fetches.Load()-before, int32(1))

	_, err := keys.Key(context.Background(), "key-1")
	assert.NoError(t, err, "old key stays available after rotation")
}

func TestKeySet_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := auth.NewKeySet(srv.URL, srv.Client(), 0).Key(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestKeySet_CancelledCallerDoesNotBlockRotation(t *testing.T) {
	p := authtest.NewProvider(t)
	p.Rotate("key-2")
	keys := auth.NewKeySet(p.CertsURL(), http.DefaultClient, 30*time.Second)

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = keys.Key(gone, "key-2")

	key, err := keys.Key(context.Background(), "key-2")
	require.NoError(t, err, "a disconnected client must not poison the refresh")
	assert.NotNil(t, key)
	assert.EqualValues(t, 1, p.Fetches.Load())
}

func TestKeySet_FailedWarmupDoesNotCount(t *testing.T) {
	p := authtest.NewProvider(t)
	var down atomic.Bool
	down.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.Redirect(w, r, p.CertsURL(), http.StatusFound)
	}))
	defer srv.Close()

	keys := auth.NewKeySet(srv.URL, http.DefaultClient, time.Hour)
	require.Error(t, keys.Refresh(context.Background()))

	down.Store(false)
	_, err := keys.Key(context.Background(), "key-1")
	require.NoError(t, err)
}

func TestValidate_CreatesSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	p := authtest.NewProvider(t)
	_, err := p.Validator().Validate(context.Background(), p.Sign(authtest.Token{ExpiresIn: -time.Hour}))
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "auth.Validate", spans[len(spans)-1].Name)
	assert.Equal(t, "expired", spans[len(spans)-1].Status.Description)
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := authtest.NewProvider(t)

	var seen auth.Claims
	r := gin.New()
	r.GET("/x", auth.RequireAccessToken(p.Validator()), func(c *gin.Context) {
		seen, _ = auth.ClaimsFromGin(c)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name   string
		header string
		want   int
		reason string
	}{
		{"no header", "", http.StatusUnauthorized, "missing_token"},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, "missing_token"},
		{"expired", "Bearer " + p.Sign(authtest.Token{ExpiresIn: -time.Hour}), http.StatusUnauthorized, "expired"},
		{"valid lowercase scheme", "bearer " + p.Sign(authtest.Token{Subject: "ok"}), http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.reason != "" {
				assert.True(t, strings.Contains(w.Body.String(), tc.reason), w.Body.String())
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
	assert.Equal(t, "ok", seen.Subject())
}
