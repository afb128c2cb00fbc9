package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullTokenPayload = `{
	"access_token": "at",
	"expires_in": 300,
	"refresh_expires_in": 1800,
	"refresh_token": "rt",
	"token_type": "Bearer",
	"id_token": "idt",
	"not-before-policy": 0,
	"session_state": "sess-1",
	"scope": "openid email profile"
}`

func newTestExchanger(t *testing.T, url string) *Exchanger {
	t.Helper()
	e, err := NewExchanger(ExchangerConfig{TokenURL: url, ClientID: "api", ClientSecret: "s3cret"}, http.DefaultClient)
	require.NoError(t, err)
	return e
}

func TestRealm_Endpoints(t *testing.T) {
	r := Realm{ServerURL: "http://localhost:8080/", Name: "api-template"}
	assert.Equal(t, "http://localhost:8080/realms/api-template", r.IssuerURL())
	assert.Equal(t, "http://localhost:8080/realms/api-template/protocol/openid-connect/token", r.TokenURL())
	assert.Equal(t, "http://localhost:8080/realms/api-template/protocol/openid-connect/certs", r.CertsURL())
}

func TestExchange_SendsPasswordGrant(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = map[string]string{}
		for k := range r.PostForm {
			got[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fullTokenPayload))
	}))
	defer srv.Close()

	_, err := newTestExchanger(t, srv.URL).Exchange(context.Background(), "alice", "pw")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"grant_type":    "password",
		"scope":         "email openid",
		"client_id":     "api",
		"client_secret": "s3cret",
		"username":      "alice",
		"password":      "pw",
	}, got)
}

func TestExchange_NarrowsTokenPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fullTokenPayload))
	}))
	defer srv.Close()

	resp, err := newTestExchanger(t, srv.URL).Exchange(context.Background(), "alice", "pw")
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Len(t, fields, 5)
	for _, k := range []string{"access_token", "token_type", "expires_in", "refresh_token", "refresh_expires_in"} {
		assert.Contains(t, fields, k)
	}
	assert.NotContains(t, fields, "id_token")
	assert.NotContains(t, fields, "scope")
	assert.NotContains(t, fields, "session_state")
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, 1800, resp.RefreshExpiresIn)
}

func TestExchange_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid user credentials"}`))
	}))
	defer srv.Close()

	_, err := newTestExchanger(t, srv.URL).Exchange(context.Background(), "alice", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestExchange_UpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestExchanger(t, url).Exchange(context.Background(), "alice", "pw")
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}

func TestExchange_ProtocolErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
		"no token": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := newTestExchanger(t, srv.URL).Exchange(context.Background(), "alice", "pw")
			assert.True(t, errors.Is(err, ErrUpstreamProtocol), "got %v", err)
		})
	}
}

func TestExchange_MissingCredentialsSkipsUpstream(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := newTestExchanger(t, srv.URL).Exchange(context.Background(), " ", "")
	assert.True(t, errors.Is(err, ErrMissingCredentials))
	assert.False(t, called)
}
