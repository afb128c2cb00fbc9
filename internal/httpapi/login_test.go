package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-gateway/internal/identity"
)

const fullTokenPayload = `{
	"access_token": "at",
	"expires_in": 300,
	"refresh_expires_in": 1800,
	"refresh_token": "rt",
	"token_type": "Bearer",
	"id_token": "idt",
	"not-before-policy": 0,
	"session_state": "ss",
	"scope": "email openid profile"
}`

func newLoginEnv(t *testing.T, handler http.HandlerFunc) *env {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ex, err := identity.NewExchanger(identity.ExchangerConfig{
		TokenURL:     srv.URL + "/realms/api-template/protocol/openid-connect/token",
		ClientID:     "api",
		ClientSecret: "secret",
	}, srv.Client())
	require.NoError(t, err)
	return newEnv(t, ex)
}

func TestLogin_ReturnsOnlyNarrowedFields(t *testing.T) {
	e := newLoginEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fullTokenPayload))
	})

	w := e.do(http.MethodPost, "/login", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"access_token": "at",
		"token_type": "Bearer",
		"expires_in": 300,
		"refresh_token": "rt",
		"refresh_expires_in": 1800
	}`, w.Body.String())
	assert.NotContains(t, e.logs.String(), `"pw"`)
}

func TestLogin_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   int
	}{
		{"rejected password", http.StatusUnauthorized, `{"error":"invalid_grant"}`, http.StatusForbidden},
		{"bad request upstream", http.StatusBadRequest, `{"error":"invalid_request"}`, http.StatusForbidden},
		{"provider error", http.StatusBadGateway, `oops`, http.StatusInternalServerError},
		{"undecodable success", http.StatusOK, `<html>`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newLoginEnv(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			w := e.do(http.MethodPost, "/login", "", `{"username":"alice","password":"pw"}`)
			require.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusForbidden {
				assert.Equal(t, "invalid credentials", decode(t, w)["error"])
			}
		})
	}
}

func TestLogin_UnreachableProviderLooksLikeBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ex, err := identity.NewExchanger(identity.ExchangerConfig{TokenURL: url, ClientID: "api", ClientSecret: "s"}, http.DefaultClient)
	require.NoError(t, err)
	e := newEnv(t, ex)

	w := e.do(http.MethodPost, "/login", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid credentials", decode(t, w)["error"])
}

func TestLogin_MissingCredentials(t *testing.T) {
	e := newEnv(t, fakeExchanger{err: identity.ErrMissingCredentials})
	w := e.do(http.MethodPost, "/login", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/login", "", `[`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_body", decode(t, w)["reason"])
}
