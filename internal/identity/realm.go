// Package identity talks to the external OIDC identity provider: it knows
// the realm endpoint layout and exchanges user credentials for tokens.
package identity

import "strings"

// Realm locates a Keycloak-style realm on an identity server.
type Realm struct {
	ServerURL string
	Name      string
}

func (r Realm) base() string {
	return strings.TrimRight(r.ServerURL, "/") + "/realms/" + r.Name
}

// IssuerURL is the value expected in the iss claim of realm tokens.
func (r Realm) IssuerURL() string { return r.base() }

// TokenURL is the OAuth2 token endpoint.
func (r Realm) TokenURL() string { return r.base() + "/protocol/openid-connect/token" }

// CertsURL is the JWKS endpoint holding the realm signing keys.
func (r Realm) CertsURL() string { return r.base() + "/protocol/openid-connect/certs" }
