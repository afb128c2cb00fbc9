package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified content of a bearer token. It can only be built by
// the Validator; handlers read it from the request context.
type Claims struct {
	subject           string
	preferredUsername string
	email             string
	audiences         map[string]struct{}
	roles             map[string]struct{}
	expiry            time.Time
}

func (c Claims) Subject() string           { return c.subject }
func (c Claims) PreferredUsername() string { return c.preferredUsername }
func (c Claims) Email() string             { return c.email }
func (c Claims) Expiry() time.Time         { return c.expiry }

func (c Claims) HasRole(role string) bool {
	_, ok := c.roles[role]
	return ok
}

func (c Claims) HasAudience(aud string) bool {
	_, ok := c.audiences[aud]
	return ok
}

// Roles returns a sorted copy of the role set.
func (c Claims) Roles() []string { return sortedKeys(c.roles) }

// Audiences returns a sorted copy of the audience set.
func (c Claims) Audiences() []string { return sortedKeys(c.audiences) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

type roleList struct {
	Roles []string `json:"roles"`
}

// tokenClaims is the wire shape of a Keycloak access token.
type tokenClaims struct {
	jwt.RegisteredClaims

	PreferredUsername string              `json:"preferred_username"`
	Email             string              `json:"email"`
	AuthorizedParty   string              `json:"azp"`
	RealmAccess       roleList            `json:"realm_access"`
	ResourceAccess    map[string]roleList `json:"resource_access"`
}

// toClaims collects realm roles and the roles granted to clientID.
func (t *tokenClaims) toClaims(clientID string) Claims {
	c := Claims{
		subject:           t.Subject,
		preferredUsername: t.PreferredUsername,
		email:             t.Email,
		audiences:         make(map[string]struct{}, len(t.Audience)),
		roles:             make(map[string]struct{}, len(t.RealmAccess.Roles)),
	}
	for _, aud := range t.Audience {
		c.audiences[aud] = struct{}{}
	}
	for _, r := range t.RealmAccess.Roles {
		c.roles[r] = struct{}{}
	}
	if clientID != "" {
		for _, r := range t.ResourceAccess[clientID].Roles {
			c.roles[r] = struct{}{}
		}
	}
	if t.ExpiresAt != nil {
		c.expiry = t.ExpiresAt.Time
	}
	return c
}
