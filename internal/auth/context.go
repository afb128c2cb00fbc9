package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey int

const ctxClaims ctxKey = iota

// ginClaimsKey mirrors the claims on the gin context for handler convenience.
const ginClaimsKey = "auth.claims"

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxClaims, c)
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxClaims).(Claims)
	return c, ok
}

// ClaimsFromGin returns the claims stored by RequireAccessToken for this
// request.
func ClaimsFromGin(c *gin.Context) (Claims, bool) {
	if v, ok := c.Get(ginClaimsKey); ok {
		if cl, ok := v.(Claims); ok {
			return cl, true
		}
	}
	return ClaimsFromContext(c.Request.Context())
}
