package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "bearer "

// RequireAccessToken validates the bearer token and stores the resulting
// Claims in the request context. It does not check roles; the route policy
// stage (internal/rbac) does.
func RequireAccessToken(v *Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
			abort(c, ErrMissingToken)
			return
		}
		tok := strings.TrimSpace(raw[len(bearerPrefix):])

		claims, err := v.Validate(c.Request.Context(), tok)
		if err != nil {
			abort(c, err)
			return
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Set(ginClaimsKey, claims)
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	e := asAuthError(err)
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.AbortWithStatusJSON(e.HTTPStatus(), e.Body())
}
