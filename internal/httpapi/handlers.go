package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"user-gateway/internal/apperr"
	"user-gateway/internal/audit"
	"user-gateway/internal/auth"
	"user-gateway/internal/identity"
	"user-gateway/internal/rbac"
	"user-gateway/internal/users"
	"user-gateway/pkg/logger"
)

// CredentialExchanger is satisfied by *identity.Exchanger.
type CredentialExchanger interface {
	Exchange(ctx context.Context, username, password string) (identity.LoginResponse, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Identity CredentialExchanger
	Users    *users.Service
	// Admin guards every user mutation. It runs before the body is read.
	Admin rbac.OperationPolicy
}

// --- Root ---

func (h Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var errLoginDenied = apperr.Forbidden("invalid_credentials", "invalid credentials")

// Login exchanges credentials at the identity provider. A rejected password
// and an unreachable provider produce the same 403.
func (h Handlers) Login(c *gin.Context) {
	if h.Identity == nil {
		writeError(c, apperr.Internal(errors.New("identity provider not configured")))
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, users.ErrInvalidBody)
		return
	}

	resp, err := h.Identity.Exchange(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(c, errLoginDenied)
	case errors.Is(err, identity.ErrUpstreamUnavailable):
		logger.FromGin(c).Warn("identity provider unavailable", "err", err)
		writeError(c, errLoginDenied)
	default:
		writeError(c, err)
	}
}

// --- Users ---

func (h Handlers) GetUser(c *gin.Context) {
	u, err := h.Users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h Handlers) CreateUser(c *gin.Context) {
	if !rbac.Allow(c, h.Admin) {
		return
	}
	var req users.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, users.ErrInvalidBody)
		return
	}
	u, err := h.Users.Create(c.Request.Context(), actorOf(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h Handlers) UpdateUser(c *gin.Context) {
	if !rbac.Allow(c, h.Admin) {
		return
	}
	var req users.UpdateFields
	// An absent body supplies no fields; BuildUpdate rejects that.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, users.ErrInvalidBody)
		return
	}
	u, err := h.Users.Update(c.Request.Context(), actorOf(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h Handlers) DeleteUser(c *gin.Context) {
	if !rbac.Allow(c, h.Admin) {
		return
	}
	if err := h.Users.Delete(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func actorOf(c *gin.Context) audit.Actor {
	a := audit.Actor{IP: c.ClientIP()}
	if claims, ok := auth.ClaimsFromGin(c); ok {
		a.Subject = claims.Subject()
		a.Name = claims.PreferredUsername()
	}
	return a
}

// writeError renders err as {"error","reason"}. Internal and upstream causes
// are logged here and never reach the client.
func writeError(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal || e.Kind == apperr.KindUpstream {
		logger.FromGin(c).Error("request failed", "kind", e.Kind.String(), "reason", e.Reason, "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(e.HTTPStatus(), e.Body())
}
