package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"user-gateway/internal/apperr"
)

const tracerName = "user-gateway/internal/auth"

var (
	ErrMissingToken     = apperr.Authentication("missing_token", "missing bearer token")
	ErrInvalidSignature = apperr.Authentication("invalid_signature", "token signature could not be verified")
	ErrExpired          = apperr.Authentication("expired", "token expired")
	ErrMalformedToken   = apperr.Authentication("malformed_token", "token could not be parsed")
	ErrAudienceMismatch = apperr.Authentication("audience_mismatch", "token audience not accepted")
)

var signingMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384"}

// KeyProvider resolves a signing key by key id. *KeySet implements it.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (any, error)
}

type ValidatorConfig struct {
	// Issuer, when set, must equal the iss claim.
	Issuer string
	// ClientID selects which resource_access entry contributes roles.
	ClientID string
	// AcceptedAudiences, when non-empty, rejects tokens carrying none of
	// them. Route-specific audiences are checked by the route policy.
	AcceptedAudiences []string
	Leeway            time.Duration
}

// Validator verifies bearer tokens against the identity provider's keys.
// It is safe for concurrent use.
type Validator struct {
	keys   KeyProvider
	cfg    ValidatorConfig
	tracer trace.Tracer
	now    func() time.Time
}

func NewValidator(keys KeyProvider, cfg ValidatorConfig) (*Validator, error) {
	if keys == nil {
		return nil, errors.New("auth: key provider is required")
	}
	return &Validator{
		keys:   keys,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}, nil
}

// Validate verifies signature, structure, expiry and (optionally) issuer and
// audience. Roles are not checked here.
func (v *Validator) Validate(ctx context.Context, raw string) (Claims, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Validate")
	defer span.End()

	claims, err := v.validate(ctx, raw)
	if err != nil {
		e := asAuthError(err)
		span.SetAttributes(attribute.String("auth.reason", e.Reason))
		span.RecordError(err)
		span.SetStatus(codes.Error, e.Reason)
		return Claims{}, e
	}
	span.SetAttributes(attribute.String("auth.subject", claims.Subject()))
	return claims, nil
}

func (v *Validator) validate(ctx context.Context, raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(signingMethods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	var tc tokenClaims
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, &tc, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token header missing kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return Claims{}, classify(err)
	}
	if tc.Subject == "" {
		return Claims{}, ErrMalformedToken.Wrap(errors.New("sub claim missing"))
	}

	claims := tc.toClaims(v.cfg.ClientID)
	if len(v.cfg.AcceptedAudiences) > 0 && !hasAnyAudience(claims, v.cfg.AcceptedAudiences) {
		return Claims{}, ErrAudienceMismatch.Wrap(fmt.Errorf("token audiences %v", claims.Audiences()))
	}
	return claims, nil
}

func hasAnyAudience(c Claims, want []string) bool {
	for _, a := range want {
		if c.HasAudience(a) {
			return true
		}
	}
	return false
}

// classify maps jwt parse errors onto the validation failure reasons.
func classify(err error) *apperr.Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrExpired.Wrap(err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken.Wrap(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrInvalidSignature.Wrap(err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch.Wrap(err)
	default:
		return ErrMalformedToken.Wrap(err)
	}
}

func asAuthError(err error) *apperr.Error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e
	}
	return ErrMalformedToken.Wrap(err)
}
