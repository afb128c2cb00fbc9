// Package users owns the user resource: validation of inputs, the partial
// update command builder, the Postgres store, the Redis read-through cache
// and the service that ties them to the audit trail.
package users

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"user-gateway/internal/apperr"
)

// User is the stored resource. Email is null in JSON when absent.
type User struct {
	ID       uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    *string   `json:"email"`
}

// NewUser is the create payload. UserID is validated here rather than by the
// decoder so a bad id yields invalid_identifier.
type NewUser struct {
	UserID   string  `json:"user_id"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

// UpdateFields is the update payload; absent or blank fields are left alone.
type UpdateFields struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

var (
	ErrInvalidIdentifier = apperr.ClientInput("invalid_identifier", "user_id must be a UUID")
	ErrMissingUsername   = apperr.ClientInput("missing_username", "username is required")
	ErrInvalidEmail      = apperr.ClientInput("invalid_email", "email is not a valid address")
	ErrNoFieldsProvided  = apperr.ClientInput("no_fields_provided", "no fields provided")
	ErrInvalidBody       = apperr.ClientInput("invalid_body", "request body must be a JSON object")

	ErrUserNotFound = apperr.NotFound("user_not_found", "user not found")
	ErrUserExists   = apperr.Conflict("user_exists", "user already exists")
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func emailValid(s string) bool {
	validateOnce.Do(func() { validate = validator.New(validator.WithRequiredStructEnabled()) })
	return validate.Var(s, "required,email") == nil
}

// ParseID parses a path or body identifier.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, ErrInvalidIdentifier.Wrap(err)
	}
	return id, nil
}

// Validate turns the payload into a User. A blank email is treated as absent.
func (n NewUser) Validate() (User, error) {
	id, err := ParseID(n.UserID)
	if err != nil {
		return User{}, err
	}
	username := trimmed(n.Username)
	if username == nil {
		return User{}, ErrMissingUsername
	}
	email := trimmed(n.Email)
	if email != nil && !emailValid(*email) {
		return User{}, ErrInvalidEmail
	}
	return User{ID: id, Username: *username, Email: email}, nil
}

// trimmed returns nil for absent or whitespace-only values.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
