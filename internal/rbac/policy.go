// Package rbac decides whether validated claims satisfy an access policy.
// There are two independent checks: the coarse route policy applied as a
// pipeline stage, and fine-grained operation policies applied by handlers.
package rbac

import (
	"errors"
	"fmt"
	"strings"

	"user-gateway/internal/apperr"
	"user-gateway/internal/auth"
)

var (
	ErrMissingAudience = apperr.Authorization("missing_audience", "token audience not permitted for this route")
	ErrMissingRole     = apperr.Authorization("missing_role", "token lacks a required role")

	ErrInsufficientPrivileges = apperr.Forbidden("insufficient_privileges", "insufficient privileges")
)

// AccessPolicy is fixed per route group at startup.
type AccessPolicy struct {
	requiredAudiences []string
	requiredRoles     []string
}

// NewAccessPolicy copies its inputs; the policy cannot be changed afterwards.
func NewAccessPolicy(audiences, roles []string) (AccessPolicy, error) {
	if len(audiences) == 0 {
		return AccessPolicy{}, errors.New("rbac: access policy needs at least one audience")
	}
	return AccessPolicy{
		requiredAudiences: clean(audiences),
		requiredRoles:     clean(roles),
	}, nil
}

func (p AccessPolicy) RequiredAudiences() []string { return append([]string(nil), p.requiredAudiences...) }
func (p AccessPolicy) RequiredRoles() []string     { return append([]string(nil), p.requiredRoles...) }

func (p AccessPolicy) String() string {
	return fmt.Sprintf("audiences=%s roles=%s", strings.Join(p.requiredAudiences, ","), strings.Join(p.requiredRoles, ","))
}

// Enforce allows when at least one required audience is present and every
// required role is held.
func (p AccessPolicy) Enforce(c auth.Claims) error {
	audOK := false
	for _, a := range p.requiredAudiences {
		if c.HasAudience(a) {
			audOK = true
			break
		}
	}
	if !audOK {
		return ErrMissingAudience
	}
	for _, r := range p.requiredRoles {
		if !c.HasRole(r) {
			return ErrMissingRole.Wrap(fmt.Errorf("role %q", r))
		}
	}
	return nil
}

// OperationPolicy guards a single operation (e.g. a mutation) on top of the
// route policy.
type OperationPolicy struct {
	name  string
	roles []string
}

func NewOperationPolicy(name string, roles ...string) OperationPolicy {
	return OperationPolicy{name: name, roles: clean(roles)}
}

func (o OperationPolicy) Name() string { return o.name }

// Check requires every role of the policy.
func (o OperationPolicy) Check(c auth.Claims) error {
	for _, r := range o.roles {
		if !c.HasRole(r) {
			return ErrInsufficientPrivileges.Wrap(fmt.Errorf("%s requires role %q", o.name, r))
		}
	}
	return nil
}

// Admin is the operation policy for destructive user operations.
func Admin(role string) OperationPolicy {
	if role == "" {
		role = RoleAdministrator
	}
	return NewOperationPolicy("admin", role)
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
