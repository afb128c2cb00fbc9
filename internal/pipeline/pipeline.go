// Package pipeline composes route groups out of ordered, named stages and
// mounts them on a gin engine. All checks run at startup, before any route is
// registered, so a misordered or conflicting configuration never serves.
package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"user-gateway/internal/rbac"
)

type Kind string

const (
	KindTracing        Kind = "tracing"
	KindMetrics        Kind = "metrics"
	KindLogFilter      Kind = "log_filter"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
)

var (
	ErrInvalidGroup  = errors.New("pipeline: invalid group")
	ErrRouteConflict = errors.New("pipeline: route conflict")
)

type Stage struct {
	Kind    Kind
	Name    string
	Handler gin.HandlerFunc
}

type Route struct {
	Method  string
	Path    string
	Summary string
	Handler gin.HandlerFunc
}

// Group is a set of routes sharing one stage chain and, for protected groups,
// one access policy.
type Group struct {
	Name   string
	Stages []Stage
	Routes []Route
	Policy *rbac.AccessPolicy
}

// Mounted describes a registered route.
type Mounted struct {
	Group   string
	Method  string
	Path    string
	Summary string
	// Protected routes sit behind authentication and a route policy.
	Protected bool
	Stages    []string
}

func (g Group) invalid(format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidGroup, g.Name, fmt.Sprintf(format, args...))
}

// Validate checks stage order and policy consistency of a single group.
func (g Group) Validate() error {
	if g.Name == "" {
		return g.invalid("name is required")
	}
	if len(g.Stages) == 0 || g.Stages[0].Kind != KindTracing {
		return g.invalid("first stage must be %s", KindTracing)
	}

	pos := make(map[Kind]int, len(g.Stages))
	for i, s := range g.Stages {
		if s.Handler == nil {
			return g.invalid("stage %d (%s) has no handler", i, s.Kind)
		}
		switch s.Kind {
		case KindTracing, KindMetrics, KindLogFilter, KindAuthentication, KindAuthorization:
		default:
			return g.invalid("unknown stage kind %q", s.Kind)
		}
		if _, dup := pos[s.Kind]; dup {
			return g.invalid("duplicate %s stage", s.Kind)
		}
		pos[s.Kind] = i
	}

	authn, hasAuthn := pos[KindAuthentication]
	authz, hasAuthz := pos[KindAuthorization]
	if g.Policy != nil {
		if !hasAuthn || !hasAuthz {
			return g.invalid("a group with a policy needs %s and %s stages", KindAuthentication, KindAuthorization)
		}
	} else if hasAuthz {
		return g.invalid("%s stage without a policy", KindAuthorization)
	}
	if hasAuthz && (!hasAuthn || authn > authz) {
		return g.invalid("%s must precede %s", KindAuthentication, KindAuthorization)
	}

	if len(g.Routes) == 0 {
		return g.invalid("no routes")
	}
	for _, r := range g.Routes {
		if r.Handler == nil {
			return g.invalid("route %s %s has no handler", r.Method, r.Path)
		}
		if !strings.HasPrefix(r.Path, "/") {
			return g.invalid("route path %q must start with /", r.Path)
		}
		if !knownMethod(r.Method) {
			return g.invalid("route %s %s has an unsupported method", r.Method, r.Path)
		}
	}
	return nil
}

// Compose validates every group, rejects overlapping method and path pairs
// across (and within) groups, then registers the routes on r. Each route's
// chain is the group stages in order followed by the handler, so the handler
// always runs last.
func Compose(r gin.IRoutes, groups ...Group) ([]Mounted, error) {
	var errs []error
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	owner := make(map[string]string)
	for _, g := range groups {
		for _, rt := range g.Routes {
			key := rt.Method + " " + shape(rt.Path)
			if prev, ok := owner[key]; ok {
				errs = append(errs, fmt.Errorf("%w: %s %s in %q overlaps a route in %q", ErrRouteConflict, rt.Method, rt.Path, g.Name, prev))
				continue
			}
			owner[key] = g.Name
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var table []Mounted
	for _, g := range groups {
		names := make([]string, 0, len(g.Stages))
		chain := make([]gin.HandlerFunc, 0, len(g.Stages)+1)
		for _, s := range g.Stages {
			chain = append(chain, s.Handler)
			names = append(names, stageName(s))
		}
		for _, rt := range g.Routes {
			handlers := append(append([]gin.HandlerFunc(nil), chain...), rt.Handler)
			r.Handle(rt.Method, rt.Path, handlers...)
			table = append(table, Mounted{
				Group:     g.Name,
				Method:    rt.Method,
				Path:      rt.Path,
				Summary:   rt.Summary,
				Protected: g.Policy != nil,
				Stages:    names,
			})
		}
	}
	return table, nil
}

// shape erases parameter names: gin cannot register /a/:x next to /a/:y.
func shape(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		switch {
		case strings.HasPrefix(p, ":"):
			parts[i] = ":"
		case strings.HasPrefix(p, "*"):
			parts[i] = "*"
		}
	}
	return strings.Join(parts, "/")
}

func stageName(s Stage) string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

func knownMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}
