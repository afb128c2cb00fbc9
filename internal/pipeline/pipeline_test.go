package pipeline

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-gateway/internal/rbac"
)

func recorder(trace *[]string, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		*trace = append(*trace, name)
		c.Next()
	}
}

func noop(c *gin.Context) { c.Next() }

func ok(c *gin.Context) { c.Status(http.StatusOK) }

func testPolicy(t *testing.T) *rbac.AccessPolicy {
	t.Helper()
	p, err := rbac.NewAccessPolicy([]string{rbac.AudienceAccount}, []string{rbac.RoleUser})
	require.NoError(t, err)
	return &p
}

func TestValidate(t *testing.T) {
	policy := testPolicy(t)
	route := []Route{{Method: http.MethodGet, Path: "/x", Handler: ok}}

	cases := []struct {
		name  string
		group Group
		want  string
	}{
		{"tracing not first", Group{Name: "g", Stages: []Stage{Metrics(noop), Tracing(noop)}, Routes: route}, "first stage"},
		{"empty chain", Group{Name: "g", Routes: route}, "first stage"},
		{"authz before authn", Group{Name: "g", Policy: policy, Stages: []Stage{Tracing(noop), Authorization(*policy), Authentication(noop)}, Routes: route}, "must precede"},
		{"policy without authz", Group{Name: "g", Policy: policy, Stages: []Stage{Tracing(noop), Authentication(noop)}, Routes: route}, "needs authentication and authorization"},
		{"policy without authn", Group{Name: "g", Policy: policy, Stages: []Stage{Tracing(noop), Authorization(*policy)}, Routes: route}, "needs authentication and authorization"},
		{"authz without policy", Group{Name: "g", Stages: []Stage{Tracing(noop), Authentication(noop), Authorization(*policy)}, Routes: route}, "without a policy"},
		{"nil stage handler", Group{Name: "g", Stages: []Stage{Tracing(noop), Metrics(nil)}, Routes: route}, "no handler"},
		{"duplicate kind", Group{Name: "g", Stages: []Stage{Tracing(noop), Metrics(noop), Metrics(noop)}, Routes: route}, "duplicate"},
		{"nil route handler", Group{Name: "g", Stages: []Stage{Tracing(noop)}, Routes: []Route{{Method: http.MethodGet, Path: "/x"}}}, "no handler"},
		{"no routes", Group{Name: "g", Stages: []Stage{Tracing(noop)}}, "no routes"},
		{"unnamed", Group{Stages: []Stage{Tracing(noop)}, Routes: route}, "name is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.group.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGroup)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	valid := Group{Name: "private", Policy: policy, Stages: []Stage{Tracing(noop), Metrics(noop), Authentication(noop), Authorization(*policy)}, Routes: route}
	assert.NoError(t, valid.Validate())
}

func TestCompose_InvalidGroupRegistersNothing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	good := Group{Name: "public", Stages: []Stage{Tracing(noop)}, Routes: []Route{{Method: http.MethodGet, Path: "/", Handler: ok}}}
	bad := Group{Name: "broken", Stages: []Stage{Metrics(noop)}, Routes: []Route{{Method: http.MethodGet, Path: "/b", Handler: ok}}}

	table, err := Compose(r, good, bad)
	require.ErrorIs(t, err, ErrInvalidGroup)
	assert.Nil(t, table)
	assert.Empty(t, r.Routes())
}

func TestCompose_DetectsConflicts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	policy := testPolicy(t)

	a := Group{Name: "a", Stages: []Stage{Tracing(noop)}, Routes: []Route{{Method: http.MethodGet, Path: "/users/:id", Handler: ok}}}
	b := Group{Name: "b", Policy: policy, Stages: []Stage{Tracing(noop), Authentication(noop), Authorization(*policy)},
		Routes: []Route{{Method: http.MethodGet, Path: "/users/:user_id", Handler: ok}}}

	r := gin.New()
	_, err := Compose(r, a, b)
	require.ErrorIs(t, err, ErrRouteConflict)
	assert.Contains(t, err.Error(), `"b"`)
	assert.Empty(t, r.Routes())

	// Same path with a different method is fine.
	b.Routes[0].Method = http.MethodDelete
	_, err = Compose(gin.New(), a, b)
	assert.NoError(t, err)
}

func TestCompose_StageOrderAndTable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	policy := testPolicy(t)

	var trace []string
	private := Group{
		Name:   "private",
		Policy: policy,
		Stages: []Stage{
			Tracing(recorder(&trace, "tracing")),
			Metrics(recorder(&trace, "metrics")),
			Authentication(recorder(&trace, "authentication")),
			{Kind: KindAuthorization, Handler: recorder(&trace, "authorization")},
		},
		Routes: []Route{{Method: http.MethodGet, Path: "/users/:id", Summary: "get", Handler: func(c *gin.Context) {
			trace = append(trace, "handler")
			c.Status(http.StatusOK)
		}}},
	}
	public := Group{
		Name:   "public",
		Stages: []Stage{Tracing(noop), Metrics(noop)},
		Routes: []Route{{Method: http.MethodGet, Path: "/", Handler: ok}},
	}

	r := gin.New()
	table, err := Compose(r, public, private)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, Mounted{Group: "public", Method: "GET", Path: "/", Stages: []string{"tracing", "metrics"}}, table[0])
	assert.True(t, table[1].Protected)
	assert.Equal(t, "get", table[1].Summary)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tracing,metrics,authentication,authorization,handler", strings.Join(trace, ","))
}

func TestCompose_AuthorizationStageDeniesBeforeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	policy := testPolicy(t)

	reached := false
	g := Group{
		Name:   "private",
		Policy: policy,
		Stages: []Stage{Tracing(noop), Authentication(noop), Authorization(*policy)},
		Routes: []Route{{Method: http.MethodGet, Path: "/p", Handler: func(c *gin.Context) { reached = true }}},
	}
	r := gin.New()
	_, err := Compose(r, g)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/p", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, reached)
}

func TestShape(t *testing.T) {
	assert.Equal(t, "/users/:", shape("/users/:id"))
	assert.Equal(t, "/files/*", shape("/files/*rest"))
}
