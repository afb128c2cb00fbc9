package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"user-gateway/internal/auth"
	"user-gateway/internal/observability"
	"user-gateway/internal/openapi"
	"user-gateway/internal/pipeline"
	"user-gateway/internal/rbac"
	"user-gateway/pkg/logger"
)

const metricsPath = "/metrics"

type RouterConfig struct {
	Title   string
	Version string

	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   *observability.Metrics
	Validator *auth.Validator
	// Policy is the route policy of the private group.
	Policy rbac.AccessPolicy

	CORSOrigins []string
	Handlers    Handlers
}

// NewRouter composes the public, private and scrape groups and publishes
// the API document built from the resulting route table.
func NewRouter(ctx context.Context, cfg RouterConfig) (*gin.Engine, []pipeline.Mounted, error) {
	if cfg.Logger == nil || cfg.Tracer == nil || cfg.Metrics == nil || cfg.Validator == nil {
		return nil, nil, errors.New("httpapi: logger, tracer, metrics and validator are required")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", logger.HeaderRequestID},
			ExposeHeaders: []string{"Content-Length", logger.HeaderRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}

	tracing := pipeline.Tracing(observability.Tracing(cfg.Tracer, cfg.Logger))
	metrics := pipeline.Metrics(cfg.Metrics.Middleware())
	h := cfg.Handlers
	doc := &openapi.Document{}
	policy := cfg.Policy

	public := pipeline.Group{
		Name:   "public",
		Stages: []pipeline.Stage{tracing, metrics},
		Routes: []pipeline.Route{
			{Method: http.MethodGet, Path: "/", Summary: "Service health", Handler: h.Root},
			{Method: http.MethodPost, Path: "/login", Summary: "Exchange credentials for tokens", Handler: h.Login},
			{Method: http.MethodGet, Path: "/api.json", Summary: "OpenAPI document", Handler: doc.Handler()},
		},
	}
	private := pipeline.Group{
		Name:   "private",
		Policy: &policy,
		Stages: []pipeline.Stage{
			tracing,
			metrics,
			pipeline.Authentication(auth.RequireAccessToken(cfg.Validator)),
			pipeline.Authorization(policy),
		},
		Routes: []pipeline.Route{
			{Method: http.MethodGet, Path: "/users/:id", Summary: "Fetch a user", Handler: h.GetUser},
			{Method: http.MethodPost, Path: "/users", Summary: "Create a user", Handler: h.CreateUser},
			{Method: http.MethodPut, Path: "/users/:id", Summary: "Update a user", Handler: h.UpdateUser},
			{Method: http.MethodDelete, Path: "/users/:id", Summary: "Delete a user", Handler: h.DeleteUser},
		},
	}
	scrape := pipeline.Group{
		Name: "scrape",
		Stages: []pipeline.Stage{
			tracing,
			pipeline.LogFilter(observability.SuppressLogs(metricsPath)),
			metrics,
		},
		Routes: []pipeline.Route{
			{Method: http.MethodGet, Path: metricsPath, Summary: "Prometheus metrics", Handler: gin.WrapH(cfg.Metrics.Handler())},
		},
	}

	table, err := pipeline.Compose(r, public, private, scrape)
	if err != nil {
		return nil, nil, err
	}
	if err := doc.Publish(ctx, cfg.Title, cfg.Version, table); err != nil {
		return nil, nil, err
	}
	return r, table, nil
}
