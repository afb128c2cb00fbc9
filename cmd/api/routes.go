package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"user-gateway/internal/audit"
	"user-gateway/internal/auth"
	"user-gateway/internal/config"
	"user-gateway/internal/httpapi"
	"user-gateway/internal/identity"
	"user-gateway/internal/observability"
	"user-gateway/internal/pipeline"
	"user-gateway/internal/rbac"
	"user-gateway/internal/users"
	"user-gateway/pkg/utils"
)

type app struct {
	router *gin.Engine
	routes []pipeline.Mounted
	close  func()
}

// newApp wires dependencies and composes routes.
// Keep this file free of business logic.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, tp *sdktrace.TracerProvider) (*app, error) {
	realm := identity.Realm{ServerURL: cfg.OIDC.ServerURL, Name: cfg.OIDC.Realm}
	idpClient := &http.Client{Timeout: cfg.OIDC.HTTPTimeout}

	keys := auth.NewKeySet(realm.CertsURL(), idpClient, cfg.OIDC.KeyRefreshInterval)
	// A cold cache is fine; the first token triggers a fetch.
	if err := keys.Refresh(ctx); err != nil {
		log.Warn("jwks warmup failed", "certs_url", realm.CertsURL(), "err", err)
	}
	validator, err := auth.NewValidator(keys, auth.ValidatorConfig{
		Issuer:   realm.IssuerURL(),
		ClientID: cfg.OIDC.ClientID,
		Leeway:   cfg.OIDC.ClockSkew,
	})
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}

	exchanger, err := identity.NewExchanger(identity.ExchangerConfig{
		TokenURL:     realm.TokenURL(),
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		Scope:        cfg.OIDC.Scope,
	}, idpClient)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxConns: int32(cfg.DB.MaxConns)})
	if err != nil {
		return nil, fmt.Errorf("postgres %s: %w", cfg.PostgresAddr(), err)
	}
	closers := []func(){db.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pg := users.NewPostgresStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("users schema: %w", err)
	}
	var store users.Store = pg

	if cfg.RedisEnabled() {
		var rdb *redis.Client
		rcfg := utils.RedisConfig{Addr: cfg.RedisAddr(), CacheTTL: cfg.Redis.CacheTTL}
		rdb, err = utils.OpenRedis(ctx, rcfg)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr(), err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		store = users.NewCachedStore(pg, rdb, rcfg.TTL())
		log.Info("user cache enabled", "addr", cfg.RedisAddr(), "ttl", rcfg.TTL())
	}

	policy, err := rbac.NewAccessPolicy(cfg.OIDC.Audiences, cfg.OIDC.RequiredRoles)
	if err != nil {
		closeAll()
		return nil, err
	}

	router, table, err := httpapi.NewRouter(ctx, httpapi.RouterConfig{
		Title:       cfg.App.Name,
		Version:     cfg.App.Version,
		Logger:      log,
		Tracer:      observability.Tracer(tp),
		Metrics:     observability.NewMetrics(),
		Validator:   validator,
		Policy:      policy,
		CORSOrigins: cfg.CORS.AllowedOrigins,
		Handlers: httpapi.Handlers{
			Identity: exchanger,
			Users:    users.NewService(store, audit.NewService(audit.NewLogRepo(log), log)),
			Admin:    rbac.Admin(cfg.OIDC.AdminRole),
		},
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("routes: %w", err)
	}
	for _, r := range table {
		log.Debug("route", "group", r.Group, "method", r.Method, "path", r.Path, "stages", r.Stages)
	}

	return &app{router: router, routes: table, close: closeAll}, nil
}
