package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env, optionally pre-populated from an env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	OIDC  OIDCConfig
	CORS  CORSConfig
}

type AppConfig struct {
	Env      string
	Host     string
	Port     int
	Name     string
	Version  string
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// MaxConns bounds concurrent pool checkouts. Requests beyond it wait
	// for a release.
	MaxConns int
}

// RedisConfig is optional; an empty Host disables the user cache.
type RedisConfig struct {
	Host     string
	Port     int
	CacheTTL time.Duration
}

type OIDCConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
	Scope        string

	// Audiences and RequiredRoles form the route policy of the private group.
	Audiences     []string
	RequiredRoles []string
	AdminRole     string

	KeyRefreshInterval time.Duration
	HTTPTimeout        time.Duration
	ClockSkew          time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

const defaultEnvFile = ".env"

func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("APP_ENV_FILE"))
	if envFile == "" {
		envFile = defaultEnvFile
	}
	// A missing env file is fine; real deployments inject env directly.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Host = strings.TrimSpace(os.Getenv("APP_HOST"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.Name = stringOr("APP_NAME", "API Server Template")
	c.App.Version = stringOr("APP_VERSION", "0.1")
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	{
		n, err := optionalInt("DB_MAX_CONNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxConns = n
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	{
		d, err := optionalDuration("USER_CACHE_TTL")
		d, parseErrs = appendParseErr(parseErrs, d, err)
		c.Redis.CacheTTL = d
	}

	c.OIDC.ServerURL = stringOr("OIDC_SERVER_URL", "http://localhost:8080/")
	c.OIDC.Realm = stringOr("OIDC_REALM", "api-template")
	c.OIDC.ClientID = strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID"))
	c.OIDC.ClientSecret = os.Getenv("OIDC_CLIENT_SECRET")
	c.OIDC.Scope = stringOr("OIDC_SCOPE", "email openid")
	c.OIDC.Audiences = listOr("OIDC_AUDIENCES", []string{"account"})
	c.OIDC.RequiredRoles = listOr("OIDC_REQUIRED_ROLES", []string{"user"})
	c.OIDC.AdminRole = stringOr("OIDC_ADMIN_ROLE", "administrator")
	for key, dst := range map[string]*time.Duration{
		"OIDC_KEY_REFRESH_INTERVAL": &c.OIDC.KeyRefreshInterval,
		"OIDC_HTTP_TIMEOUT":         &c.OIDC.HTTPTimeout,
		"OIDC_CLOCK_SKEW":           &c.OIDC.ClockSkew,
	} {
		d, err := optionalDuration(key)
		d, parseErrs = appendParseErr(parseErrs, d, err)
		*dst = d
	}

	c.CORS.AllowedOrigins = listOr("CORS_ALLOWED_ORIGINS", nil)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and applies defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DB.MaxConns))
	} else if c.DB.MaxConns == 0 {
		c.DB.MaxConns = 5
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}

	if u, err := url.Parse(c.OIDC.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("OIDC_SERVER_URL must be an absolute URL, got %q", c.OIDC.ServerURL))
	} else if c.IsProduction() && u.Scheme != "https" {
		errs = append(errs, errors.New("OIDC_SERVER_URL must use https in production"))
	}
	if c.OIDC.Realm == "" {
		errs = append(errs, errors.New("OIDC_REALM is required"))
	}
	if c.OIDC.ClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required"))
	}
	if c.OIDC.ClientSecret == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_SECRET is required"))
	}
	if len(c.OIDC.Audiences) == 0 {
		errs = append(errs, errors.New("OIDC_AUDIENCES must name at least one audience"))
	}
	if c.OIDC.AdminRole == "" {
		errs = append(errs, errors.New("OIDC_ADMIN_ROLE is required"))
	}
	if c.OIDC.KeyRefreshInterval <= 0 {
		c.OIDC.KeyRefreshInterval = 30 * time.Second
	}
	if c.OIDC.HTTPTimeout <= 0 {
		c.OIDC.HTTPTimeout = 10 * time.Second
	}
	if c.OIDC.ClockSkew <= 0 {
		c.OIDC.ClockSkew = 30 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// PostgresAddr is the loggable part of the DSN.
func (c Config) PostgresAddr() string {
	return fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port)
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func stringOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func listOr(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr[T any](errs []error, v T, err error) (T, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
