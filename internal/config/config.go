package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds gate configuration loaded from the environment at process
// start. Every checker reads from it; none of them re-read the environment.
type Config struct {
	AppEnv string
	Port   string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTClockSkew time.Duration

	AccessCookieName string
	CSRFCookieName   string
	CSRFHeaderName   string
	CSRFTokenTTL     time.Duration
	CSRFExemptPaths  []string

	ReturnToAllowList   []string
	ReturnToDefaultPath string

	ReportRateWindow time.Duration
	ReportRateMax    int
	ReportMaxBodyKB  int64
	ReportForwardURL string
	SocketRateWindow time.Duration
	SocketRateMax    int
	SocketTokenTTL   time.Duration
	SocketTokenAud   string

	RedisURL           string
	CORSAllowedOrigins []string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     http.SameSite
}

// Load reads configuration from environment variables and optional .env
// files. Missing verification material is a startup error, never a
// silently skipped check.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv: valueOrDefault(k.String("APP_ENV"), "development"),
		Port:   valueOrDefault(k.String("PORT"), "8080"),

		JWTSecret:    strings.TrimSpace(k.String("JWT_SECRET")),
		JWTIssuer:    strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:  strings.TrimSpace(k.String("JWT_AUDIENCE")),
		JWTClockSkew: parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),

		AccessCookieName: valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "mz_access"),
		CSRFCookieName:   valueOrDefault(k.String("CSRF_COOKIE_NAME"), "mz_csrf"),
		CSRFHeaderName:   valueOrDefault(k.String("CSRF_HEADER_NAME"), "X-CSRF-Token"),
		CSRFTokenTTL:     parseDuration(k.String("CSRF_TOKEN_TTL"), "24h"),
		CSRFExemptPaths: splitAndTrim(valueOrDefault(k.String("CSRF_EXEMPT_PATHS"),
			"/api/v1/auth/session,/api/v1/auth/continue,/api/v1/csp-report,/health")),

		ReturnToAllowList: splitAndTrim(valueOrDefault(k.String("RETURN_TO_ALLOWLIST"),
			"/dashboard,/fields,/weather,/community,/settings,/app")),
		ReturnToDefaultPath: valueOrDefault(k.String("RETURN_TO_DEFAULT"), "/dashboard"),

		ReportRateWindow: parseDuration(k.String("REPORT_RATE_WINDOW"), "1m"),
		ReportRateMax:    intOrDefault(k, "REPORT_RATE_MAX", 10),
		ReportMaxBodyKB:  int64(intOrDefault(k, "REPORT_MAX_BODY_KB", 16)),
		ReportForwardURL: strings.TrimSpace(k.String("REPORT_FORWARD_URL")),
		SocketRateWindow: parseDuration(k.String("SOCKET_RATE_WINDOW"), "1m"),
		SocketRateMax:    intOrDefault(k, "SOCKET_RATE_MAX", 30),
		SocketTokenTTL:   parseDuration(k.String("SOCKET_TOKEN_TTL"), "60s"),
		SocketTokenAud:   valueOrDefault(k.String("SOCKET_TOKEN_AUD"), "mazra-socket"),

		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CookieDomain:       strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:     parseSameSite(k.String("COOKIE_SAMESITE")),
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.JWTIssuer == "" {
		return nil, errors.New("JWT_ISSUER is required")
	}
	if cfg.JWTAudience == "" {
		return nil, errors.New("JWT_AUDIENCE is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if !k.Exists(key) {
		return fallback
	}
	v := k.Int(key)
	if v <= 0 {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and
// command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without
// leaking into the real environment.
func LoadForTests(envs map[string]string) (*Config, error) {
	original := make(map[string]string, len(envs))
	for key := range envs {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, envs[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
