package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/mazra-app/backend-gate/internal/auth"
	"github.com/mazra-app/backend-gate/internal/common"
	"github.com/mazra-app/backend-gate/internal/config"
	"github.com/mazra-app/backend-gate/internal/csrf"
	"github.com/mazra-app/backend-gate/internal/health"
	"github.com/mazra-app/backend-gate/internal/obs"
	"github.com/mazra-app/backend-gate/internal/ratelimit"
	"github.com/mazra-app/backend-gate/internal/redirect"
	"github.com/mazra-app/backend-gate/internal/report"
	"github.com/mazra-app/backend-gate/internal/security"
	"github.com/mazra-app/backend-gate/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", obs.DefaultNamespace)
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterGateMetrics(nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   obs.DefaultServiceName,
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: a single-process deployment runs on the local
	// fixed-window limiter, a scaled one shares counters through Redis.
	var (
		redisClient   *redis.Client
		reportLimiter ratelimit.Limiter
		socketLimiter ratelimit.Limiter
		checker       health.Checker
	)
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if tracingEnabled {
			if err := redisotel.InstrumentTracing(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis tracing")
			}
		}
		if metricsEnabled {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		cancel()

		store, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "gate:ratelimit",
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise redis rate limit store")
		}
		shared := ratelimit.StoreLimiter{Store: store}
		reportLimiter = shared
		socketLimiter = shared
		checker = redisChecker{client: redisClient}
	} else {
		memory := ratelimit.NewMemory()
		sweepWindow := cfg.ReportRateWindow
		if cfg.SocketRateWindow < sweepWindow {
			sweepWindow = cfg.SocketRateWindow
		}
		go memory.Sweep(rootCtx, sweepWindow)
		reportLimiter = memory
		socketLimiter = memory
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: cfg.JWTClockSkew,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.SocketTokenAud,
		TTL:      cfg.SocketTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise socket token issuer")
	}

	guard := csrf.Guard{
		CookieName:     cfg.CSRFCookieName,
		HeaderName:     cfg.CSRFHeaderName,
		ExemptPrefixes: cfg.CSRFExemptPaths,
		TTL:            cfg.CSRFTokenTTL,
		CookieDomain:   cfg.CookieDomain,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: cfg.CookieSameSite,
	}
	sanitizer := redirect.Sanitizer{
		AllowList: cfg.ReturnToAllowList,
		Default:   cfg.ReturnToDefaultPath,
	}

	authMiddleware := auth.Middleware{
		Verifier:     verifier,
		AccessCookie: cfg.AccessCookieName,
		Logger:       logger,
	}
	authHandler := &auth.Handler{
		Verifier:         verifier,
		Issuer:           issuer,
		CSRF:             guard,
		Redirects:        sanitizer,
		Logger:           logger,
		AccessCookieName: cfg.AccessCookieName,
		CookieDomain:     cfg.CookieDomain,
		CookieSecure:     cfg.CookieSecure,
		CookieSameSite:   cfg.CookieSameSite,
	}

	reportHandler := &report.Handler{
		Logger:   logger,
		Validate: report.NewValidator(),
	}
	if cfg.ReportForwardURL != "" {
		reportHandler.Forwarder = &report.Forwarder{
			URL:     cfg.ReportForwardURL,
			Client:  report.NewHTTPClient(5 * time.Second),
			Breaker: report.NewBreaker(5, 0.5, 30*time.Second, logger),
		}
	}

	rateLimitError := func(err error) {
		logger.Error().Err(err).Msg("rate limit store unavailable, failing open")
	}
	reportLimit := ratelimit.Handler{
		Limiter: reportLimiter,
		Config: ratelimit.Config{
			Name:   "csp_report",
			Key:    func(r *http.Request) string { return "report:" + common.ClientIP(r) },
			Window: cfg.ReportRateWindow,
			Max:    cfg.ReportRateMax,
		},
		OnError: rateLimitError,
	}
	socketLimit := ratelimit.Handler{
		Limiter: socketLimiter,
		Config: ratelimit.Config{
			Name:   "ws_token",
			Key:    socketRateKey,
			Window: cfg.SocketRateWindow,
			Max:    cfg.SocketRateMax,
		},
		OnError: rateLimitError,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	securityHeaders := security.Headers{
		Enable:                envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS:            envBool("SECURE_HSTS_ENABLE", cfg.AppEnv == "production"),
		HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", true),
		ReportOnlyCSP:         envOrDefault("SECURE_CSP_REPORT_ONLY", ""),
		ReportEndpoint:        "/api/v1/csp-report",
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.CSRFHeaderName},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(securityHeaders.Middleware)
	r.Use(guard.Middleware(logger))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", false)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      checker,
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	reportBody := security.BodyLimit{Max: cfg.ReportMaxBodyKB * 1024}

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.Post("/session", authHandler.EstablishSession)
			a.Delete("/session", authHandler.ClearSession)
			a.With(authMiddleware.Authenticate).Get("/continue", authHandler.Continue)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Get("/csrf", guard.IssueHandler(logger))

		v.With(reportBody.Middleware, reportLimit.Middleware).
			Post("/csp-report", reportHandler.Ingest)

		v.Group(func(ws chi.Router) {
			ws.Use(authMiddleware.RequireAuth)
			ws.Use(tenant.FromClaims)
			ws.Use(tenant.RequireTenant)
			ws.Use(socketLimit.Middleware)
			ws.Post("/ws/token", authHandler.SocketToken)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("gate starting")
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

// socketRateKey buckets socket-token mints per authenticated identity.
// The route sits behind RequireAuth, so claims are always present here.
func socketRateKey(r *http.Request) string {
	if claims, ok := common.ClaimsFrom(r.Context()); ok {
		return "socket:" + tenant.PrefixKey(claims.TenantID, claims.Subject)
	}
	return "socket:" + common.ClientIP(r)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type redisChecker struct {
	client *redis.Client
}

func (c redisChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.client == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
