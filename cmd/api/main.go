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
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-galeri/internal/auth"
	"github.com/noah-isme/backend-galeri/internal/cart"
	"github.com/noah-isme/backend-galeri/internal/catalog"
	"github.com/noah-isme/backend-galeri/internal/common"
	"github.com/noah-isme/backend-galeri/internal/config"
	"github.com/noah-isme/backend-galeri/internal/events"
	"github.com/noah-isme/backend-galeri/internal/health"
	"github.com/noah-isme/backend-galeri/internal/migrations"
	"github.com/noah-isme/backend-galeri/internal/obs"
	"github.com/noah-isme/backend-galeri/internal/payment"
	"github.com/noah-isme/backend-galeri/internal/purchase"
	"github.com/noah-isme/backend-galeri/internal/ratelimit"
	"github.com/noah-isme/backend-galeri/internal/resilience"
	"github.com/noah-isme/backend-galeri/internal/security"
	"github.com/noah-isme/backend-galeri/internal/settlement"
)

const serviceName = "galeri-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "galeri")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
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

	if cfg.MigrateOnStart {
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
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
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	profiles := catalog.CachedSource{
		Source: catalog.NewStore(pool),
		Cache:  catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Logger: &logger,
	}
	aggregator := &cart.Aggregator{Catalog: profiles}
	cartHandler := &cart.Handler{Agg: aggregator, Logger: &logger}

	limiterStore, err := ratelimit.NewRedisStore(redisClient, ratelimit.DefaultPrefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	quoteLimiter, err := ratelimit.New(limiterStore, cfg.QuoteRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote rate limiter")
	}
	quoteLimit := ratelimit.Handler{
		Limiter: quoteLimiter,
		Key:     common.ClientIP,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	purchases := purchase.NewPostgres(pool)
	purchaseHandler := &purchase.Handler{Store: purchases, Logger: &logger}

	// shares the API's Redis connection; closing redisClient releases it
	taskClient := asynq.NewClientFromRedisClient(redisClient)
	publisher := &events.Publisher{
		Client:   taskClient,
		Queue:    events.QueueDefault,
		MaxRetry: cfg.NotifyMaxRetry,
		Enabled:  cfg.NotifyEnabled,
		Logger:   &logger,
		Breaker:  resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("task-enqueue").WithLogger(&logger),
	}

	providers := paymentProviders(cfg)
	if len(providers) == 0 {
		logger.Fatal().Msg("no payment provider configured")
	}
	reconciler := &settlement.Reconciler{
		Store:     purchases,
		Verifiers: payment.Verifiers(providers...),
		TxTimeout: cfg.SettlementTxTimeout,
		Notifier:  publisher,
		Logger:    &logger,
	}
	webhookHandler := payment.NewWebhook(reconciler, &logger, providers...)

	authMiddleware := auth.Middleware{
		Tokens:       auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		AccessCookie: envOrDefault("AUTH_ACCESS_COOKIE", "access_token"),
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBuckets(envOrDefault("OBS_METRICS_BUCKETS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		providerNames := make([]string, 0, len(providers))
		for _, p := range providers {
			providerNames = append(providerNames, p.Name())
		}
		r.Use(obs.HTTPObs{Metrics: httpMetrics, Providers: providerNames}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     envBool("SECURE_HEADERS_ENABLED", true),
		EnableHSTS: envBool("SECURE_HSTS_ENABLED", false),
		HSTSMaxAge: envInt("SECURE_HSTS_MAX_AGE", 0),
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

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
		Dependencies: []health.Dependency{
			{Name: "postgres", Timeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500), Check: pool.Ping},
			{Name: "redis", Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300), Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}},
		},
		Logger: &logger,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(q chi.Router) {
			q.Use(quoteLimit.Middleware)
			q.Use(security.BodyLimit{Max: int64(envInt("QUOTE_MAX_BODY_BYTES", 64<<10))}.Middleware)
			q.Post("/cart/quote", cartHandler.Quote)
			q.Get("/galleries/{galleryId}/quote", cartHandler.GalleryQuote)
		})

		v.With(authMiddleware.RequireAuth).Get("/purchases", purchaseHandler.List)

		v.Post("/webhooks/payment/{provider}", webhookHandler.Handle)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(r, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
}

// paymentProviders enables every provider that has a secret configured.
func paymentProviders(cfg *config.Config) []payment.Provider {
	var providers []payment.Provider
	if cfg.StripeWebhookSecret != "" {
		providers = append(providers, payment.Stripe{
			WebhookSecret: cfg.StripeWebhookSecret,
			Tolerance:     cfg.StripeWebhookTolerance,
		})
	}
	if cfg.HMACWebhookSecret != "" {
		providers = append(providers, payment.HMAC{SecretKey: cfg.HMACWebhookSecret})
	}
	return providers
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
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
