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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/kasir-api/internal/business"
	"github.com/noah-isme/kasir-api/internal/catalog"
	"github.com/noah-isme/kasir-api/internal/common"
	"github.com/noah-isme/kasir-api/internal/config"
	"github.com/noah-isme/kasir-api/internal/customer"
	"github.com/noah-isme/kasir-api/internal/events"
	"github.com/noah-isme/kasir-api/internal/health"
	"github.com/noah-isme/kasir-api/internal/lock"
	"github.com/noah-isme/kasir-api/internal/obs"
	"github.com/noah-isme/kasir-api/internal/order"
	"github.com/noah-isme/kasir-api/internal/ratelimit"
	"github.com/noah-isme/kasir-api/internal/refund"
	"github.com/noah-isme/kasir-api/internal/sale"
	"github.com/noah-isme/kasir-api/internal/scan"
	"github.com/noah-isme/kasir-api/internal/security"
	"github.com/noah-isme/kasir-api/internal/stock"
	"github.com/noah-isme/kasir-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "kasir")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "kasir-api",
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
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrationsAuto {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
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
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "kasir-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	db := &store.DB{Pool: pool}

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

	bus := &events.Bus{
		Store:     store.Events{DB: db},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}},
	}

	var alerts stock.Alerter
	if cfg.LowStockAlerts {
		taskClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisOpts.Addr,
			Username: redisOpts.Username,
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		})
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		alerts = stock.Alerter{Client: taskClient, Queue: stock.DefaultQueue, Dedup: time.Hour}
	}

	products := store.Products{DB: db}
	customers := store.Customers{DB: db}
	sales := store.Sales{DB: db}
	defaults := store.Settings{
		Name:              "default",
		DefaultTaxRate:    cfg.DefaultTaxRate,
		LowStockThreshold: cfg.LowStockThreshold,
	}
	settings := store.Businesses{DB: db, Fallback: defaults}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Products: products,
		Cache:    catalog.NewProductCache(redisClient, cfg.CatalogCacheTTL),
		Tx:       db,
		Events:   bus,
		Alerts:   alerts,
		Settings: settings,
		Logger:   logger.With().Str("component", "catalog").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	customerHandler := &customer.Handler{Svc: &customer.Service{
		Store:  customers,
		Logger: logger.With().Str("component", "customer").Logger(),
	}}

	saleSvc := &sale.Service{
		Tx:        db,
		Products:  products,
		Sales:     sales,
		Customers: customers,
		Settings:  settings,
		Defaults:  defaults,
		Alerts:    alerts,
		Events:    bus,
		Logger:    logger.With().Str("component", "sale").Logger(),
	}
	saleHandler := &sale.Handler{Svc: saleSvc}

	orderHandler := &order.Handler{Svc: &order.Service{
		Tx:        db,
		Orders:    store.Orders{DB: db},
		Catalog:   products,
		Customers: customers,
		Settings:  settings,
		Defaults:  defaults,
		Sales:     saleSvc,
		Events:    bus,
		Logger:    logger.With().Str("component", "order").Logger(),
	}}

	refundHandler := &refund.Handler{Svc: &refund.Service{
		Tx:      db,
		Sales:   sales,
		Refunds: store.Refunds{DB: db},
		Stock:   products,
		Lock:    lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff, Wait: cfg.RefundLockTTL},
		LockTTL: cfg.RefundLockTTL,
		Events:  bus,
		Logger:  logger.With().Str("component", "refund").Logger(),
	}}

	scanHandler := &scan.Handler{Svc: &scan.Service{
		Catalog:   catalogService,
		Debouncer: scan.RedisDebouncer{R: redisClient},
		Cooldown:  cfg.ScanCooldown,
		Logger:    logger.With().Str("component", "scan").Logger(),
	}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Scope: business.Scope}
	limiterErr := func(r *http.Request, key string, err error) {
		logger.Warn().Err(err).Str("key", key).Str("path", r.URL.Path).Msg("rate limiter unavailable")
	}
	writeLimit := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: redisClient, Prefix: "rl:writes:"},
		Config:  ratelimit.Config{Key: writerKey, Window: time.Minute, Max: cfg.RateLimitWritesPerMin},
		OnError: limiterErr,
	}
	scanWindow, err := ratelimit.NewFixedWindow(redisClient, "rl:scan", cfg.RateLimitScanPerMin, time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise scan limiter")
	}
	scanLimit := ratelimit.Handler{
		Limiter: scanWindow,
		Config:  ratelimit.Config{Key: scan.TerminalKey, Window: time.Minute, Max: cfg.RateLimitScanPerMin},
		OnError: limiterErr,
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
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
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production", HSTSMaxAge: 31536000}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			business.Header, scan.TerminalHeader, common.OperatorHeader, common.IdempotencyHeader,
		},
		ExposedHeaders: []string{"X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"postgres": db.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	resolver := business.NewResolver(business.Header, envOrDefault("DEFAULT_BUSINESS_ID", ""))
	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Use(resolver.Middleware)
		v.Use(common.Operator)
		v.Use(writesOnly(writeLimit.Middleware))
		v.Use(writesOnly(idem.Middleware))

		v.Route("/products", catalogHandler.Routes)
		v.Route("/customers", customerHandler.Routes)
		v.Route("/sales", func(s chi.Router) {
			saleHandler.Routes(s)
			s.Route("/{saleId}/refunds", refundHandler.Routes)
		})
		v.Route("/orders", orderHandler.Routes)
		v.With(scanLimit.Middleware).Post("/scan", scanHandler.Scan)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}
	drain(srv, logger, envDurationMillis("SHUTDOWN_GRACE_MS", 15000))
}

// drain fails readiness first so load balancers stop routing, then waits for
// in-flight requests.
func drain(srv *http.Server, logger zerolog.Logger, grace time.Duration) {
	health.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

// writesOnly applies mw to state-changing methods.
func writesOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				wrapped.ServeHTTP(w, r)
			}
		})
	}
}

// writerKey buckets writes per business and operator, falling back to the client IP.
func writerKey(r *http.Request) string {
	biz := business.Scope(r)
	if op, ok := common.OperatorID(r.Context()); ok {
		return biz + ":op:" + op
	}
	return biz + ":ip:" + common.ClientIP(r)
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
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
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
