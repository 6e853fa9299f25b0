package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kruger4712/MealPrep-sub003/config"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/application"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	env, err := readEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(env.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	// Leitura simples só para descobrir o nível de log; o manager (com watcher)
	// nasce uma vez, já com o logger de verdade.
	boot, err := config.LoadFromFile(env.configPath)
	if err != nil {
		log.Fatalf("rules config error: %v", err)
	}

	logger, err := buildLogger(boot.Logger.Level)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Primeira carga do arquivo de regras é fatal; reloads ruins são
	// rejeitados mantendo o snapshot anterior.
	manager, err := config.NewManager(env.configPath, logger)
	if err != nil {
		log.Fatalf("rules config error: %v", err)
	}
	defer func() { _ = manager.Close() }()
	cfg := manager.Config()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_, err = rdb.Ping(pingCtx).Result()
	cancel()
	if err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	storeOpts := []infra.RedisWindowOption{infra.WithWindowLogger(logger)}
	if cfg.Store.CallTimeout > 0 {
		storeOpts = append(storeOpts, infra.WithCallTimeout(cfg.Store.CallTimeout.Std()))
	}
	if cfg.Store.KeyPrefix != "" {
		storeOpts = append(storeOpts, infra.WithWindowPrefix(cfg.Store.KeyPrefix))
	}
	windowStore := infra.NewRedisWindowStore(rdb, storeOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local := infra.NewLocalLimiter()
	local.StartJanitor(ctx)

	fallback := application.NewFallbackPolicy(
		cfg.FallbackMode(),
		cfg.Fallback.FailureThreshold,
		local,
		logger,
	)

	evaluator := application.Evaluator{
		Store:    windowStore,
		Fallback: fallback,
		Logger:   logger,
	}

	var stats domain.StatsStore
	if env.statsEnabled {
		stats = infra.NewRedisStatsStore(rdb, infra.WithStatsTrackKeys(env.statsTrackKeys))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            env.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: env.concurrencyTimeout,
	})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Evaluator:          evaluator,
		Rules:              manager.RuleSet,
		Stats:              stats,
		Metrics:            ratelimit.NewMetrics(),
		Logger:             logger,
		KeyHeader:          env.keyHeader,
		TrustXForwardedFor: env.trustXFF,
	})(h)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              env.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", env.listenAddr),
		zap.String("upstream", target.String()),
		zap.String("rules", env.configPath),
		zap.String("fallback", cfg.Fallback.Mode),
		zap.Int("concurrency_max", env.concurrencyMax))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}

type envConfig struct {
	listenAddr         string
	upstreamURL        string
	configPath         string
	keyHeader          string
	trustXFF           bool
	concurrencyMax     int
	concurrencyTimeout time.Duration
	statsEnabled       bool
	statsTrackKeys     bool
}

func readEnv() (envConfig, error) {
	env := envConfig{}
	env.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	env.upstreamURL = os.Getenv("UPSTREAM_URL")
	env.configPath = getenvDefault("CONFIG_PATH", "config.yaml")
	env.keyHeader = os.Getenv("KEY_HEADER")
	env.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	env.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	env.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)
	env.statsEnabled = getenvBoolDefault("STATS_ENABLED", false)
	env.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	if env.upstreamURL == "" {
		return envConfig{}, errors.New("UPSTREAM_URL is required")
	}
	if env.concurrencyMax < 0 {
		return envConfig{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return env, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
