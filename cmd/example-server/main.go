package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/application"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"
	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

func main() {
	// Exemplo: embutindo o middleware direto no seu webserver (sem proxy,
	// sem Redis — janela deslizante em memória, uma instância só).
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	rules, err := domain.NewRuleSet([]domain.RateLimitRule{
		{ID: "ip-minute", Scope: domain.ScopeGlobalIP, Window: domain.WindowMinute, Limit: 60},
		{ID: "login-minute", Scope: domain.ScopeSensitiveEndpoint, Window: domain.WindowMinute, Limit: 5},
	}, []string{"/auth/login"})
	if err != nil {
		log.Fatalf("rules error: %v", err)
	}

	store := infra.NewMemoryWindowStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Evaluator:          application.Evaluator{Store: store, Logger: logger},
		Rules:              func() *domain.RuleSet { return rules },
		Logger:             logger,
		TrustXForwardedFor: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
