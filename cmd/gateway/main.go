package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/synapsys-ai/edge-gateway/internal/audit"
	"github.com/synapsys-ai/edge-gateway/internal/config"
	"github.com/synapsys-ai/edge-gateway/internal/guard"
	"github.com/synapsys-ai/edge-gateway/internal/pkg/safehttp"
	"github.com/synapsys-ai/edge-gateway/internal/ratelimit"
	"github.com/synapsys-ai/edge-gateway/internal/server"
	"github.com/synapsys-ai/edge-gateway/internal/telemetry"
	"github.com/synapsys-ai/edge-gateway/internal/upstream"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("synapsys-edge-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	limiter, err := buildLimiter(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}

	recorder, err := buildRecorder(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open access log: %v", err)
	}
	defer recorder.Close()

	client := upstream.New(
		cfg.Upstream.BaseURL,
		cfg.Upstream.SenderID,
		cfg.Upstream.SigningSecret,
		upstream.WithTimeout(cfg.UpstreamTimeout()),
		upstream.WithHTTPClient(safehttp.NewClient()),
	)

	// Ordering is load-bearing: identity first, rate limit before the
	// payload is parsed, validation last.
	chain := guard.NewChain(logger,
		guard.NewIdentityGuard(),
		guard.NewRateLimitGuard(limiter, logger),
		guard.NewValidatorGuard(cfg.Validation.MaxChars),
	)

	chat := server.NewChatHandler(chain, client, recorder, cfg.Limiter.Burst, logger)
	health := server.NewHealthHandler(client)

	// The inbound deadline trails the outbound one so a slow broker is
	// reported as a 503 by the handler, not cut off mid-flight.
	requestTimeout := cfg.UpstreamTimeout() + 10*time.Second

	srv := server.New(cfg.Server.Port, requestTimeout, logger)
	srv.Router.Post("/api/chat", chat.HandleChat)
	srv.Router.Get("/health", health.HandleHealth)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-sigChan:
	}

	logger.Info("shutdown signal received, draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}

func buildLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	limit := ratelimit.Limit{
		RatePerMinute: cfg.Limiter.RatePerMinute,
		Burst:         cfg.Limiter.Burst,
	}

	if cfg.Limiter.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Limiter.RedisAddr})
		limiter, err := ratelimit.NewRedisLimiter(client, limit)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	}

	limiter, err := ratelimit.NewMemoryLimiter(limit, cfg.Limiter.MaxKeys)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

func buildRecorder(cfg *config.Config, logger *slog.Logger) (audit.Recorder, error) {
	if cfg.Audit.Path == "" {
		return audit.NopRecorder{}, nil
	}
	store, err := audit.NewStore(cfg.Audit.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("access log enabled", slog.String("path", cfg.Audit.Path))
	return store, nil
}
