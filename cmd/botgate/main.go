package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/clock"
	"github.com/botgate-io/botgate/internal/config"
	dbRedis "github.com/botgate-io/botgate/internal/db/redis"
	"github.com/botgate-io/botgate/internal/domain"
	"github.com/botgate-io/botgate/internal/domain/model"
	logpkg "github.com/botgate-io/botgate/internal/logger"
	"github.com/botgate-io/botgate/internal/metrics"
	quotarepo "github.com/botgate-io/botgate/internal/repository/quota"
	chiTransport "github.com/botgate-io/botgate/internal/transport/chi"
	openaiChat "github.com/botgate-io/botgate/internal/transport/openai"
	healthuc "github.com/botgate-io/botgate/internal/usecase/health"
	quotauc "github.com/botgate-io/botgate/internal/usecase/quota"
	"github.com/botgate-io/botgate/internal/usecase/quota/sweeper"
	"github.com/botgate-io/botgate/internal/usecase/registry"
	responduc "github.com/botgate-io/botgate/internal/usecase/respond"
	"github.com/botgate-io/botgate/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting botgate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("timezone", cfg.Quota.Timezone),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register domain metrics explicitly (no init())
	metrics.RegisterRespondMetrics()

	periods, err := clock.NewPeriods(cfg.Quota.Timezone)
	if err != nil {
		logger.Fatal("Invalid quota timezone", zap.Error(err))
	}
	clk := clock.System{}

	// Quota ledger
	quotaStore := quotarepo.New(store, cfg.Storage.KeyPrefix)
	ledger := quotauc.New(quotaStore, clk, periods, cfg.Quota.DefaultLimit, cfg.Quota.AdminUserIDs, logger)

	// Provider registry and model table
	providers, models := chatConfig(cfg.Chat)
	reg, err := registry.New(providers, models, cfg.Chat.DefaultProvider, logger)
	if err != nil {
		logger.Fatal("Invalid chat configuration", zap.Error(err))
	}

	// One OpenAI-compatible client per configured provider
	responders := make(map[string]domain.Responder, len(providers))
	checkers := make(map[string]healthuc.ProviderChecker, len(providers))
	for _, p := range providers {
		r := openaiChat.NewResponder(&openaiChat.Config{
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Provider: p.Key,
			Logger:   logger,
		})
		responders[p.Key] = r
		checkers[p.Key] = r
	}
	logger.Info("Chat providers created",
		zap.Int("providers", len(providers)),
		zap.Int("model_entries", len(models)),
		zap.String("default_provider", cfg.Chat.DefaultProvider),
	)

	respondSvc := responduc.New(ledger, reg, responders, logger)
	healthSvc := healthuc.New(store, checkers)

	server := chiTransport.NewServer(respondSvc, ledger, reg, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes(chiTransport.AdminAuthMiddleware(cfg.Auth.AdminKeys)))

	// Background reset sweeper
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sw := sweeper.New(quotaStore, clk, periods, cfg.Quota.SweepInterval(), logger)
	go sw.Run(sweepCtx)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// chatConfig flattens the YAML provider map and model table into the
// registry's declaration-order inputs. The default-scope entries come first,
// then per-command entries; within a list YAML order is preserved.
func chatConfig(cfg config.ChatConfig) ([]model.ProviderConfig, []model.ModelConfig) {
	providers := make([]model.ProviderConfig, 0, len(cfg.Providers))
	for key, p := range cfg.Providers {
		providers = append(providers, model.ProviderConfig{
			Key:     key,
			Label:   p.Label,
			APIKey:  p.APIKey,
			BaseURL: p.BaseURL,
		})
	}

	var models []model.ModelConfig
	for _, m := range cfg.Models.Default {
		models = append(models, modelEntry(model.DefaultScope, m))
	}
	for cmd, entries := range cfg.Models.Commands {
		for _, m := range entries {
			models = append(models, modelEntry(cmd, m))
		}
	}
	return providers, models
}

func modelEntry(scope string, m config.ModelEntry) model.ModelConfig {
	return model.ModelConfig{
		Command:  scope,
		Provider: m.Provider,
		Name:     m.Model,
		Params: model.Params{
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			TopP:        m.TopP,
		},
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
