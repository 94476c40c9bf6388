package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/cors"

	"github.com/roby2358/oblique/internal/archive"
	"github.com/roby2358/oblique/internal/brain"
	"github.com/roby2358/oblique/internal/config"
	"github.com/roby2358/oblique/internal/deck"
	"github.com/roby2358/oblique/internal/engine"
	"github.com/roby2358/oblique/internal/httpapi"
	"github.com/roby2358/oblique/internal/observability"
	"github.com/roby2358/oblique/internal/reply"
	"github.com/roby2358/oblique/internal/social"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	if err := run(logger, cfg); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(logger *slog.Logger, cfg config.Config) error {
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	eng := engine.New(logger)
	eng.SetMetrics(metrics)
	eng.SetMaxChainSteps(cfg.MaxChainSteps)
	eng.SetTick(cfg.TickInterval)

	store, err := archive.NewStore(runCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("archive init failed: %w", err)
	}
	defer store.Close()
	eng.SetArchive(store)
	archiveMode := "memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		archiveMode = "postgres"
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.BrainAdapterMode,
		HTTPURL: cfg.BrainHTTPURL,
		APIKey:  cfg.BrainAPIKey,
		Timeout: cfg.BrainTimeout,
	})
	if err != nil {
		return fmt.Errorf("brain adapter init failed: %w", err)
	}
	brainMode := "mock"
	if _, ok := adapter.(*brain.HTTPAdapter); ok {
		brainMode = "http"
	}
	logger.Info("brain adapter ready", "mode", brainMode, "model", cfg.BrainModel)

	var socialClient social.Client
	socialMode := "mock"
	if strings.TrimSpace(cfg.SocialBaseURL) != "" {
		socialClient = social.NewHTTPClient(cfg.SocialBaseURL, cfg.SocialAccessToken)
		socialMode = "http"
	} else {
		socialClient = social.NewMockClient()
	}
	logger.Info("social client ready", "mode", socialMode, "bot_account", cfg.SocialBotAccount)

	d := deck.Default()
	if strings.TrimSpace(cfg.DeckPath) != "" {
		d, err = deck.Load(cfg.DeckPath)
		if err != nil {
			return fmt.Errorf("deck load failed: %w", err)
		}
	}
	logger.Info("deck loaded", "name", d.Name(), "cards", d.Len())

	svc := reply.NewService(reply.Config{
		Model:        cfg.BrainModel,
		MaxChars:     cfg.ReplyMaxChars,
		Visibility:   cfg.ReplyVisibility,
		BrainTimeout: cfg.BrainTimeout,
		Concurrency:  cfg.BrainConcurrency,
		RetryLimit:   cfg.RetryLimit,
		RetryBackoff: cfg.RetryBackoff,
	}, logger, eng, adapter, socialClient, d, metrics)
	defer svc.Close()

	producer := reply.NewProducer(logger, svc, socialClient, metrics, cfg.SocialBotAccount, cfg.SocialPageSize)
	producer.Start(runCtx, cfg.SocialPollInterval)

	eng.StartJanitor(runCtx, cfg.JanitorInterval, cfg.DoneRetention)
	go eng.Run(runCtx)

	api := httpapi.New(cfg, logger, eng, producer, store, httpapi.Modes{
		Brain:   brainMode,
		Social:  socialMode,
		Archive: archiveMode,
	}, metrics)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}
	if cfg.AllowAnyOrigin {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: cors.New(corsOpts).Handler(api.Router()),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
	return nil
}
