package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-progress/internal/ai"
	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/platform/cache"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/platform/database"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/report"
	"github.com/p-n-ai/pai-progress/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	svc, cleanup, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(svc),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Report.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setup connects the configured stores, cache and AI providers and builds
// the engine. The returned cleanup closes every opened connection.
func setup(ctx context.Context, cfg *config.Config) (a *app, cleanup func(), err error) {
	var closers []func()
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if err != nil {
			cleanup()
			cleanup = func() {}
		}
	}()

	catalog, err := curriculum.NewLoader(cfg.CatalogPath)
	if err != nil {
		return nil, cleanup, fmt.Errorf("loading skill catalog: %w", err)
	}

	engineCfg := tracker.EngineConfig{Catalog: catalog}
	checks := map[string]func(context.Context) error{}

	if cfg.Store.Driver == config.StorePostgres {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, cleanup, err
		}

		records, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, cleanup, err
		}
		diagnostics, err := progress.NewPostgresDiagnostics(db.Pool)
		if err != nil {
			return nil, cleanup, err
		}
		engineCfg.Records = records
		engineCfg.Diagnostics = diagnostics
		engineCfg.Events = tracker.NewPostgresEventLogger(db.Pool)
		checks["database"] = db.HealthCheck
		slog.Info("using postgres store")
	}

	var synthOpts []report.Option
	synthOpts = append(synthOpts, report.WithTimeout(cfg.Report.Timeout), report.WithModel(cfg.AI.Model))
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Warn("report cache unavailable, continuing without it", "error", err)
		} else {
			closers = append(closers, func() { _ = c.Close() })
			synthOpts = append(synthOpts, report.WithCache(report.NewRedisCache(c, cfg.Cache.ReportTTL)))
			checks["cache"] = c.HealthCheck
		}
	}

	var gen report.Generator
	router := newAIRouter(cfg.AI)
	if router.HasProvider() {
		gen = router
		slog.Info("AI providers registered", "providers", router.Providers())
	} else {
		router = nil
		slog.Warn("no AI provider configured, reports will be computed")
	}
	engineCfg.Reports = report.NewSynthesizer(gen, synthOpts...)

	return &app{engine: tracker.NewEngine(engineCfg), checks: checks, router: router}, cleanup, nil
}

// newAIRouter registers every configured provider; registration order is
// the fallback order.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey))
	}
	if cfg.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey)
		if err != nil {
			slog.Warn("anthropic provider unavailable", "error", err)
		} else {
			router.Register("anthropic", p)
		}
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.Google.APIKey != "" {
		router.Register("google", ai.NewGoogleProvider(cfg.Google.APIKey))
	}
	if cfg.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL))
	}
	return router
}
