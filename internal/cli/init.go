// Package cli provides common CLI initialization utilities shared by
// cmd/financas and cmd/financas-worker.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"financas/internal/api"
	"financas/internal/cache"
	"financas/internal/config"
	applog "financas/internal/log"
	"financas/internal/services"
	"financas/internal/sheets"
	"financas/internal/sheets/google"
	"financas/internal/sheets/memory"
	"financas/internal/storage"
)

// SetupLogger initializes structured logging from LOG_LEVEL and ENVIRONMENT.
// It is called before the config is loaded, so it reads the environment directly.
// Returns the configured logger and sets it as the default logger.
func SetupLogger() *slog.Logger {
	level := applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentApp,
		Handler:   applog.NewHandler(os.Stdout, os.Getenv("ENVIRONMENT"), level),
	})
	applog.SetDefault(logger)
	return logger.Logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes the outbox repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *slog.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// NewAPIClient builds the finance backend client, wrapping the configured
// token source in an expiry check.
func NewAPIClient(cfg *config.Config) (*api.Client, error) {
	var tokens api.TokenSource = api.StaticToken(cfg.APIToken)
	if cfg.APIToken == "" {
		tokens = api.FileToken{Path: cfg.APITokenFile}
	}
	return api.New(api.Config{
		BaseURL: cfg.APIBaseURL,
		Tokens:  api.ExpiryCheckingSource{Source: tokens},
		Timeout: cfg.APITimeout,
	})
}

// NewAnalyticsCaches returns Redis-backed caches when REDIS_ADDR is set and
// in-process LRU caches otherwise. The returned close function releases the
// Redis connection, if any.
func NewAnalyticsCaches(ctx context.Context, logger *slog.Logger, cfg *config.Config, manager *cache.Manager) (services.AnalyticsCaches, func()) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err == nil {
			logger.Info("Using Redis analytics cache", "addr", cfg.RedisAddr)
			return services.NewRedisCaches(client, cfg.CacheTTL), func() { _ = client.Close() }
		}
		logger.Warn("Redis unavailable, falling back to in-process cache", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
	}
	return services.NewMemoryCaches(cfg.CacheSize, cfg.CacheTTL, manager), func() {}
}

// Mirror is the spreadsheet side of the optional row mirror.
type Mirror interface {
	sheets.RowWriter
	sheets.TaxonomyReader
}

// NewMirror builds the spreadsheet mirror selected by SHEETS_MIRROR.
// It returns nil when mirroring is disabled.
func NewMirror(ctx context.Context, cfg *config.Config) (Mirror, error) {
	switch cfg.SheetsMirror {
	case config.MirrorGoogle:
		client, err := google.New(ctx, google.Options{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
		})
		if err != nil {
			return nil, fmt.Errorf("google sheets mirror: %w", err)
		}
		return client, nil
	case config.MirrorMemory:
		return memory.NewFromFiles(cfg.SeedDir), nil
	default:
		return nil, nil
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
