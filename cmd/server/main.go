// mediq - conversational LLM relay with debounced chat persistence
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avdeyev/mediq/internal/api"
	"github.com/avdeyev/mediq/internal/chat"
	"github.com/avdeyev/mediq/internal/config"
	"github.com/avdeyev/mediq/internal/llm"
	"github.com/avdeyev/mediq/internal/middleware"
	"github.com/avdeyev/mediq/internal/session"
	"github.com/avdeyev/mediq/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"save_interval", cfg.SaveInterval,
	)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	provider, err := newProvider(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize completion provider", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	sessions := session.NewManager(repo, cfg.SessionLimit)
	turns := chat.New(sessions, provider, chat.Options{
		SaveInterval:      cfg.SaveInterval,
		SaveFirstTurn:     cfg.SaveFirstTurn,
		CompletionTimeout: cfg.CompletionTimeout,
	})

	// Initialize handlers.
	chatHandler := api.NewChatHandler(turns)
	sessionHandler := api.NewSessionHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	chatHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)

	// Create server.
	// Note: SSE responses require long write timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start session cache cleanup.
	cleanup := session.NewCleanupService(sessions, cfg.SessionTTL, cfg.CleanupInterval)
	cleanup.Start(ctx)
	defer cleanup.Stop()
	slog.Info("Session cleanup started", "session_ttl", cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := sessions.FlushAll(shutdownCtx); err != nil {
		slog.Error("Failed to flush sessions on shutdown", "error", err)
	}

	slog.Info("Server stopped successfully")
}

// newProvider selects the completion backend from configuration.
func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ModelName)
	default:
		return llm.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ModelName), nil
	}
}
