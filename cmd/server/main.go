package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"courier/api"
	"courier/auth"
	"courier/internal"
	"courier/moderation"
	"courier/repositories"
	"courier/runtime"
	"courier/runtime/workers"
	"courier/search"
	"courier/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting. Deferred cleanups (database close, index
// close) execute before the process exits, which os.Exit in main would
// otherwise skip.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	registry := runtime.NewRegistry()

	if logger.Enabled(ctx, slog.LevelDebug) && config.DebugPort > 0 {
		logger.Info("Debug badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.MessageMapper, func() map[string]any {
			return map[string]any{"live_connections": len(registry.Snapshot())}
		})
	}

	// 3. Search index (bluge)
	index, err := search.Open(config.BlugeFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = index.Close()
	}()

	// 4. Repositories & live-event plumbing
	users := repositories.NewUserRepository(db)
	messages := repositories.NewMessageRepository(db, users, logger,
		config.LimitMessages, config.MaxContentLength)

	broadcaster := runtime.NewBroadcaster(registry, logger)
	router := runtime.NewRouter(registry, logger)
	typing := runtime.NewTypingManager(router, config.TypingExpiry)
	defer typing.Stop()

	moderator, err := loadModerator(config, logger)
	if err != nil {
		return exitConfig, err
	}

	// 5. Services
	chatService := services.NewChatService(messages, index, router, typing,
		moderator, config.SearchLimit, logger)
	conversationService := services.NewConversationService(messages, users, registry, logger)

	// 6. Supervised background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewTelemetryWorker(logger, config.MetricInterval, func() int {
		return len(registry.Snapshot())
	}))
	go sup.Run(ctx)

	// 7. HTTP & WebSocket surface
	handlers := api.NewHandlers(chatService, conversationService, users, logger)
	wsHandler := api.NewWSHandler(broadcaster, chatService, config.ConnectionBufferSize, logger)
	verifier := auth.NewVerifier(config.JWTSecret)
	engine := api.NewRouter(verifier, handlers, wsHandler)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: engine}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for stop or error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Forced shutdown", "error", err)
	}
	sup.Stop()
	logger.Info("Server stopped cleanly")

	return exitOK, nil
}

// loadModerator builds the outbound censor when a word list is
// configured; without one, messages pass through untouched.
func loadModerator(config internal.Config, logger *slog.Logger) (*moderation.Moderator, error) {
	if config.CensoredWordsPath == "" {
		logger.Info("Moderation disabled (no word list configured)")
		return nil, nil
	}

	file, err := os.Open(config.CensoredWordsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open censored words: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	words, err := moderation.LoadWords(file)
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(words, '*')
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("%d censored words loaded", len(words)))
	return &moderator, nil
}
