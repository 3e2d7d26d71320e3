package main

import (
	"chat-relay/domain/event"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets every deferred close run.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env file is fine: the environment alone may be enough.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := server.NewHealthServer(logger)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	store := storage.NewConversationRepository(db, logger, config.HistoryLimit)
	index := storage.NewMessageIndex(blugeWriter, logger, config.SearchLimit)

	// 3. Runtime
	persisted := make(chan event.DomainEvent, config.IndexBufferSize)
	presence := runtime.NewPresenceRegistry()
	membership := runtime.NewRoomMembership()
	lifecycle := runtime.NewLifecycleManager(logger, presence, membership)
	relay := runtime.NewRelay(logger, store, index, presence, membership, persisted, config.StoreTimeout)
	chatService := services.NewChatService(lifecycle, relay)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewIndexWorker(logger, index, persisted),
		workers.NewPresenceReporter(logger, presence, membership, config.ReportInterval),
	)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		// Stopped explicitly once connections are drained
		sup.Run(context.WithoutCancel(ctx))
	}()

	errChan := make(chan error, 3)

	// 4. Websocket transport
	wsServer := websocket.NewServer(logger, chatService, websocket.Options{
		BufferSize:      config.ConnectionBufferSize,
		MaxMessageSize:  config.MaxMessageSize,
		RateLimitBurst:  config.RateLimitBurst,
		RateLimitWindow: config.RateLimitWindow,
		AllowedOrigins:  config.Origins(),
	})
	mux := http.NewServeMux()
	mux.Handle(config.WsPath, wsServer)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting websocket server", "address", httpServer.Addr, "path", config.WsPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 5. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	go func() {
		logger.Info("Starting gRPC health server", "address", grpcAddress)
		if err := health.Serve(listener); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 6. Debug inspector, only when asked for
	var debugServer *http.Server
	if config.DebugPort > 0 && logger.Enabled(ctx, slog.LevelDebug) {
		debugServer = internal.NewDebugServer(logger, db, fmt.Sprintf("localhost:%d", config.DebugPort), "/inspect",
			func() map[string]any {
				return map[string]any{
					"online_users":    presence.Count(),
					"connections":     len(membership.All()),
					"active_rooms":    membership.Rooms(),
					"worker_restarts": sup.Restarts(),
				}
			})
		go func() {
			logger.Info("Debug Badger inspector available", "url", "http://"+debugServer.Addr+"/inspect")
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Debug server stopped", "error", err)
			}
		}()
	}

	health.SetServing(true)

	// 7. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown: stop advertising, drain connections, then stop workers.
	logger.Info("Shutting down gracefully...")
	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	wsServer.CloseAll()
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	health.GracefulStop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}
