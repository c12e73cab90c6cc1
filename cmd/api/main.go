package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/tanya-lalin/internal/adapters/http"
	"github.com/kirillkom/tanya-lalin/internal/bootstrap"
	"github.com/kirillkom/tanya-lalin/internal/config"
	"github.com/kirillkom/tanya-lalin/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewAPI(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		if err := app.Sessions.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session_sweeper_stopped", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, app.Chat, app.Vectors,
		httpadapter.WithMetrics(app.Metrics),
		httpadapter.WithLogger(logger),
	).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Retrieval().Timeout + cfg.OllamaTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening",
			"port", cfg.APIPort,
			"oracle_failure_policy", string(cfg.Retrieval().OracleFailurePolicy),
			"session_ttl", cfg.Session().TTL.String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
	logger.Info("api_stopped", "sessions_in_memory", app.Sessions.Len())
}
