// Package main is the entry point for the historian PostgreSQL wire
// protocol gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/acceptor"
	"github.com/akz4ol/histgate/internal/admin"
	"github.com/akz4ol/histgate/internal/catalog"
	"github.com/akz4ol/histgate/internal/config"
	"github.com/akz4ol/histgate/internal/connfsm"
	"github.com/akz4ol/histgate/internal/fetch"
	"github.com/akz4ol/histgate/internal/session"
	"github.com/akz4ol/histgate/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger := setupLogger(cfg)
	logger.Info().
		Str("env", cfg.Server.Env).
		Str("bind_addr", cfg.Server.BindAddr).
		Msg("starting histgate")

	externalCatalog, err := catalog.LoadExternalCatalog(cfg.Catalog.SQLitePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load external catalog")
	}

	cache := fetch.NewPatternCache(cfg.Redis, logger)
	sessions := session.NewManager(cfg.Backend.GraphQLURL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:    "histgate",
		ServiceVersion: serverVersion,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPProtocol:   os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown error")
		}
	}()

	tlsConfig, err := acceptor.LoadTLSConfig(&cfg.Server)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load TLS configuration")
	}

	connFSM := connfsm.NewServer(cfg, sessions, cache, externalCatalog, tlsConfig, tel, logger.With().Str("component", "connfsm").Logger())
	wireListener := acceptor.New(&cfg.Server, connFSM, logger.With().Str("component", "acceptor").Logger())

	scheduler := session.NewExtensionScheduler(sessions, cfg.Backend.SessionExtensionPeriod)
	go scheduler.Run(ctx)

	adminHandler := admin.New(admin.Dependencies{
		Logger:   logger.With().Str("component", "admin").Logger(),
		Sessions: sessions,
		Ready:    func() bool { return true },
	})
	adminServer := &http.Server{Addr: cfg.Admin.BindAddr, Handler: adminHandler}
	go func() {
		logger.Info().Str("addr", cfg.Admin.BindAddr).Msg("admin HTTP plane listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin HTTP server error")
		}
	}()

	wireErrors := make(chan error, 1)
	go func() { wireErrors <- wireListener.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-wireErrors:
		if err != nil {
			logger.Error().Err(err).Msg("wire listener exited with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := wireListener.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("wire listener shutdown incomplete")
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("admin server shutdown incomplete")
	}

	logger.Info().Msg("histgate shutdown complete")
}

const serverVersion = "1.0.0"

// setupLogger configures zerolog based on environment, matching the
// teacher's console-vs-JSON split between development and production.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" || cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
