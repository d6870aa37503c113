package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"lobby-server/internal/config"
	"lobby-server/internal/server"
)

const shutdownTimeout = 30 * time.Second

func gracefulShutdown(lobbyServer *server.Server, httpServer *http.Server, log zerolog.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Info().Msg("Shutdown signal received, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting connections first, then kill workers and close clients
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	if err := lobbyServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error during lobby shutdown")
	}

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		boot := bootLogger()
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := newLogger(cfg)

	lobbyServer, httpServer, err := server.NewServer(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start lobby server")
	}

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(lobbyServer, httpServer, log, done)

	log.Info().
		Str("addr", cfg.ListenAddr).
		Bool("tls", cfg.TLSEnabled()).
		Str("internal_ports", cfg.InternalPorts.String()).
		Str("external_ports", cfg.ExternalPorts.String()).
		Msg("Lobby server listening")

	if cfg.TLSEnabled() {
		err = httpServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info().Msg("Graceful shutdown complete")
}
