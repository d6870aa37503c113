package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"lobby-server/internal/config"
	"lobby-server/internal/history"
	"lobby-server/internal/metrics"
	"lobby-server/internal/ports"
	"lobby-server/internal/worker"
)

type Server struct {
	cfg      *config.Config
	hub      *Hub
	recorder history.Recorder
	metrics  *metrics.Collector
	log      zerolog.Logger
}

// NewServer wires the hub, worker supervisor and match history from cfg and
// returns the HTTP server that serves them. The hub is already running.
func NewServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Server, *http.Server, error) {
	var recorder history.Recorder = history.NopRecorder{}
	if cfg.DatabaseURL != "" {
		pg, err := history.NewPostgresRecorder(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open match history: %w", err)
		}
		recorder = pg
		log.Info().Msg("Match history enabled")
	}

	m := metrics.New()
	supervisor := worker.NewSupervisor(worker.Options{
		Launcher:         worker.NewExecLauncher(cfg, log),
		Handshaker:       worker.NewWSHandshaker(log),
		PublicIPv4:       cfg.PublicIPv4,
		LocalIPv4:        cfg.LocalIPv4,
		IPv6:             cfg.IPv6,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Logger:           log,
	})
	hub := NewHub(ctx, HubOptions{
		Ports:      ports.NewPool(cfg.InternalPorts, cfg.ExternalPorts),
		Supervisor: supervisor,
		Recorder:   recorder,
		Metrics:    m,
		Logger:     log,
	})

	s := newServer(cfg, hub, recorder, m, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, httpServer, nil
}

func newServer(cfg *config.Config, hub *Hub, recorder history.Recorder, m *metrics.Collector, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		hub:      hub,
		recorder: recorder,
		metrics:  m,
		log:      log.With().Str("component", "server").Logger(),
	}
}

// Shutdown stops the hub, which kills every worker and closes every client,
// then closes the match history.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.hub.Shutdown(ctx)
	s.recorder.Close()
	if err != nil {
		return fmt.Errorf("shutdown hub: %w", err)
	}
	return nil
}
