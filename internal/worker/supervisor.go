// Package worker launches dedicated match processes and performs the token
// handshake with them.
//
// A worker moves through Spawning, HandshakeInFlight, Running and Closed.
// Every outcome is reported through Events from the worker's own goroutines;
// the supervisor never touches lobby or port state itself.
package worker

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"lobby-server/internal/ports"
)

// State is the lifecycle stage of one worker.
type State int32

const (
	StateSpawning State = iota
	StateHandshakeInFlight
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateHandshakeInFlight:
		return "handshake_in_flight"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Match is everything needed to start one worker.
type Match struct {
	ID           uuid.UUID
	Lobby        uuid.UUID
	InternalPort uint16
	ExternalPort uint16
	Handshake    Handshake
}

// Events receives the outcome of a worker. Implementations must not block for
// long; they are called from the worker's goroutines.
type Events interface {
	// PortReleased is called once for the internal port when the handshake
	// ends, and once for the external port when the process exits.
	PortReleased(r ports.Range, port uint16)
	// HandshakeComplete is called once the worker has returned a token for
	// every player, before any TokensReady.
	HandshakeComplete(m Match)
	// TokensReady is called once per player after a successful handshake.
	TokensReady(m Match, player uuid.UUID, token []byte)
	// WorkerExited is called last, after the process has exited.
	WorkerExited(m Match, err error)
}

// Options configure a Supervisor.
type Options struct {
	Launcher         Launcher
	Handshaker       Handshaker
	PublicIPv4       string
	LocalIPv4        string
	IPv6             string
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// Supervisor starts workers and watches them until they exit.
type Supervisor struct {
	launcher   Launcher
	handshaker Handshaker
	publicIPv4 string
	localIPv4  string
	ipv6       string
	timeout    time.Duration
	log        zerolog.Logger
}

func NewSupervisor(opts Options) *Supervisor {
	s := &Supervisor{
		launcher:   opts.Launcher,
		handshaker: opts.Handshaker,
		publicIPv4: opts.PublicIPv4,
		localIPv4:  opts.LocalIPv4,
		ipv6:       opts.IPv6,
		timeout:    opts.HandshakeTimeout,
		log:        opts.Logger.With().Str("component", "supervisor").Logger(),
	}
	if s.localIPv4 == "" {
		s.localIPv4 = "127.0.0.1"
	}
	if s.publicIPv4 == "" {
		s.publicIPv4 = s.localIPv4
	}
	if s.ipv6 == "" {
		s.ipv6 = "::1"
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	return s
}

// Worker is a handle on one launched match process.
type Worker struct {
	match Match
	proc  Process
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
	log   zerolog.Logger
}

func (w *Worker) Match() Match { return w.match }

func (w *Worker) State() State { return State(w.state.Load()) }

// Done is closed once the process has exited and every event was delivered.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Kill terminates the process. The normal exit path still runs.
func (w *Worker) Kill() {
	w.once.Do(func() {
		if err := w.proc.Kill(); err != nil {
			w.log.Warn().Err(err).Msg("Failed to kill worker")
		}
	})
}

// Start spawns the worker for m and returns once the process is running. The
// handshake and the exit watch continue in the background and report through
// events. On error nothing was started and no event will follow; the caller
// still owns both ports.
func (s *Supervisor) Start(ctx context.Context, m Match, events Events) (*Worker, error) {
	log := s.log.With().
		Str("match_id", m.ID.String()).
		Str("lobby_id", m.Lobby.String()).
		Uint16("internal_port", m.InternalPort).
		Uint16("external_port", m.ExternalPort).
		Logger()

	args := Args{
		PublicIPv4:   s.publicIPv4,
		LocalIPv4:    s.localIPv4,
		IPv6:         s.ipv6,
		InternalPort: m.InternalPort,
		ExternalPort: m.ExternalPort,
	}
	proc, err := s.launcher.Launch(ctx, args)
	if err != nil {
		return nil, eris.Wrapf(err, "launch worker for lobby %s", m.Lobby)
	}

	w := &Worker{
		match: m,
		proc:  proc,
		done:  make(chan struct{}),
		log:   log,
	}
	w.state.Store(int32(StateHandshakeInFlight))
	log.Info().Int("pid", proc.Pid()).Msg("Worker spawned")

	hctx, cancel := context.WithTimeout(ctx, s.timeout)
	handshakeDone := make(chan struct{})

	go func() {
		defer close(handshakeDone)
		defer cancel()
		s.handshake(hctx, w, events)
	}()

	go func() {
		err := proc.Wait()
		cancel()
		<-handshakeDone

		w.state.Store(int32(StateClosed))
		if err != nil {
			log.Warn().Err(err).Msg("Worker exited")
		} else {
			log.Info().Msg("Worker exited")
		}
		events.PortReleased(ports.External, m.ExternalPort)
		events.WorkerExited(m, err)
		close(w.done)
	}()

	return w, nil
}

func (s *Supervisor) handshake(ctx context.Context, w *Worker, events Events) {
	m := w.match
	addr := net.JoinHostPort(s.localIPv4, strconv.Itoa(int(m.InternalPort)))

	start := time.Now()
	resp, err := s.handshaker.Handshake(ctx, addr, m.Handshake)
	events.PortReleased(ports.Internal, m.InternalPort)
	if err != nil {
		w.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Worker handshake failed, killing worker")
		w.Kill()
		return
	}

	// Why: a player without a token can never join, and a match that is
	// never joined would hold its lobby in champ select. Treat it like any
	// other failed handshake so the exit path returns the lobby.
	if err := checkTokens(m.Handshake.Players, resp.Tokens); err != nil {
		w.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Worker handshake incomplete, killing worker")
		w.Kill()
		return
	}

	w.state.Store(int32(StateRunning))
	w.log.Info().Dur("elapsed", time.Since(start)).Int("tokens", len(resp.Tokens)).Msg("Worker handshake complete")

	events.HandshakeComplete(m)
	for _, p := range m.Handshake.Players {
		events.TokensReady(m, p.ID, resp.Tokens[p.ID])
	}
}

// checkTokens fails unless every player has a token.
func checkTokens(players []PlayerInfo, tokens map[uuid.UUID][]byte) error {
	var missing []string
	for _, p := range players {
		if _, ok := tokens[p.ID]; !ok {
			missing = append(missing, p.ID.String())
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("no token for %d of %d players: %s", len(missing), len(players), strings.Join(missing, ", "))
	}
	return nil
}
