package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/netip"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lobby-server/internal/history"
	"lobby-server/internal/lobby"
	"lobby-server/internal/metrics"
	"lobby-server/internal/ports"
	"lobby-server/internal/worker"
)

const (
	DefaultInboxSize     = 256
	DefaultRecordTimeout = 5 * time.Second
	privateKeySize       = 32
)

// HubOptions configure a Hub.
type HubOptions struct {
	Ports      *ports.Pool
	Supervisor *worker.Supervisor
	Recorder   history.Recorder
	Metrics    *metrics.Collector
	Logger     zerolog.Logger
	InboxSize  int
}

// Hub is the orchestrator: a single goroutine that owns every player, lobby
// and port and processes one event at a time. Everything else talks to it by
// posting events.
type Hub struct {
	inbox chan event
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	players    *Registry
	lobbies    *lobby.Table
	ports      *ports.Pool
	supervisor *worker.Supervisor
	matches    map[uuid.UUID]*activeMatch

	recorder      history.Recorder
	recordTimeout time.Duration
	records       sync.WaitGroup

	newKey  func() ([]byte, error)
	metrics *metrics.Collector
	log     zerolog.Logger
}

// NewHub starts the hub loop. It runs until Shutdown is called or ctx is
// cancelled.
func NewHub(parent context.Context, opts HubOptions) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger.With().Str("component", "hub").Logger()
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}

	h := &Hub{
		inbox:         make(chan event, opts.InboxSize),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		players:       NewRegistry(opts.Metrics, log),
		lobbies:       lobby.NewTable(),
		ports:         opts.Ports,
		supervisor:    opts.Supervisor,
		matches:       make(map[uuid.UUID]*activeMatch),
		recorder:      opts.Recorder,
		recordTimeout: DefaultRecordTimeout,
		newKey:        newPrivateKey,
		metrics:       opts.Metrics,
		log:           log,
	}
	if h.recorder == nil {
		h.recorder = history.NopRecorder{}
	}
	if h.ports != nil {
		h.metrics.SetPortCapacity(h.ports.Size(ports.Internal), h.ports.Size(ports.External))
	}
	go h.loop()
	return h
}

func newPrivateKey() ([]byte, error) {
	key := make([]byte, privateKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate match key: %w", err)
	}
	return key, nil
}

// Connect registers a client that completed its handshake and returns the
// assigned player id. The handshake reply is already queued on c.
func (h *Hub) Connect(c *client, name string, addr netip.Addr) (uuid.UUID, error) {
	reply := make(chan uuid.UUID, 1)
	if !h.post(newPlayer{client: c, name: name, addr: addr, reply: reply}) {
		return uuid.Nil, ErrHubClosed
	}
	select {
	case id := <-reply:
		return id, nil
	case <-h.done:
		return uuid.Nil, ErrHubClosed
	}
}

// Deliver hands a client message to the hub. Messages from one connection
// are processed in the order they are delivered.
func (h *Hub) Deliver(id uuid.UUID, msg ClientMessage) {
	h.post(playerMessage{player: id, msg: msg})
}

// Disconnect removes a player. Unknown ids are ignored.
func (h *Hub) Disconnect(id uuid.UUID) {
	h.post(playerDisconnected{player: id})
}

// Shutdown stops the loop, kills running workers and closes every client
// queue, then waits for the workers to exit and pending history writes to
// finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan []*worker.Worker, 1)
	var workers []*worker.Worker
	if h.post(shutdown{reply: reply}) {
		select {
		case workers = <-reply:
		case <-h.done:
			select {
			case workers = <-reply:
			default:
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, w := range workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	flushed := make(chan struct{})
	go func() {
		h.records.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the loop has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// post queues ev for the loop. It reports false once the loop has exited.
func (h *Hub) post(ev event) bool {
	select {
	case h.inbox <- ev:
		return true
	case <-h.done:
		return false
	}
}

// query runs fn on the hub goroutine and waits for it.
func (h *Hub) query(fn func()) bool {
	done := make(chan struct{})
	if !h.post(inspect{fn: fn, done: done}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	h.log.Info().Msg("Hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.stop()
			return

		case ev := <-h.inbox:
			if sd, ok := ev.(shutdown); ok {
				sd.reply <- h.stop()
				return
			}
			h.dispatch(ev)
		}
	}
}

// dispatch handles one event. A panicking handler is logged and the loop
// carries on with the next event.
func (h *Hub) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Interface("panic", r).
				Str("event", fmt.Sprintf("%T", ev)).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in hub handler")
		}
	}()

	switch e := ev.(type) {
	case newPlayer:
		id := h.players.Register(e.client, e.name, e.addr)
		h.players.Send(id, MsgHandshake, HandshakeResponse{PlayerID: id})
		e.reply <- id
		p, _ := h.players.Get(id)
		h.log.Info().
			Str("player_id", id.String()).
			Str("name", p.name).
			Str("addr", e.addr.String()).
			Msg("Player connected")

	case playerMessage:
		h.onPlayerMessage(e)

	case playerDisconnected:
		h.dropPlayer(e.player)

	case handshakeDone:
		h.onHandshakeComplete(e)

	case tokensReady:
		h.onTokensReady(e)

	case workerExited:
		h.onWorkerExited(e)

	case portReleased:
		if !h.ports.Release(e.rng, e.port) {
			h.log.Warn().Str("range", e.rng.String()).Uint16("port", e.port).Msg("Released port was not in use")
		}
		h.publishPorts()

	case inspect:
		e.fn()
		close(e.done)
	}
}

// stop kills every worker and disconnects every player. It returns the
// killed workers so the caller can wait for them.
func (h *Hub) stop() []*worker.Worker {
	workers := make([]*worker.Worker, 0, len(h.matches))
	for _, am := range h.matches {
		am.abandoned = true
		h.log.Info().
			Str("match_id", am.worker.Match().ID.String()).
			Str("state", am.worker.State().String()).
			Msg("Killing worker")
		am.worker.Kill()
		if am.started {
			h.recordEnded(am, "server shutdown")
		}
		workers = append(workers, am.worker)
	}

	var ids []uuid.UUID
	h.players.each(func(p *player) { ids = append(ids, p.id) })
	for _, id := range ids {
		h.players.Unregister(id)
	}

	h.cancel()
	h.log.Info().Int("workers", len(workers)).Int("players", len(ids)).Msg("Hub stopped")
	return workers
}

// dropPlayer removes a player from its lobby and the registry.
func (h *Hub) dropPlayer(id uuid.UUID) {
	p, ok := h.players.Get(id)
	if !ok {
		return
	}
	if p.inLobby() {
		if err := h.leaveLobby(p); err != nil {
			h.log.Warn().Err(err).Str("player_id", id.String()).Msg("Failed to remove disconnecting player from lobby")
		}
	}
	h.players.Unregister(id)
	h.log.Info().Str("player_id", id.String()).Str("name", p.name).Msg("Player disconnected")
}

func (h *Hub) publishPorts() {
	h.metrics.SetPortsInUse(h.ports.InUse(ports.Internal), h.ports.InUse(ports.External))
}
