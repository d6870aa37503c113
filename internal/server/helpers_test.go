package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lobby-server/internal/config"
	"lobby-server/internal/history"
	"lobby-server/internal/lobby"
	"lobby-server/internal/metrics"
	"lobby-server/internal/ports"
	"lobby-server/internal/worker"
)

// ============================================================================
// WORKER FAKES
// ============================================================================

type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) Launch(ctx context.Context, args worker.Args) (worker.Process, error) {
	ret := m.Called(ctx, args)
	proc, _ := ret.Get(0).(worker.Process)
	return proc, ret.Error(1)
}

// fakeProcess runs until Kill is called or a value is sent on exit.
type fakeProcess struct {
	exit   chan error
	once   sync.Once
	killed chan struct{}
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{exit: make(chan error, 1), killed: make(chan struct{})}
}

func (p *fakeProcess) Wait() error {
	select {
	case err := <-p.exit:
		return err
	case <-p.killed:
		return errors.New("signal: killed")
	}
}

func (p *fakeProcess) Kill() error {
	p.once.Do(func() { close(p.killed) })
	return nil
}

func (p *fakeProcess) Pid() int { return 4242 }

type handshakeFunc func(ctx context.Context, addr string, req worker.Handshake) (worker.PlayerTokens, error)

func (f handshakeFunc) Handshake(ctx context.Context, addr string, req worker.Handshake) (worker.PlayerTokens, error) {
	return f(ctx, addr, req)
}

// tokenPerPlayer answers every handshake with "token-<name>" per player and
// reports each request on seen.
func tokenPerPlayer(seen chan<- worker.Handshake) handshakeFunc {
	return func(_ context.Context, _ string, req worker.Handshake) (worker.PlayerTokens, error) {
		if seen != nil {
			seen <- req
		}
		resp := worker.PlayerTokens{Tokens: map[uuid.UUID][]byte{}}
		for _, p := range req.Players {
			resp.Tokens[p.ID] = []byte("token-" + p.Name)
		}
		return resp, nil
	}
}

// recordingRecorder keeps history calls in memory.
type recordingRecorder struct {
	history.NopRecorder
	mu      sync.Mutex
	started []history.Match
	ended   map[uuid.UUID]string
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{ended: map[uuid.UUID]string{}}
}

func (r *recordingRecorder) MatchStarted(_ context.Context, m history.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, m)
	return nil
}

func (r *recordingRecorder) MatchEnded(_ context.Context, id uuid.UUID, _ time.Time, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[id] = reason
	return nil
}

func (r *recordingRecorder) Recent(_ context.Context, limit int) ([]history.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started[:min(limit, len(r.started))], nil
}

func (r *recordingRecorder) counts() (started, ended int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), len(r.ended)
}

// ============================================================================
// HUB SETUP
// ============================================================================

type hubConfig struct {
	internal   config.PortRange
	external   config.PortRange
	launcher   worker.Launcher
	handshaker worker.Handshaker
	recorder   history.Recorder
	timeout    time.Duration
	metrics    *metrics.Collector
}

func newTestHub(t *testing.T, hc hubConfig) *Hub {
	t.Helper()
	if hc.internal == (config.PortRange{}) {
		hc.internal = config.PortRange{Start: 20000, End: 20009}
	}
	if hc.external == (config.PortRange{}) {
		hc.external = config.PortRange{Start: 54000, End: 54009}
	}
	if hc.launcher == nil {
		hc.launcher = &mockLauncher{}
	}
	if hc.handshaker == nil {
		hc.handshaker = tokenPerPlayer(nil)
	}
	if hc.timeout == 0 {
		hc.timeout = time.Second
	}
	if hc.metrics == nil {
		hc.metrics = metrics.New()
	}

	supervisor := worker.NewSupervisor(worker.Options{
		Launcher:         hc.launcher,
		Handshaker:       hc.handshaker,
		HandshakeTimeout: hc.timeout,
		Logger:           zerolog.Nop(),
	})
	h := NewHub(context.Background(), HubOptions{
		Ports:      ports.NewPool(hc.internal, hc.external),
		Supervisor: supervisor,
		Recorder:   hc.recorder,
		Metrics:    hc.metrics,
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, h.Shutdown(ctx))
	})
	return h
}

// ============================================================================
// PLAYERS
// ============================================================================

type testPlayer struct {
	id uuid.UUID
	c  *client
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func connect(t *testing.T, h *Hub, name string) *testPlayer {
	t.Helper()
	c := newClient(64)
	id, err := h.Connect(c, name, netip.MustParseAddr("127.0.0.1"))
	require.NoError(t, err)

	p := &testPlayer{id: id, c: c}
	resp := decodeAs[HandshakeResponse](t, expect(t, p, MsgHandshake))
	require.Equal(t, id, resp.PlayerID)
	return p
}

func send(h *Hub, p *testPlayer, msgType string, payload any) {
	msg := ClientMessage{Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	h.Deliver(p.id, msg)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// next returns the next message queued for p.
func next(t *testing.T, p *testPlayer) received {
	t.Helper()
	select {
	case data, ok := <-p.c.out:
		require.True(t, ok, "outbound queue of %s closed", p.id)
		var r received
		require.NoError(t, json.Unmarshal(data, &r))
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("no message for player %s", p.id)
		return received{}
	}
}

// expect reads the next message for p, requires its type and returns its
// payload.
func expect(t *testing.T, p *testPlayer, msgType string) json.RawMessage {
	t.Helper()
	r := next(t, p)
	require.Equal(t, msgType, r.Type, "payload: %s", r.Payload)
	return r.Payload
}

// expectQuiet asserts that nothing is queued for any of ps once the hub has
// processed everything posted so far.
func expectQuiet(t *testing.T, h *Hub, ps ...*testPlayer) {
	t.Helper()
	require.True(t, h.query(func() {}))
	for _, p := range ps {
		select {
		case data := <-p.c.out:
			t.Errorf("unexpected message for %s: %s", p.id, data)
		default:
		}
	}
}

// drain discards everything queued for ps.
func drain(t *testing.T, h *Hub, ps ...*testPlayer) {
	t.Helper()
	require.True(t, h.query(func() {}))
	for _, p := range ps {
		for len(p.c.out) > 0 {
			<-p.c.out
		}
	}
}

func decodeAs[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// ============================================================================
// HUB STATE
// ============================================================================

// lobbyOf returns a copy of the lobby p is in, or nil.
func lobbyOf(t *testing.T, h *Hub, p *testPlayer) *lobby.Lobby {
	t.Helper()
	var out *lobby.Lobby
	require.True(t, h.query(func() {
		pl, ok := h.players.Get(p.id)
		if !ok || !pl.inLobby() {
			return
		}
		if l, err := h.lobbies.Get(pl.lobby); err == nil {
			out = l.Clone()
		}
	}))
	return out
}

func portsInUse(t *testing.T, h *Hub) (internal, external int) {
	t.Helper()
	require.True(t, h.query(func() {
		internal = h.ports.InUse(ports.Internal)
		external = h.ports.InUse(ports.External)
	}))
	return internal, external
}

// checkInvariants asserts that players and lobbies agree with each other.
func checkInvariants(t *testing.T, h *Hub) {
	t.Helper()
	require.True(t, h.query(func() {
		h.players.each(func(p *player) {
			if !p.inLobby() {
				return
			}
			l, err := h.lobbies.Get(p.lobby)
			if !assert.NoError(t, err, "player %s points at a missing lobby", p.id) {
				return
			}
			n := 0
			for _, m := range l.Members() {
				if m == p.id {
					n++
				}
			}
			assert.Equal(t, 1, n, "player %s must appear exactly once in lobby %s", p.id, l.ID)
		})

		for _, l := range h.lobbies.List() {
			assert.NotZero(t, l.Size(), "empty lobby %s must be deleted", l.ID)
			assert.Len(t, l.Teams, l.Settings.TeamCount)
			assert.True(t, l.Contains(l.Leader), "leader of %s must be a member", l.ID)
			if l.Phase == lobby.PhaseInLobby {
				assert.Empty(t, l.Selections)
			}
			for _, m := range l.Members() {
				p, ok := h.players.Get(m)
				if assert.True(t, ok, "member %s of %s is not connected", m, l.ID) {
					assert.Equal(t, l.ID, p.lobby)
				}
			}
		}
	}))
}
