package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lobby-server/internal/lobby"
	"lobby-server/internal/ports"
)

func testMatch(players ...uuid.UUID) Match {
	hs := Handshake{LobbySettings: lobby.DefaultSettings("test"), PrivateKey: []byte("secret")}
	for i, p := range players {
		hs.Players = append(hs.Players, PlayerInfo{ID: p, Name: "p", Team: i % 2, ChampionID: i})
	}
	return Match{
		ID:           uuid.New(),
		Lobby:        uuid.New(),
		InternalPort: 20000,
		ExternalPort: 54000,
		Handshake:    hs,
	}
}

func newTestSupervisor(l Launcher, h Handshaker, timeout time.Duration) *Supervisor {
	return NewSupervisor(Options{
		Launcher:         l,
		Handshaker:       h,
		LocalIPv4:        "127.0.0.1",
		HandshakeTimeout: timeout,
		Logger:           zerolog.Nop(),
	})
}

func TestSupervisor_SuccessfulMatch(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	m := testMatch(p1, p2)
	proc := newFakeProcess()

	launcher := new(mockLauncher)
	launcher.On("Launch", mock.Anything, Args{
		PublicIPv4:   "127.0.0.1",
		LocalIPv4:    "127.0.0.1",
		IPv6:         "::1",
		InternalPort: 20000,
		ExternalPort: 54000,
	}).Return(proc, nil).Once()

	var gotAddr string
	var gotReq Handshake
	handshaker := handshakeFunc(func(_ context.Context, addr string, req Handshake) (PlayerTokens, error) {
		gotAddr, gotReq = addr, req
		return PlayerTokens{Tokens: map[uuid.UUID][]byte{p1: []byte("t1"), p2: []byte("t2")}}, nil
	})

	rec := newRecorder()
	w, err := newTestSupervisor(launcher, handshaker, time.Second).Start(context.Background(), m, rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return w.State() == StateRunning }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, 5*time.Millisecond)

	proc.exit <- nil
	require.True(t, rec.waitExit(time.Second))
	<-w.Done()

	assert.Equal(t, "127.0.0.1:20000", gotAddr)
	assert.Equal(t, m.Handshake, gotReq)
	assert.Equal(t, StateClosed, w.State())
	assert.Equal(t, []event{
		{kind: "port", rng: ports.Internal, port: 20000},
		{kind: "ready"},
		{kind: "token", player: p1, token: []byte("t1")},
		{kind: "token", player: p2, token: []byte("t2")},
		{kind: "port", rng: ports.External, port: 54000},
		{kind: "exit"},
	}, rec.snapshot())
	launcher.AssertExpectations(t)
}

func TestSupervisor_IncompleteTokensKillWorker(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()

	tests := []struct {
		name   string
		tokens map[uuid.UUID][]byte
	}{
		{"empty map", map[uuid.UUID][]byte{}},
		{"nil map", nil},
		{"one player missing", map[uuid.UUID][]byte{p2: []byte("t2")}},
		{"tokens for strangers", map[uuid.UUID][]byte{uuid.New(): []byte("t1"), uuid.New(): []byte("t2")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := newFakeProcess()
			launcher := new(mockLauncher)
			launcher.On("Launch", mock.Anything, mock.Anything).Return(proc, nil)

			handshaker := handshakeFunc(func(context.Context, string, Handshake) (PlayerTokens, error) {
				return PlayerTokens{Tokens: tt.tokens}, nil
			})

			rec := newRecorder()
			w, err := newTestSupervisor(launcher, handshaker, time.Second).Start(context.Background(), testMatch(p1, p2), rec)
			require.NoError(t, err)

			// Assert the worker is killed without waiting for the process to exit
			require.True(t, rec.waitExit(time.Second), "an incomplete handshake must end in an exit")
			<-w.Done()

			events := rec.snapshot()
			require.Len(t, events, 3, "no ready or token events")
			assert.Equal(t, event{kind: "port", rng: ports.Internal, port: 20000}, events[0])
			assert.Equal(t, event{kind: "port", rng: ports.External, port: 54000}, events[1])
			assert.Equal(t, "exit", events[2].kind)
			assert.EqualError(t, events[2].err, "signal: killed")
			assert.Equal(t, StateClosed, w.State())
		})
	}
}

func TestCheckTokens(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	players := []PlayerInfo{{ID: p1}, {ID: p2}}

	assert.NoError(t, checkTokens(players, map[uuid.UUID][]byte{p1: nil, p2: []byte("t2")}))
	assert.NoError(t, checkTokens(nil, nil))

	err := checkTokens(players, map[uuid.UUID][]byte{p1: []byte("t1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token for 1 of 2 players")
	assert.Contains(t, err.Error(), p2.String())
}

func TestSupervisor_HandshakeFailureKillsWorker(t *testing.T) {
	proc := newFakeProcess()
	launcher := new(mockLauncher)
	launcher.On("Launch", mock.Anything, mock.Anything).Return(proc, nil)

	handshaker := handshakeFunc(func(context.Context, string, Handshake) (PlayerTokens, error) {
		return PlayerTokens{}, errors.New("connection reset")
	})

	rec := newRecorder()
	_, err := newTestSupervisor(launcher, handshaker, time.Second).Start(context.Background(), testMatch(uuid.New()), rec)
	require.NoError(t, err)
	require.True(t, rec.waitExit(time.Second), "failed handshake must end in an exit")

	events := rec.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, event{kind: "port", rng: ports.Internal, port: 20000}, events[0])
	assert.Equal(t, event{kind: "port", rng: ports.External, port: 54000}, events[1])
	assert.Equal(t, "exit", events[2].kind)
	assert.Error(t, events[2].err)
}

func TestSupervisor_HandshakeTimeout(t *testing.T) {
	proc := newFakeProcess()
	launcher := new(mockLauncher)
	launcher.On("Launch", mock.Anything, mock.Anything).Return(proc, nil)

	handshaker := handshakeFunc(func(ctx context.Context, _ string, _ Handshake) (PlayerTokens, error) {
		<-ctx.Done()
		return PlayerTokens{}, ctx.Err()
	})

	rec := newRecorder()
	start := time.Now()
	_, err := newTestSupervisor(launcher, handshaker, 30*time.Millisecond).Start(context.Background(), testMatch(uuid.New()), rec)
	require.NoError(t, err)

	require.True(t, rec.waitExit(2*time.Second), "a hung worker must be killed after the handshake deadline")
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, rec.snapshot(), 3)
}

func TestSupervisor_ExitDuringHandshake(t *testing.T) {
	proc := newFakeProcess()
	launcher := new(mockLauncher)
	launcher.On("Launch", mock.Anything, mock.Anything).Return(proc, nil)

	started := make(chan struct{})
	handshaker := handshakeFunc(func(ctx context.Context, _ string, _ Handshake) (PlayerTokens, error) {
		close(started)
		<-ctx.Done()
		return PlayerTokens{}, ctx.Err()
	})

	rec := newRecorder()
	_, err := newTestSupervisor(launcher, handshaker, time.Minute).Start(context.Background(), testMatch(uuid.New()), rec)
	require.NoError(t, err)

	<-started
	proc.exit <- errors.New("exit status 1")
	require.True(t, rec.waitExit(time.Second))

	events := rec.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, ports.Internal, events[0].rng, "internal port is released before the exit is reported")
	assert.Equal(t, ports.External, events[1].rng)
	assert.EqualError(t, events[2].err, "exit status 1")
}

func TestSupervisor_LaunchError(t *testing.T) {
	launcher := new(mockLauncher)
	launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, errors.New("no such file"))

	rec := newRecorder()
	w, err := newTestSupervisor(launcher, handshakeFunc(nil), time.Second).Start(context.Background(), testMatch(uuid.New()), rec)

	assert.Nil(t, w)
	assert.ErrorContains(t, err, "no such file")
	assert.Empty(t, rec.snapshot())
}

func TestNewSupervisorDefaults(t *testing.T) {
	s := NewSupervisor(Options{Logger: zerolog.Nop()})

	assert.Equal(t, "127.0.0.1", s.localIPv4)
	assert.Equal(t, "127.0.0.1", s.publicIPv4)
	assert.Equal(t, "::1", s.ipv6)
	assert.Equal(t, 10*time.Second, s.timeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "handshake_in_flight", StateHandshakeInFlight.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}
