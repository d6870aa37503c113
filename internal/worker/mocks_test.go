package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"lobby-server/internal/ports"
)

type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) Launch(ctx context.Context, args Args) (Process, error) {
	ret := m.Called(ctx, args)
	proc, _ := ret.Get(0).(Process)
	return proc, ret.Error(1)
}

// fakeProcess exits when Kill is called or when exit is sent a value.
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

type handshakeFunc func(ctx context.Context, addr string, req Handshake) (PlayerTokens, error)

func (f handshakeFunc) Handshake(ctx context.Context, addr string, req Handshake) (PlayerTokens, error) {
	return f(ctx, addr, req)
}

type event struct {
	kind   string
	rng    ports.Range
	port   uint16
	player uuid.UUID
	token  []byte
	err    error
}

// recorder collects events in the order they were delivered.
type recorder struct {
	mu     sync.Mutex
	events []event
	exited chan struct{}
}

func newRecorder() *recorder {
	return &recorder{exited: make(chan struct{})}
}

func (r *recorder) PortReleased(rng ports.Range, port uint16) {
	r.add(event{kind: "port", rng: rng, port: port})
}

func (r *recorder) HandshakeComplete(Match) {
	r.add(event{kind: "ready"})
}

func (r *recorder) TokensReady(_ Match, player uuid.UUID, token []byte) {
	r.add(event{kind: "token", player: player, token: token})
}

func (r *recorder) WorkerExited(_ Match, err error) {
	r.add(event{kind: "exit", err: err})
	close(r.exited)
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) waitExit(timeout time.Duration) bool {
	select {
	case <-r.exited:
		return true
	case <-time.After(timeout):
		return false
	}
}
