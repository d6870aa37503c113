package server

import (
	"net/netip"

	"github.com/google/uuid"

	"lobby-server/internal/ports"
	"lobby-server/internal/worker"
)

// event is anything the hub loop processes.
type event interface{ isEvent() }

type newPlayer struct {
	client *client
	name   string
	addr   netip.Addr
	reply  chan uuid.UUID
}

type playerMessage struct {
	player uuid.UUID
	msg    ClientMessage
}

type playerDisconnected struct {
	player uuid.UUID
}

type workerExited struct {
	match worker.Match
	err   error
}

type handshakeDone struct {
	match worker.Match
}

type tokensReady struct {
	match  worker.Match
	player uuid.UUID
	token  []byte
}

type portReleased struct {
	rng  ports.Range
	port uint16
}

type shutdown struct {
	reply chan []*worker.Worker
}

// inspect runs fn on the hub goroutine. Tests use it to read hub state.
type inspect struct {
	fn   func()
	done chan struct{}
}

func (newPlayer) isEvent()          {}
func (playerMessage) isEvent()      {}
func (playerDisconnected) isEvent() {}
func (workerExited) isEvent()       {}
func (handshakeDone) isEvent()      {}
func (tokensReady) isEvent()        {}
func (portReleased) isEvent()       {}
func (shutdown) isEvent()           {}
func (inspect) isEvent()            {}

// hubSink forwards worker outcomes into the hub inbox.
type hubSink struct {
	h *Hub
}

func (s hubSink) PortReleased(r ports.Range, port uint16) {
	s.h.post(portReleased{rng: r, port: port})
}

func (s hubSink) HandshakeComplete(m worker.Match) {
	s.h.post(handshakeDone{match: m})
}

func (s hubSink) TokensReady(m worker.Match, player uuid.UUID, token []byte) {
	s.h.post(tokensReady{match: m, player: player, token: token})
}

func (s hubSink) WorkerExited(m worker.Match, err error) {
	s.h.post(workerExited{match: m, err: err})
}
