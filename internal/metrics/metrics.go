// Package metrics provides lock-free counters and gauges describing a running
// lobby server.
//
// All methods are safe for concurrent use. A nil *Collector is a valid no-op
// receiver, so callers never need to nil-check.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for the lobby server.
type Collector struct {
	playersActive   atomic.Int64
	playersTotal    atomic.Int64
	lobbiesActive   atomic.Int64
	lobbiesTotal    atomic.Int64
	matchesLaunched atomic.Int64
	matchesFailed   atomic.Int64
	matchesRunning  atomic.Int64
	internalPorts   atomic.Int64
	externalPorts   atomic.Int64
	internalTotal   atomic.Int64
	externalTotal   atomic.Int64
	protocolErrors  atomic.Int64
	messagesLimited atomic.Int64
	messagesDropped atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Players ──────────────────────────────────────────────────────────

func (c *Collector) PlayerConnected() {
	if c == nil {
		return
	}
	c.playersActive.Add(1)
	c.playersTotal.Add(1)
}

func (c *Collector) PlayerDisconnected() {
	if c == nil {
		return
	}
	c.playersActive.Add(-1)
}

// ActivePlayers returns the number of players past their handshake.
func (c *Collector) ActivePlayers() int64 {
	if c == nil {
		return 0
	}
	return c.playersActive.Load()
}

// ── Lobbies ──────────────────────────────────────────────────────────

func (c *Collector) LobbyCreated() {
	if c == nil {
		return
	}
	c.lobbiesActive.Add(1)
	c.lobbiesTotal.Add(1)
}

func (c *Collector) LobbyClosed() {
	if c == nil {
		return
	}
	c.lobbiesActive.Add(-1)
}

func (c *Collector) ActiveLobbies() int64 {
	if c == nil {
		return 0
	}
	return c.lobbiesActive.Load()
}

// ── Matches ──────────────────────────────────────────────────────────

// MatchLaunched records a worker process that was spawned successfully.
func (c *Collector) MatchLaunched() {
	if c == nil {
		return
	}
	c.matchesLaunched.Add(1)
	c.matchesRunning.Add(1)
}

// MatchFailed records a launch that never produced a worker.
func (c *Collector) MatchFailed() {
	if c == nil {
		return
	}
	c.matchesFailed.Add(1)
}

// MatchEnded records the exit of a launched worker.
func (c *Collector) MatchEnded() {
	if c == nil {
		return
	}
	c.matchesRunning.Add(-1)
}

func (c *Collector) RunningMatches() int64 {
	if c == nil {
		return 0
	}
	return c.matchesRunning.Load()
}

func (c *Collector) FailedMatches() int64 {
	if c == nil {
		return 0
	}
	return c.matchesFailed.Load()
}

// SetPortsInUse publishes the current port pool occupancy.
func (c *Collector) SetPortsInUse(internal, external int) {
	if c == nil {
		return
	}
	c.internalPorts.Store(int64(internal))
	c.externalPorts.Store(int64(external))
}

// SetPortCapacity publishes the size of each port range.
func (c *Collector) SetPortCapacity(internal, external int) {
	if c == nil {
		return
	}
	c.internalTotal.Store(int64(internal))
	c.externalTotal.Store(int64(external))
}

// ── Errors ───────────────────────────────────────────────────────────

// ProtocolError counts a rejected client request and remembers its message.
func (c *Collector) ProtocolError(msg string) {
	if c == nil {
		return
	}
	c.protocolErrors.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

func (c *Collector) ProtocolErrors() int64 {
	if c == nil {
		return 0
	}
	return c.protocolErrors.Load()
}

// MessageRateLimited counts an inbound message dropped by the rate limiter.
func (c *Collector) MessageRateLimited() {
	if c == nil {
		return
	}
	c.messagesLimited.Add(1)
}

// MessageDropped counts an outbound message dropped on a full queue.
func (c *Collector) MessageDropped() {
	if c == nil {
		return
	}
	c.messagesDropped.Add(1)
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime              string `json:"uptime"`
	PlayersActive       int64  `json:"players_active"`
	PlayersTotal        int64  `json:"players_total"`
	LobbiesActive       int64  `json:"lobbies_active"`
	LobbiesTotal        int64  `json:"lobbies_total"`
	MatchesLaunched     int64  `json:"matches_launched"`
	MatchesFailed       int64  `json:"matches_failed"`
	MatchesRunning      int64  `json:"matches_running"`
	InternalPortsInUse  int64  `json:"internal_ports_in_use"`
	ExternalPortsInUse  int64  `json:"external_ports_in_use"`
	InternalPortsTotal  int64  `json:"internal_ports_total"`
	ExternalPortsTotal  int64  `json:"external_ports_total"`
	ProtocolErrors      int64  `json:"protocol_errors"`
	MessagesRateLimited int64  `json:"messages_rate_limited"`
	MessagesDropped     int64  `json:"messages_dropped"`
	LastError           string `json:"last_error,omitempty"`
	LastErrorMessage    string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:              time.Since(c.startTime).Truncate(time.Second).String(),
		PlayersActive:       c.playersActive.Load(),
		PlayersTotal:        c.playersTotal.Load(),
		LobbiesActive:       c.lobbiesActive.Load(),
		LobbiesTotal:        c.lobbiesTotal.Load(),
		MatchesLaunched:     c.matchesLaunched.Load(),
		MatchesFailed:       c.matchesFailed.Load(),
		MatchesRunning:      c.matchesRunning.Load(),
		InternalPortsInUse:  c.internalPorts.Load(),
		ExternalPortsInUse:  c.externalPorts.Load(),
		InternalPortsTotal:  c.internalTotal.Load(),
		ExternalPortsTotal:  c.externalTotal.Load(),
		ProtocolErrors:      c.protocolErrors.Load(),
		MessagesRateLimited: c.messagesLimited.Load(),
		MessagesDropped:     c.messagesDropped.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}
