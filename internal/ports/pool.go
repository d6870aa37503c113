// Package ports hands out ports for match workers from two disjoint ranges.
//
// A Pool is not safe for concurrent use; it is owned by the lobby hub.
package ports

import (
	"fmt"

	"lobby-server/internal/config"
)

// Range names one of the two port ranges a Pool manages.
type Range int

const (
	// Internal ports carry the short handshake between server and worker.
	Internal Range = iota
	// External ports are advertised to players for the match itself.
	External
)

func (r Range) String() string {
	switch r {
	case Internal:
		return "internal"
	case External:
		return "external"
	default:
		return fmt.Sprintf("Range(%d)", int(r))
	}
}

type span struct {
	bounds config.PortRange
	used   map[uint16]struct{}
}

// Pool tracks which ports of each range are in use.
type Pool struct {
	spans [2]span
}

// NewPool creates a pool over the inclusive internal and external ranges.
func NewPool(internal, external config.PortRange) *Pool {
	return &Pool{spans: [2]span{
		{bounds: internal, used: make(map[uint16]struct{})},
		{bounds: external, used: make(map[uint16]struct{})},
	}}
}

func (p *Pool) span(r Range) *span {
	if r != Internal && r != External {
		panic(fmt.Sprintf("ports: unknown range %d", int(r)))
	}
	return &p.spans[r]
}

// Acquire marks the lowest free port of r as used and returns it. The second
// result is false when every port of r is taken.
func (p *Pool) Acquire(r Range) (uint16, bool) {
	s := p.span(r)
	for port := s.bounds.Start; port <= s.bounds.End; port++ {
		candidate := uint16(port)
		if _, taken := s.used[candidate]; !taken {
			s.used[candidate] = struct{}{}
			return candidate, true
		}
	}
	return 0, false
}

// Release returns port to r and reports whether it was in use. Releasing a
// free port, or one outside r, is a no-op.
func (p *Pool) Release(r Range, port uint16) bool {
	s := p.span(r)
	if !s.bounds.Contains(int(port)) {
		return false
	}
	if _, ok := s.used[port]; !ok {
		return false
	}
	delete(s.used, port)
	return true
}

// InUse returns the number of ports of r currently acquired.
func (p *Pool) InUse(r Range) int {
	return len(p.span(r).used)
}

// Size returns the total number of ports in r.
func (p *Pool) Size(r Range) int {
	return p.span(r).bounds.Len()
}
