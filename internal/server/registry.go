package server

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lobby-server/internal/metrics"
)

// player is a connected client past its handshake.
type player struct {
	id     uuid.UUID
	name   string
	lobby  uuid.UUID // uuid.Nil when in no lobby
	client *client
	addr   netip.Addr
}

func (p *player) inLobby() bool {
	return p.lobby != uuid.Nil
}

func (p *player) info() PlayerInfo {
	info := PlayerInfo{ID: p.id, Name: p.name}
	if p.inLobby() {
		id := p.lobby
		info.LobbyID = &id
	}
	return info
}

// Registry tracks connected players and their display names. It is owned by
// the hub goroutine and not safe for concurrent use.
type Registry struct {
	players map[uuid.UUID]*player
	names   map[string]uuid.UUID
	newID   func() uuid.UUID
	metrics *metrics.Collector
	log     zerolog.Logger
}

func NewRegistry(m *metrics.Collector, log zerolog.Logger) *Registry {
	return &Registry{
		players: make(map[uuid.UUID]*player),
		names:   make(map[string]uuid.UUID),
		newID:   uuid.New,
		metrics: m,
		log:     log,
	}
}

// Register adds a player for c and reserves a unique display name derived
// from name.
func (r *Registry) Register(c *client, name string, addr netip.Addr) uuid.UUID {
	p := &player{
		id:     r.newID(),
		name:   r.uniqueName(normalizeDisplayName(name)),
		client: c,
		addr:   addr,
	}
	r.players[p.id] = p
	r.names[p.name] = p.id
	r.metrics.PlayerConnected()
	return p.id
}

// uniqueName returns base, or base suffixed with the lowest free counter
// starting at 2.
func (r *Registry) uniqueName(base string) string {
	if _, taken := r.names[base]; !taken {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", base, n)
		if _, taken := r.names[candidate]; !taken {
			return candidate
		}
	}
}

// Unregister releases the player's name and closes its outbound queue. The
// caller removes the player from its lobby first.
func (r *Registry) Unregister(id uuid.UUID) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	delete(r.players, id)
	delete(r.names, p.name)
	p.client.close()
	r.metrics.PlayerDisconnected()
}

func (r *Registry) Get(id uuid.UUID) (*player, bool) {
	p, ok := r.players[id]
	return p, ok
}

func (r *Registry) Len() int {
	return len(r.players)
}

// Send encodes a message and queues it for one player. Unknown players are
// ignored; a full queue drops the message.
func (r *Registry) Send(id uuid.UUID, msgType string, payload any) {
	if data, ok := r.encode(msgType, payload); ok {
		r.push(id, msgType, data)
	}
}

// Broadcast sends a message to every player in ids except skip.
func (r *Registry) Broadcast(ids []uuid.UUID, skip uuid.UUID, msgType string, payload any) {
	data, ok := r.encode(msgType, payload)
	if !ok {
		return
	}
	for _, id := range ids {
		if id != skip {
			r.push(id, msgType, data)
		}
	}
}

func (r *Registry) encode(msgType string, payload any) ([]byte, bool) {
	data, err := json.Marshal(ServerMessage{Type: msgType, Payload: payload})
	if err != nil {
		r.log.Error().Err(err).Str("type", msgType).Msg("Failed to marshal message")
		return nil, false
	}
	return data, true
}

func (r *Registry) push(id uuid.UUID, msgType string, data []byte) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	if !p.client.enqueue(data) {
		r.metrics.MessageDropped()
		r.log.Warn().
			Str("player_id", id.String()).
			Str("type", msgType).
			Msg("Outbound queue full, message dropped")
	}
}

// each calls fn for every player in unspecified order.
func (r *Registry) each(fn func(*player)) {
	for _, p := range r.players {
		fn(p)
	}
}
