package server

import (
	"encoding/json"
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobby-server/internal/metrics"
)

var loopback = netip.MustParseAddr("127.0.0.1")

func TestRegistryUniqueNames(t *testing.T) {
	assert := assert.New(t)
	r := NewRegistry(metrics.New(), zerolog.Nop())

	a := r.Register(newClient(4), "Zoe", loopback)
	b := r.Register(newClient(4), "Zoe", loopback)
	c := r.Register(newClient(4), "Zoe", loopback)

	names := func(id uuid.UUID) string {
		p, ok := r.Get(id)
		require.True(t, ok)
		return p.name
	}
	assert.Equal("Zoe", names(a))
	assert.Equal("Zoe (2)", names(b))
	assert.Equal("Zoe (3)", names(c))

	// a freed suffix is reused before a new one
	r.Unregister(b)
	d := r.Register(newClient(4), "Zoe", loopback)
	assert.Equal("Zoe (2)", names(d))

	r.Unregister(a)
	e := r.Register(newClient(4), "Zoe", loopback)
	assert.Equal("Zoe", names(e))
	assert.Equal(3, r.Len())
}

func TestRegistryUnregister(t *testing.T) {
	m := metrics.New()
	r := NewRegistry(m, zerolog.Nop())
	c := newClient(4)
	id := r.Register(c, "ana", loopback)
	assert.Equal(t, int64(1), m.ActivePlayers())

	r.Unregister(id)
	r.Unregister(id)

	_, ok := r.Get(id)
	assert.False(t, ok)
	_, open := <-c.out
	assert.False(t, open)
	assert.Zero(t, m.ActivePlayers())

	// sends to a gone player are ignored
	r.Send(id, MsgLobbyList, LobbyListResponse{})
}

func TestRegistrySendEncodesEnvelope(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	c := newClient(4)
	id := r.Register(c, "ana", loopback)

	r.Send(id, MsgYouLeftLobby, empty{})

	var got received
	require.NoError(t, json.Unmarshal(<-c.out, &got))
	assert.Equal(t, MsgYouLeftLobby, got.Type)
	assert.JSONEq(t, `{}`, string(got.Payload))
}

func TestRegistryBroadcastSkips(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	ca, cb, cc := newClient(4), newClient(4), newClient(4)
	a := r.Register(ca, "a", loopback)
	b := r.Register(cb, "b", loopback)
	r.Register(cc, "c", loopback)

	r.Broadcast([]uuid.UUID{a, b, uuid.New()}, b, MsgPlayerJoinedLobby, PlayerNotification{PlayerID: b})

	assert.Len(t, ca.out, 1)
	assert.Empty(t, cb.out)
	assert.Empty(t, cc.out)
}

func TestRegistryFullQueueDrops(t *testing.T) {
	m := metrics.New()
	r := NewRegistry(m, zerolog.Nop())
	c := newClient(2)
	id := r.Register(c, "slow", loopback)

	for i := 0; i < 5; i++ {
		r.Send(id, MsgPlayerSelectedChamp, PlayerSelectedChamp{PlayerID: id, ChampionID: i})
	}

	require.Len(t, c.out, 2)
	assert.Equal(t, int64(3), m.Snapshot().MessagesDropped)

	// the queued ones are the oldest, in order
	for want := 0; want < 2; want++ {
		var msg struct {
			Payload PlayerSelectedChamp `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(<-c.out, &msg))
		assert.Equal(t, want, msg.Payload.ChampionID)
	}
}

func TestRegistryUnencodablePayload(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	c := newClient(4)
	id := r.Register(c, "ana", loopback)

	r.Send(id, MsgLobbyList, func() {})
	assert.Empty(t, c.out)
}

func TestPlayerInfo(t *testing.T) {
	p := &player{id: uuid.New(), name: "ana"}
	assert.Nil(t, p.info().LobbyID)

	p.lobby = uuid.New()
	info := p.info()
	require.NotNil(t, info.LobbyID)
	assert.Equal(t, p.lobby, *info.LobbyID)
}
