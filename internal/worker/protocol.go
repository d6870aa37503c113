package worker

import (
	"github.com/google/uuid"

	"lobby-server/internal/lobby"
)

// PlayerInfo describes one participant to the worker.
type PlayerInfo struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Team       int       `json:"team"`
	ChampionID int       `json:"championId"`
	IsIPv4     bool      `json:"isIPv4"`
	IsLocal    bool      `json:"isLocal"`
}

// Handshake is the first and only message the server sends to a worker.
type Handshake struct {
	LobbySettings lobby.Settings `json:"lobbySettings"`
	Players       []PlayerInfo   `json:"players"`
	// PrivateKey is a per-match secret the worker signs player tokens with.
	PrivateKey []byte `json:"privateKey"`
}

// PlayerTokens is the worker's reply: one opaque connect token per player.
type PlayerTokens struct {
	Tokens map[uuid.UUID][]byte `json:"tokens"`
}
