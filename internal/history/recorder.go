// Package history keeps an append-only record of launched matches. It is an
// audit trail only; lobby state is never restored from it.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Player is one participant of a recorded match.
type Player struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Team       int       `json:"team"`
	ChampionID int       `json:"championId"`
}

// Match is one launched worker as seen by the lobby server.
type Match struct {
	ID           uuid.UUID  `json:"id"`
	LobbyID      uuid.UUID  `json:"lobbyId"`
	LobbyName    string     `json:"lobbyName"`
	ExternalPort uint16     `json:"externalPort"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	EndReason    string     `json:"endReason,omitempty"`
	Players      []Player   `json:"players"`
}

// Recorder stores match history.
type Recorder interface {
	MatchStarted(ctx context.Context, m Match) error
	MatchEnded(ctx context.Context, id uuid.UUID, at time.Time, reason string) error
	// Recent returns up to limit matches, newest first.
	Recent(ctx context.Context, limit int) ([]Match, error)
	Close()
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) MatchStarted(context.Context, Match) error                      { return nil }
func (NopRecorder) MatchEnded(context.Context, uuid.UUID, time.Time, string) error { return nil }
func (NopRecorder) Recent(context.Context, int) ([]Match, error)                   { return nil, nil }
func (NopRecorder) Close()                                                         {}
