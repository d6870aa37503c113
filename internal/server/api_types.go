package server

import (
	"github.com/google/uuid"

	"lobby-server/internal/lobby"
)

// ============================================================================
// HANDSHAKE (handshake)
// ============================================================================
type HandshakeRequest struct {
	Name string `json:"name"`
}

type HandshakeResponse struct {
	PlayerID uuid.UUID `json:"playerId"`
}

// ============================================================================
// LOBBY LIST (fetch_lobby_list -> lobby_list)
// ============================================================================
type LobbySummary struct {
	ID                uuid.UUID   `json:"id"`
	Name              string      `json:"name"`
	Locked            bool        `json:"locked"`
	Phase             lobby.Phase `json:"phase"`
	Players           int         `json:"players"`
	Capacity          int         `json:"capacity"`
	TeamCount         int         `json:"teamCount"`
	MaxPlayersPerTeam int         `json:"maxPlayersPerTeam"`
}

type LobbyListResponse struct {
	Lobbies []LobbySummary `json:"lobbies"`
}

func summarize(l *lobby.Lobby) LobbySummary {
	return LobbySummary{
		ID:                l.ID,
		Name:              l.Settings.Name,
		Locked:            l.Settings.Locked,
		Phase:             l.Phase,
		Players:           l.Size(),
		Capacity:          l.Capacity(),
		TeamCount:         l.Settings.TeamCount,
		MaxPlayersPerTeam: l.Settings.MaxPlayersPerTeam,
	}
}

// ============================================================================
// LOBBY INFO (get_lobby_info -> lobby_info)
// ============================================================================
type LobbyRequest struct {
	LobbyID uuid.UUID `json:"lobbyId"`
}

type LobbyInfoResponse struct {
	Lobby *lobby.Lobby `json:"lobby"`
}

// ============================================================================
// MEMBERSHIP (you_joined_lobby, player_joined_lobby, player_left_lobby)
// ============================================================================
type YouJoinedLobby struct {
	LobbyID uuid.UUID `json:"lobbyId"`
}

type PlayerNotification struct {
	PlayerID uuid.UUID `json:"playerId"`
}

// ============================================================================
// PLAYER INFO (get_player_info -> player_info)
// ============================================================================
type PlayerRequest struct {
	PlayerID uuid.UUID `json:"playerId"`
}

type PlayerInfo struct {
	ID      uuid.UUID  `json:"id"`
	Name    string     `json:"name"`
	LobbyID *uuid.UUID `json:"lobbyId,omitempty"`
}

type PlayerInfoResponse struct {
	Player PlayerInfo `json:"player"`
}

// ============================================================================
// LOBBY EDITS (set_lobby_settings, change_player_team, switch_player_positions)
// ============================================================================
type SetLobbySettingsRequest struct {
	Settings lobby.Settings `json:"settings"`
}

type ChangePlayerTeamRequest struct {
	PlayerID uuid.UUID `json:"playerId"`
	Team     int       `json:"team"`
}

type PlayerChangedTeam struct {
	PlayerID uuid.UUID `json:"playerId"`
	Team     int       `json:"team"`
}

type SwitchPlayerPositionsRequest struct {
	A uuid.UUID `json:"a"`
	B uuid.UUID `json:"b"`
}

type PlayerChangedPositions struct {
	A uuid.UUID `json:"a"`
	B uuid.UUID `json:"b"`
}

// ============================================================================
// CHAMP SELECT (select_champ, lock_selection)
// ============================================================================
type SelectChampRequest struct {
	ChampionID int `json:"championId"`
}

type PlayerSelectedChamp struct {
	PlayerID   uuid.UUID `json:"playerId"`
	ChampionID int       `json:"championId"`
}

// ============================================================================
// GAME STARTED (game_started)
// ============================================================================
// Token is the worker-issued connect credential, base64 in JSON.
type GameStarted struct {
	Token []byte `json:"token"`
}
