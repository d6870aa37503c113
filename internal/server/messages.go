package server

import "encoding/json"

// Client → server message types.
const (
	MsgHandshake             = "handshake"
	MsgFetchLobbyList        = "fetch_lobby_list"
	MsgCreateAndJoinLobby    = "create_and_join_lobby"
	MsgJoinLobby             = "join_lobby"
	MsgLeaveCurrentLobby     = "leave_current_lobby"
	MsgGetLobbyInfo          = "get_lobby_info"
	MsgGetPlayerInfo         = "get_player_info"
	MsgSetLobbySettings      = "set_lobby_settings"
	MsgChangePlayerTeam      = "change_player_team"
	MsgSwitchPlayerPositions = "switch_player_positions"
	MsgKickPlayer            = "kick_player"
	MsgGoToChampSelect       = "go_to_champ_select"
	MsgSelectChamp           = "select_champ"
	MsgLockSelection         = "lock_selection"
	MsgDisconnect            = "disconnect"
)

// Server → client message types. handshake and go_to_champ_select reuse the
// client constants above.
const (
	MsgLobbyList              = "lobby_list"
	MsgLobbyInfo              = "lobby_info"
	MsgYouJoinedLobby         = "you_joined_lobby"
	MsgYouLeftLobby           = "you_left_lobby"
	MsgPlayerJoinedLobby      = "player_joined_lobby"
	MsgPlayerLeftLobby        = "player_left_lobby"
	MsgPlayerInfo             = "player_info"
	MsgPlayerChangedTeam      = "player_changed_team"
	MsgPlayerChangedPositions = "player_changed_positions"
	MsgReturnFromChampSelect  = "return_from_champ_select"
	MsgPlayerSelectedChamp    = "player_selected_champ"
	MsgPlayerLockedSelection  = "player_locked_selection"
	MsgGameStarted            = "game_started"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
