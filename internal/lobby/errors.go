package lobby

import "errors"

var (
	ErrLobbyNotFound   = errors.New("LOBBY_NOT_FOUND: Lobby not found")
	ErrNotMember       = errors.New("NOT_IN_LOBBY: Player is not a member of the lobby")
	ErrAlreadyMember   = errors.New("ALREADY_IN_LOBBY: Player is already a member of the lobby")
	ErrNotLeader       = errors.New("NOT_LEADER: Only the lobby leader can do that")
	ErrLobbyLocked     = errors.New("LOBBY_LOCKED: Lobby is locked")
	ErrLobbyFull       = errors.New("LOBBY_FULL: Lobby is full")
	ErrWrongPhase      = errors.New("WRONG_PHASE: Not allowed in the lobby's current phase")
	ErrTeamOutOfRange  = errors.New("INVALID_TEAM: Team index out of range")
	ErrTeamFull        = errors.New("TEAM_FULL: Team is full")
	ErrCannotKickSelf  = errors.New("INVALID_KICK: The leader cannot kick themselves")
	ErrNoSelection     = errors.New("NO_SELECTION: Select a champion before locking")
	ErrSelectionLocked = errors.New("SELECTION_LOCKED: Selection is already locked")
)
