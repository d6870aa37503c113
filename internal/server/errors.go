package server

import "errors"

var (
	ErrUnknownMessageType = errors.New("INVALID_MESSAGE_TYPE: Unknown message type")
	ErrInvalidPayload     = errors.New("INVALID_PAYLOAD: Malformed message payload")
	ErrAlreadyHandshaken  = errors.New("ALREADY_HANDSHAKEN: Player already completed the handshake")
	ErrNotInLobby         = errors.New("NOT_IN_LOBBY: Player is not in a lobby")
	ErrPlayerNotFound     = errors.New("PLAYER_NOT_FOUND: Player not found")
	ErrHubClosed          = errors.New("HUB_CLOSED: Server is shutting down")
)
