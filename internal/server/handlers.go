package server

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"lobby-server/internal/lobby"
)

type empty struct{}

func (h *Hub) onPlayerMessage(e playerMessage) {
	p, ok := h.players.Get(e.player)
	if !ok {
		h.log.Debug().Str("player_id", e.player.String()).Str("type", e.msg.Type).Msg("Message from unknown player")
		return
	}
	if err := h.handleMessage(p, e.msg); err != nil {
		h.metrics.ProtocolError(err.Error())
		h.log.Warn().
			Err(err).
			Str("player_id", p.id.String()).
			Str("type", e.msg.Type).
			Msg("Dropped client request")
	}
}

// handleMessage routes one client request. A returned error means the
// request was rejected; nothing is sent back to the client.
func (h *Hub) handleMessage(p *player, msg ClientMessage) error {
	switch msg.Type {
	case MsgHandshake:
		return ErrAlreadyHandshaken

	case MsgFetchLobbyList:
		return h.handleFetchLobbyList(p)

	case MsgCreateAndJoinLobby:
		return h.handleCreateAndJoinLobby(p)

	case MsgJoinLobby:
		req, err := decode[LobbyRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleJoinLobby(p, req)

	case MsgLeaveCurrentLobby:
		return h.handleLeaveCurrentLobby(p)

	case MsgGetLobbyInfo:
		req, err := decode[LobbyRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleGetLobbyInfo(p, req)

	case MsgGetPlayerInfo:
		req, err := decode[PlayerRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleGetPlayerInfo(p, req)

	case MsgSetLobbySettings:
		req, err := decode[SetLobbySettingsRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleSetLobbySettings(p, req)

	case MsgChangePlayerTeam:
		req, err := decode[ChangePlayerTeamRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleChangePlayerTeam(p, req)

	case MsgSwitchPlayerPositions:
		req, err := decode[SwitchPlayerPositionsRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleSwitchPlayerPositions(p, req)

	case MsgKickPlayer:
		req, err := decode[PlayerRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleKickPlayer(p, req)

	case MsgGoToChampSelect:
		return h.handleGoToChampSelect(p)

	case MsgSelectChamp:
		req, err := decode[SelectChampRequest](msg.Payload)
		if err != nil {
			return err
		}
		return h.handleSelectChamp(p, req)

	case MsgLockSelection:
		return h.handleLockSelection(p)

	case MsgDisconnect:
		h.dropPlayer(p.id)
		return nil

	default:
		return ValidateMessageType(msg.Type)
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v, nil
}

// currentLobby returns the lobby p is in.
func (h *Hub) currentLobby(p *player) (*lobby.Lobby, error) {
	if !p.inLobby() {
		return nil, ErrNotInLobby
	}
	return h.lobbies.Get(p.lobby)
}

// broadcastLobby sends a message to every member of l.
func (h *Hub) broadcastLobby(l *lobby.Lobby, msgType string, payload any) {
	h.players.Broadcast(l.Members(), uuid.Nil, msgType, payload)
}

func (h *Hub) handleFetchLobbyList(p *player) error {
	lobbies := h.lobbies.List()
	resp := LobbyListResponse{Lobbies: make([]LobbySummary, 0, len(lobbies))}
	for _, l := range lobbies {
		resp.Lobbies = append(resp.Lobbies, summarize(l))
	}
	h.players.Send(p.id, MsgLobbyList, resp)
	return nil
}

func (h *Hub) handleCreateAndJoinLobby(p *player) error {
	if p.inLobby() {
		if err := h.leaveLobby(p); err != nil {
			return err
		}
		h.players.Send(p.id, MsgYouLeftLobby, empty{})
	}

	l := h.lobbies.Create(p.id, p.name)
	p.lobby = l.ID
	h.metrics.LobbyCreated()
	h.players.Send(p.id, MsgYouJoinedLobby, YouJoinedLobby{LobbyID: l.ID})

	h.log.Info().
		Str("lobby_id", l.ID.String()).
		Str("player_id", p.id.String()).
		Str("name", l.Settings.Name).
		Msg("Lobby created")
	return nil
}

func (h *Hub) handleJoinLobby(p *player, req LobbyRequest) error {
	if err := h.lobbies.CanJoin(req.LobbyID, p.id); err != nil {
		return err
	}
	if p.inLobby() {
		if err := h.leaveLobby(p); err != nil {
			return err
		}
		h.players.Send(p.id, MsgYouLeftLobby, empty{})
	}
	if err := h.lobbies.Join(req.LobbyID, p.id); err != nil {
		return err
	}
	p.lobby = req.LobbyID

	l, err := h.lobbies.Get(req.LobbyID)
	if err != nil {
		return err
	}
	h.players.Send(p.id, MsgYouJoinedLobby, YouJoinedLobby{LobbyID: l.ID})
	h.players.Broadcast(l.Members(), p.id, MsgPlayerJoinedLobby, PlayerNotification{PlayerID: p.id})

	h.log.Info().Str("lobby_id", l.ID.String()).Str("player_id", p.id.String()).Msg("Player joined lobby")
	return nil
}

// handleLeaveCurrentLobby is a no-op for a player in no lobby.
func (h *Hub) handleLeaveCurrentLobby(p *player) error {
	if !p.inLobby() {
		return nil
	}
	if err := h.leaveLobby(p); err != nil {
		return err
	}
	h.players.Send(p.id, MsgYouLeftLobby, empty{})
	return nil
}

// leaveLobby permanently removes p from its lobby and notifies who remains.
// The caller tells p itself, if it wants to.
func (h *Hub) leaveLobby(p *player) error {
	id := p.lobby
	p.lobby = uuid.Nil
	res, err := h.lobbies.Leave(id, p.id, false)
	if err != nil {
		return err
	}
	h.afterLeave(id, p.id, res)
	return nil
}

// afterLeave applies the side effects of a permanent leave or kick.
func (h *Hub) afterLeave(lobbyID, leaver uuid.UUID, res lobby.LeaveResult) {
	log := h.log.With().Str("lobby_id", lobbyID.String()).Str("player_id", leaver.String()).Logger()

	if res.Deleted {
		h.abandonMatches(lobbyID)
		h.metrics.LobbyClosed()
		log.Info().Msg("Lobby closed")
		return
	}

	l, err := h.lobbies.Get(lobbyID)
	if err != nil {
		return
	}
	h.broadcastLobby(l, MsgPlayerLeftLobby, PlayerNotification{PlayerID: leaver})

	if res.EndedChampSelect {
		h.abandonMatches(lobbyID)
		h.broadcastLobby(l, MsgReturnFromChampSelect, empty{})
		log.Info().Msg("Champ select ended by leave")
	}
	if res.NewLeader != uuid.Nil {
		h.broadcastLobby(l, MsgLobbyInfo, LobbyInfoResponse{Lobby: l.Clone()})
		log.Info().Str("leader_id", res.NewLeader.String()).Msg("Lobby leadership transferred")
	}
	log.Info().Msg("Player left lobby")
}

func (h *Hub) handleGetLobbyInfo(p *player, req LobbyRequest) error {
	l, err := h.lobbies.Get(req.LobbyID)
	if err != nil {
		return err
	}
	h.players.Send(p.id, MsgLobbyInfo, LobbyInfoResponse{Lobby: l.Clone()})
	return nil
}

func (h *Hub) handleGetPlayerInfo(p *player, req PlayerRequest) error {
	target, ok := h.players.Get(req.PlayerID)
	if !ok {
		return ErrPlayerNotFound
	}
	h.players.Send(p.id, MsgPlayerInfo, PlayerInfoResponse{Player: target.info()})
	return nil
}

func (h *Hub) handleSetLobbySettings(p *player, req SetLobbySettingsRequest) error {
	l, err := h.currentLobby(p)
	if err != nil {
		return err
	}
	if err := h.lobbies.SetSettings(l.ID, p.id, req.Settings); err != nil {
		return err
	}
	h.broadcastLobby(l, MsgLobbyInfo, LobbyInfoResponse{Lobby: l.Clone()})
	return nil
}

func (h *Hub) handleChangePlayerTeam(p *player, req ChangePlayerTeamRequest) error {
	l, err := h.currentLobby(p)
	if err != nil {
		return err
	}
	if err := h.lobbies.ChangeTeam(l.ID, p.id, req.PlayerID, req.Team); err != nil {
		return err
	}
	h.broadcastLobby(l, MsgPlayerChangedTeam, PlayerChangedTeam{PlayerID: req.PlayerID, Team: req.Team})
	return nil
}

func (h *Hub) handleSwitchPlayerPositions(p *player, req SwitchPlayerPositionsRequest) error {
	l, err := h.currentLobby(p)
	if err != nil {
		return err
	}
	if err := h.lobbies.Swap(l.ID, p.id, req.A, req.B); err != nil {
		return err
	}
	h.broadcastLobby(l, MsgPlayerChangedPositions, PlayerChangedPositions{A: req.A, B: req.B})
	return nil
}

func (h *Hub) handleKickPlayer(p *player, req PlayerRequest) error {
	l, err := h.currentLobby(p)
	if err != nil {
		return err
	}
	res, err := h.lobbies.Kick(l.ID, p.id, req.PlayerID)
	if err != nil {
		return err
	}
	if target, ok := h.players.Get(req.PlayerID); ok {
		target.lobby = uuid.Nil
		h.players.Send(target.id, MsgYouLeftLobby, empty{})
	}
	h.afterLeave(l.ID, req.PlayerID, res)
	return nil
}

func (h *Hub) handleGoToChampSelect(p *player) error {
	l, err := h.currentLobby(p)
	if err != nil {
		return err
	}
	if err := h.lobbies.GoToChampSelect(l.ID, p.id); err != nil {
		return err
	}
	h.broadcastLobby(l, MsgGoToChampSelect, empty{})
	h.log.Info().Str("lobby_id", l.ID.String()).Msg("Champ select started")
	return nil
}

func (h *Hub) handleSelectChamp(p *player, req SelectChampRequest) error {
	l, err := h.currentLobby(p)
	if err != nil {
		return err
	}
	if err := h.lobbies.SelectChampion(l.ID, p.id, req.ChampionID); err != nil {
		return err
	}
	h.broadcastLobby(l, MsgPlayerSelectedChamp, PlayerSelectedChamp{PlayerID: p.id, ChampionID: req.ChampionID})
	return nil
}

func (h *Hub) handleLockSelection(p *player) error {
	l, err := h.currentLobby(p)
	if err != nil {
		return err
	}
	allLocked, err := h.lobbies.LockSelection(l.ID, p.id)
	if err != nil {
		return err
	}
	h.broadcastLobby(l, MsgPlayerLockedSelection, PlayerNotification{PlayerID: p.id})
	if allLocked {
		h.launchMatch(l)
	}
	return nil
}
