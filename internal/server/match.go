package server

import (
	"context"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"lobby-server/internal/history"
	"lobby-server/internal/lobby"
	"lobby-server/internal/ports"
	"lobby-server/internal/worker"
)

// activeMatch is a launched worker as seen by the hub.
type activeMatch struct {
	match  worker.Match
	worker *worker.Worker
	// started is set once the worker handed out every token; the lobby is
	// then InGame.
	started bool
	// abandoned matches no longer drive their lobby.
	abandoned bool
	// recorded is closed once the start has been written to history.
	recorded chan struct{}
}

// launchMatch allocates ports for l and starts its worker. Any failure
// leaves the lobby in champ select with every port returned.
func (h *Hub) launchMatch(l *lobby.Lobby) {
	log := h.log.With().Str("lobby_id", l.ID.String()).Logger()

	internal, ok := h.ports.Acquire(ports.Internal)
	if !ok {
		h.metrics.MatchFailed()
		log.Warn().Msg("No free internal port, match not launched")
		return
	}
	external, ok := h.ports.Acquire(ports.External)
	if !ok {
		h.ports.Release(ports.Internal, internal)
		h.metrics.MatchFailed()
		log.Warn().Msg("No free external port, match not launched")
		return
	}
	release := func() {
		h.ports.Release(ports.Internal, internal)
		h.ports.Release(ports.External, external)
		h.publishPorts()
	}

	key, err := h.newKey()
	if err != nil {
		release()
		h.metrics.MatchFailed()
		log.Error().Err(err).Msg("Match not launched")
		return
	}

	m := worker.Match{
		ID:           uuid.New(),
		Lobby:        l.ID,
		InternalPort: internal,
		ExternalPort: external,
		Handshake:    h.buildHandshake(l, key),
	}
	w, err := h.supervisor.Start(h.ctx, m, hubSink{h: h})
	if err != nil {
		release()
		h.metrics.MatchFailed()
		log.Error().Err(err).Msg("Failed to start worker")
		return
	}

	h.matches[m.ID] = &activeMatch{match: m, worker: w, recorded: make(chan struct{})}
	h.metrics.MatchLaunched()
	h.publishPorts()
	log.Info().
		Str("match_id", m.ID.String()).
		Uint16("internal_port", internal).
		Uint16("external_port", external).
		Int("players", len(m.Handshake.Players)).
		Msg("Match launched")
}

// buildHandshake lists the members of l in team order with their picks.
func (h *Hub) buildHandshake(l *lobby.Lobby, key []byte) worker.Handshake {
	hs := worker.Handshake{
		LobbySettings: l.Settings,
		Players:       make([]worker.PlayerInfo, 0, l.Size()),
		PrivateKey:    key,
	}
	for team, members := range l.Teams {
		for _, id := range members {
			info := worker.PlayerInfo{
				ID:         id,
				Team:       team,
				ChampionID: l.Selections[id].Champion,
			}
			if p, ok := h.players.Get(id); ok {
				info.Name = p.name
				info.IsIPv4 = p.addr.Unmap().Is4()
				info.IsLocal = isLocalAddr(p.addr)
			}
			hs.Players = append(hs.Players, info)
		}
	}
	return hs
}

func isLocalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}

// abandonMatches detaches every match of a lobby that ended champ select or
// closed. Matches still in their handshake are killed; running ones keep
// going until they exit on their own.
func (h *Hub) abandonMatches(lobbyID uuid.UUID) {
	for _, am := range h.matches {
		if am.match.Lobby != lobbyID || am.abandoned {
			continue
		}
		am.abandoned = true
		// Why: before the handshake nobody holds a token, so the worker can
		// only ever host an empty game. Once tokens are out, players may
		// already be connected to it and a leaver must not end their game.
		if !am.started {
			am.worker.Kill()
			h.log.Info().
				Str("match_id", am.match.ID.String()).
				Str("lobby_id", lobbyID.String()).
				Msg("Killing worker of abandoned match")
		}
	}
}

// onHandshakeComplete moves the lobby in game. The tokens follow as
// separate events.
func (h *Hub) onHandshakeComplete(e handshakeDone) {
	am, ok := h.matches[e.match.ID]
	if !ok || am.abandoned || am.started {
		h.log.Debug().Str("match_id", e.match.ID.String()).Msg("Handshake of abandoned match ignored")
		return
	}

	am.started = true
	if err := h.lobbies.StartGame(am.match.Lobby); err != nil {
		h.log.Warn().Err(err).Str("lobby_id", am.match.Lobby.String()).Msg("Failed to start game")
	}
	h.recordStarted(am)
	h.log.Info().
		Str("match_id", am.match.ID.String()).
		Str("lobby_id", am.match.Lobby.String()).
		Msg("Match started")
}

func (h *Hub) onTokensReady(e tokensReady) {
	am, ok := h.matches[e.match.ID]
	if !ok || am.abandoned || !am.started {
		h.log.Debug().Str("match_id", e.match.ID.String()).Msg("Token for abandoned match ignored")
		return
	}

	p, ok := h.players.Get(e.player)
	if !ok || p.lobby != am.match.Lobby {
		h.log.Debug().Str("player_id", e.player.String()).Msg("Token for player no longer in lobby dropped")
		return
	}
	h.players.Send(p.id, MsgGameStarted, GameStarted{Token: e.token})
}

func (h *Hub) onWorkerExited(e workerExited) {
	am, ok := h.matches[e.match.ID]
	if !ok {
		return
	}
	delete(h.matches, e.match.ID)
	h.metrics.MatchEnded()

	reason := "exited"
	if e.err != nil {
		reason = e.err.Error()
	}
	if am.started {
		h.recordEnded(am, reason)
	}
	if am.abandoned {
		return
	}

	l, err := h.lobbies.Get(am.match.Lobby)
	if err != nil {
		return
	}
	if err := h.lobbies.ReturnToLobby(l.ID); err != nil {
		h.log.Warn().Err(err).Str("lobby_id", l.ID.String()).Msg("Failed to return lobby")
		return
	}
	h.broadcastLobby(l, MsgReturnFromChampSelect, empty{})
	h.log.Info().
		Str("lobby_id", l.ID.String()).
		Str("match_id", e.match.ID.String()).
		Str("reason", reason).
		Msg("Match ended, lobby returned")
}

// recordStarted writes the match start to history off the hub goroutine.
func (h *Hub) recordStarted(am *activeMatch) {
	hm := history.Match{
		ID:           am.match.ID,
		LobbyID:      am.match.Lobby,
		LobbyName:    am.match.Handshake.LobbySettings.Name,
		ExternalPort: am.match.ExternalPort,
		StartedAt:    time.Now().UTC(),
		Players:      make([]history.Player, 0, len(am.match.Handshake.Players)),
	}
	for _, p := range am.match.Handshake.Players {
		hm.Players = append(hm.Players, history.Player{
			ID:         p.ID,
			Name:       p.Name,
			Team:       p.Team,
			ChampionID: p.ChampionID,
		})
	}

	h.records.Add(1)
	go func() {
		defer h.records.Done()
		defer close(am.recorded)
		ctx, cancel := context.WithTimeout(context.Background(), h.recordTimeout)
		defer cancel()
		if err := h.recorder.MatchStarted(ctx, hm); err != nil {
			h.log.Warn().Err(err).Str("match_id", hm.ID.String()).Msg("Failed to record match start")
		}
	}()
}

// recordEnded writes the match end once its start is recorded.
func (h *Hub) recordEnded(am *activeMatch, reason string) {
	id := am.match.ID
	at := time.Now().UTC()

	h.records.Add(1)
	go func() {
		defer h.records.Done()
		<-am.recorded
		ctx, cancel := context.WithTimeout(context.Background(), h.recordTimeout)
		defer cancel()
		if err := h.recorder.MatchEnded(ctx, id, at, reason); err != nil {
			h.log.Warn().Err(err).Str("match_id", id.String()).Msg("Failed to record match end")
		}
	}()
}
