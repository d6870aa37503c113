package lobby

import (
	"cmp"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Table owns every open lobby.
type Table struct {
	lobbies map[uuid.UUID]*Lobby
	newID   func() uuid.UUID
}

func NewTable() *Table {
	return &Table{
		lobbies: make(map[uuid.UUID]*Lobby),
		newID:   uuid.New,
	}
}

// Len returns the number of open lobbies.
func (t *Table) Len() int {
	return len(t.lobbies)
}

// Get returns the lobby with the given id. The returned pointer is owned by
// the table; callers must not keep it across mutations.
func (t *Table) Get(id uuid.UUID) (*Lobby, error) {
	l, ok := t.lobbies[id]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return l, nil
}

// List returns every lobby ordered by name, then id.
func (t *Table) List() []*Lobby {
	out := make([]*Lobby, 0, len(t.lobbies))
	for _, l := range t.lobbies {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *Lobby) int {
		return cmp.Or(
			strings.Compare(a.Settings.Name, b.Settings.Name),
			strings.Compare(a.ID.String(), b.ID.String()),
		)
	})
	return out
}

// Create opens a lobby with founder as its only member and leader.
func (t *Table) Create(founder uuid.UUID, founderName string) *Lobby {
	l := &Lobby{
		ID:         t.newID(),
		Settings:   DefaultSettings(founderName),
		Teams:      [][]uuid.UUID{{founder}},
		Leader:     founder,
		Phase:      PhaseInLobby,
		Selections: make(map[uuid.UUID]Selection),
	}
	l.readjustIfNeeded()
	t.lobbies[l.ID] = l
	return l
}

// CanJoin reports why p could not join the lobby right now, or nil.
func (t *Table) CanJoin(id, p uuid.UUID) error {
	l, err := t.Get(id)
	if err != nil {
		return err
	}
	switch {
	case l.Contains(p):
		return ErrAlreadyMember
	case l.Phase != PhaseInLobby:
		return ErrWrongPhase
	case l.Settings.Locked:
		return ErrLobbyLocked
	case l.IsFull():
		return ErrLobbyFull
	}
	return nil
}

// Join appends p to the first smallest team.
func (t *Table) Join(id, p uuid.UUID) error {
	if err := t.CanJoin(id, p); err != nil {
		return err
	}
	l := t.lobbies[id]
	dst := smallest(l.Teams)
	l.Teams[dst] = append(l.Teams[dst], p)
	return nil
}

// LeaveResult describes the side effects of a permanent leave.
type LeaveResult struct {
	// Deleted is set when the leaver was the last member.
	Deleted bool
	// NewLeader is the promoted member when the leader left, else uuid.Nil.
	NewLeader uuid.UUID
	// EndedChampSelect is set when the leave sent the lobby back to InLobby.
	EndedChampSelect bool
}

// Leave removes p from the lobby. A temporary leave only takes p out of its
// team so the caller can reinsert it elsewhere; leadership, phase and
// selections are untouched and the lobby is never deleted.
//
// A permanent leave deletes the lobby once it is empty, hands leadership to
// the first remaining member and readjusts the teams. Leaving during champ
// select ends it for everyone; leaving a running match only drops the
// leaver's selection.
func (t *Table) Leave(id, p uuid.UUID, temporary bool) (LeaveResult, error) {
	l, err := t.Get(id)
	if err != nil {
		return LeaveResult{}, err
	}
	if !l.remove(p) {
		return LeaveResult{}, ErrNotMember
	}
	if temporary {
		return LeaveResult{}, nil
	}

	var res LeaveResult
	if l.Size() == 0 {
		delete(t.lobbies, id)
		res.Deleted = true
		return res, nil
	}

	if l.Leader == p {
		l.Leader = l.Members()[0]
		res.NewLeader = l.Leader
	}

	switch l.Phase {
	case PhaseInChampSelect:
		l.resetToLobby()
		res.EndedChampSelect = true
	case PhaseInGame:
		delete(l.Selections, p)
	}

	l.readjustIfNeeded()
	return res, nil
}

// SetSettings replaces the lobby settings and readjusts the teams. Numeric
// fields are clamped; an empty name keeps the current one.
func (t *Table) SetSettings(id, requester uuid.UUID, s Settings) error {
	l, err := t.Get(id)
	if err != nil {
		return err
	}
	if l.Leader != requester {
		return ErrNotLeader
	}
	if l.Phase != PhaseInLobby {
		return ErrWrongPhase
	}
	l.Settings = s.normalized(l.Settings.Name)
	l.readjustIfNeeded()
	return nil
}

// ChangeTeam moves player to team. Players may move themselves; moving
// anyone else takes the leader.
func (t *Table) ChangeTeam(id, requester, player uuid.UUID, team int) error {
	l, err := t.Get(id)
	if err != nil {
		return err
	}
	if requester != player && l.Leader != requester {
		return ErrNotLeader
	}
	if l.Phase != PhaseInLobby {
		return ErrWrongPhase
	}
	current, _, ok := l.Position(player)
	if !ok {
		return ErrNotMember
	}
	if team < 0 || team >= len(l.Teams) {
		return ErrTeamOutOfRange
	}
	if team == current {
		return nil
	}
	if len(l.Teams[team]) >= l.Settings.MaxPlayersPerTeam {
		return ErrTeamFull
	}

	if _, err := t.Leave(id, player, true); err != nil {
		return err
	}
	l.Teams[team] = append(l.Teams[team], player)
	return nil
}

// Swap exchanges the slots of a and b. Leader only.
func (t *Table) Swap(id, requester, a, b uuid.UUID) error {
	l, err := t.Get(id)
	if err != nil {
		return err
	}
	if l.Leader != requester {
		return ErrNotLeader
	}
	if l.Phase != PhaseInLobby {
		return ErrWrongPhase
	}
	ta, sa, okA := l.Position(a)
	tb, sb, okB := l.Position(b)
	if !okA || !okB {
		return ErrNotMember
	}
	l.Teams[ta][sa], l.Teams[tb][sb] = l.Teams[tb][sb], l.Teams[ta][sa]
	return nil
}

// Kick permanently removes target on behalf of the leader.
func (t *Table) Kick(id, requester, target uuid.UUID) (LeaveResult, error) {
	l, err := t.Get(id)
	if err != nil {
		return LeaveResult{}, err
	}
	if l.Leader != requester {
		return LeaveResult{}, ErrNotLeader
	}
	if target == requester {
		return LeaveResult{}, ErrCannotKickSelf
	}
	return t.Leave(id, target, false)
}
