// Package lobby holds the lobby table: team layout, leadership, settings and
// the champion select state of every open lobby.
//
// Nothing in this package is safe for concurrent use. The table is owned by a
// single goroutine that serializes every mutation.
package lobby

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultTeamCount         = 2
	DefaultMaxPlayersPerTeam = 5

	MaxTeamCount         = 16
	MaxPlayersPerTeamCap = 32
	MaxNameLength        = 48
)

// Phase is the lifecycle stage of a lobby.
type Phase int

const (
	PhaseInLobby Phase = iota
	PhaseInChampSelect
	PhaseInGame
)

func (p Phase) String() string {
	switch p {
	case PhaseInLobby:
		return "in_lobby"
	case PhaseInChampSelect:
		return "in_champ_select"
	case PhaseInGame:
		return "in_game"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseInLobby, PhaseInChampSelect, PhaseInGame} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown lobby phase %q", text)
}

// Settings are the leader-editable properties of a lobby.
type Settings struct {
	Name              string `json:"name"`
	Locked            bool   `json:"locked"`
	TeamCount         int    `json:"teamCount"`
	MaxPlayersPerTeam int    `json:"maxPlayersPerTeam"`
}

// DefaultSettings returns the settings of a lobby founded by founderName.
func DefaultSettings(founderName string) Settings {
	return Settings{
		Name:              founderName + "'s lobby",
		TeamCount:         DefaultTeamCount,
		MaxPlayersPerTeam: DefaultMaxPlayersPerTeam,
	}
}

// normalized clamps the numeric fields into their allowed ranges and trims the
// name. An empty name falls back to fallback.
func (s Settings) normalized(fallback string) Settings {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		s.Name = fallback
	}
	if r := []rune(s.Name); len(r) > MaxNameLength {
		s.Name = string(r[:MaxNameLength])
	}
	s.TeamCount = min(max(s.TeamCount, 1), MaxTeamCount)
	s.MaxPlayersPerTeam = min(max(s.MaxPlayersPerTeam, 1), MaxPlayersPerTeamCap)
	return s
}

// Selection is one member's champion choice during champ select.
type Selection struct {
	Champion int  `json:"championId"`
	Locked   bool `json:"locked"`
}

// Lobby is a group of players organized into teams.
type Lobby struct {
	ID         uuid.UUID               `json:"id"`
	Settings   Settings                `json:"settings"`
	Teams      [][]uuid.UUID           `json:"teams"`
	Leader     uuid.UUID               `json:"leader"`
	Phase      Phase                   `json:"phase"`
	Selections map[uuid.UUID]Selection `json:"selections"`
}

// Members returns every member in team order, then slot order.
func (l *Lobby) Members() []uuid.UUID {
	out := make([]uuid.UUID, 0, l.Size())
	for _, team := range l.Teams {
		out = append(out, team...)
	}
	return out
}

// Size returns the number of members.
func (l *Lobby) Size() int {
	n := 0
	for _, team := range l.Teams {
		n += len(team)
	}
	return n
}

// Capacity is the member count at which the lobby counts as full.
func (l *Lobby) Capacity() int {
	return l.Settings.TeamCount * l.Settings.MaxPlayersPerTeam
}

func (l *Lobby) IsFull() bool {
	return l.Size() >= l.Capacity()
}

// Position returns the team and slot index of p.
func (l *Lobby) Position(p uuid.UUID) (team, slot int, ok bool) {
	for t, members := range l.Teams {
		if s := slices.Index(members, p); s >= 0 {
			return t, s, true
		}
	}
	return -1, -1, false
}

func (l *Lobby) Contains(p uuid.UUID) bool {
	_, _, ok := l.Position(p)
	return ok
}

// AllLocked reports whether every member has a locked selection.
func (l *Lobby) AllLocked() bool {
	for _, p := range l.Members() {
		if sel, ok := l.Selections[p]; !ok || !sel.Locked {
			return false
		}
	}
	return true
}

// Clone returns a deep copy that shares no memory with l.
func (l *Lobby) Clone() *Lobby {
	c := *l
	c.Teams = make([][]uuid.UUID, len(l.Teams))
	for i, team := range l.Teams {
		c.Teams[i] = slices.Clone(team)
		if c.Teams[i] == nil {
			c.Teams[i] = []uuid.UUID{}
		}
	}
	c.Selections = maps.Clone(l.Selections)
	if c.Selections == nil {
		c.Selections = map[uuid.UUID]Selection{}
	}
	return &c
}

// remove deletes p from its team. It does not rebalance.
func (l *Lobby) remove(p uuid.UUID) bool {
	t, s, ok := l.Position(p)
	if !ok {
		return false
	}
	l.Teams[t] = slices.Delete(l.Teams[t], s, s+1)
	return true
}

func (l *Lobby) readjustIfNeeded() {
	if NeedsReadjust(l.Teams, l.Settings.TeamCount, l.Settings.MaxPlayersPerTeam) {
		l.Teams = Readjust(l.Teams, l.Settings.TeamCount, l.Settings.MaxPlayersPerTeam)
	}
}

// resetToLobby ends champ select or a match and forgets every selection.
func (l *Lobby) resetToLobby() {
	l.Phase = PhaseInLobby
	clear(l.Selections)
}
