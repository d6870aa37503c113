package lobby

import "github.com/google/uuid"

// GoToChampSelect starts champion select. Leader only.
func (t *Table) GoToChampSelect(id, requester uuid.UUID) error {
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
	l.Phase = PhaseInChampSelect
	clear(l.Selections)
	return nil
}

// SelectChampion records p's pick. A locked pick cannot change.
func (t *Table) SelectChampion(id, p uuid.UUID, champion int) error {
	l, err := t.champSelectMember(id, p)
	if err != nil {
		return err
	}
	if sel, ok := l.Selections[p]; ok && sel.Locked {
		return ErrSelectionLocked
	}
	l.Selections[p] = Selection{Champion: champion}
	return nil
}

// LockSelection locks p's pick and reports whether every member is now
// locked.
func (t *Table) LockSelection(id, p uuid.UUID) (bool, error) {
	l, err := t.champSelectMember(id, p)
	if err != nil {
		return false, err
	}
	sel, ok := l.Selections[p]
	if !ok {
		return false, ErrNoSelection
	}
	if sel.Locked {
		return false, ErrSelectionLocked
	}
	sel.Locked = true
	l.Selections[p] = sel
	return l.AllLocked(), nil
}

// ReturnToLobby ends champ select or a match and clears every selection.
func (t *Table) ReturnToLobby(id uuid.UUID) error {
	l, err := t.Get(id)
	if err != nil {
		return err
	}
	l.resetToLobby()
	return nil
}

// StartGame moves a lobby from champ select into its match.
func (t *Table) StartGame(id uuid.UUID) error {
	l, err := t.Get(id)
	if err != nil {
		return err
	}
	if l.Phase != PhaseInChampSelect {
		return ErrWrongPhase
	}
	l.Phase = PhaseInGame
	return nil
}

func (t *Table) champSelectMember(id, p uuid.UUID) (*Lobby, error) {
	l, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if !l.Contains(p) {
		return nil, ErrNotMember
	}
	if l.Phase != PhaseInChampSelect {
		return nil, ErrWrongPhase
	}
	return l, nil
}
