package lobby

import "github.com/google/uuid"

// NeedsReadjust reports whether teams violate the team count or the per-team
// cap.
func NeedsReadjust(teams [][]uuid.UUID, teamCount, maxPerTeam int) bool {
	if len(teams) != teamCount {
		return true
	}
	for _, team := range teams {
		if len(team) > maxPerTeam {
			return true
		}
	}
	return false
}

// Readjust returns a copy of teams reshaped to exactly teamCount teams,
// keeping every player. Balancing is greedy, not optimal:
//
//  1. players of surplus teams move into the first kept team with room, or
//     into the smallest kept team when none has room;
//  2. missing teams are appended empty;
//  3. each team over maxPerTeam moves its tail players into the first team
//     with room, until none has room.
//
// When the lobby holds more players than teamCount*maxPerTeam some team stays
// over the cap.
func Readjust(teams [][]uuid.UUID, teamCount, maxPerTeam int) [][]uuid.UUID {
	teamCount = max(teamCount, 1)
	maxPerTeam = max(maxPerTeam, 1)

	out := make([][]uuid.UUID, 0, max(len(teams), teamCount))
	for _, team := range teams {
		out = append(out, append([]uuid.UUID{}, team...))
	}

	if len(out) > teamCount {
		surplus := out[teamCount:]
		out = out[:teamCount]
		for _, team := range surplus {
			for _, p := range team {
				// Why: nobody is dropped from a lobby when the team count
				// shrinks. With every team full the smallest one overflows,
				// which keeps the teams as even as the cap allows.
				dst := firstWithRoom(out, maxPerTeam)
				if dst < 0 {
					dst = smallest(out)
				}
				out[dst] = append(out[dst], p)
			}
		}
	}

	for len(out) < teamCount {
		out = append(out, []uuid.UUID{})
	}

	for i := range out {
		for len(out[i]) > maxPerTeam {
			dst := firstWithRoom(out, maxPerTeam)
			if dst < 0 {
				break
			}
			last := len(out[i]) - 1
			p := out[i][last]
			out[i] = out[i][:last]
			out[dst] = append(out[dst], p)
		}
	}
	return out
}

func firstWithRoom(teams [][]uuid.UUID, maxPerTeam int) int {
	for i, team := range teams {
		if len(team) < maxPerTeam {
			return i
		}
	}
	return -1
}

func smallest(teams [][]uuid.UUID) int {
	best := 0
	for i, team := range teams {
		if len(team) < len(teams[best]) {
			best = i
		}
	}
	return best
}
