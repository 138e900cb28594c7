package testutil

import (
	"fmt"
	"strings"

	"github.com/AshkanYarmoradi/go-dugout/game"
)

// NinePlayerRoster returns a valid roster with one batter per required
// position. Player ids are "<team>-1" through "<team>-9" in batting order.
func NinePlayerRoster(team string) game.Roster {
	return lineupRoster(team, game.RequiredPositions)
}

// TenPlayerRoster is NinePlayerRoster plus a designated hitter batting tenth.
func TenPlayerRoster(team string) game.Roster {
	return lineupRoster(team, append(append([]game.Position{}, game.RequiredPositions...), game.DesignatedHitter))
}

// WithBench adds bench players with ids "<team>-<name>", lower-cased.
func WithBench(r game.Roster, names ...string) game.Roster {
	out := game.Roster{Team: r.Team, Players: append([]game.Player(nil), r.Players...)}
	for i, name := range names {
		out.Players = append(out.Players, game.Player{
			ID:     fmt.Sprintf("%s-%s", r.Team, strings.ToLower(name)),
			Name:   name,
			Jersey: fmt.Sprint(90 + i),
		})
	}
	return out
}

func lineupRoster(team string, positions []game.Position) game.Roster {
	r := game.Roster{Team: team}
	for i, pos := range positions {
		r.Players = append(r.Players, game.Player{
			ID:           fmt.Sprintf("%s-%d", team, i+1),
			Name:         fmt.Sprintf("%s player %d", team, i+1),
			Jersey:       fmt.Sprint(i + 10),
			Position:     pos,
			BattingOrder: i + 1,
		})
	}
	return r
}
