package game

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// Player is a roster entry. BattingOrder 0 puts the player on the bench.
type Player struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Jersey       string   `json:"jersey" yaml:"jersey"`
	Position     Position `json:"position,omitempty" yaml:"position"`
	BattingOrder int      `json:"battingOrder,omitempty" yaml:"battingOrder"`
}

// Starter reports whether p is in the starting batting order.
func (p Player) Starter() bool {
	return p.BattingOrder > 0
}

// Roster is one team's players for a match.
type Roster struct {
	Team    string   `json:"team" yaml:"team"`
	Players []Player `json:"players" yaml:"players"`
}

// Starters returns the batting-order players sorted by order.
func (r Roster) Starters() []Player {
	out := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Starter() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BattingOrder < out[j].BattingOrder })
	return out
}

// ValidateRoster checks roster completeness and records every problem in
// errs under field names prefixed with field.
func ValidateRoster(field string, r Roster, errs *dugout.MultiValidationError) {
	if strings.TrimSpace(r.Team) == "" {
		errs.AddField(field+".team", "team is required")
	}
	if len(r.Players) == 0 {
		errs.AddField(field+".players", "roster has no players")
		return
	}

	ids := make(map[string]int)
	jerseys := make(map[string]int)
	orders := make(map[int]int)
	covered := make(map[Position]bool)
	maxOrder := 0

	for i, p := range r.Players {
		pf := fmt.Sprintf("%s.players[%d]", field, i)
		if strings.TrimSpace(p.ID) == "" {
			errs.AddField(pf+".id", "player id is required")
		} else if prev, dup := ids[p.ID]; dup {
			errs.AddField(pf+".id", fmt.Sprintf("duplicate player id %q (also players[%d])", p.ID, prev))
		} else {
			ids[p.ID] = i
		}
		if strings.TrimSpace(p.Name) == "" {
			errs.AddField(pf+".name", "name is required")
		}
		if strings.TrimSpace(p.Jersey) == "" {
			errs.AddField(pf+".jersey", "jersey number is required")
		} else if prev, dup := jerseys[p.Jersey]; dup {
			errs.AddField(pf+".jersey", fmt.Sprintf("duplicate jersey number %s (also players[%d])", p.Jersey, prev))
		} else {
			jerseys[p.Jersey] = i
		}
		if p.Position != "" && !p.Position.Valid() {
			errs.AddField(pf+".position", fmt.Sprintf("unknown position %q", p.Position))
		}
		if p.BattingOrder < 0 {
			errs.AddField(pf+".battingOrder", "batting order cannot be negative")
			continue
		}
		if !p.Starter() {
			continue
		}
		if p.Position == "" {
			errs.AddField(pf+".position", "starters need a position")
		}
		if prev, dup := orders[p.BattingOrder]; dup {
			errs.AddField(pf+".battingOrder", fmt.Sprintf("duplicate batting order %d (also players[%d])", p.BattingOrder, prev))
		} else {
			orders[p.BattingOrder] = i
		}
		covered[p.Position] = true
		if p.BattingOrder > maxOrder {
			maxOrder = p.BattingOrder
		}
	}

	for n := 1; n <= maxOrder; n++ {
		if _, ok := orders[n]; !ok {
			errs.AddField(field+".battingOrder", fmt.Sprintf("batting order must be contiguous from 1, missing %d", n))
			break
		}
	}
	for _, pos := range RequiredPositions {
		if !covered[pos] {
			errs.AddField(field+".positions", fmt.Sprintf("no batting-order player at %s", pos))
		}
	}
}

// PlaceholderOpponentRoster synthesises one player per required defensive
// position for an opponent whose roster is not known yet. Lineups built from
// it are flagged Placeholder. Remove once both rosters arrive at setup.
func PlaceholderOpponentRoster(team string) Roster {
	players := make([]Player, len(RequiredPositions))
	for i, pos := range RequiredPositions {
		n := strconv.Itoa(i + 1)
		players[i] = Player{
			ID:           "placeholder-" + n,
			Name:         "Player " + n,
			Jersey:       n,
			Position:     pos,
			BattingOrder: i + 1,
		}
	}
	return Roster{Team: team, Players: players}
}
