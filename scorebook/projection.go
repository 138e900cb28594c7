package scorebook

import (
	"github.com/AshkanYarmoradi/go-dugout/game"
)

// MatchView is the read-side projection of a match's four aggregates.
type MatchView struct {
	MatchID             string           `json:"matchId"`
	Status              game.MatchStatus `json:"status"`
	AwayTeam            string           `json:"awayTeam"`
	HomeTeam            string           `json:"homeTeam"`
	Score               game.Score       `json:"score"`
	Winner              game.Side        `json:"winner,omitempty"`
	Rules               game.Rules       `json:"rules"`
	CurrentInning       int              `json:"currentInning"`
	IsTopHalf           bool             `json:"isTopHalf"`
	Outs                int              `json:"outs"`
	Bases               game.Bases       `json:"bases"`
	BattingSide         game.Side        `json:"battingSide"`
	CurrentBatter       *BatterView      `json:"currentBatter,omitempty"`
	Away                LineupView       `json:"away"`
	Home                LineupView       `json:"home"`
	PlaceholderOpponent bool             `json:"placeholderOpponent"`
}

// BatterView identifies the player due up.
type BatterView struct {
	PlayerID string        `json:"playerId"`
	Name     string        `json:"name"`
	Jersey   string        `json:"jersey"`
	Position game.Position `json:"position"`
	Slot     int           `json:"slot"`
}

// LineupView is one side's batting order.
type LineupView struct {
	LineupID    string        `json:"lineupId"`
	Team        string        `json:"team"`
	Placeholder bool          `json:"placeholder,omitempty"`
	Slots       []SlotView    `json:"slots"`
	Bench       []game.Player `json:"bench,omitempty"`
}

// SlotView is a batting slot's current occupant.
type SlotView struct {
	Order         int           `json:"order"`
	PlayerID      string        `json:"playerId"`
	Name          string        `json:"name"`
	Jersey        string        `json:"jersey"`
	Position      game.Position `json:"position"`
	Substitutions int           `json:"substitutions,omitempty"`
}

// Project builds the view of a match.
func Project(m *game.MatchState, away, home *game.RosterLineup, inning *game.InningState) *MatchView {
	md := m.Data()
	id := inning.Data()
	v := &MatchView{
		MatchID:       md.MatchID,
		Status:        md.Status,
		AwayTeam:      md.AwayTeam,
		HomeTeam:      md.HomeTeam,
		Score:         md.Score,
		Winner:        md.Winner,
		Rules:         md.Rules,
		CurrentInning: md.Inning,
		IsTopHalf:     md.Half == game.Top,
		Outs:          id.Outs,
		Bases:         id.Bases,
		BattingSide:   inning.BattingSide(),
		Away:          lineupView(away),
		Home:          lineupView(home),
	}
	v.PlaceholderOpponent = away.IsPlaceholder() || home.IsPlaceholder()

	batting := away
	if v.BattingSide == game.Home {
		batting = home
	}
	slot := inning.CurrentSlot()
	if p, err := batting.Occupant(slot); err == nil {
		v.CurrentBatter = &BatterView{
			PlayerID: p.ID,
			Name:     p.Name,
			Jersey:   p.Jersey,
			Position: p.Position,
			Slot:     slot,
		}
	}
	return v
}

func lineupView(l *game.RosterLineup) LineupView {
	d := l.Data()
	v := LineupView{
		LineupID:    d.LineupID,
		Team:        d.Team,
		Placeholder: d.Placeholder,
		Slots:       make([]SlotView, 0, len(d.Slots)),
		Bench:       l.Bench(),
	}
	for _, s := range d.Slots {
		p, _ := l.Occupant(s.Order)
		v.Slots = append(v.Slots, SlotView{
			Order:         s.Order,
			PlayerID:      p.ID,
			Name:          p.Name,
			Jersey:        p.Jersey,
			Position:      p.Position,
			Substitutions: len(s.Occupancies) - 1,
		})
	}
	return v
}
