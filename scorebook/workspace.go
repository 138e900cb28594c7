package scorebook

import (
	"context"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/game"
)

// workspace holds the aggregates one action loaded. Each action gets its own
// workspace, so aggregate instances are never shared between calls.
type workspace struct {
	store   *Store
	matchID string
	match   *game.MatchState
	inning  *game.InningState
	lineups map[game.Side]*game.RosterLineup
}

func openWorkspace(ctx context.Context, store *Store, matchID string) (*workspace, error) {
	m, err := store.Matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return &workspace{
		store:   store,
		matchID: matchID,
		match:   m,
		lineups: make(map[game.Side]*game.RosterLineup, 2),
	}, nil
}

func (w *workspace) Inning(ctx context.Context) (*game.InningState, error) {
	if w.inning == nil {
		s, err := w.store.Innings.FindByID(ctx, w.match.Data().InningStateID)
		if err != nil {
			return nil, err
		}
		w.inning = s
	}
	return w.inning, nil
}

func (w *workspace) Lineup(ctx context.Context, side game.Side) (*game.RosterLineup, error) {
	if l, ok := w.lineups[side]; ok {
		return l, nil
	}
	l, err := w.store.Lineups.FindByID(ctx, w.match.LineupID(side))
	if err != nil {
		return nil, err
	}
	w.lineups[side] = l
	return l, nil
}

// changed returns the aggregates with uncommitted events in commit order:
// lineups, inning state, then the match.
func (w *workspace) changed() []dugout.Aggregate {
	var out []dugout.Aggregate
	for _, side := range []game.Side{game.Away, game.Home} {
		if l, ok := w.lineups[side]; ok && l.HasUncommittedEvents() {
			out = append(out, l)
		}
	}
	if w.inning != nil && w.inning.HasUncommittedEvents() {
		out = append(out, w.inning)
	}
	if w.match.HasUncommittedEvents() {
		out = append(out, w.match)
	}
	return out
}

func eventCount(aggs []dugout.Aggregate) int {
	n := 0
	for _, a := range aggs {
		n += len(a.UncommittedEvents())
	}
	return n
}

func kinds(aggs []dugout.Aggregate) []string {
	out := make([]string, 0, len(aggs))
	seen := make(map[string]bool, len(aggs))
	for _, a := range aggs {
		if k := a.AggregateType(); !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// view loads whatever the action did not touch and projects the match.
func (w *workspace) view(ctx context.Context) (*MatchView, error) {
	inning, err := w.Inning(ctx)
	if err != nil {
		return nil, err
	}
	away, err := w.Lineup(ctx, game.Away)
	if err != nil {
		return nil, err
	}
	home, err := w.Lineup(ctx, game.Home)
	if err != nil {
		return nil, err
	}
	return Project(w.match, away, home, inning), nil
}
