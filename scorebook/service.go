package scorebook

import (
	"context"
	"fmt"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/game"
)

// ActionResult reports a committed action.
type ActionResult struct {
	Success     bool       `json:"success"`
	MatchID     string     `json:"matchId"`
	Action      ActionType `json:"action"`
	Seq         int        `json:"seq"`
	Description string     `json:"description"`
	Events      int        `json:"events"`

	// Discarded counts the undone entries dropped from the redo tail.
	Discarded int        `json:"discarded,omitempty"`
	State     *MatchView `json:"state,omitempty"`
}

// Service runs the scoring use cases of a match. Each call loads its own
// aggregates and commits through one coordinator transaction. Calls for the
// same match must be serialized by the caller; a concurrent commit fails on
// the version check instead.
type Service struct {
	*Initializer
	store *Store
	opts  options
}

// NewService creates a Service.
func NewService(store *Store, opts ...Option) *Service {
	in := NewInitializer(store, opts...)
	return &Service{Initializer: in, store: store, opts: in.opts}
}

// Store returns the service's persistence collaborators.
func (s *Service) Store() *Store {
	return s.store
}

// RecordAtBat records result for the batter due up.
func (s *Service) RecordAtBat(ctx context.Context, matchID string, result game.AtBatResult) (*ActionResult, error) {
	w, err := openWorkspace(ctx, s.store, matchID)
	if err != nil {
		return nil, err
	}
	if err := w.match.CheckInProgress(); err != nil {
		return nil, err
	}
	inning, err := w.Inning(ctx)
	if err != nil {
		return nil, err
	}
	side := inning.BattingSide()
	lineup, err := w.Lineup(ctx, side)
	if err != nil {
		return nil, err
	}
	batter, err := lineup.Occupant(inning.CurrentSlot())
	if err != nil {
		return nil, err
	}

	rec, err := inning.RecordAtBat(batter.ID, result)
	if err != nil {
		return nil, err
	}
	if err := w.match.RecordPlay(side, rec.Runs, rec.OutsAfter); err != nil {
		return nil, err
	}

	return s.record(ctx, "record-at-bat", w, HistoryEntry{
		Type:        ActionAtBat,
		Description: describeAtBat(batter, rec),
		AtBat:       &AtBatAction{Result: result, Outcome: rec},
	})
}

// Substitute puts incomingID into slot of side's lineup at position.
func (s *Service) Substitute(ctx context.Context, matchID string, side game.Side, slot int, incomingID string, position game.Position) (*ActionResult, error) {
	w, err := openWorkspace(ctx, s.store, matchID)
	if err != nil {
		return nil, err
	}
	if err := w.match.CheckInProgress(); err != nil {
		return nil, err
	}
	lineup, err := w.Lineup(ctx, side)
	if err != nil {
		return nil, err
	}
	inning := w.match.Data().Inning
	if err := lineup.Substitute(slot, incomingID, position, inning); err != nil {
		return nil, err
	}
	e := lastEvent(lineup).(game.PlayerSubstituted)
	in, _ := lineup.Player(e.IncomingID)
	out, _ := lineup.Player(e.OutgoingID)

	return s.record(ctx, "substitution", w, HistoryEntry{
		Type:        ActionSubstitution,
		Description: describeSubstitution(side, slot, in, out, position, e.Reentry),
		Substitution: &SubstitutionAction{
			Side:       side,
			Slot:       slot,
			OutgoingID: e.OutgoingID,
			IncomingID: e.IncomingID,
			Position:   position,
			Inning:     inning,
			Reentry:    e.Reentry,
		},
	})
}

// EndHalfInning closes the half in play on both the match and the inning
// state.
func (s *Service) EndHalfInning(ctx context.Context, matchID string) (*ActionResult, error) {
	w, err := openWorkspace(ctx, s.store, matchID)
	if err != nil {
		return nil, err
	}
	if err := w.match.CheckInProgress(); err != nil {
		return nil, err
	}
	inning, err := w.Inning(ctx)
	if err != nil {
		return nil, err
	}
	ended, err := inning.EndHalfInning()
	if err != nil {
		return nil, err
	}
	if err := w.match.AdvanceHalfInning(); err != nil {
		return nil, err
	}

	return s.record(ctx, "end-half-inning", w, HistoryEntry{
		Type:        ActionInningEnd,
		Description: fmt.Sprintf("End of %s %d", ended.FromHalf, ended.FromInning),
		InningEnd:   &InningEndAction{Ended: ended},
	})
}

// EndMatch completes the match.
func (s *Service) EndMatch(ctx context.Context, matchID, reason string) (*ActionResult, error) {
	w, err := openWorkspace(ctx, s.store, matchID)
	if err != nil {
		return nil, err
	}
	if err := w.match.Complete(reason); err != nil {
		return nil, err
	}
	e := lastEvent(w.match).(game.MatchCompleted)

	return s.record(ctx, "end-match", w, HistoryEntry{
		Type:        ActionGameEnd,
		Description: describeFinal(w.match.Data(), e),
		GameEnd: &GameEndAction{
			Reason:    reason,
			AwayScore: e.AwayScore,
			HomeScore: e.HomeScore,
			Winner:    e.Winner,
		},
	})
}

// AdjustScore adds delta runs to side outside of an at-bat.
func (s *Service) AdjustScore(ctx context.Context, matchID string, side game.Side, delta int, reason string) (*ActionResult, error) {
	w, err := openWorkspace(ctx, s.store, matchID)
	if err != nil {
		return nil, err
	}
	if err := w.match.AdjustScore(side, delta, reason); err != nil {
		return nil, err
	}

	return s.record(ctx, "adjust-score", w, HistoryEntry{
		Type:        ActionOther,
		Description: describeAdjustment(side, delta, reason),
		Adjustment:  &AdjustmentAction{Side: side, Delta: delta, Reason: reason},
	})
}

// State returns the current projection of a match.
func (s *Service) State(ctx context.Context, matchID string) (*MatchView, error) {
	w, err := openWorkspace(ctx, s.store, matchID)
	if err != nil {
		return nil, err
	}
	return w.view(ctx)
}

// History returns the action history of a match.
func (s *Service) History(ctx context.Context, matchID string) (*ActionHistory, error) {
	if _, err := s.store.Matches.FindByID(ctx, matchID); err != nil {
		return nil, err
	}
	return s.store.History.Load(ctx, matchID)
}

// record commits the workspace together with a new history entry, which
// truncates any redo tail.
func (s *Service) record(ctx context.Context, name string, w *workspace, entry HistoryEntry) (*ActionResult, error) {
	hist, err := s.store.History.Load(ctx, w.matchID)
	if err != nil {
		return nil, err
	}

	aggs := w.changed()
	entry.Aggregates = kinds(aggs)
	entry.RecordedAt = s.opts.now()

	next := hist.clone()
	discarded := next.Record(entry)
	entry = next.Entries[len(next.Entries)-1]
	events := eventCount(aggs)

	if err := s.commit(ctx, name, w, aggs, next); err != nil {
		return nil, err
	}
	if discarded > 0 {
		s.opts.logger.Info("Redo history discarded", "matchId", w.matchID, "entries", discarded)
	}
	if s.opts.metrics != nil {
		s.opts.metrics.ActionRecorded(string(entry.Type), discarded)
	}

	view, err := w.view(ctx)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Outcome{
		MatchID:      w.matchID,
		Action:       entry.Type,
		Direction:    "do",
		Entry:        entry,
		State:        view,
		ScoreChanged: scoreChanged(entry),
	})

	return &ActionResult{
		Success:     true,
		MatchID:     w.matchID,
		Action:      entry.Type,
		Seq:         entry.Seq,
		Description: entry.Description,
		Events:      events,
		Discarded:   discarded,
		State:       view,
	}, nil
}

// commit saves, appends and stores the history in one transaction and marks
// the aggregates committed when it succeeds.
func (s *Service) commit(ctx context.Context, name string, w *workspace, aggs []dugout.Aggregate, hist *ActionHistory) error {
	ops := s.store.operations(aggs, hist)
	res := s.opts.coordinator.Run(ctx, name, ops, dugout.TxContext{"matchId": w.matchID})
	if !res.Success {
		s.opts.logger.Error("Action failed", "matchId", w.matchID, "transaction", name,
			"operation", res.FailedOperation, "rolledBack", res.RollbackApplied, "error", res.Cause)
		return &TransactionError{Transaction: name, Result: res}
	}
	for _, a := range aggs {
		dugout.MarkCommitted(a)
	}
	hist.version++
	return nil
}

func (s *Service) notify(ctx context.Context, o Outcome) {
	for _, h := range s.opts.hooks {
		if err := h(ctx, o); err != nil {
			s.opts.logger.Warn("Commit hook failed", "matchId", o.MatchID, "action", o.Action, "error", err)
		}
	}
}

func lastEvent(agg dugout.Aggregate) interface{} {
	events := agg.UncommittedEvents()
	return events[len(events)-1]
}

func scoreChanged(e HistoryEntry) bool {
	switch e.Type {
	case ActionAtBat:
		return e.AtBat.Outcome.Runs > 0
	case ActionOther, ActionGameEnd:
		return true
	}
	return false
}

func describeAtBat(batter game.Player, rec game.AtBatRecorded) string {
	d := fmt.Sprintf("%s (#%s): %s", batter.Name, batter.Jersey, rec.Result)
	switch rec.Runs {
	case 0:
	case 1:
		d += ", 1 run scores"
	default:
		d += fmt.Sprintf(", %d runs score", rec.Runs)
	}
	return d
}

func describeSubstitution(side game.Side, slot int, in, out game.Player, pos game.Position, reentry bool) string {
	verb := "replaces"
	if reentry {
		verb = "re-enters for"
	}
	return fmt.Sprintf("%s: %s %s %s in slot %d at %s", side, in.Name, verb, out.Name, slot, pos)
}

func describeFinal(m game.MatchData, e game.MatchCompleted) string {
	return fmt.Sprintf("Final: %s %d, %s %d", m.AwayTeam, e.AwayScore, m.HomeTeam, e.HomeScore)
}

func describeAdjustment(side game.Side, delta int, reason string) string {
	d := fmt.Sprintf("Score adjusted %+d for %s", delta, side)
	if reason != "" {
		d += " (" + reason + ")"
	}
	return d
}
