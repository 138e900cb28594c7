package scorebook

import (
	"context"
	"fmt"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/game"
)

const (
	directionUndo = "undo"
	directionRedo = "redo"
)

// compensator reverses (undo) or re-derives (redo) one history entry by
// mutating freshly loaded aggregates. Both are pure functions of the current
// aggregate state and the entry; redo may refresh the entry's payload.
type compensator struct {
	touches []string
	undo    func(ctx context.Context, w *workspace, e *HistoryEntry) error
	redo    func(ctx context.Context, w *workspace, e *HistoryEntry) error
}

var compensators = map[ActionType]compensator{
	ActionAtBat: {
		touches: []string{game.InningStateKind, game.MatchStateKind},
		undo:    undoAtBat,
		redo:    redoAtBat,
	},
	ActionSubstitution: {
		touches: []string{game.RosterLineupKind},
		undo:    undoSubstitution,
		redo:    redoSubstitution,
	},
	ActionInningEnd: {
		touches: []string{game.InningStateKind, game.MatchStateKind},
		undo:    undoInningEnd,
		redo:    redoInningEnd,
	},
	ActionGameStart: {
		touches: []string{game.MatchStateKind},
		undo:    func(_ context.Context, w *workspace, _ *HistoryEntry) error { return w.match.RevertStart() },
		redo:    func(_ context.Context, w *workspace, _ *HistoryEntry) error { return w.match.Start() },
	},
	ActionGameEnd: {
		touches: []string{game.MatchStateKind},
		undo:    func(_ context.Context, w *workspace, _ *HistoryEntry) error { return w.match.Reopen(directionUndo) },
		redo:    redoGameEnd,
	},
	ActionOther: {
		touches: []string{game.MatchStateKind},
		undo:    undoAdjustment,
		redo:    redoAdjustment,
	},
}

func undoAtBat(ctx context.Context, w *workspace, e *HistoryEntry) error {
	if err := w.match.CheckInProgress(); err != nil {
		return err
	}
	inning, err := w.Inning(ctx)
	if err != nil {
		return err
	}
	rec := e.AtBat.Outcome
	if err := inning.RevertAtBat(rec); err != nil {
		return err
	}
	return w.match.RevertPlay(rec.Inning, rec.Half, rec.Side, rec.Runs, rec.OutsBefore, rec.OutsAfter)
}

func redoAtBat(ctx context.Context, w *workspace, e *HistoryEntry) error {
	if err := w.match.CheckInProgress(); err != nil {
		return err
	}
	inning, err := w.Inning(ctx)
	if err != nil {
		return err
	}
	side := inning.BattingSide()
	lineup, err := w.Lineup(ctx, side)
	if err != nil {
		return err
	}
	batter, err := lineup.Occupant(inning.CurrentSlot())
	if err != nil {
		return err
	}
	rec, err := inning.RecordAtBat(batter.ID, e.AtBat.Result)
	if err != nil {
		return err
	}
	if err := w.match.RecordPlay(side, rec.Runs, rec.OutsAfter); err != nil {
		return err
	}
	e.AtBat = &AtBatAction{Result: e.AtBat.Result, Outcome: rec}
	e.Description = describeAtBat(batter, rec)
	return nil
}

func undoSubstitution(ctx context.Context, w *workspace, e *HistoryEntry) error {
	if err := w.match.CheckInProgress(); err != nil {
		return err
	}
	sub := e.Substitution
	lineup, err := w.Lineup(ctx, sub.Side)
	if err != nil {
		return err
	}
	return lineup.RevertSubstitution(sub.Slot, sub.IncomingID)
}

func redoSubstitution(ctx context.Context, w *workspace, e *HistoryEntry) error {
	if err := w.match.CheckInProgress(); err != nil {
		return err
	}
	sub := *e.Substitution
	lineup, err := w.Lineup(ctx, sub.Side)
	if err != nil {
		return err
	}
	sub.Inning = w.match.Data().Inning
	if err := lineup.Substitute(sub.Slot, sub.IncomingID, sub.Position, sub.Inning); err != nil {
		return err
	}
	ev := lastEvent(lineup).(game.PlayerSubstituted)
	sub.OutgoingID = ev.OutgoingID
	sub.Reentry = ev.Reentry
	e.Substitution = &sub
	return nil
}

func undoInningEnd(ctx context.Context, w *workspace, e *HistoryEntry) error {
	if err := w.match.CheckInProgress(); err != nil {
		return err
	}
	inning, err := w.Inning(ctx)
	if err != nil {
		return err
	}
	ended := e.InningEnd.Ended
	if err := inning.RestoreHalfInning(ended); err != nil {
		return err
	}
	return w.match.RevertHalfInning(ended.FromInning, ended.FromHalf, ended.FromOuts)
}

func redoInningEnd(ctx context.Context, w *workspace, e *HistoryEntry) error {
	if err := w.match.CheckInProgress(); err != nil {
		return err
	}
	inning, err := w.Inning(ctx)
	if err != nil {
		return err
	}
	ended, err := inning.EndHalfInning()
	if err != nil {
		return err
	}
	if err := w.match.AdvanceHalfInning(); err != nil {
		return err
	}
	e.InningEnd = &InningEndAction{Ended: ended}
	return nil
}

func redoGameEnd(_ context.Context, w *workspace, e *HistoryEntry) error {
	if err := w.match.Complete(e.GameEnd.Reason); err != nil {
		return err
	}
	ev := lastEvent(w.match).(game.MatchCompleted)
	e.GameEnd = &GameEndAction{Reason: ev.Reason, AwayScore: ev.AwayScore, HomeScore: ev.HomeScore, Winner: ev.Winner}
	e.Description = describeFinal(w.match.Data(), ev)
	return nil
}

func undoAdjustment(_ context.Context, w *workspace, e *HistoryEntry) error {
	a := e.Adjustment
	return w.match.AdjustScore(a.Side, -a.Delta, "undo: "+e.Description)
}

func redoAdjustment(_ context.Context, w *workspace, e *HistoryEntry) error {
	a := e.Adjustment
	return w.match.AdjustScore(a.Side, a.Delta, a.Reason)
}

// CompensationReport describes one undone or redone entry.
type CompensationReport struct {
	Seq         int        `json:"seq"`
	Action      ActionType `json:"action"`
	Description string     `json:"description"`
	Events      int        `json:"events"`
	Aggregates  []string   `json:"aggregates"`
}

// UndoResult reports an Undo or Redo call. A call that could not process
// everything it was asked to has Success=false, a Message and Err set, and
// still lists the entries it did process.
type UndoResult struct {
	Success   bool                 `json:"success"`
	MatchID   string               `json:"matchId"`
	Direction string               `json:"direction"`
	Requested int                  `json:"requested"`
	Processed []CompensationReport `json:"processed"`
	Position  int                  `json:"position"`
	Message   string               `json:"message,omitempty"`
	Err       error                `json:"-"`
	State     *MatchView           `json:"state,omitempty"`
}

// Undo reverses up to limit of the most recent applied actions, newest
// first. Each is compensated with new events in its own transaction.
func (s *Service) Undo(ctx context.Context, matchID string, limit int) (*UndoResult, error) {
	return s.compensate(ctx, matchID, limit, directionUndo)
}

// Redo re-applies up to limit undone actions, oldest first, deriving fresh
// events from the current state.
func (s *Service) Redo(ctx context.Context, matchID string, limit int) (*UndoResult, error) {
	return s.compensate(ctx, matchID, limit, directionRedo)
}

func (s *Service) compensate(ctx context.Context, matchID string, limit int, dir string) (*UndoResult, error) {
	log := s.opts.logger
	if limit < 1 {
		return nil, dugout.NewValidationError(dir, "limit", "must be at least 1")
	}

	hist, err := s.History(ctx, matchID)
	if err != nil {
		return nil, err
	}
	available := hist.Undoable()
	if dir == directionRedo {
		available = hist.Redoable()
	}

	res := &UndoResult{MatchID: matchID, Direction: dir, Requested: limit, Processed: []CompensationReport{}}
	log.Info("Compensating actions", "matchId", matchID, "direction", dir, "requested", limit, "available", available)

	if available == 0 {
		res.Message = fmt.Sprintf("No actions available to %s", dir)
		res.Err = ErrNoActionsAvailable
		res.Position = hist.Position
		log.Warn(res.Message, "matchId", matchID)
		return s.finish(ctx, res)
	}

	for i := 0; i < limit && i < available; i++ {
		w, err := openWorkspace(ctx, s.store, matchID)
		if err != nil {
			return s.stop(ctx, res, hist, err)
		}
		if w.match.Status() == game.StatusCompleted && !s.opts.allowAfterFinish {
			if i == 0 {
				log.Warn("Compensation rejected", "matchId", matchID, "direction", dir, "error", ErrUndoDisabled)
				return nil, ErrUndoDisabled
			}
			return s.stop(ctx, res, hist, ErrUndoDisabled)
		}

		idx := hist.Position
		if dir == directionUndo {
			idx--
		}
		entry := hist.Entries[idx]
		comp, ok := compensators[entry.Type]
		if !ok {
			return s.stop(ctx, res, hist, fmt.Errorf("%w: %s", ErrUnknownAction, entry.Type))
		}

		apply := comp.undo
		if dir == directionRedo {
			apply = comp.redo
		}
		if err := apply(ctx, w, &entry); err != nil {
			log.Warn("Compensation not applicable", "matchId", matchID, "direction", dir,
				"seq", entry.Seq, "action", entry.Type, "aggregates", comp.touches, "error", err)
			return s.stop(ctx, res, hist, err)
		}

		aggs := w.changed()
		events := eventCount(aggs)
		next := hist.clone()
		next.Entries[idx] = entry
		if dir == directionUndo {
			next.Position--
		} else {
			next.Position++
		}

		err = s.commit(ctx, fmt.Sprintf("%s %s", dir, entry.Type), w, aggs, next)
		if s.opts.metrics != nil {
			s.opts.metrics.ActionCompensated(dir, string(entry.Type), events, err == nil)
		}
		if err != nil {
			return s.stop(ctx, res, hist, err)
		}
		hist = next

		report := CompensationReport{
			Seq:         entry.Seq,
			Action:      entry.Type,
			Description: entry.Description,
			Events:      events,
			Aggregates:  kinds(aggs),
		}
		res.Processed = append(res.Processed, report)
		log.Info("Action compensated", "matchId", matchID, "direction", dir,
			"seq", entry.Seq, "action", entry.Type, "events", events, "aggregates", report.Aggregates)

		if len(s.opts.hooks) > 0 {
			if view, err := w.view(ctx); err == nil {
				s.notify(ctx, Outcome{
					MatchID:      matchID,
					Action:       entry.Type,
					Direction:    dir,
					Entry:        entry,
					State:        view,
					ScoreChanged: scoreChanged(entry),
				})
			}
		}
	}

	res.Position = hist.Position
	if limit > available {
		res.Message = fmt.Sprintf("requested %d, only %d available", limit, available)
		res.Err = ErrNoActionsAvailable
		log.Warn("Compensation incomplete", "matchId", matchID, "direction", dir, "requested", limit, "available", available)
		return s.finish(ctx, res)
	}
	res.Success = true
	return s.finish(ctx, res)
}

// stop ends a compensation run early. Entries already processed stay
// processed.
func (s *Service) stop(ctx context.Context, res *UndoResult, hist *ActionHistory, err error) (*UndoResult, error) {
	res.Position = hist.Position
	res.Err = err
	res.Message = fmt.Sprintf("%s stopped after %d of %d: %s", res.Direction, len(res.Processed), res.Requested, PublicMessage(err))
	s.opts.logger.Error("Compensation failed", "matchId", res.MatchID, "direction", res.Direction,
		"processed", len(res.Processed), "error", err)
	return s.finish(ctx, res)
}

func (s *Service) finish(ctx context.Context, res *UndoResult) (*UndoResult, error) {
	w, err := openWorkspace(ctx, s.store, res.MatchID)
	if err != nil {
		return res, nil
	}
	if view, err := w.view(ctx); err == nil {
		res.State = view
	}
	return res, nil
}
