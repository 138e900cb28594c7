package scorebook

import (
	"context"
	"strings"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/game"
)

// Command types.
const (
	InitializeMatchCommand = "InitializeMatch"
	RecordAtBatCommand     = "RecordAtBat"
	SubstituteCommand      = "Substitute"
	EndHalfInningCommand   = "EndHalfInning"
	EndMatchCommand        = "EndMatch"
	AdjustScoreCommand     = "AdjustScore"
	UndoCommand            = "Undo"
	RedoCommand            = "Redo"
)

// InitializeMatch starts a new match.
type InitializeMatch struct {
	dugout.CommandBase
	Setup MatchSetup `json:"setup"`
}

func (InitializeMatch) CommandType() string { return InitializeMatchCommand }
func (c InitializeMatch) Validate() error  { return c.Setup.Validate() }

// RecordAtBat records the result of the batter due up.
type RecordAtBat struct {
	dugout.CommandBase
	MatchID string           `json:"matchId"`
	Result  game.AtBatResult `json:"result"`
}

func (RecordAtBat) CommandType() string   { return RecordAtBatCommand }
func (c RecordAtBat) AggregateID() string { return c.MatchID }

func (c RecordAtBat) Validate() error {
	errs := dugout.NewMultiValidationError(RecordAtBatCommand)
	requireMatchID(errs, c.MatchID)
	if !c.Result.Valid() {
		errs.AddField("result", "unknown at-bat result "+string(c.Result))
	}
	return errs.ErrOrNil()
}

// Substitute replaces the occupant of a batting slot.
type Substitute struct {
	dugout.CommandBase
	MatchID  string        `json:"matchId"`
	Side     game.Side     `json:"side"`
	Slot     int           `json:"slot"`
	PlayerID string        `json:"playerId"`
	Position game.Position `json:"position"`
}

func (Substitute) CommandType() string   { return SubstituteCommand }
func (c Substitute) AggregateID() string { return c.MatchID }

func (c Substitute) Validate() error {
	errs := dugout.NewMultiValidationError(SubstituteCommand)
	requireMatchID(errs, c.MatchID)
	if !c.Side.Valid() {
		errs.AddField("side", `must be "away" or "home"`)
	}
	if c.Slot < 1 {
		errs.AddField("slot", "must be at least 1")
	}
	if strings.TrimSpace(c.PlayerID) == "" {
		errs.AddField("playerId", "player is required")
	}
	if !c.Position.Valid() {
		errs.AddField("position", "unknown position "+string(c.Position))
	}
	return errs.ErrOrNil()
}

// EndHalfInning closes the half in play.
type EndHalfInning struct {
	dugout.CommandBase
	MatchID string `json:"matchId"`
}

func (EndHalfInning) CommandType() string   { return EndHalfInningCommand }
func (c EndHalfInning) AggregateID() string { return c.MatchID }

func (c EndHalfInning) Validate() error {
	errs := dugout.NewMultiValidationError(EndHalfInningCommand)
	requireMatchID(errs, c.MatchID)
	return errs.ErrOrNil()
}

// EndMatch completes the match.
type EndMatch struct {
	dugout.CommandBase
	MatchID string `json:"matchId"`
	Reason  string `json:"reason,omitempty"`
}

func (EndMatch) CommandType() string   { return EndMatchCommand }
func (c EndMatch) AggregateID() string { return c.MatchID }

func (c EndMatch) Validate() error {
	errs := dugout.NewMultiValidationError(EndMatchCommand)
	requireMatchID(errs, c.MatchID)
	return errs.ErrOrNil()
}

// AdjustScore corrects a side's score.
type AdjustScore struct {
	dugout.CommandBase
	MatchID string    `json:"matchId"`
	Side    game.Side `json:"side"`
	Delta   int       `json:"delta"`
	Reason  string    `json:"reason,omitempty"`
}

func (AdjustScore) CommandType() string   { return AdjustScoreCommand }
func (c AdjustScore) AggregateID() string { return c.MatchID }

func (c AdjustScore) Validate() error {
	errs := dugout.NewMultiValidationError(AdjustScoreCommand)
	requireMatchID(errs, c.MatchID)
	if !c.Side.Valid() {
		errs.AddField("side", `must be "away" or "home"`)
	}
	if c.Delta == 0 {
		errs.AddField("delta", "must not be zero")
	}
	return errs.ErrOrNil()
}

// Undo reverses the most recent actions.
type Undo struct {
	dugout.CommandBase
	MatchID string `json:"matchId"`
	Limit   int    `json:"limit"`
}

func (Undo) CommandType() string   { return UndoCommand }
func (c Undo) AggregateID() string { return c.MatchID }
func (c Undo) Validate() error     { return validateLimit(UndoCommand, c.MatchID, c.Limit) }

// Redo re-applies undone actions.
type Redo struct {
	dugout.CommandBase
	MatchID string `json:"matchId"`
	Limit   int    `json:"limit"`
}

func (Redo) CommandType() string   { return RedoCommand }
func (c Redo) AggregateID() string { return c.MatchID }
func (c Redo) Validate() error     { return validateLimit(RedoCommand, c.MatchID, c.Limit) }

func requireMatchID(errs *dugout.MultiValidationError, id string) {
	if strings.TrimSpace(id) == "" {
		errs.AddField("matchId", "match id is required")
	}
}

func validateLimit(cmdType, matchID string, limit int) error {
	errs := dugout.NewMultiValidationError(cmdType)
	requireMatchID(errs, matchID)
	if limit < 1 {
		errs.AddField("limit", "must be at least 1")
	}
	return errs.ErrOrNil()
}

// RegisterHandlers registers a handler for every command on bus. Results
// carry the match id as AggregateID, the history sequence number as Version
// and the use case result as Data.
func RegisterHandlers(bus *dugout.CommandBus, svc *Service) {
	dugout.Register(bus, func(ctx context.Context, c InitializeMatch) (dugout.CommandResult, error) {
		res, err := svc.Initialize(ctx, c.Setup)
		if err != nil {
			return dugout.NewErrorResult(err), err
		}
		return dugout.NewSuccessResultWithData(res.MatchID, 1, res), nil
	})
	dugout.Register(bus, func(ctx context.Context, c RecordAtBat) (dugout.CommandResult, error) {
		return actionResult(svc.RecordAtBat(ctx, c.MatchID, c.Result))
	})
	dugout.Register(bus, func(ctx context.Context, c Substitute) (dugout.CommandResult, error) {
		return actionResult(svc.Substitute(ctx, c.MatchID, c.Side, c.Slot, c.PlayerID, c.Position))
	})
	dugout.Register(bus, func(ctx context.Context, c EndHalfInning) (dugout.CommandResult, error) {
		return actionResult(svc.EndHalfInning(ctx, c.MatchID))
	})
	dugout.Register(bus, func(ctx context.Context, c EndMatch) (dugout.CommandResult, error) {
		return actionResult(svc.EndMatch(ctx, c.MatchID, c.Reason))
	})
	dugout.Register(bus, func(ctx context.Context, c AdjustScore) (dugout.CommandResult, error) {
		return actionResult(svc.AdjustScore(ctx, c.MatchID, c.Side, c.Delta, c.Reason))
	})
	dugout.Register(bus, func(ctx context.Context, c Undo) (dugout.CommandResult, error) {
		return undoResult(svc.Undo(ctx, c.MatchID, c.Limit))
	})
	dugout.Register(bus, func(ctx context.Context, c Redo) (dugout.CommandResult, error) {
		return undoResult(svc.Redo(ctx, c.MatchID, c.Limit))
	})
}

func actionResult(res *ActionResult, err error) (dugout.CommandResult, error) {
	if err != nil {
		return dugout.NewErrorResult(err), err
	}
	return dugout.NewSuccessResultWithData(res.MatchID, int64(res.Seq), res), nil
}

// undoResult reports a partial or empty undo as a failed result carrying
// its report, not as an error.
func undoResult(res *UndoResult, err error) (dugout.CommandResult, error) {
	if err != nil {
		return dugout.NewErrorResult(err), err
	}
	return dugout.CommandResult{
		Success:     res.Success,
		AggregateID: res.MatchID,
		Version:     int64(res.Position),
		Data:        res,
		Error:       res.Err,
	}, nil
}
