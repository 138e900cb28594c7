package game

import (
	"fmt"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// BatterPointers holds the next batting slot for each side.
type BatterPointers struct {
	Away int `json:"away"`
	Home int `json:"home"`
}

// Of returns the pointer of side s.
func (b BatterPointers) Of(s Side) int {
	if s == Home {
		return b.Home
	}
	return b.Away
}

func (b *BatterPointers) set(s Side, slot int) {
	if s == Home {
		b.Home = slot
	} else {
		b.Away = slot
	}
}

// InningData is the persisted state of an InningState.
type InningData struct {
	InningStateID  string         `json:"inningStateId"`
	MatchID        string         `json:"matchId"`
	Inning         int            `json:"inning"`
	Half           Half           `json:"half"`
	Outs           int            `json:"outs"`
	Bases          Bases          `json:"bases"`
	Batters        BatterPointers `json:"batters"`
	OutsPerHalf    int            `json:"outsPerHalf"`
	AwayLineupSize int            `json:"awayLineupSize"`
	HomeLineupSize int            `json:"homeLineupSize"`
	AtBats         int            `json:"atBats"`
}

// InningState tracks the half inning in play: outs, runners and whose turn
// it is to bat.
type InningState struct {
	dugout.AggregateBase
	data InningData
}

// NewInningState returns an empty InningState for id.
func NewInningState(id string) *InningState {
	return &InningState{AggregateBase: dugout.NewAggregateBase(id, InningStateKind)}
}

// Data returns a copy of the current state.
func (s *InningState) Data() InningData {
	return s.data
}

// SnapshotData implements dugout.Snapshotter.
func (s *InningState) SnapshotData() interface{} {
	return &s.data
}

// BattingSide returns the side at bat.
func (s *InningState) BattingSide() Side {
	return s.data.Half.BattingSide()
}

// CurrentSlot returns the batting slot due up for the batting side.
func (s *InningState) CurrentSlot() int {
	return s.data.Batters.Of(s.BattingSide())
}

func (s *InningState) lineupSize(side Side) int {
	if side == Home {
		return s.data.HomeLineupSize
	}
	return s.data.AwayLineupSize
}

func (s *InningState) nextSlot(side Side, slot int) int {
	return slot%s.lineupSize(side) + 1
}

// Create starts the first half of the first inning with both pointers at
// slot 1.
func (s *InningState) Create(matchID string, outsPerHalf, awaySize, homeSize int) error {
	if s.data.InningStateID != "" {
		return fmt.Errorf("%w: inning state %s already created", ErrStateMismatch, s.AggregateID())
	}
	if outsPerHalf < 1 || awaySize < 1 || homeSize < 1 {
		return fmt.Errorf("%w: outs per half and lineup sizes must be positive", dugout.ErrValidationFailed)
	}
	return s.raise(InningStateCreated{
		InningStateID:  s.AggregateID(),
		MatchID:        matchID,
		OutsPerHalf:    outsPerHalf,
		AwayLineupSize: awaySize,
		HomeLineupSize: homeSize,
	})
}

// RecordAtBat runs the runner model for the batter due up and advances the
// batting pointer.
func (s *InningState) RecordAtBat(batterID string, result AtBatResult) (AtBatRecorded, error) {
	play, err := Advance(s.data.Bases, batterID, result, s.data.Outs, s.data.OutsPerHalf)
	if err != nil {
		return AtBatRecorded{}, err
	}
	e := AtBatRecorded{
		InningStateID: s.AggregateID(),
		MatchID:       s.data.MatchID,
		Inning:        s.data.Inning,
		Half:          s.data.Half,
		Side:          s.BattingSide(),
		Slot:          s.CurrentSlot(),
		BatterID:      batterID,
		Result:        result,
		BasesBefore:   s.data.Bases,
		BasesAfter:    play.Bases,
		OutsBefore:    s.data.Outs,
		OutsAfter:     play.Outs,
		Runs:          play.Runs,
		Scorers:       play.Scorers,
	}
	return e, s.raise(e)
}

// RevertAtBat reverses rec. The half, bases, outs and batting pointer must
// all still be where rec left them.
func (s *InningState) RevertAtBat(rec AtBatRecorded) error {
	if s.data.Inning != rec.Inning || s.data.Half != rec.Half ||
		s.data.Outs != rec.OutsAfter || s.data.Bases != rec.BasesAfter ||
		s.data.Batters.Of(rec.Side) != s.nextSlot(rec.Side, rec.Slot) {
		return fmt.Errorf("%w: at-bat by %s is no longer the latest play", ErrStateMismatch, rec.BatterID)
	}
	return s.raise(AtBatReverted{
		InningStateID: s.AggregateID(),
		MatchID:       s.data.MatchID,
		Inning:        rec.Inning,
		Half:          rec.Half,
		Side:          rec.Side,
		Slot:          rec.Slot,
		BatterID:      rec.BatterID,
		Result:        rec.Result,
		Bases:         rec.BasesBefore,
		Outs:          rec.OutsBefore,
	})
}

// EndHalfInning clears bases and outs and flips to the next half.
func (s *InningState) EndHalfInning() (HalfInningEnded, error) {
	inning, half := Next(s.data.Inning, s.data.Half)
	e := HalfInningEnded{
		InningStateID: s.AggregateID(),
		MatchID:       s.data.MatchID,
		FromInning:    s.data.Inning,
		FromHalf:      s.data.Half,
		FromOuts:      s.data.Outs,
		FromBases:     s.data.Bases,
		ToInning:      inning,
		ToHalf:        half,
	}
	return e, s.raise(e)
}

// RestoreHalfInning reverses rec. Nothing may have happened in the new half.
func (s *InningState) RestoreHalfInning(rec HalfInningEnded) error {
	if s.data.Inning != rec.ToInning || s.data.Half != rec.ToHalf || s.data.Outs != 0 || !s.data.Bases.Empty() {
		return fmt.Errorf("%w: play has started in %d %s", ErrStateMismatch, s.data.Inning, s.data.Half)
	}
	return s.raise(HalfInningRestored{
		InningStateID: s.AggregateID(),
		MatchID:       s.data.MatchID,
		Inning:        rec.FromInning,
		Half:          rec.FromHalf,
		Outs:          rec.FromOuts,
		Bases:         rec.FromBases,
	})
}

func (s *InningState) raise(event interface{}) error {
	s.Apply(event)
	return s.ApplyEvent(event)
}

// ApplyEvent implements dugout.Aggregate.
func (s *InningState) ApplyEvent(event interface{}) error {
	switch e := event.(type) {
	case InningStateCreated:
		s.data = InningData{
			InningStateID:  e.InningStateID,
			MatchID:        e.MatchID,
			Inning:         1,
			Half:           Top,
			Batters:        BatterPointers{Away: 1, Home: 1},
			OutsPerHalf:    e.OutsPerHalf,
			AwayLineupSize: e.AwayLineupSize,
			HomeLineupSize: e.HomeLineupSize,
		}
	case AtBatRecorded:
		s.data.Bases = e.BasesAfter
		s.data.Outs = e.OutsAfter
		s.data.Batters.set(e.Side, s.nextSlot(e.Side, e.Slot))
		s.data.AtBats++
	case AtBatReverted:
		s.data.Bases = e.Bases
		s.data.Outs = e.Outs
		s.data.Batters.set(e.Side, e.Slot)
		s.data.AtBats--
	case HalfInningEnded:
		s.data.Inning = e.ToInning
		s.data.Half = e.ToHalf
		s.data.Outs = 0
		s.data.Bases = Bases{}
	case HalfInningRestored:
		s.data.Inning = e.Inning
		s.data.Half = e.Half
		s.data.Outs = e.Outs
		s.data.Bases = e.Bases
	default:
		return fmt.Errorf("dugout: unknown InningState event %T", event)
	}
	return nil
}
