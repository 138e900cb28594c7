package game

import (
	"fmt"
	"time"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// MatchStatus is the match lifecycle state.
type MatchStatus string

const (
	StatusNotStarted MatchStatus = "not_started"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
)

// MatchData is the persisted state of a MatchState.
type MatchData struct {
	MatchID       string      `json:"matchId"`
	AwayTeam      string      `json:"awayTeam"`
	HomeTeam      string      `json:"homeTeam"`
	ManagedSide   Side        `json:"managedSide"`
	Status        MatchStatus `json:"status"`
	Score         Score       `json:"score"`
	Inning        int         `json:"inning"`
	Half          Half        `json:"half"`
	Outs          int         `json:"outs"`
	Rules         Rules       `json:"rules"`
	AwayLineupID  string      `json:"awayLineupId"`
	HomeLineupID  string      `json:"homeLineupId"`
	InningStateID string      `json:"inningStateId"`
	Winner        Side        `json:"winner,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// MatchState is the match aggregate: lifecycle, score and game clock.
type MatchState struct {
	dugout.AggregateBase
	data MatchData
}

// NewMatchState returns an empty MatchState for id.
func NewMatchState(id string) *MatchState {
	return &MatchState{AggregateBase: dugout.NewAggregateBase(id, MatchStateKind)}
}

// Data returns a copy of the current state.
func (m *MatchState) Data() MatchData {
	return m.data
}

// SnapshotData implements dugout.Snapshotter.
func (m *MatchState) SnapshotData() interface{} {
	return &m.data
}

func (m *MatchState) Status() MatchStatus { return m.data.Status }
func (m *MatchState) Score() Score        { return m.data.Score }
func (m *MatchState) Rules() Rules        { return m.data.Rules }

// BattingSide returns the side currently at bat.
func (m *MatchState) BattingSide() Side {
	return m.data.Half.BattingSide()
}

// LineupID returns the lineup id of side s.
func (m *MatchState) LineupID(s Side) string {
	if s == Home {
		return m.data.HomeLineupID
	}
	return m.data.AwayLineupID
}

// MatchSetup holds what Create needs.
type MatchSetup struct {
	AwayTeam      string
	HomeTeam      string
	ManagedSide   Side
	Rules         Rules
	AwayLineupID  string
	HomeLineupID  string
	InningStateID string
	CreatedAt     time.Time
}

// Create records the match. It fails if the aggregate already holds a match.
func (m *MatchState) Create(s MatchSetup) error {
	if m.data.Status != "" {
		return ErrMatchAlreadyCreated
	}
	if err := s.Rules.Validate(); err != nil {
		return err
	}
	return m.raise(MatchCreated{
		MatchID:       m.AggregateID(),
		AwayTeam:      s.AwayTeam,
		HomeTeam:      s.HomeTeam,
		ManagedSide:   s.ManagedSide,
		Rules:         s.Rules,
		AwayLineupID:  s.AwayLineupID,
		HomeLineupID:  s.HomeLineupID,
		InningStateID: s.InningStateID,
		CreatedAt:     s.CreatedAt,
	})
}

// Start moves a created match to in_progress at the top of the first.
func (m *MatchState) Start() error {
	switch m.data.Status {
	case StatusNotStarted:
	case StatusCompleted:
		return ErrMatchCompleted
	default:
		return fmt.Errorf("%w: status %q", ErrStateMismatch, m.data.Status)
	}
	return m.raise(MatchStarted{MatchID: m.AggregateID()})
}

// RevertStart undoes Start. Only a match with nothing recorded since the
// start can be reverted.
func (m *MatchState) RevertStart() error {
	if err := m.CheckInProgress(); err != nil {
		return err
	}
	if m.data.Inning != 1 || m.data.Half != Top || m.data.Outs != 0 || m.data.Score != (Score{}) {
		return fmt.Errorf("%w: match has progressed past the start", ErrStateMismatch)
	}
	return m.raise(MatchStartReverted{MatchID: m.AggregateID()})
}

// RecordPlay applies an at-bat's runs and outs for the batting side.
func (m *MatchState) RecordPlay(side Side, runs, outsAfter int) error {
	if err := m.CheckInProgress(); err != nil {
		return err
	}
	if side != m.BattingSide() {
		return fmt.Errorf("%w: %s", ErrWrongSide, side)
	}
	if m.data.Outs >= m.data.Rules.OutsPerHalf {
		return ErrHalfInningOver
	}
	if runs < 0 || outsAfter < m.data.Outs || outsAfter > m.data.Rules.OutsPerHalf {
		return fmt.Errorf("%w: runs %d outs %d->%d", ErrStateMismatch, runs, m.data.Outs, outsAfter)
	}
	return m.raise(RunsScored{
		MatchID:    m.AggregateID(),
		Inning:     m.data.Inning,
		Half:       m.data.Half,
		Side:       side,
		Runs:       runs,
		OutsBefore: m.data.Outs,
		OutsAfter:  outsAfter,
	})
}

// RevertPlay reverses RecordPlay. The match must still be in the same half
// with the out count the play left behind.
func (m *MatchState) RevertPlay(inning int, half Half, side Side, runs, outsBefore, outsAfter int) error {
	if err := m.CheckInProgress(); err != nil {
		return err
	}
	if m.data.Inning != inning || m.data.Half != half || m.data.Outs != outsAfter || m.data.Score.Of(side) < runs {
		return fmt.Errorf("%w: play in %d %s no longer current", ErrStateMismatch, inning, half)
	}
	return m.raise(PlayReverted{
		MatchID:    m.AggregateID(),
		Inning:     inning,
		Half:       half,
		Side:       side,
		Runs:       runs,
		OutsBefore: outsBefore,
		OutsAfter:  outsAfter,
	})
}

// AdjustScore adds delta runs to side. The result cannot go below zero.
func (m *MatchState) AdjustScore(side Side, delta int, reason string) error {
	if err := m.CheckInProgress(); err != nil {
		return err
	}
	if !side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrStateMismatch, side)
	}
	if m.data.Score.Of(side)+delta < 0 {
		return ErrNegativeScore
	}
	return m.raise(ScoreAdjusted{MatchID: m.AggregateID(), Side: side, Delta: delta, Reason: reason})
}

// AdvanceHalfInning moves to the next half and clears the outs.
func (m *MatchState) AdvanceHalfInning() error {
	if err := m.CheckInProgress(); err != nil {
		return err
	}
	inning, half := Next(m.data.Inning, m.data.Half)
	return m.raise(HalfInningAdvanced{
		MatchID:    m.AggregateID(),
		FromInning: m.data.Inning,
		FromHalf:   m.data.Half,
		FromOuts:   m.data.Outs,
		ToInning:   inning,
		ToHalf:     half,
	})
}

// RevertHalfInning returns to (inning, half) with outs. The match must be at
// the start of the following half.
func (m *MatchState) RevertHalfInning(inning int, half Half, outs int) error {
	if err := m.CheckInProgress(); err != nil {
		return err
	}
	ni, nh := Next(inning, half)
	if m.data.Inning != ni || m.data.Half != nh || m.data.Outs != 0 {
		return fmt.Errorf("%w: not at the start of the half after %d %s", ErrStateMismatch, inning, half)
	}
	return m.raise(HalfInningReverted{MatchID: m.AggregateID(), Inning: inning, Half: half, Outs: outs})
}

// Complete ends the match. The winner is whoever leads; a tie has none.
func (m *MatchState) Complete(reason string) error {
	if err := m.CheckInProgress(); err != nil {
		return err
	}
	return m.raise(MatchCompleted{
		MatchID:   m.AggregateID(),
		AwayScore: m.data.Score.Away,
		HomeScore: m.data.Score.Home,
		Winner:    m.data.Score.Leader(),
		Inning:    m.data.Inning,
		Half:      m.data.Half,
		Reason:    reason,
	})
}

// Reopen moves a completed match back to in_progress. It is the only
// mutation a completed match accepts.
func (m *MatchState) Reopen(reason string) error {
	if m.data.Status != StatusCompleted {
		return fmt.Errorf("%w: match is %s", ErrStateMismatch, m.data.Status)
	}
	return m.raise(MatchReopened{MatchID: m.AggregateID(), Reason: reason})
}

// CheckInProgress returns ErrMatchNotStarted or ErrMatchCompleted unless
// the match is in progress.
func (m *MatchState) CheckInProgress() error {
	switch m.data.Status {
	case StatusInProgress:
		return nil
	case StatusCompleted:
		return ErrMatchCompleted
	}
	return ErrMatchNotStarted
}

func (m *MatchState) raise(event interface{}) error {
	m.Apply(event)
	return m.ApplyEvent(event)
}

// ApplyEvent implements dugout.Aggregate.
func (m *MatchState) ApplyEvent(event interface{}) error {
	switch e := event.(type) {
	case MatchCreated:
		m.data = MatchData{
			MatchID:       e.MatchID,
			AwayTeam:      e.AwayTeam,
			HomeTeam:      e.HomeTeam,
			ManagedSide:   e.ManagedSide,
			Status:        StatusNotStarted,
			Rules:         e.Rules,
			AwayLineupID:  e.AwayLineupID,
			HomeLineupID:  e.HomeLineupID,
			InningStateID: e.InningStateID,
			CreatedAt:     e.CreatedAt,
		}
	case MatchStarted:
		m.data.Status = StatusInProgress
		m.data.Inning = 1
		m.data.Half = Top
		m.data.Outs = 0
	case MatchStartReverted:
		m.data.Status = StatusNotStarted
		m.data.Inning = 0
		m.data.Half = ""
	case RunsScored:
		m.data.Score = m.data.Score.Add(e.Side, e.Runs)
		m.data.Outs = e.OutsAfter
	case PlayReverted:
		m.data.Score = m.data.Score.Add(e.Side, -e.Runs)
		m.data.Outs = e.OutsBefore
	case ScoreAdjusted:
		m.data.Score = m.data.Score.Add(e.Side, e.Delta)
	case HalfInningAdvanced:
		m.data.Inning = e.ToInning
		m.data.Half = e.ToHalf
		m.data.Outs = 0
	case HalfInningReverted:
		m.data.Inning = e.Inning
		m.data.Half = e.Half
		m.data.Outs = e.Outs
	case MatchCompleted:
		m.data.Status = StatusCompleted
		m.data.Winner = e.Winner
	case MatchReopened:
		m.data.Status = StatusInProgress
		m.data.Winner = ""
	default:
		return fmt.Errorf("dugout: unknown MatchState event %T", event)
	}
	return nil
}
