package game

import (
	"time"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// MatchState events.

// MatchCreated is the first event of every match.
type MatchCreated struct {
	MatchID       string    `json:"matchId"`
	AwayTeam      string    `json:"awayTeam"`
	HomeTeam      string    `json:"homeTeam"`
	ManagedSide   Side      `json:"managedSide"`
	Rules         Rules     `json:"rules"`
	AwayLineupID  string    `json:"awayLineupId"`
	HomeLineupID  string    `json:"homeLineupId"`
	InningStateID string    `json:"inningStateId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type MatchStarted struct {
	MatchID string `json:"matchId"`
}

// MatchStartReverted returns a freshly started match to not_started.
type MatchStartReverted struct {
	MatchID string `json:"matchId"`
}

// RunsScored records the effect of one at-bat on the match: runs credited
// to the batting side and the out count after the play. Runs may be zero.
type RunsScored struct {
	MatchID    string `json:"matchId"`
	Inning     int    `json:"inning"`
	Half       Half   `json:"half"`
	Side       Side   `json:"side"`
	Runs       int    `json:"runs"`
	OutsBefore int    `json:"outsBefore"`
	OutsAfter  int    `json:"outsAfter"`
}

// PlayReverted undoes a RunsScored.
type PlayReverted struct {
	MatchID    string `json:"matchId"`
	Inning     int    `json:"inning"`
	Half       Half   `json:"half"`
	Side       Side   `json:"side"`
	Runs       int    `json:"runs"`
	OutsBefore int    `json:"outsBefore"`
	OutsAfter  int    `json:"outsAfter"`
}

// ScoreAdjusted is a manual correction. Delta may be negative.
type ScoreAdjusted struct {
	MatchID string `json:"matchId"`
	Side    Side   `json:"side"`
	Delta   int    `json:"delta"`
	Reason  string `json:"reason,omitempty"`
}

type HalfInningAdvanced struct {
	MatchID    string `json:"matchId"`
	FromInning int    `json:"fromInning"`
	FromHalf   Half   `json:"fromHalf"`
	FromOuts   int    `json:"fromOuts"`
	ToInning   int    `json:"toInning"`
	ToHalf     Half   `json:"toHalf"`
}

// HalfInningReverted moves the match back to the half it left.
type HalfInningReverted struct {
	MatchID string `json:"matchId"`
	Inning  int    `json:"inning"`
	Half    Half   `json:"half"`
	Outs    int    `json:"outs"`
}

type MatchCompleted struct {
	MatchID   string `json:"matchId"`
	AwayScore int    `json:"awayScore"`
	HomeScore int    `json:"homeScore"`
	Winner    Side   `json:"winner,omitempty"`
	Inning    int    `json:"inning"`
	Half      Half   `json:"half"`
	Reason    string `json:"reason,omitempty"`
}

type MatchReopened struct {
	MatchID string `json:"matchId"`
	Reason  string `json:"reason,omitempty"`
}

// RosterLineup events.

type LineupCreated struct {
	LineupID     string   `json:"lineupId"`
	MatchID      string   `json:"matchId"`
	Side         Side     `json:"side"`
	Team         string   `json:"team"`
	Placeholder  bool     `json:"placeholder,omitempty"`
	AllowReentry bool     `json:"allowReentry"`
	Players      []Player `json:"players"`
}

type PlayerSubstituted struct {
	LineupID   string   `json:"lineupId"`
	MatchID    string   `json:"matchId"`
	Slot       int      `json:"slot"`
	OutgoingID string   `json:"outgoingId"`
	IncomingID string   `json:"incomingId"`
	Position   Position `json:"position"`
	Inning     int      `json:"inning"`
	Reentry    bool     `json:"reentry,omitempty"`
}

// SubstitutionReverted puts the previous occupant back into the slot.
type SubstitutionReverted struct {
	LineupID   string `json:"lineupId"`
	MatchID    string `json:"matchId"`
	Slot       int    `json:"slot"`
	RemovedID  string `json:"removedId"`
	RestoredID string `json:"restoredId"`
}

// InningState events.

type InningStateCreated struct {
	InningStateID  string `json:"inningStateId"`
	MatchID        string `json:"matchId"`
	OutsPerHalf    int    `json:"outsPerHalf"`
	AwayLineupSize int    `json:"awayLineupSize"`
	HomeLineupSize int    `json:"homeLineupSize"`
}

// AtBatRecorded carries both sides of the play so it can be reversed
// without replaying history.
type AtBatRecorded struct {
	InningStateID string      `json:"inningStateId"`
	MatchID       string      `json:"matchId"`
	Inning        int         `json:"inning"`
	Half          Half        `json:"half"`
	Side          Side        `json:"side"`
	Slot          int         `json:"slot"`
	BatterID      string      `json:"batterId"`
	Result        AtBatResult `json:"result"`
	BasesBefore   Bases       `json:"basesBefore"`
	BasesAfter    Bases       `json:"basesAfter"`
	OutsBefore    int         `json:"outsBefore"`
	OutsAfter     int         `json:"outsAfter"`
	Runs          int         `json:"runs"`
	Scorers       []string    `json:"scorers,omitempty"`
}

type AtBatReverted struct {
	InningStateID string      `json:"inningStateId"`
	MatchID       string      `json:"matchId"`
	Inning        int         `json:"inning"`
	Half          Half        `json:"half"`
	Side          Side        `json:"side"`
	Slot          int         `json:"slot"`
	BatterID      string      `json:"batterId"`
	Result        AtBatResult `json:"result"`
	Bases         Bases       `json:"bases"`
	Outs          int         `json:"outs"`
}

type HalfInningEnded struct {
	InningStateID string `json:"inningStateId"`
	MatchID       string `json:"matchId"`
	FromInning    int    `json:"fromInning"`
	FromHalf      Half   `json:"fromHalf"`
	FromOuts      int    `json:"fromOuts"`
	FromBases     Bases  `json:"fromBases"`
	ToInning      int    `json:"toInning"`
	ToHalf        Half   `json:"toHalf"`
}

type HalfInningRestored struct {
	InningStateID string `json:"inningStateId"`
	MatchID       string `json:"matchId"`
	Inning        int    `json:"inning"`
	Half          Half   `json:"half"`
	Outs          int    `json:"outs"`
	Bases         Bases  `json:"bases"`
}

// EventTypes returns an example of every event the game aggregates emit,
// plus dugout.Retraction, for serializer registration.
func EventTypes() []interface{} {
	return []interface{}{
		MatchCreated{}, MatchStarted{}, MatchStartReverted{},
		RunsScored{}, PlayReverted{}, ScoreAdjusted{},
		HalfInningAdvanced{}, HalfInningReverted{},
		MatchCompleted{}, MatchReopened{},
		LineupCreated{}, PlayerSubstituted{}, SubstitutionReverted{},
		InningStateCreated{}, AtBatRecorded{}, AtBatReverted{},
		HalfInningEnded{}, HalfInningRestored{},
		dugout.Retraction{},
	}
}
