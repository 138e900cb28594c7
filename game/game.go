// Package game holds the three aggregates that make up a scored match:
// MatchState, one RosterLineup per side and InningState. They reference
// each other only by the shared match id.
package game

import (
	"errors"
	"fmt"
)

// Aggregate kinds, also the stream prefixes in the event log.
const (
	MatchStateKind   = "MatchState"
	RosterLineupKind = "RosterLineup"
	InningStateKind  = "InningState"
)

// State errors. Mutations that are not allowed in the aggregate's current
// state fail with one of these instead of doing nothing.
var (
	ErrMatchCompleted      = errors.New("dugout: match is completed")
	ErrMatchNotStarted     = errors.New("dugout: match has not started")
	ErrMatchAlreadyCreated = errors.New("dugout: match already created")
	ErrHalfInningOver      = errors.New("dugout: half inning already has the maximum number of outs")
	ErrWrongSide           = errors.New("dugout: side is not batting")
	ErrInvalidResult       = errors.New("dugout: unknown at-bat result")
	ErrSlotNotFound        = errors.New("dugout: batting slot not found")
	ErrPlayerUnavailable   = errors.New("dugout: player cannot enter the game")
	ErrReentryNotAllowed   = errors.New("dugout: re-entry not allowed")
	ErrStateMismatch       = errors.New("dugout: current state does not match the recorded action")
	ErrNegativeScore       = errors.New("dugout: score cannot be negative")
)

// Side identifies a team within a match. Away bats first.
type Side string

const (
	Away Side = "away"
	Home Side = "home"
)

// Valid reports whether s is Away or Home.
func (s Side) Valid() bool {
	return s == Away || s == Home
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == Away {
		return Home
	}
	return Away
}

// Half is the top or bottom of an inning.
type Half string

const (
	Top    Half = "top"
	Bottom Half = "bottom"
)

// BattingSide returns the side at bat in half h.
func (h Half) BattingSide() Side {
	if h == Bottom {
		return Home
	}
	return Away
}

// Next returns the half inning that follows (inning, h).
func Next(inning int, h Half) (int, Half) {
	if h == Top {
		return inning, Bottom
	}
	return inning + 1, Top
}

// Position is a defensive or batting-only position.
type Position string

const (
	Pitcher          Position = "P"
	Catcher          Position = "C"
	FirstBase        Position = "1B"
	SecondBase       Position = "2B"
	ThirdBase        Position = "3B"
	Shortstop        Position = "SS"
	LeftField        Position = "LF"
	CenterField      Position = "CF"
	RightField       Position = "RF"
	DesignatedHitter Position = "DH"
	ExtraHitter      Position = "EH"
)

// RequiredPositions must each be held by a player in the batting order.
var RequiredPositions = []Position{
	Pitcher, Catcher, FirstBase, SecondBase, ThirdBase,
	Shortstop, LeftField, CenterField, RightField,
}

// Valid reports whether p is a known position.
func (p Position) Valid() bool {
	switch p {
	case DesignatedHitter, ExtraHitter:
		return true
	}
	for _, r := range RequiredPositions {
		if p == r {
			return true
		}
	}
	return false
}

// Rules configures a match.
type Rules struct {
	Innings      int  `json:"innings" yaml:"innings"`
	OutsPerHalf  int  `json:"outsPerHalf" yaml:"outsPerHalf"`
	AllowReentry bool `json:"allowReentry" yaml:"allowReentry"`
}

// DefaultRules returns seven innings, three outs per half and starter
// re-entry allowed.
func DefaultRules() Rules {
	return Rules{Innings: 7, OutsPerHalf: 3, AllowReentry: true}
}

// Validate checks the rule values.
func (r Rules) Validate() error {
	if r.Innings < 1 {
		return fmt.Errorf("innings must be at least 1, got %d", r.Innings)
	}
	if r.OutsPerHalf < 1 {
		return fmt.Errorf("outs per half must be at least 1, got %d", r.OutsPerHalf)
	}
	return nil
}

// Score holds runs per side.
type Score struct {
	Away int `json:"away"`
	Home int `json:"home"`
}

// Of returns the runs of side s.
func (s Score) Of(side Side) int {
	if side == Home {
		return s.Home
	}
	return s.Away
}

// Add returns the score with delta runs added to side s.
func (s Score) Add(side Side, delta int) Score {
	if side == Home {
		s.Home += delta
	} else {
		s.Away += delta
	}
	return s
}

// Leader returns the side ahead, or "" when tied.
func (s Score) Leader() Side {
	switch {
	case s.Away > s.Home:
		return Away
	case s.Home > s.Away:
		return Home
	}
	return ""
}
