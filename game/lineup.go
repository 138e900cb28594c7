package game

import (
	"fmt"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// Occupancy is one player's stay in a batting slot.
type Occupancy struct {
	PlayerID      string   `json:"playerId"`
	Position      Position `json:"position"`
	EnteredInning int      `json:"enteredInning"`
	ExitedInning  int      `json:"exitedInning,omitempty"`
	Starter       bool     `json:"starter,omitempty"`
	Reentry       bool     `json:"reentry,omitempty"`
}

// Slot is a batting-order position. The last occupancy is the current one.
type Slot struct {
	Order       int         `json:"order"`
	Occupancies []Occupancy `json:"occupancies"`
}

// Current returns the slot's current occupant.
func (s Slot) Current() Occupancy {
	return s.Occupancies[len(s.Occupancies)-1]
}

// LineupData is the persisted state of a RosterLineup.
type LineupData struct {
	LineupID     string   `json:"lineupId"`
	MatchID      string   `json:"matchId"`
	Side         Side     `json:"side"`
	Team         string   `json:"team"`
	Placeholder  bool     `json:"placeholder,omitempty"`
	AllowReentry bool     `json:"allowReentry"`
	Players      []Player `json:"players"`
	Slots        []Slot   `json:"slots"`
}

// RosterLineup is one side's batting order with its substitution history.
type RosterLineup struct {
	dugout.AggregateBase
	data LineupData
}

// NewRosterLineup returns an empty RosterLineup for id.
func NewRosterLineup(id string) *RosterLineup {
	return &RosterLineup{AggregateBase: dugout.NewAggregateBase(id, RosterLineupKind)}
}

// Data returns the current state. Slices are shared with the aggregate.
func (l *RosterLineup) Data() LineupData {
	return l.data
}

// SnapshotData implements dugout.Snapshotter.
func (l *RosterLineup) SnapshotData() interface{} {
	return &l.data
}

func (l *RosterLineup) Side() Side          { return l.data.Side }
func (l *RosterLineup) Size() int           { return len(l.data.Slots) }
func (l *RosterLineup) IsPlaceholder() bool { return l.data.Placeholder }

// Create builds the lineup from a roster. The roster must already be valid.
func (l *RosterLineup) Create(matchID string, side Side, roster Roster, placeholder, allowReentry bool) error {
	if l.data.LineupID != "" {
		return fmt.Errorf("%w: lineup %s already created", ErrStateMismatch, l.AggregateID())
	}
	if len(roster.Starters()) == 0 {
		return fmt.Errorf("%w: roster for %s has no batting order", dugout.ErrValidationFailed, side)
	}
	players := make([]Player, len(roster.Players))
	copy(players, roster.Players)
	return l.raise(LineupCreated{
		LineupID:     l.AggregateID(),
		MatchID:      matchID,
		Side:         side,
		Team:         roster.Team,
		Placeholder:  placeholder,
		AllowReentry: allowReentry,
		Players:      players,
	})
}

// Slot returns the slot with the given batting order.
func (l *RosterLineup) Slot(order int) (Slot, error) {
	if order < 1 || order > len(l.data.Slots) {
		return Slot{}, fmt.Errorf("%w: %d", ErrSlotNotFound, order)
	}
	return l.data.Slots[order-1], nil
}

// Occupant returns the player currently batting in slot order.
func (l *RosterLineup) Occupant(order int) (Player, error) {
	s, err := l.Slot(order)
	if err != nil {
		return Player{}, err
	}
	cur := s.Current()
	p, _ := l.Player(cur.PlayerID)
	p.Position = cur.Position
	p.BattingOrder = order
	return p, nil
}

// Player looks up a roster player by id.
func (l *RosterLineup) Player(id string) (Player, bool) {
	for _, p := range l.data.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Bench returns roster players who have not appeared in any slot.
func (l *RosterLineup) Bench() []Player {
	var out []Player
	for _, p := range l.data.Players {
		if !l.appeared(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

func (l *RosterLineup) appeared(playerID string) bool {
	for _, s := range l.data.Slots {
		for _, o := range s.Occupancies {
			if o.PlayerID == playerID {
				return true
			}
		}
	}
	return false
}

func (l *RosterLineup) inGame(playerID string) bool {
	for _, s := range l.data.Slots {
		if s.Current().PlayerID == playerID {
			return true
		}
	}
	return false
}

// originalSlot returns the slot playerID started in, or 0.
func (l *RosterLineup) originalSlot(playerID string) int {
	for _, s := range l.data.Slots {
		if first := s.Occupancies[0]; first.Starter && first.PlayerID == playerID {
			return s.Order
		}
	}
	return 0
}

func (l *RosterLineup) reentered(playerID string) bool {
	for _, s := range l.data.Slots {
		for _, o := range s.Occupancies {
			if o.PlayerID == playerID && o.Reentry {
				return true
			}
		}
	}
	return false
}

// Substitute puts incomingID into slot at position during inning.
//
// A bench player may enter any slot once. A removed starter may come back
// once, only into the slot they started in, and only when re-entry is
// allowed. Removed substitutes cannot return.
func (l *RosterLineup) Substitute(slot int, incomingID string, position Position, inning int) error {
	s, err := l.Slot(slot)
	if err != nil {
		return err
	}
	if !position.Valid() {
		return fmt.Errorf("%w: unknown position %q", dugout.ErrValidationFailed, position)
	}
	if _, ok := l.Player(incomingID); !ok {
		return fmt.Errorf("%w: %s is not on the %s roster", ErrPlayerUnavailable, incomingID, l.data.Side)
	}
	if l.inGame(incomingID) {
		return fmt.Errorf("%w: %s is already in the lineup", ErrPlayerUnavailable, incomingID)
	}

	reentry := false
	if l.appeared(incomingID) {
		orig := l.originalSlot(incomingID)
		switch {
		case orig == 0:
			return fmt.Errorf("%w: %s was substituted out", ErrPlayerUnavailable, incomingID)
		case !l.data.AllowReentry:
			return ErrReentryNotAllowed
		case orig != slot:
			return fmt.Errorf("%w: %s may only re-enter slot %d", ErrReentryNotAllowed, incomingID, orig)
		case l.reentered(incomingID):
			return fmt.Errorf("%w: %s has already re-entered", ErrReentryNotAllowed, incomingID)
		}
		reentry = true
	}

	return l.raise(PlayerSubstituted{
		LineupID:   l.AggregateID(),
		MatchID:    l.data.MatchID,
		Slot:       slot,
		OutgoingID: s.Current().PlayerID,
		IncomingID: incomingID,
		Position:   position,
		Inning:     inning,
		Reentry:    reentry,
	})
}

// RevertSubstitution removes removedID from slot and restores the previous
// occupant. removedID must still be the current occupant.
func (l *RosterLineup) RevertSubstitution(slot int, removedID string) error {
	s, err := l.Slot(slot)
	if err != nil {
		return err
	}
	if len(s.Occupancies) < 2 || s.Current().PlayerID != removedID {
		return fmt.Errorf("%w: %s is not the substitute in slot %d", ErrStateMismatch, removedID, slot)
	}
	return l.raise(SubstitutionReverted{
		LineupID:   l.AggregateID(),
		MatchID:    l.data.MatchID,
		Slot:       slot,
		RemovedID:  removedID,
		RestoredID: s.Occupancies[len(s.Occupancies)-2].PlayerID,
	})
}

func (l *RosterLineup) raise(event interface{}) error {
	l.Apply(event)
	return l.ApplyEvent(event)
}

// ApplyEvent implements dugout.Aggregate.
func (l *RosterLineup) ApplyEvent(event interface{}) error {
	switch e := event.(type) {
	case LineupCreated:
		l.data = LineupData{
			LineupID:     e.LineupID,
			MatchID:      e.MatchID,
			Side:         e.Side,
			Team:         e.Team,
			Placeholder:  e.Placeholder,
			AllowReentry: e.AllowReentry,
			Players:      e.Players,
		}
		for _, p := range (Roster{Players: e.Players}).Starters() {
			l.data.Slots = append(l.data.Slots, Slot{
				Order: p.BattingOrder,
				Occupancies: []Occupancy{{
					PlayerID:      p.ID,
					Position:      p.Position,
					EnteredInning: 1,
					Starter:       true,
				}},
			})
		}
	case PlayerSubstituted:
		s := &l.data.Slots[e.Slot-1]
		s.Occupancies[len(s.Occupancies)-1].ExitedInning = e.Inning
		s.Occupancies = append(s.Occupancies, Occupancy{
			PlayerID:      e.IncomingID,
			Position:      e.Position,
			EnteredInning: e.Inning,
			Reentry:       e.Reentry,
		})
	case SubstitutionReverted:
		s := &l.data.Slots[e.Slot-1]
		s.Occupancies = s.Occupancies[:len(s.Occupancies)-1]
		s.Occupancies[len(s.Occupancies)-1].ExitedInning = 0
	default:
		return fmt.Errorf("dugout: unknown RosterLineup event %T", event)
	}
	return nil
}
