package scorebook

import (
	"context"
	"fmt"
	"time"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/AshkanYarmoradi/go-dugout/serializer/msgpack"
)

// ActionType tags a history entry with the use case that produced it.
type ActionType string

// The closed set of action types. Each has one compensator.
const (
	ActionAtBat        ActionType = "AT_BAT"
	ActionSubstitution ActionType = "SUBSTITUTION"
	ActionInningEnd    ActionType = "INNING_END"
	ActionGameStart    ActionType = "GAME_START"
	ActionGameEnd      ActionType = "GAME_END"
	ActionOther        ActionType = "OTHER"
)

// HistoryKind is the stream prefix of stored action histories.
const HistoryKind = "ActionHistory"

// AtBatAction is the payload of an AT_BAT entry. Outcome is refreshed on
// every redo.
type AtBatAction struct {
	Result  game.AtBatResult   `json:"result"`
	Outcome game.AtBatRecorded `json:"outcome"`
}

// SubstitutionAction is the payload of a SUBSTITUTION entry.
type SubstitutionAction struct {
	Side       game.Side     `json:"side"`
	Slot       int           `json:"slot"`
	OutgoingID string        `json:"outgoingId"`
	IncomingID string        `json:"incomingId"`
	Position   game.Position `json:"position"`
	Inning     int           `json:"inning"`
	Reentry    bool          `json:"reentry,omitempty"`
}

// InningEndAction is the payload of an INNING_END entry.
type InningEndAction struct {
	Ended game.HalfInningEnded `json:"ended"`
}

// GameStartAction is the payload of a GAME_START entry.
type GameStartAction struct {
	AwayLineupID        string `json:"awayLineupId"`
	HomeLineupID        string `json:"homeLineupId"`
	InningStateID       string `json:"inningStateId"`
	PlaceholderOpponent bool   `json:"placeholderOpponent,omitempty"`
}

// GameEndAction is the payload of a GAME_END entry.
type GameEndAction struct {
	Reason    string    `json:"reason,omitempty"`
	AwayScore int       `json:"awayScore"`
	HomeScore int       `json:"homeScore"`
	Winner    game.Side `json:"winner,omitempty"`
}

// AdjustmentAction is the payload of an OTHER entry: a manual score change.
type AdjustmentAction struct {
	Side   game.Side `json:"side"`
	Delta  int       `json:"delta"`
	Reason string    `json:"reason,omitempty"`
}

// HistoryEntry is one executed use case. Exactly one payload field is set,
// matching Type.
type HistoryEntry struct {
	Seq         int        `json:"seq"`
	Type        ActionType `json:"type"`
	Description string     `json:"description"`
	Aggregates  []string   `json:"aggregates"`
	RecordedAt  time.Time  `json:"recordedAt"`

	AtBat        *AtBatAction        `json:"atBat,omitempty"`
	Substitution *SubstitutionAction `json:"substitution,omitempty"`
	InningEnd    *InningEndAction    `json:"inningEnd,omitempty"`
	GameStart    *GameStartAction    `json:"gameStart,omitempty"`
	GameEnd      *GameEndAction      `json:"gameEnd,omitempty"`
	Adjustment   *AdjustmentAction   `json:"adjustment,omitempty"`
}

// ActionHistory is the linear undo/redo log of one match. Entries before
// Position are applied; the rest have been undone and can be redone.
type ActionHistory struct {
	MatchID  string         `json:"matchId"`
	Entries  []HistoryEntry `json:"entries"`
	Position int            `json:"position"`
	NextSeq  int            `json:"nextSeq"`

	version int64
}

// NewActionHistory returns an empty history for matchID.
func NewActionHistory(matchID string) *ActionHistory {
	return &ActionHistory{MatchID: matchID, NextSeq: 1}
}

// Version is the stored version the history was loaded at.
func (h *ActionHistory) Version() int64 {
	return h.version
}

// Record appends e after the current position, discarding any undone
// entries first. It returns the number discarded.
func (h *ActionHistory) Record(e HistoryEntry) int {
	discarded := len(h.Entries) - h.Position
	h.Entries = h.Entries[:h.Position]
	e.Seq = h.NextSeq
	h.NextSeq++
	h.Entries = append(h.Entries, e)
	h.Position = len(h.Entries)
	return discarded
}

// Undoable returns how many entries can be undone.
func (h *ActionHistory) Undoable() int {
	return h.Position
}

// Redoable returns how many entries can be redone.
func (h *ActionHistory) Redoable() int {
	return len(h.Entries) - h.Position
}

// Applied returns the entries currently in effect, oldest first.
func (h *ActionHistory) Applied() []HistoryEntry {
	return h.Entries[:h.Position]
}

// Undone returns the redoable entries, next redo first.
func (h *ActionHistory) Undone() []HistoryEntry {
	return h.Entries[h.Position:]
}

func (h *ActionHistory) clone() *ActionHistory {
	c := *h
	c.Entries = append([]HistoryEntry(nil), h.Entries...)
	return &c
}

// HistoryStore keeps action histories in a snapshot adapter, encoded with
// MessagePack and version checked like aggregate state.
type HistoryStore struct {
	snapshots adapters.SnapshotAdapter
	codec     dugout.Codec
}

// NewHistoryStore creates a HistoryStore.
func NewHistoryStore(snapshots adapters.SnapshotAdapter) *HistoryStore {
	return &HistoryStore{snapshots: snapshots, codec: msgpack.NewCodec()}
}

func historyStream(matchID string) string {
	return dugout.BuildStreamID(HistoryKind, matchID)
}

// Load returns the history of matchID. A match without one gets a new,
// empty history.
func (s *HistoryStore) Load(ctx context.Context, matchID string) (*ActionHistory, error) {
	rec, err := s.snapshots.LoadSnapshot(ctx, historyStream(matchID))
	if err != nil {
		return nil, dugout.NewPersistenceError(dugout.PersistenceHistory, historyStream(matchID), err)
	}
	h := NewActionHistory(matchID)
	if rec == nil {
		return h, nil
	}
	if err := s.codec.Unmarshal(rec.Data, h); err != nil {
		return nil, dugout.NewPersistenceError(dugout.PersistenceHistory, historyStream(matchID), err)
	}
	h.version = rec.Version
	return h, nil
}

// Save stores h if nobody else saved since it was loaded. It does not
// advance h's version.
func (s *HistoryStore) Save(ctx context.Context, h *ActionHistory) error {
	data, err := s.codec.Marshal(h)
	if err != nil {
		return fmt.Errorf("dugout: failed to encode action history: %w", err)
	}
	return s.snapshots.SaveSnapshot(ctx, historyStream(h.MatchID), h.version, h.version+1, data)
}

// Delete removes the history of matchID.
func (s *HistoryStore) Delete(ctx context.Context, matchID string) error {
	return s.snapshots.DeleteSnapshot(ctx, historyStream(matchID))
}

// SaveOperation returns a transaction step that saves h. Its compensation
// puts back the previously stored history, or deletes it.
func (s *HistoryStore) SaveOperation(h *ActionHistory) dugout.Operation {
	streamID := historyStream(h.MatchID)
	var prev *adapters.SnapshotRecord

	return dugout.Operation{
		Name: "save " + streamID,
		Run: func(ctx context.Context) (dugout.OperationResult, error) {
			rec, err := s.snapshots.LoadSnapshot(ctx, streamID)
			if err != nil {
				return dugout.OperationResult{}, dugout.NewPersistenceError(dugout.PersistenceHistory, streamID, err)
			}
			if err := s.Save(ctx, h); err != nil {
				return dugout.OperationResult{}, dugout.NewPersistenceError(dugout.PersistenceHistory, streamID, err)
			}
			prev = rec
			return dugout.Succeeded(streamID), nil
		},
		Compensate: func(ctx context.Context) error {
			if prev == nil {
				return s.snapshots.DeleteSnapshot(ctx, streamID)
			}
			return s.snapshots.SaveSnapshot(ctx, streamID, dugout.AnyVersion, prev.Version, prev.Data)
		},
	}
}
