package api

import (
	"github.com/AshkanYarmoradi/go-dugout/game"
)

// AtBatRequest is the body of POST /at-bats.
type AtBatRequest struct {
	Result game.AtBatResult `json:"result"`
}

// SubstitutionRequest is the body of POST /substitutions.
type SubstitutionRequest struct {
	Side     game.Side     `json:"side"`
	Slot     int           `json:"slot"`
	PlayerID string        `json:"playerId"`
	Position game.Position `json:"position"`
}

// AdjustmentRequest is the body of POST /adjustments.
type AdjustmentRequest struct {
	Side   game.Side `json:"side"`
	Delta  int       `json:"delta"`
	Reason string    `json:"reason,omitempty"`
}

// EndMatchRequest is the optional body of POST /end.
type EndMatchRequest struct {
	Reason string `json:"reason,omitempty"`
}

// LimitRequest is the optional body of POST /undo and /redo. Limit
// defaults to 1.
type LimitRequest struct {
	Limit int `json:"limit"`
}

// ReplayResponse is returned when an Idempotency-Key was already processed.
type ReplayResponse struct {
	MatchID  string `json:"matchId"`
	Version  int64  `json:"version"`
	Replayed bool   `json:"replayed"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
	Result interface{}         `json:"result,omitempty"`
}
