package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/AshkanYarmoradi/go-dugout/scorebook"
)

// Request headers.
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	CorrelationIDHeader  = "X-Correlation-ID"
)

const maxBodyBytes = 1 << 20

// Handler serves the match endpoints.
type Handler struct {
	bus    *dugout.CommandBus
	svc    *scorebook.Service
	logger dugout.Logger
}

// NewHandler creates a Handler. bus must have scorebook handlers
// registered for svc.
func NewHandler(bus *dugout.CommandBus, svc *scorebook.Service, logger dugout.Logger) *Handler {
	if logger == nil {
		logger = dugout.NopLogger()
	}
	return &Handler{bus: bus, svc: svc, logger: logger}
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// InitializeMatch creates a match from a setup.
// POST /api/matches
func (h *Handler) InitializeMatch(w http.ResponseWriter, r *http.Request) {
	var setup scorebook.MatchSetup
	if !decode(w, r, &setup, false) {
		return
	}
	h.dispatch(w, r, http.StatusCreated, scorebook.InitializeMatch{CommandBase: commandBase(r), Setup: setup})
}

// GetState returns the match projection.
// GET /api/matches/{id}
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetHistory returns the action history.
// GET /api/matches/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// RecordAtBat records the result of the batter due up.
// POST /api/matches/{id}/at-bats
func (h *Handler) RecordAtBat(w http.ResponseWriter, r *http.Request) {
	var req AtBatRequest
	if !decode(w, r, &req, false) {
		return
	}
	h.dispatch(w, r, http.StatusOK, scorebook.RecordAtBat{
		CommandBase: commandBase(r),
		MatchID:     chi.URLParam(r, "id"),
		Result:      req.Result,
	})
}

// Substitute replaces a batting slot's occupant.
// POST /api/matches/{id}/substitutions
func (h *Handler) Substitute(w http.ResponseWriter, r *http.Request) {
	var req SubstitutionRequest
	if !decode(w, r, &req, false) {
		return
	}
	h.dispatch(w, r, http.StatusOK, scorebook.Substitute{
		CommandBase: commandBase(r),
		MatchID:     chi.URLParam(r, "id"),
		Side:        req.Side,
		Slot:        req.Slot,
		PlayerID:    req.PlayerID,
		Position:    req.Position,
	})
}

// EndHalfInning closes the half in play.
// POST /api/matches/{id}/half-innings/end
func (h *Handler) EndHalfInning(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, http.StatusOK, scorebook.EndHalfInning{
		CommandBase: commandBase(r),
		MatchID:     chi.URLParam(r, "id"),
	})
}

// AdjustScore corrects a side's score.
// POST /api/matches/{id}/adjustments
func (h *Handler) AdjustScore(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decode(w, r, &req, false) {
		return
	}
	h.dispatch(w, r, http.StatusOK, scorebook.AdjustScore{
		CommandBase: commandBase(r),
		MatchID:     chi.URLParam(r, "id"),
		Side:        req.Side,
		Delta:       req.Delta,
		Reason:      req.Reason,
	})
}

// EndMatch completes the match.
// POST /api/matches/{id}/end
func (h *Handler) EndMatch(w http.ResponseWriter, r *http.Request) {
	var req EndMatchRequest
	if !decode(w, r, &req, true) {
		return
	}
	h.dispatch(w, r, http.StatusOK, scorebook.EndMatch{
		CommandBase: commandBase(r),
		MatchID:     chi.URLParam(r, "id"),
		Reason:      req.Reason,
	})
}

// Undo reverses the most recent actions.
// POST /api/matches/{id}/undo
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	req := LimitRequest{Limit: 1}
	if !decode(w, r, &req, true) {
		return
	}
	h.dispatch(w, r, http.StatusOK, scorebook.Undo{
		CommandBase: commandBase(r),
		MatchID:     chi.URLParam(r, "id"),
		Limit:       req.Limit,
	})
}

// Redo re-applies undone actions.
// POST /api/matches/{id}/redo
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	req := LimitRequest{Limit: 1}
	if !decode(w, r, &req, true) {
		return
	}
	h.dispatch(w, r, http.StatusOK, scorebook.Redo{
		CommandBase: commandBase(r),
		MatchID:     chi.URLParam(r, "id"),
		Limit:       req.Limit,
	})
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, status int, cmd dugout.Command) {
	ctx := r.Context()
	if id := correlationID(r); id != "" {
		ctx = dugout.WithCorrelationID(ctx, id)
		w.Header().Set(CorrelationIDHeader, id)
	}

	res, err := h.bus.Dispatch(ctx, cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !res.IsSuccess() {
		// Undo and redo report partial or empty runs as results.
		msg := scorebook.PublicMessage(res.Error)
		if ur, ok := res.Data.(*scorebook.UndoResult); ok && ur.Message != "" {
			msg = ur.Message
		}
		writeJSON(w, statusFor(res.Error), ErrorResponse{Error: msg, Result: res.Data})
		return
	}
	if res.Data == nil {
		writeJSON(w, http.StatusOK, ReplayResponse{MatchID: res.AggregateID, Version: res.Version, Replayed: true})
		return
	}
	writeJSON(w, status, res.Data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
	}
	resp := ErrorResponse{Error: scorebook.PublicMessage(err)}
	var mv *dugout.MultiValidationError
	if errors.As(err, &mv) {
		resp.Fields = mv.Fields()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, dugout.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, dugout.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scorebook.ErrMatchExists),
		errors.Is(err, dugout.ErrConcurrencyConflict),
		errors.Is(err, dugout.ErrCommandAlreadyProcessed),
		errors.Is(err, scorebook.ErrNoActionsAvailable),
		errors.Is(err, scorebook.ErrUndoDisabled),
		errors.Is(err, game.ErrMatchCompleted),
		errors.Is(err, game.ErrMatchNotStarted),
		errors.Is(err, game.ErrHalfInningOver),
		errors.Is(err, game.ErrStateMismatch):
		return http.StatusConflict
	case errors.Is(err, game.ErrSlotNotFound),
		errors.Is(err, game.ErrPlayerUnavailable),
		errors.Is(err, game.ErrReentryNotAllowed),
		errors.Is(err, game.ErrNegativeScore),
		errors.Is(err, game.ErrInvalidResult),
		errors.Is(err, game.ErrWrongSide):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func commandBase(r *http.Request) dugout.CommandBase {
	return dugout.CommandBase{
		CorrelationID: correlationID(r),
		RequestKey:    r.Header.Get(IdempotencyKeyHeader),
	}
}

func correlationID(r *http.Request) string {
	if id := r.Header.Get(CorrelationIDHeader); id != "" {
		return id
	}
	return middleware.GetReqID(r.Context())
}

// decode reads a JSON body into v. An empty body is accepted when optional.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, bodyError(err))
		return false
	}
	return true
}

// bodyError describes a decode failure without echoing decoder text.
func bodyError(err error) ErrorResponse {
	var (
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		sizeErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		return ErrorResponse{Error: "request body too large"}
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return ErrorResponse{
			Error:  "invalid request body",
			Fields: map[string][]string{typeErr.Field: {"has the wrong type"}},
		}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return ErrorResponse{
			Error:  "invalid request body",
			Fields: map[string][]string{field: {"unknown field"}},
		}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorResponse{Error: "invalid request body: malformed JSON"}
	default:
		return ErrorResponse{Error: "invalid request body"}
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
