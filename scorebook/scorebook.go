// Package scorebook records a match: it initializes the four aggregates of a
// new match, runs each scoring action as one transaction and undoes or redoes
// recorded actions by deriving compensating events.
//
//	store := scorebook.NewStore(adapter, dugout.New(adapter))
//	svc := scorebook.NewService(store, scorebook.WithLogger(logger))
//
//	res, err := svc.Initialize(ctx, setup)
//	_, err = svc.RecordAtBat(ctx, res.MatchID, game.Double)
//	undo, err := svc.Undo(ctx, res.MatchID, 1)
package scorebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/google/uuid"
)

var (
	// ErrMatchExists is returned when initializing a match id already in use.
	ErrMatchExists = errors.New("dugout: match already exists")

	// ErrNoActionsAvailable is reported when there is nothing to undo or redo.
	ErrNoActionsAvailable = errors.New("dugout: no actions available")

	// ErrUndoDisabled is returned for undo or redo on a completed match
	// unless WithCompletedMatchUndo(true) is set.
	ErrUndoDisabled = errors.New("dugout: undo and redo are disabled for completed matches")

	// ErrUnknownAction is returned for a history entry whose type has no
	// compensator.
	ErrUnknownAction = errors.New("dugout: unknown action type")
)

// Store bundles the persistence collaborators of a match.
type Store struct {
	Matches *dugout.AggregateRepository[*game.MatchState]
	Lineups *dugout.AggregateRepository[*game.RosterLineup]
	Innings *dugout.AggregateRepository[*game.InningState]
	Events  *dugout.EventStore
	History *HistoryStore
}

// NewStore creates the repositories on snapshots and registers the game
// events with the event store's serializer.
func NewStore(snapshots adapters.SnapshotAdapter, events *dugout.EventStore, opts ...dugout.RepositoryOption) *Store {
	events.RegisterEvents(game.EventTypes()...)
	return &Store{
		Matches: dugout.NewAggregateRepository(snapshots, game.MatchStateKind, game.NewMatchState, opts...),
		Lineups: dugout.NewAggregateRepository(snapshots, game.RosterLineupKind, game.NewRosterLineup, opts...),
		Innings: dugout.NewAggregateRepository(snapshots, game.InningStateKind, game.NewInningState, opts...),
		Events:  events,
		History: NewHistoryStore(snapshots),
	}
}

func (st *Store) saveOperation(agg dugout.Aggregate) dugout.Operation {
	switch a := agg.(type) {
	case *game.MatchState:
		return dugout.SaveOperation(st.Matches, a)
	case *game.RosterLineup:
		return dugout.SaveOperation(st.Lineups, a)
	case *game.InningState:
		return dugout.SaveOperation(st.Innings, a)
	}
	// No Run: the coordinator fails the transaction at this step.
	return dugout.Operation{Name: fmt.Sprintf("save %T", agg)}
}

// operations builds a commit: every snapshot save in order, then every
// event append, then the history save when h is not nil.
func (st *Store) operations(aggs []dugout.Aggregate, h *ActionHistory) []dugout.Operation {
	ops := make([]dugout.Operation, 0, 2*len(aggs)+1)
	for _, a := range aggs {
		ops = append(ops, st.saveOperation(a))
	}
	for _, a := range aggs {
		ops = append(ops, dugout.AppendOperation(st.Events, a))
	}
	if h != nil {
		ops = append(ops, st.History.SaveOperation(h))
	}
	return ops
}

// HistoryMetrics observes undo and redo.
type HistoryMetrics interface {
	ActionRecorded(action string, discarded int)
	ActionCompensated(direction, action string, events int, success bool)
}

// Outcome is passed to the commit hook after an action is committed.
type Outcome struct {
	MatchID      string
	Action       ActionType
	Direction    string // "do", "undo" or "redo"
	Entry        HistoryEntry
	State        *MatchView
	ScoreChanged bool
}

// CommitHook is called after each committed action. It runs after the
// commit; its error is logged and otherwise ignored.
type CommitHook func(ctx context.Context, o Outcome) error

type options struct {
	logger           dugout.Logger
	coordinator      *dugout.Coordinator
	now              func() time.Time
	newID            func() string
	allowAfterFinish bool
	metrics          HistoryMetrics
	hooks            []CommitHook
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger. The default coordinator logs through it too.
func WithLogger(l dugout.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCoordinator replaces the transaction coordinator.
func WithCoordinator(c *dugout.Coordinator) Option {
	return func(o *options) {
		o.coordinator = c
	}
}

// WithClock sets the time source for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator sets the generator for match, lineup and inning ids.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		o.newID = gen
	}
}

// WithCompletedMatchUndo allows undo and redo after a match is completed.
// It is off by default.
func WithCompletedMatchUndo(allow bool) Option {
	return func(o *options) {
		o.allowAfterFinish = allow
	}
}

// WithHistoryMetrics sets the undo/redo observer.
func WithHistoryMetrics(m HistoryMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// OnCommitted adds a hook that runs after every committed action.
func OnCommitted(h CommitHook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, h)
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: dugout.NopLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.coordinator == nil {
		o.coordinator = dugout.NewCoordinator(dugout.WithCoordinatorLogger(o.logger))
	}
	return o
}

// TransactionError reports a commit the coordinator rolled back.
type TransactionError struct {
	Transaction string
	Result      dugout.TransactionResult
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("dugout: transaction %s failed: %s", e.Transaction, strings.Join(e.Result.Errors, "; "))
}

// Unwrap returns the failing operation's error, typically a
// *dugout.PersistenceError.
func (e *TransactionError) Unwrap() error {
	return e.Result.Cause
}

// publicErrors are the failures whose text describes the caller's request
// and may be shown as is.
var publicErrors = []error{
	ErrMatchExists,
	ErrNoActionsAvailable,
	ErrUndoDisabled,
	ErrUnknownAction,
	game.ErrMatchCompleted,
	game.ErrMatchNotStarted,
	game.ErrMatchAlreadyCreated,
	game.ErrHalfInningOver,
	game.ErrWrongSide,
	game.ErrInvalidResult,
	game.ErrSlotNotFound,
	game.ErrPlayerUnavailable,
	game.ErrReentryNotAllowed,
	game.ErrStateMismatch,
	game.ErrNegativeScore,
	dugout.ErrValidationFailed,
	dugout.ErrNotFound,
	dugout.ErrConcurrencyConflict,
	dugout.ErrCommandAlreadyProcessed,
	dugout.ErrHandlerNotFound,
	dugout.ErrNilCommand,
	dugout.ErrCommandBusClosed,
}

// PublicMessage returns text about err that is safe to show callers.
// Persistence failures are reduced to their sanitized message and anything
// that is not a domain or validation error becomes "internal error".
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *dugout.PersistenceError
	if errors.As(err, &pe) {
		return pe.Message()
	}
	var te *TransactionError
	if errors.As(err, &te) {
		return "failed to persist changes"
	}
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return strings.TrimPrefix(err.Error(), "dugout: ")
		}
	}
	return "internal error"
}
