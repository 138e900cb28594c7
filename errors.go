package dugout

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

// Sentinel errors. Use errors.Is() to check for these.
var (
	// ErrStreamNotFound indicates the requested stream does not exist.
	ErrStreamNotFound = adapters.ErrStreamNotFound

	// ErrConcurrencyConflict indicates an optimistic version check failed.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrEmptyStreamID indicates an empty stream ID was provided.
	ErrEmptyStreamID = adapters.ErrEmptyStreamID

	// ErrNoEvents indicates no events were provided for append.
	ErrNoEvents = adapters.ErrNoEvents

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = adapters.ErrAdapterClosed

	// ErrNotFound indicates an aggregate has no stored state.
	ErrNotFound = errors.New("dugout: not found")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = errors.New("dugout: nil aggregate")

	// ErrNotSnapshotter indicates an aggregate cannot be stored as a snapshot.
	ErrNotSnapshotter = errors.New("dugout: aggregate does not implement Snapshotter")

	// ErrSerializationFailed indicates event serialization or deserialization failed.
	ErrSerializationFailed = errors.New("dugout: serialization failed")

	// ErrPersistenceFailed matches every PersistenceError.
	ErrPersistenceFailed = errors.New("dugout: persistence failed")

	// ErrUndefinedOperation indicates a transaction step has no Run function.
	ErrUndefinedOperation = errors.New("dugout: undefined operation")

	// ErrHandlerNotFound indicates no handler is registered for a command type.
	ErrHandlerNotFound = errors.New("dugout: handler not found")

	// ErrValidationFailed indicates command validation failed.
	ErrValidationFailed = errors.New("dugout: validation failed")

	// ErrCommandAlreadyProcessed indicates an idempotent command was already processed.
	ErrCommandAlreadyProcessed = errors.New("dugout: command already processed")

	// ErrNilCommand indicates a nil command was passed.
	ErrNilCommand = errors.New("dugout: nil command")

	// ErrHandlerPanicked indicates a handler panicked during execution.
	ErrHandlerPanicked = errors.New("dugout: handler panicked")

	// ErrCommandBusClosed indicates the command bus has been closed.
	ErrCommandBusClosed = errors.New("dugout: command bus closed")
)

// NotFoundError reports an aggregate with no stored state.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dugout: %s %q not found", e.Kind, e.ID)
}

// Is reports true for ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceKind classifies infrastructure failures.
type PersistenceKind string

// Persistence failure kinds.
const (
	PersistenceAggregateLoad PersistenceKind = "aggregate_load"
	PersistenceAggregateSave PersistenceKind = "aggregate_save"
	PersistenceEventLog      PersistenceKind = "event_log"
	PersistenceHistory       PersistenceKind = "history"
)

var sanitizedMessages = map[PersistenceKind]string{
	PersistenceAggregateLoad: "failed to load state",
	PersistenceAggregateSave: "failed to save state",
	PersistenceEventLog:      "failed to store events",
	PersistenceHistory:       "failed to save action history",
}

// PersistenceError wraps a repository, event log or history failure.
// Error() carries the technical detail for logs; Message() is the text
// that may be shown to callers.
type PersistenceError struct {
	Kind     PersistenceKind
	StreamID string
	Cause    error
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(kind PersistenceKind, streamID string, cause error) *PersistenceError {
	return &PersistenceError{Kind: kind, StreamID: streamID, Cause: cause}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("dugout: %s (%s %s): %v", e.Message(), e.Kind, e.StreamID, e.Cause)
}

// Message returns the sanitized description of the failure.
func (e *PersistenceError) Message() string {
	if msg, ok := sanitizedMessages[e.Kind]; ok {
		return msg
	}
	return "failed to persist changes"
}

// Is reports true for ErrPersistenceFailed.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailed
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// SerializationError provides detail about a serialization failure.
type SerializationError struct {
	EventType string
	Operation string
	Cause     error
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{EventType: eventType, Operation: operation, Cause: cause}
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("dugout: failed to %s event type %q: %v", e.Operation, e.EventType, e.Cause)
}

// Is reports true for ErrSerializationFailed.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// HandlerNotFoundError reports a command type without a handler.
type HandlerNotFoundError struct {
	CommandType string
}

// NewHandlerNotFoundError creates a new HandlerNotFoundError.
func NewHandlerNotFoundError(cmdType string) *HandlerNotFoundError {
	return &HandlerNotFoundError{CommandType: cmdType}
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("dugout: no handler registered for command type %q", e.CommandType)
}

// Is reports true for ErrHandlerNotFound.
func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}

// PanicError reports a recovered panic in a command handler.
type PanicError struct {
	CommandType string
	Value       interface{}
	Stack       string
}

// NewPanicError creates a new PanicError.
func NewPanicError(cmdType string, value interface{}, stack string) *PanicError {
	return &PanicError{CommandType: cmdType, Value: value, Stack: stack}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dugout: handler panicked while processing %q: %v", e.CommandType, e.Value)
}

// Is reports true for ErrHandlerPanicked.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanicked
}
