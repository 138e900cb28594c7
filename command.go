package dugout

import (
	"context"
	"fmt"
	"strings"
)

// Command represents an operator's intent to change a match.
type Command interface {
	// CommandType returns the type identifier (e.g., "RecordAtBat").
	CommandType() string

	// Validate checks the command's shape before any aggregate is touched.
	Validate() error
}

// AggregateCommand is a command that targets a specific aggregate.
type AggregateCommand interface {
	Command
	AggregateID() string
}

// IdempotentCommand is a command that carries a caller-supplied
// deduplication key.
type IdempotentCommand interface {
	Command
	IdempotencyKey() string
}

// CommandBase carries the ids most commands share. Embed it in command types.
type CommandBase struct {
	CommandID     string `json:"commandId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	CausationID   string `json:"causationId,omitempty"`
	RequestKey    string `json:"requestKey,omitempty"`
}

// GetCommandID returns the command ID.
func (c CommandBase) GetCommandID() string {
	return c.CommandID
}

// GetCorrelationID returns the correlation ID.
func (c CommandBase) GetCorrelationID() string {
	return c.CorrelationID
}

// GetCausationID returns the causation ID.
func (c CommandBase) GetCausationID() string {
	return c.CausationID
}

// GetRequestKey returns the caller-supplied idempotency key.
func (c CommandBase) GetRequestKey() string {
	return c.RequestKey
}

// CommandResult represents the result of command execution.
type CommandResult struct {
	Success     bool
	AggregateID string
	Version     int64
	Data        interface{}
	Error       error
}

// NewSuccessResult creates a successful CommandResult.
func NewSuccessResult(aggregateID string, version int64) CommandResult {
	return CommandResult{Success: true, AggregateID: aggregateID, Version: version}
}

// NewSuccessResultWithData creates a successful CommandResult with data.
func NewSuccessResultWithData(aggregateID string, version int64, data interface{}) CommandResult {
	return CommandResult{Success: true, AggregateID: aggregateID, Version: version, Data: data}
}

// NewErrorResult creates a failed CommandResult.
func NewErrorResult(err error) CommandResult {
	return CommandResult{Success: false, Error: err}
}

// IsSuccess returns true if the command executed successfully.
func (r CommandResult) IsSuccess() bool {
	return r.Success && r.Error == nil
}

// IsError returns true if the command failed.
func (r CommandResult) IsError() bool {
	return !r.IsSuccess()
}

// CommandHandlerFunc adapts a function to the handler signature.
type CommandHandlerFunc func(ctx context.Context, cmd Command) (CommandResult, error)

// ValidationError represents a field-scoped validation failure.
type ValidationError struct {
	CommandType string
	Field       string
	Message     string
	Cause       error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(cmdType, field, message string) *ValidationError {
	return &ValidationError{CommandType: cmdType, Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("dugout: validation failed for %q field %q: %s", e.CommandType, e.Field, e.Message)
	}
	return fmt.Sprintf("dugout: validation failed for %q: %s", e.CommandType, e.Message)
}

// Is reports true for ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// MultiValidationError collects every validation problem of one input so
// callers see all of them at once.
type MultiValidationError struct {
	CommandType string
	Errors      []*ValidationError
}

// NewMultiValidationError creates a new MultiValidationError.
func NewMultiValidationError(cmdType string) *MultiValidationError {
	return &MultiValidationError{CommandType: cmdType}
}

func (e *MultiValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		if ve.Field != "" {
			msgs[i] = ve.Field + ": " + ve.Message
		} else {
			msgs[i] = ve.Message
		}
	}
	return fmt.Sprintf("dugout: validation failed for %q: %s", e.CommandType, strings.Join(msgs, "; "))
}

// Is reports true for ErrValidationFailed.
func (e *MultiValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Add adds a validation error.
func (e *MultiValidationError) Add(err *ValidationError) {
	e.Errors = append(e.Errors, err)
}

// AddField adds a validation error for a field.
func (e *MultiValidationError) AddField(field, message string) {
	e.Add(&ValidationError{CommandType: e.CommandType, Field: field, Message: message})
}

// HasErrors returns true if there are any validation errors.
func (e *MultiValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the problems keyed by field. Problems without a field are
// keyed by "".
func (e *MultiValidationError) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Errors))
	for _, ve := range e.Errors {
		out[ve.Field] = append(out[ve.Field], ve.Message)
	}
	return out
}

// ErrOrNil returns e when it holds errors, nil otherwise.
func (e *MultiValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
