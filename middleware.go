package dugout

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// ValidationMiddleware rejects commands whose Validate fails before they
// reach the handler.
func ValidationMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if err := cmd.Validate(); err != nil {
				return NewErrorResult(err), err
			}
			return next(ctx, cmd)
		}
	}
}

// RecoveryMiddleware turns handler panics into *PanicError.
func RecoveryMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (result CommandResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					panicErr := NewPanicError(cmd.CommandType(), r, string(debug.Stack()))
					result = NewErrorResult(panicErr)
					err = panicErr
				}
			}()
			return next(ctx, cmd)
		}
	}
}

// LoggingMiddleware logs every dispatched command.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Middleware returns the middleware function.
func (m *LoggingMiddleware) Middleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			start := time.Now()
			m.logger.Debug("Dispatching command", "type", cmd.CommandType(), "correlationId", CorrelationIDFromContext(ctx))

			result, err := next(ctx, cmd)
			duration := time.Since(start)

			switch {
			case err != nil:
				m.logger.Error("Command failed", "type", cmd.CommandType(), "duration", duration, "error", err)
			case result.IsError():
				m.logger.Warn("Command returned error result", "type", cmd.CommandType(), "duration", duration, "error", result.Error)
			default:
				m.logger.Info("Command completed", "type", cmd.CommandType(), "duration", duration,
					"aggregateId", result.AggregateID, "version", result.Version)
			}
			return result, err
		}
	}
}

// MetricsCollector records command executions.
type MetricsCollector interface {
	RecordCommand(cmdType string, duration time.Duration, success bool, err error)
}

// MetricsMiddleware reports each dispatch to collector.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			start := time.Now()
			result, err := next(ctx, cmd)

			recordErr := err
			if recordErr == nil {
				recordErr = result.Error
			}
			collector.RecordCommand(cmd.CommandType(), time.Since(start), err == nil && result.IsSuccess(), recordErr)
			return result, err
		}
	}
}

type correlationIDKey struct{}

// CorrelationIDFromContext returns the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// WithCorrelationID returns a context carrying the correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDMiddleware makes sure every command runs with a correlation
// ID: the one already in ctx, the command's own, or a new UUID.
func CorrelationIDMiddleware(generator func() string) Middleware {
	if generator == nil {
		generator = uuid.NewString
	}
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if CorrelationIDFromContext(ctx) != "" {
				return next(ctx, cmd)
			}

			var id string
			if c, ok := cmd.(interface{ GetCorrelationID() string }); ok {
				id = c.GetCorrelationID()
			}
			if id == "" {
				id = generator()
			}
			return next(WithCorrelationID(ctx, id), cmd)
		}
	}
}

type causationIDKey struct{}

// CausationIDFromContext returns the causation ID from context.
func CausationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(causationIDKey{}).(string)
	return id
}

// WithCausationID returns a context carrying the causation ID.
func WithCausationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, causationIDKey{}, id)
}

// CausationIDMiddleware propagates the command's causation ID, falling back
// to its command ID, so stored events point at what caused them.
func CausationIDMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if CausationIDFromContext(ctx) != "" {
				return next(ctx, cmd)
			}

			var id string
			if c, ok := cmd.(interface{ GetCausationID() string }); ok {
				id = c.GetCausationID()
			}
			if id == "" {
				if c, ok := cmd.(interface{ GetCommandID() string }); ok {
					id = c.GetCommandID()
				}
			}
			if id != "" {
				ctx = WithCausationID(ctx, id)
			}
			return next(ctx, cmd)
		}
	}
}
