// Package tracing provides OpenTelemetry integration for dugout.
//
// Spans are produced for dispatched commands, for each step of a
// coordinator transaction and its compensation, and for event log and
// snapshot store calls:
//
//	tp, _ := tracing.NewStdoutTracerProvider(os.Stderr)
//	tracer := tracing.NewTracer(tracing.WithTracerProvider(tp))
//
//	bus.Use(tracing.CommandMiddleware(tracer))
//	coord := dugout.NewCoordinator(dugout.WithOperationWrapper(tracing.TraceOperations(tracer)))
//	adapter := tracing.NewStoreMiddleware(sqliteStore, tracer)
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

const (
	// TracerName is the name of the dugout tracer.
	TracerName = "github.com/AshkanYarmoradi/go-dugout"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "dugout"
)

// Tracer wraps an OpenTelemetry tracer for dugout operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewStdoutTracerProvider returns a provider that writes finished spans to w
// as indented JSON. The caller must Shutdown it to flush.
func NewStdoutTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("dugout/tracing: failed to create exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)), nil
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// =============================================================================
// Command Middleware
// =============================================================================

// CommandMiddleware creates middleware that traces command execution.
func CommandMiddleware(tracer *Tracer) dugout.Middleware {
	return func(next dugout.MiddlewareFunc) dugout.MiddlewareFunc {
		return func(ctx context.Context, cmd dugout.Command) (dugout.CommandResult, error) {
			ctx, span := tracer.StartSpan(ctx, "command."+cmd.CommandType(),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			attrs := []attribute.KeyValue{
				attribute.String("dugout.service", tracer.serviceName),
				attribute.String("dugout.command.type", cmd.CommandType()),
			}
			if aggCmd, ok := cmd.(dugout.AggregateCommand); ok {
				attrs = append(attrs, attribute.String("dugout.match_id", aggCmd.AggregateID()))
			}
			if id := dugout.CorrelationIDFromContext(ctx); id != "" {
				attrs = append(attrs, attribute.String("dugout.correlation_id", id))
			}
			span.SetAttributes(attrs...)

			result, err := next(ctx, cmd)

			switch {
			case err != nil:
				finish(span, err)
			case !result.IsSuccess():
				finish(span, result.Error)
			default:
				span.SetStatus(codes.Ok, "")
				span.SetAttributes(
					attribute.String("dugout.result.aggregate_id", result.AggregateID),
					attribute.Int64("dugout.result.version", result.Version),
				)
			}
			return result, err
		}
	}
}

// =============================================================================
// Transaction operations
// =============================================================================

// TraceOperations returns a coordinator OperationWrapper that runs every
// transaction step, and its compensation, in its own span.
func TraceOperations(tracer *Tracer) dugout.OperationWrapper {
	return func(txName string, index int, op dugout.Operation) dugout.Operation {
		attrs := []attribute.KeyValue{
			attribute.String("dugout.service", tracer.serviceName),
			attribute.String("dugout.transaction", txName),
			attribute.String("dugout.operation", op.Name),
			attribute.Int("dugout.operation.index", index),
		}

		wrapped := op
		if op.Run != nil {
			wrapped.Run = func(ctx context.Context) (dugout.OperationResult, error) {
				ctx, span := tracer.StartSpan(ctx, "transaction.step", trace.WithAttributes(attrs...))
				defer span.End()

				res, err := op.Run(ctx)
				switch {
				case err != nil:
					finish(span, err)
				case !res.Success:
					span.SetStatus(codes.Error, "operation reported failure")
				default:
					span.SetStatus(codes.Ok, "")
				}
				return res, err
			}
		}
		if op.Compensate != nil {
			wrapped.Compensate = func(ctx context.Context) error {
				ctx, span := tracer.StartSpan(ctx, "transaction.compensate", trace.WithAttributes(attrs...))
				defer span.End()

				err := op.Compensate(ctx)
				finish(span, err)
				return err
			}
		}
		return wrapped
	}
}

// =============================================================================
// Store Middleware
// =============================================================================

// StoreMiddleware wraps an adapters.Store with tracing.
type StoreMiddleware struct {
	adapters.Store
	tracer *Tracer
}

var _ adapters.Store = (*StoreMiddleware)(nil)

// NewStoreMiddleware wraps a store with tracing.
func NewStoreMiddleware(store adapters.Store, tracer *Tracer) *StoreMiddleware {
	return &StoreMiddleware{Store: store, tracer: tracer}
}

func (m *StoreMiddleware) start(ctx context.Context, name, streamID string) (context.Context, trace.Span) {
	ctx, span := m.tracer.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("dugout.service", m.tracer.serviceName),
		attribute.String("dugout.stream_id", streamID),
	)
	return ctx, span
}

// Append stores events with tracing.
func (m *StoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.start(ctx, "eventstore.append", streamID)
	defer span.End()

	eventTypes := make([]string, len(events))
	for i, e := range events {
		eventTypes[i] = e.Type
	}
	span.SetAttributes(
		attribute.Int64("dugout.expected_version", expectedVersion),
		attribute.StringSlice("dugout.events.types", eventTypes),
	)

	stored, err := m.Store.Append(ctx, streamID, events, expectedVersion)
	if err == nil && len(stored) > 0 {
		last := stored[len(stored)-1]
		span.SetAttributes(
			attribute.Int64("dugout.stored.version", last.Version),
			attribute.Int64("dugout.stored.global_position", int64(last.GlobalPosition)),
		)
	}
	finish(span, err)
	return stored, err
}

// Load retrieves events with tracing.
func (m *StoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.start(ctx, "eventstore.load", streamID)
	defer span.End()

	events, err := m.Store.Load(ctx, streamID, fromVersion)
	if err == nil {
		span.SetAttributes(attribute.Int("dugout.events.loaded", len(events)))
	}
	finish(span, err)
	return events, err
}

// SaveSnapshot stores aggregate state with tracing.
func (m *StoreMiddleware) SaveSnapshot(ctx context.Context, streamID string, expectedVersion, version int64, data []byte) error {
	ctx, span := m.start(ctx, "snapshot.save", streamID)
	defer span.End()

	span.SetAttributes(
		attribute.Int64("dugout.expected_version", expectedVersion),
		attribute.Int64("dugout.version", version),
		attribute.Int("dugout.snapshot.bytes", len(data)),
	)
	err := m.Store.SaveSnapshot(ctx, streamID, expectedVersion, version, data)
	finish(span, err)
	return err
}

// LoadSnapshot loads aggregate state with tracing.
func (m *StoreMiddleware) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	ctx, span := m.start(ctx, "snapshot.load", streamID)
	defer span.End()

	rec, err := m.Store.LoadSnapshot(ctx, streamID)
	span.SetAttributes(attribute.Bool("dugout.snapshot.found", rec != nil))
	finish(span, err)
	return rec, err
}

// DeleteSnapshot removes aggregate state with tracing.
func (m *StoreMiddleware) DeleteSnapshot(ctx context.Context, streamID string) error {
	ctx, span := m.start(ctx, "snapshot.delete", streamID)
	defer span.End()

	err := m.Store.DeleteSnapshot(ctx, streamID)
	finish(span, err)
	return err
}

// =============================================================================
// Span Helpers
// =============================================================================

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	finish(trace.SpanFromContext(ctx), err)
}
