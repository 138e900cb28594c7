package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/adapters/memory"
)

type recordAtBat struct {
	dugout.CommandBase
	matchID string
}

func (c recordAtBat) AggregateID() string { return c.matchID }
func (recordAtBat) CommandType() string   { return "RecordAtBat" }
func (recordAtBat) Validate() error       { return nil }

func setupTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return NewTracer(WithTracerProvider(tp), WithServiceName("scorebook")), exporter
}

func attr(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewTracer(t *testing.T) {
	tracer := NewTracer()
	assert.Equal(t, DefaultServiceName, tracer.ServiceName())
	assert.NotNil(t, tracer.Tracer())
}

func TestCommandMiddleware(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	bus := dugout.NewCommandBus(dugout.WithMiddleware(CommandMiddleware(tracer)))
	bus.RegisterFunc("RecordAtBat", func(ctx context.Context, cmd dugout.Command) (dugout.CommandResult, error) {
		return dugout.NewSuccessResult(cmd.(recordAtBat).matchID, 3), nil
	})

	ctx := dugout.WithCorrelationID(context.Background(), "corr-1")
	_, err := bus.Dispatch(ctx, recordAtBat{matchID: "m1"})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "command.RecordAtBat", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	v, ok := attr(spans[0], "dugout.match_id")
	require.True(t, ok)
	assert.Equal(t, "m1", v.AsString())
	v, _ = attr(spans[0], "dugout.correlation_id")
	assert.Equal(t, "corr-1", v.AsString())
	v, _ = attr(spans[0], "dugout.result.version")
	assert.Equal(t, int64(3), v.AsInt64())
}

func TestCommandMiddleware_Error(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	bus := dugout.NewCommandBus(dugout.WithMiddleware(CommandMiddleware(tracer)))
	boom := errors.New("boom")
	bus.RegisterFunc("RecordAtBat", func(context.Context, dugout.Command) (dugout.CommandResult, error) {
		return dugout.NewErrorResult(boom), boom
	})

	_, err := bus.Dispatch(context.Background(), recordAtBat{matchID: "m1"})
	require.ErrorIs(t, err, boom)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "boom", spans[0].Status.Description)
}

func TestTraceOperations(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	coord := dugout.NewCoordinator(dugout.WithOperationWrapper(TraceOperations(tracer)))

	compensated := false
	ops := []dugout.Operation{
		{
			Name: "save MatchState-m1",
			Run: func(context.Context) (dugout.OperationResult, error) {
				return dugout.Succeeded(nil), nil
			},
			Compensate: func(context.Context) error {
				compensated = true
				return nil
			},
		},
		{
			Name: "append MatchState-m1",
			Run: func(context.Context) (dugout.OperationResult, error) {
				return dugout.OperationResult{}, errors.New("disk full")
			},
		},
	}

	res := coord.Run(context.Background(), "record-at-bat", ops, dugout.TxContext{"matchId": "m1"})
	require.False(t, res.Success)
	assert.True(t, compensated)
	assert.EqualError(t, res.Cause, "disk full")

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "transaction.step", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, "transaction.step", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "transaction.compensate", spans[2].Name)

	v, _ := attr(spans[1], "dugout.operation")
	assert.Equal(t, "append MatchState-m1", v.AsString())
	v, _ = attr(spans[1], "dugout.operation.index")
	assert.Equal(t, int64(1), v.AsInt64())
	v, _ = attr(spans[2], "dugout.transaction")
	assert.Equal(t, "record-at-bat", v.AsString())
}

func TestTraceOperations_KeepsUndefinedOperations(t *testing.T) {
	tracer, _ := setupTestTracer(t)
	wrapped := TraceOperations(tracer)("tx", 0, dugout.Operation{Name: "nothing"})
	assert.Nil(t, wrapped.Run)
	assert.Nil(t, wrapped.Compensate)
}

func TestStoreMiddleware(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	store := NewStoreMiddleware(memory.NewAdapter(), tracer)
	ctx := context.Background()

	_, err := store.Append(ctx, "MatchState-m1", []adapters.EventRecord{{Type: "MatchCreated", Data: []byte(`{}`)}}, adapters.NoStream)
	require.NoError(t, err)
	_, err = store.Append(ctx, "MatchState-m1", []adapters.EventRecord{{Type: "MatchCreated", Data: []byte(`{}`)}}, adapters.NoStream)
	require.ErrorIs(t, err, adapters.ErrConcurrencyConflict)
	_, err = store.Load(ctx, "MatchState-m1", 0)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, "MatchState-m1", adapters.NoStream, 1, []byte{1, 2}))
	_, err = store.LoadSnapshot(ctx, "MatchState-m1")
	require.NoError(t, err)
	require.NoError(t, store.DeleteSnapshot(ctx, "MatchState-m1"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 6)
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"eventstore.append", "eventstore.append", "eventstore.load",
		"snapshot.save", "snapshot.load", "snapshot.delete",
	}, names)
	assert.Equal(t, codes.Error, spans[1].Status.Code)

	v, _ := attr(spans[4], "dugout.snapshot.found")
	assert.True(t, v.AsBool())
	v, _ = attr(spans[0], "dugout.stream_id")
	assert.Equal(t, "MatchState-m1", v.AsString())
}

func TestNewStdoutTracerProvider(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewStdoutTracerProvider(&buf)
	require.NoError(t, err)

	tracer := NewTracer(WithTracerProvider(tp))
	_, span := tracer.StartSpan(context.Background(), "match.initialize")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "match.initialize")
}

func TestSpanHelpers(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	ctx, span := tracer.StartSpan(context.Background(), "helpers")
	AddEvent(ctx, "pitch")
	SetError(ctx, errors.New("balk"))
	assert.Equal(t, span, SpanFromContext(ctx))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	require.Len(t, spans[0].Events, 2)
	assert.Equal(t, "pitch", spans[0].Events[0].Name)
}
