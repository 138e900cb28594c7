// Package metrics provides Prometheus metrics for dugout.
//
// One Metrics value observes every layer of a scorebook deployment:
//
//	m := metrics.New(metrics.WithMetricsServiceName("scorebook"))
//	m.MustRegister()
//
//	adapter := m.WrapStore(sqliteStore)
//	coord := dugout.NewCoordinator(dugout.WithTransactionMetrics(m))
//	svc := scorebook.NewService(store, scorebook.WithCoordinator(coord), scorebook.WithHistoryMetrics(m))
//	bus.Use(m.CommandMiddleware())
//
// The metrics collected include:
//   - Command execution counts and durations
//   - Event log and snapshot store operations
//   - Transaction outcomes and rollbacks
//   - Recorded, undone and redone scoring actions
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/game"
)

// Default metric labels.
const (
	LabelCommandType = "command_type"
	LabelEventType   = "event_type"
	LabelOperation   = "operation"
	LabelStatus      = "status"
	LabelErrorType   = "error_type"
	LabelTransaction = "transaction"
	LabelAction      = "action"
	LabelDirection   = "direction"
	LabelService     = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation values.
const (
	OperationAppend         = "append"
	OperationLoad           = "load"
	OperationSaveSnapshot   = "save_snapshot"
	OperationLoadSnapshot   = "load_snapshot"
	OperationDeleteSnapshot = "delete_snapshot"
)

var (
	_ dugout.MetricsCollector   = (*Metrics)(nil)
	_ dugout.TransactionMetrics = (*Metrics)(nil)
)

// Metrics holds all Prometheus metrics for dugout.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Command metrics
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec

	// Storage metrics
	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	eventsAppendedTotal    *prometheus.CounterVec

	// Transaction metrics
	transactionsTotal    *prometheus.CounterVec
	transactionDuration  *prometheus.HistogramVec
	transactionsInFlight *prometheus.GaugeVec
	rollbacksTotal       *prometheus.CounterVec

	// History metrics
	actionsTotal       *prometheus.CounterVec
	discardedTotal     *prometheus.CounterVec
	compensationsTotal *prometheus.CounterVec
	compensationEvents *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "dugout",
		serviceName: "unknown",
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initMetrics()
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) initMetrics() {
	m.commandsTotal = m.counter("commands_total", "Total number of commands processed.", LabelCommandType, LabelStatus)
	m.commandDuration = m.histogram("command_duration_seconds", "Duration of command processing in seconds.", LabelCommandType)
	m.commandsInFlight = m.gauge("commands_in_flight", "Number of commands currently being processed.", LabelCommandType)

	m.storeOperationsTotal = m.counter("store_operations_total", "Total number of event log and snapshot operations.", LabelOperation, LabelStatus)
	m.storeOperationDuration = m.histogram("store_operation_duration_seconds", "Duration of event log and snapshot operations in seconds.", LabelOperation)
	m.eventsAppendedTotal = m.counter("events_appended_total", "Total number of events appended to the log.", LabelEventType)

	m.transactionsTotal = m.counter("transactions_total", "Total number of coordinator transactions.", LabelTransaction, LabelStatus)
	m.transactionDuration = m.histogram("transaction_duration_seconds", "Duration of coordinator transactions in seconds.", LabelTransaction)
	m.transactionsInFlight = m.gauge("transactions_in_flight", "Number of transactions currently running.", LabelTransaction)
	m.rollbacksTotal = m.counter("transaction_rollbacks_total", "Total number of operations compensated during rollback.", LabelTransaction)

	m.actionsTotal = m.counter("actions_recorded_total", "Total number of scoring actions recorded.", LabelAction)
	m.discardedTotal = m.counter("redo_entries_discarded_total", "Total number of undone actions dropped by a new action.")
	m.compensationsTotal = m.counter("compensations_total", "Total number of undo and redo steps.", LabelDirection, LabelAction, LabelStatus)
	m.compensationEvents = m.counter("compensation_events_total", "Total number of events written by undo and redo.", LabelDirection)

	m.errorsTotal = m.counter("errors_total", "Total number of errors by type.", LabelErrorType)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsTotal,
		m.commandDuration,
		m.commandsInFlight,
		m.storeOperationsTotal,
		m.storeOperationDuration,
		m.eventsAppendedTotal,
		m.transactionsTotal,
		m.transactionDuration,
		m.transactionsInFlight,
		m.rollbacksTotal,
		m.actionsTotal,
		m.discardedTotal,
		m.compensationsTotal,
		m.compensationEvents,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusError
}

// =============================================================================
// Commands
// =============================================================================

// CommandMiddleware returns middleware that records command metrics,
// including the number in flight.
func (m *Metrics) CommandMiddleware() dugout.Middleware {
	return func(next dugout.MiddlewareFunc) dugout.MiddlewareFunc {
		return func(ctx context.Context, cmd dugout.Command) (dugout.CommandResult, error) {
			cmdType := cmd.CommandType()

			m.commandsInFlight.WithLabelValues(m.serviceName, cmdType).Inc()
			defer m.commandsInFlight.WithLabelValues(m.serviceName, cmdType).Dec()

			start := time.Now()
			result, err := next(ctx, cmd)

			recordErr := err
			if recordErr == nil {
				recordErr = result.Error
			}
			m.RecordCommand(cmdType, time.Since(start), err == nil && result.IsSuccess(), recordErr)
			return result, err
		}
	}
}

// RecordCommand implements dugout.MetricsCollector.
func (m *Metrics) RecordCommand(cmdType string, duration time.Duration, success bool, err error) {
	m.commandDuration.WithLabelValues(m.serviceName, cmdType).Observe(duration.Seconds())
	m.commandsTotal.WithLabelValues(m.serviceName, cmdType, status(success)).Inc()
	if !success {
		m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
	}
}

// errorTypeName maps err to a label using the sentinel errors it matches.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, dugout.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, dugout.ErrNotFound):
		return "not_found"
	case errors.Is(err, dugout.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, dugout.ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, dugout.ErrCommandAlreadyProcessed):
		return "command_already_processed"
	case errors.Is(err, dugout.ErrHandlerPanicked):
		return "handler_panicked"
	case errors.Is(err, dugout.ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, dugout.ErrSerializationFailed):
		return "serialization_failed"
	case errors.Is(err, dugout.ErrNilCommand):
		return "nil_command"
	case errors.Is(err, game.ErrMatchCompleted), errors.Is(err, game.ErrMatchNotStarted):
		return "match_status"
	case errors.Is(err, game.ErrHalfInningOver):
		return "half_inning_over"
	case errors.Is(err, game.ErrPlayerUnavailable), errors.Is(err, game.ErrReentryNotAllowed):
		return "substitution_rejected"
	case errors.Is(err, game.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, adapters.ErrAdapterClosed):
		return "adapter_closed"
	default:
		return "unknown"
	}
}

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// =============================================================================
// Transactions
// =============================================================================

// TransactionStarted implements dugout.TransactionMetrics.
func (m *Metrics) TransactionStarted(name string) {
	m.transactionsInFlight.WithLabelValues(m.serviceName, name).Inc()
}

// TransactionFinished implements dugout.TransactionMetrics.
func (m *Metrics) TransactionFinished(name string, duration time.Duration, success bool) {
	m.transactionsInFlight.WithLabelValues(m.serviceName, name).Dec()
	m.transactionDuration.WithLabelValues(m.serviceName, name).Observe(duration.Seconds())
	m.transactionsTotal.WithLabelValues(m.serviceName, name, status(success)).Inc()
}

// TransactionRolledBack implements dugout.TransactionMetrics.
func (m *Metrics) TransactionRolledBack(name string, operations int) {
	m.rollbacksTotal.WithLabelValues(m.serviceName, name).Add(float64(operations))
}

// =============================================================================
// Action history
// =============================================================================

// ActionRecorded implements scorebook.HistoryMetrics.
func (m *Metrics) ActionRecorded(action string, discarded int) {
	m.actionsTotal.WithLabelValues(m.serviceName, action).Inc()
	if discarded > 0 {
		m.discardedTotal.WithLabelValues(m.serviceName).Add(float64(discarded))
	}
}

// ActionCompensated implements scorebook.HistoryMetrics.
func (m *Metrics) ActionCompensated(direction, action string, events int, success bool) {
	m.compensationsTotal.WithLabelValues(m.serviceName, direction, action, status(success)).Inc()
	if success {
		m.compensationEvents.WithLabelValues(m.serviceName, direction).Add(float64(events))
	}
}

// =============================================================================
// Storage
// =============================================================================

// StoreMiddleware wraps an adapters.Store with metrics.
type StoreMiddleware struct {
	adapters.Store
	metrics *Metrics
}

var _ adapters.Store = (*StoreMiddleware)(nil)

// WrapStore wraps a store with metrics collection.
func (m *Metrics) WrapStore(store adapters.Store) *StoreMiddleware {
	return &StoreMiddleware{Store: store, metrics: m}
}

func (sm *StoreMiddleware) observe(op string, start time.Time, err error) {
	m := sm.metrics
	m.storeOperationDuration.WithLabelValues(m.serviceName, op).Observe(time.Since(start).Seconds())
	m.storeOperationsTotal.WithLabelValues(m.serviceName, op, status(err == nil)).Inc()
	if err != nil {
		m.errorsTotal.WithLabelValues(m.serviceName, op+"_error").Inc()
	}
}

// Append stores events with metrics.
func (sm *StoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := sm.Store.Append(ctx, streamID, events, expectedVersion)
	sm.observe(OperationAppend, start, err)
	if err == nil {
		for _, e := range events {
			sm.metrics.eventsAppendedTotal.WithLabelValues(sm.metrics.serviceName, e.Type).Inc()
		}
	}
	return stored, err
}

// Load retrieves events with metrics.
func (sm *StoreMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := sm.Store.Load(ctx, streamID, fromVersion)
	sm.observe(OperationLoad, start, err)
	return events, err
}

// SaveSnapshot stores aggregate state with metrics.
func (sm *StoreMiddleware) SaveSnapshot(ctx context.Context, streamID string, expectedVersion, version int64, data []byte) error {
	start := time.Now()
	err := sm.Store.SaveSnapshot(ctx, streamID, expectedVersion, version, data)
	sm.observe(OperationSaveSnapshot, start, err)
	return err
}

// LoadSnapshot loads aggregate state with metrics.
func (sm *StoreMiddleware) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	start := time.Now()
	rec, err := sm.Store.LoadSnapshot(ctx, streamID)
	sm.observe(OperationLoadSnapshot, start, err)
	return rec, err
}

// DeleteSnapshot removes aggregate state with metrics.
func (sm *StoreMiddleware) DeleteSnapshot(ctx context.Context, streamID string) error {
	start := time.Now()
	err := sm.Store.DeleteSnapshot(ctx, streamID)
	sm.observe(OperationDeleteSnapshot, start, err)
	return err
}

// =============================================================================
// Getters for testing
// =============================================================================

// CommandsTotal returns the commands counter.
func (m *Metrics) CommandsTotal() *prometheus.CounterVec {
	return m.commandsTotal
}

// StoreOperationsTotal returns the store operations counter.
func (m *Metrics) StoreOperationsTotal() *prometheus.CounterVec {
	return m.storeOperationsTotal
}

// EventsAppendedTotal returns the events appended counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec {
	return m.eventsAppendedTotal
}

// TransactionsTotal returns the transactions counter.
func (m *Metrics) TransactionsTotal() *prometheus.CounterVec {
	return m.transactionsTotal
}

// RollbacksTotal returns the rollback counter.
func (m *Metrics) RollbacksTotal() *prometheus.CounterVec {
	return m.rollbacksTotal
}

// ActionsTotal returns the recorded actions counter.
func (m *Metrics) ActionsTotal() *prometheus.CounterVec {
	return m.actionsTotal
}

// CompensationsTotal returns the undo and redo counter.
func (m *Metrics) CompensationsTotal() *prometheus.CounterVec {
	return m.compensationsTotal
}

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return m.errorsTotal
}
