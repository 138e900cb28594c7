package dugout

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OperationResult is what a transaction step reports. A step that returns
// Success=false fails the transaction with its Errors (or Message).
type OperationResult struct {
	Success bool
	Errors  []string
	Message string
	Data    interface{}

	// CompensationApplied is set by RunWithCompensation.
	CompensationApplied bool
}

// Succeeded returns a successful OperationResult carrying data.
func Succeeded(data interface{}) OperationResult {
	return OperationResult{Success: true, Data: data}
}

// Failed returns a failed OperationResult with the given errors.
func Failed(errs ...string) OperationResult {
	return OperationResult{Success: false, Errors: errs}
}

// Operation is one step of a transaction. Compensate, when set, reverses the
// effect of a successful Run and is invoked during rollback.
type Operation struct {
	Name       string
	Run        func(ctx context.Context) (OperationResult, error)
	Compensate func(ctx context.Context) error
}

// TxContext is caller-supplied context attached to every log record of a
// transaction. It should carry the match id under "matchId".
type TxContext map[string]string

// TransactionResult reports the outcome of Coordinator.Run.
type TransactionResult struct {
	Success bool

	// Results holds the results of the operations that succeeded, in order.
	Results []OperationResult

	Errors          []string
	RollbackApplied bool

	// FailedIndex is the index of the failing operation, or -1.
	FailedIndex     int
	FailedOperation string

	// Cause is the error returned (or panic recovered) by the failing
	// operation. It is nil when the operation reported Success=false.
	Cause error

	CompensationErrors []error
}

// TransactionMetrics observes transactions.
type TransactionMetrics interface {
	TransactionStarted(name string)
	TransactionFinished(name string, duration time.Duration, success bool)
	TransactionRolledBack(name string, operations int)
}

// OperationWrapper decorates each operation before it runs. It is how
// tracing spans are attached to individual steps.
type OperationWrapper func(txName string, index int, op Operation) Operation

// Coordinator runs ordered operations as a unit. It holds no per-call state,
// so concurrent Run calls are independent.
type Coordinator struct {
	logger   Logger
	metrics  TransactionMetrics
	wrappers []OperationWrapper
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the coordinator logger.
func WithCoordinatorLogger(l Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithTransactionMetrics sets the metrics observer.
func WithTransactionMetrics(m TransactionMetrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithOperationWrapper adds an operation decorator.
func WithOperationWrapper(w OperationWrapper) CoordinatorOption {
	return func(c *Coordinator) {
		c.wrappers = append(c.wrappers, w)
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{logger: noopLogger{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes ops strictly in order. The first operation that returns an
// error, panics, reports Success=false or has no Run function stops the
// transaction; the operations that already succeeded are then rolled back in
// reverse order through their Compensate functions. Operations without one
// are only reported in the rollback log.
func (c *Coordinator) Run(ctx context.Context, name string, ops []Operation, txCtx TxContext) TransactionResult {
	start := time.Now()
	ctx = context.WithValue(ctx, txNameKey{}, name)
	if c.metrics != nil {
		c.metrics.TransactionStarted(name)
	}
	c.logger.Debug("Starting transaction", c.fields(name, txCtx, "operations", len(ops))...)

	results := make([]OperationResult, 0, len(ops))
	// Rollback must see the same decorated operations that ran.
	wrapped := make([]Operation, 0, len(ops))
	for i, op := range ops {
		for _, w := range c.wrappers {
			op = w(name, i, op)
		}
		wrapped = append(wrapped, op)

		msg, ok, cause := c.runStep(ctx, i, op, &results)
		if ok {
			continue
		}

		c.logger.Error("Transaction operation failed",
			c.fields(name, txCtx, "index", i, "operation", op.Name, "error", msg)...)

		compErrs := c.rollback(ctx, name, wrapped[:len(results)], txCtx)
		c.finish(name, start, false)
		return TransactionResult{
			Success:            false,
			Results:            results,
			Errors:             []string{msg},
			RollbackApplied:    true,
			FailedIndex:        i,
			FailedOperation:    op.Name,
			Cause:              cause,
			CompensationErrors: compErrs,
		}
	}

	c.logger.Debug("Transaction completed", c.fields(name, txCtx, "operations", len(results))...)
	c.finish(name, start, true)
	return TransactionResult{Success: true, Results: results, FailedIndex: -1}
}

// runStep runs one operation. On failure it returns the transaction error
// message and, for exceptions, the underlying error.
func (c *Coordinator) runStep(ctx context.Context, i int, op Operation, results *[]OperationResult) (string, bool, error) {
	if op.Run == nil {
		err := fmt.Errorf("%w: Operation at index %d is undefined", ErrUndefinedOperation, i)
		return fmt.Sprintf("Operation at index %d is undefined", i), false, err
	}

	res, err := invoke(ctx, op)
	if err != nil {
		return fmt.Sprintf("Transaction exception at operation %d: %s", i, err.Error()), false, err
	}
	if !res.Success {
		return fmt.Sprintf("Transaction failed at operation %d: %s", i, failureText(res)), false, nil
	}

	*results = append(*results, res)
	return "", true, nil
}

func invoke(ctx context.Context, op Operation) (res OperationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &OperationPanicError{Operation: op.Name, Value: r}
		}
	}()
	return op.Run(ctx)
}

func failureText(res OperationResult) string {
	if len(res.Errors) > 0 {
		return strings.Join(res.Errors, ", ")
	}
	if res.Message != "" {
		return res.Message
	}
	return "Unknown error"
}

// rollback compensates the succeeded operations, most recent first. It runs
// detached from ctx cancellation so a cancelled caller still gets a
// consistent store.
func (c *Coordinator) rollback(ctx context.Context, name string, done []Operation, txCtx TxContext) []error {
	c.logger.Warn("Rolling back transaction", c.fields(name, txCtx, "operations", len(done))...)
	if c.metrics != nil {
		c.metrics.TransactionRolledBack(name, len(done))
	}

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		op := done[i]
		if op.Compensate == nil {
			continue
		}
		if err := op.Compensate(ctx); err != nil {
			c.logger.Error("Compensation failed",
				c.fields(name, txCtx, "index", i, "operation", op.Name, "error", err)...)
			errs = append(errs, fmt.Errorf("dugout: compensate %q: %w", op.Name, err))
		}
	}
	return errs
}

func (c *Coordinator) finish(name string, start time.Time, success bool) {
	if c.metrics != nil {
		c.metrics.TransactionFinished(name, time.Since(start), success)
	}
}

// RunWithCompensation runs a single operation and, if it reports
// Success=false, runs compensation before returning the original result with
// CompensationApplied set. Errors and panics from op are not intercepted.
func (c *Coordinator) RunWithCompensation(ctx context.Context, name string, op Operation, compensation func(ctx context.Context) error, txCtx TxContext) (OperationResult, error) {
	if op.Run == nil {
		return OperationResult{}, ErrUndefinedOperation
	}

	res, err := op.Run(ctx)
	if err != nil || res.Success {
		return res, err
	}

	c.logger.Warn("Applying compensation", c.fields(name, txCtx, "operation", op.Name, "error", failureText(res))...)
	if compensation != nil {
		if err := compensation(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("Compensation failed", c.fields(name, txCtx, "operation", op.Name, "error", err)...)
			return res, fmt.Errorf("dugout: compensate %q: %w", name, err)
		}
	}
	res.CompensationApplied = true
	return res, nil
}

func (c *Coordinator) fields(name string, txCtx TxContext, kv ...interface{}) []interface{} {
	out := make([]interface{}, 0, 2+len(kv)+2*len(txCtx))
	out = append(out, "transaction", name)
	out = append(out, kv...)
	for k, v := range txCtx {
		out = append(out, k, v)
	}
	return out
}

type txNameKey struct{}

// TransactionNameFromContext returns the name of the transaction running the
// current operation, or "" outside a transaction.
func TransactionNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(txNameKey{}).(string)
	return name
}

// OperationPanicError reports a panic recovered from an operation.
type OperationPanicError struct {
	Operation string
	Value     interface{}
}

func (e *OperationPanicError) Error() string {
	return fmt.Sprint(e.Value)
}
