package dugout

import (
	"context"
	"sync"
	"sync/atomic"
)

// MiddlewareFunc is the signature every stage of the dispatch pipeline has.
type MiddlewareFunc func(ctx context.Context, cmd Command) (CommandResult, error)

// Middleware wraps the next stage of the pipeline.
type Middleware func(next MiddlewareFunc) MiddlewareFunc

// CommandBus routes commands to handlers through a middleware pipeline.
type CommandBus struct {
	registry   *HandlerRegistry
	middleware []Middleware
	closed     atomic.Bool
	mu         sync.RWMutex
}

// CommandBusOption configures a CommandBus.
type CommandBusOption func(*CommandBus)

// WithMiddleware adds middleware to the command bus.
func WithMiddleware(middleware ...Middleware) CommandBusOption {
	return func(b *CommandBus) {
		b.middleware = append(b.middleware, middleware...)
	}
}

// NewCommandBus creates a new CommandBus.
func NewCommandBus(opts ...CommandBusOption) *CommandBus {
	bus := &CommandBus{registry: NewHandlerRegistry()}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Register adds a handler to the command bus.
func (b *CommandBus) Register(handler CommandHandler) {
	b.registry.Register(handler)
}

// RegisterFunc registers a handler function for a command type.
func (b *CommandBus) RegisterFunc(cmdType string, fn CommandHandlerFunc) {
	b.Register(funcHandler{cmdType: cmdType, fn: fn})
}

// Use appends middleware. Middleware runs in the order it was added.
func (b *CommandBus) Use(middleware ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware...)
}

// Dispatch sends a command through the middleware pipeline to its handler.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) (CommandResult, error) {
	if b.closed.Load() {
		return NewErrorResult(ErrCommandBusClosed), ErrCommandBusClosed
	}
	if cmd == nil {
		return NewErrorResult(ErrNilCommand), ErrNilCommand
	}

	handler := b.registry.Get(cmd.CommandType())
	if handler == nil {
		err := NewHandlerNotFoundError(cmd.CommandType())
		return NewErrorResult(err), err
	}

	b.mu.RLock()
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	chain := MiddlewareFunc(handler.Handle)
	for i := len(middleware) - 1; i >= 0; i-- {
		chain = middleware[i](chain)
	}
	return chain(ctx, cmd)
}

// HasHandler returns true if a handler is registered for the command type.
func (b *CommandBus) HasHandler(cmdType string) bool {
	return b.registry.Has(cmdType)
}

// CommandTypes returns the registered command types.
func (b *CommandBus) CommandTypes() []string {
	return b.registry.CommandTypes()
}

// Close stops the bus from accepting further commands.
func (b *CommandBus) Close() error {
	b.closed.Store(true)
	return nil
}

// IsClosed returns true if the command bus has been closed.
func (b *CommandBus) IsClosed() bool {
	return b.closed.Load()
}
