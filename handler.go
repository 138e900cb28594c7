package dugout

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CommandHandler handles one command type.
type CommandHandler interface {
	CommandType() string
	Handle(ctx context.Context, cmd Command) (CommandResult, error)
}

type funcHandler struct {
	cmdType string
	fn      CommandHandlerFunc
}

func (h funcHandler) CommandType() string { return h.cmdType }

func (h funcHandler) Handle(ctx context.Context, cmd Command) (CommandResult, error) {
	return h.fn(ctx, cmd)
}

// GenericHandler is a type-safe command handler.
type GenericHandler[C Command] struct {
	handler func(ctx context.Context, cmd C) (CommandResult, error)
	cmdType string
}

// NewGenericHandler creates a handler for the command type of C.
func NewGenericHandler[C Command](handler func(ctx context.Context, cmd C) (CommandResult, error)) *GenericHandler[C] {
	var zero C
	return &GenericHandler[C]{handler: handler, cmdType: zero.CommandType()}
}

// CommandType returns the command type this handler processes.
func (h *GenericHandler[C]) CommandType() string {
	return h.cmdType
}

// Handle processes the command with type checking.
func (h *GenericHandler[C]) Handle(ctx context.Context, cmd Command) (CommandResult, error) {
	typed, ok := cmd.(C)
	if !ok {
		err := fmt.Errorf("dugout: expected command type %T, got %T", *new(C), cmd)
		return NewErrorResult(err), err
	}
	return h.handler(ctx, typed)
}

// HandlerRegistry maps command types to handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewHandlerRegistry creates a new HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]CommandHandler)}
}

// Register adds or replaces the handler for its command type.
func (r *HandlerRegistry) Register(handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.CommandType()] = handler
}

// Get returns the handler for a command type, or nil.
func (r *HandlerRegistry) Get(cmdType string) CommandHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[cmdType]
}

// Has returns true if a handler is registered for the command type.
func (r *HandlerRegistry) Has(cmdType string) bool {
	return r.Get(cmdType) != nil
}

// Count returns the number of registered handlers.
func (r *HandlerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// CommandTypes returns the registered command types, sorted.
func (r *HandlerRegistry) CommandTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Register is a convenience for registering a typed handler on a bus.
func Register[C Command](bus *CommandBus, handler func(ctx context.Context, cmd C) (CommandResult, error)) {
	bus.Register(NewGenericHandler(handler))
}
