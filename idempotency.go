package dugout

import (
	"context"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

type (
	// IdempotencyStore tracks processed commands.
	IdempotencyStore = adapters.IdempotencyStore

	// IdempotencyRecord stores the outcome of a processed command.
	IdempotencyRecord = adapters.IdempotencyRecord
)

// IdempotencyReplayError is returned when a command with a known key failed
// the first time and StoreErrors is enabled.
type IdempotencyReplayError struct {
	Key     string
	Message string
}

func (e *IdempotencyReplayError) Error() string {
	return "dugout: command already processed with key " + e.Key + ": " + e.Message
}

// Is reports true for ErrCommandAlreadyProcessed.
func (e *IdempotencyReplayError) Is(target error) bool {
	return target == ErrCommandAlreadyProcessed
}

// NewIdempotencyRecord creates a record from a command result.
func NewIdempotencyRecord(key, cmdType string, result CommandResult, ttl time.Duration) *IdempotencyRecord {
	now := time.Now()
	record := &IdempotencyRecord{
		Key:         key,
		CommandType: cmdType,
		AggregateID: result.AggregateID,
		Version:     result.Version,
		Success:     result.IsSuccess(),
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
	if result.Error != nil {
		record.Error = result.Error.Error()
	}
	return record
}

// IdempotencyRecordToResult converts a stored record back into a result.
func IdempotencyRecordToResult(r *IdempotencyRecord) CommandResult {
	if r.Success {
		return NewSuccessResult(r.AggregateID, r.Version)
	}
	msg := r.Error
	if msg == "" {
		msg = "unknown error"
	}
	return NewErrorResult(&IdempotencyReplayError{Key: r.Key, Message: msg})
}

// GetIdempotencyKey returns the caller-supplied key of cmd, or "" when it
// has none. Keys are never derived from command content: two identical
// at-bats are two distinct actions.
func GetIdempotencyKey(cmd Command) string {
	var key string
	switch c := cmd.(type) {
	case IdempotentCommand:
		key = c.IdempotencyKey()
	case interface{ GetRequestKey() string }:
		key = c.GetRequestKey()
	}
	if key == "" {
		return ""
	}
	return cmd.CommandType() + ":" + key
}

// IdempotencyConfig configures the idempotency middleware.
type IdempotencyConfig struct {
	Store IdempotencyStore

	// TTL is how long records are kept. Default is 24 hours.
	TTL time.Duration

	// KeyGenerator extracts keys from commands. Default is GetIdempotencyKey.
	KeyGenerator func(Command) string

	// StoreErrors also records failed commands, so replaying one returns
	// the original error instead of running again.
	StoreErrors bool

	Logger Logger
}

// DefaultIdempotencyConfig returns the default configuration for store.
func DefaultIdempotencyConfig(store IdempotencyStore) IdempotencyConfig {
	return IdempotencyConfig{
		Store:        store,
		TTL:          24 * time.Hour,
		KeyGenerator: GetIdempotencyKey,
	}
}

// IdempotencyMiddleware returns the stored result for commands whose key was
// already processed, so a caller retrying after a timeout does not record
// the same action twice. Commands without a key pass straight through.
func IdempotencyMiddleware(config IdempotencyConfig) Middleware {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = GetIdempotencyKey
	}
	if config.Logger == nil {
		config.Logger = noopLogger{}
	}

	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			key := config.KeyGenerator(cmd)
			if key == "" {
				return next(ctx, cmd)
			}

			record, err := config.Store.Get(ctx, key)
			if err != nil {
				config.Logger.Warn("Idempotency lookup failed", "key", key, "error", err)
				return next(ctx, cmd)
			}
			if record != nil && !record.IsExpired() {
				config.Logger.Debug("Replaying processed command", "key", key, "type", cmd.CommandType())
				return IdempotencyRecordToResult(record), nil
			}

			result, cmdErr := next(ctx, cmd)

			if result.IsSuccess() || (config.StoreErrors && cmdErr != nil) {
				if err := config.Store.Store(ctx, NewIdempotencyRecord(key, cmd.CommandType(), result, config.TTL)); err != nil {
					config.Logger.Warn("Idempotency store failed", "key", key, "error", err)
				}
			}
			return result, cmdErr
		}
	}
}
