package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/adapters/memory"
	"github.com/AshkanYarmoradi/go-dugout/adapters/postgres"
	"github.com/AshkanYarmoradi/go-dugout/adapters/sqlite"
	"github.com/AshkanYarmoradi/go-dugout/cli/config"
)

// pingTimeout bounds the connection check made when a store is opened.
const pingTimeout = 5 * time.Second

// ErrNotMigrated is returned when a postgres schema has not been created.
var ErrNotMigrated = errors.New("database schema is not migrated, run 'dugout migrate up'")

// StoreBackend is what the CLI needs from a store.
type StoreBackend interface {
	adapters.Store
	adapters.HealthChecker
	Close() error
}

// Backend is an opened store together with its idempotency store.
type Backend struct {
	Store       StoreBackend
	Idempotency adapters.IdempotencyStore
	Driver      string
	Target      string

	migrator adapters.Migrator
	closers  []func() error
}

// SchemaVersion returns the applied schema version. The memory driver has
// no schema and reports 0.
func (b *Backend) SchemaVersion(ctx context.Context) (int, error) {
	if b.migrator == nil {
		return 0, nil
	}
	return b.migrator.Version(ctx)
}

// Migrate applies the store and idempotency migrations.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.migrator == nil {
		return nil
	}
	if err := b.migrator.Migrate(ctx); err != nil {
		return err
	}
	if ini, ok := b.Idempotency.(interface{ Initialize(context.Context) error }); ok {
		return ini.Initialize(ctx)
	}
	return nil
}

// Close closes the idempotency store and then the store.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AdapterFactory opens the store selected by the configuration.
type AdapterFactory struct {
	config *config.Config
	dbURL  string
}

// NewAdapterFactory creates a factory. Postgres requires a URL, which may
// reference environment variables.
func NewAdapterFactory(cfg *config.Config) (*AdapterFactory, error) {
	dbURL := os.ExpandEnv(cfg.Database.URL)
	if cfg.Database.Driver == config.DriverPostgres && dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	return &AdapterFactory{config: cfg, dbURL: dbURL}, nil
}

// Open opens the store without migrating it. Sqlite files are migrated on
// open; postgres is pinged with a short timeout so a bad URL fails fast.
func (f *AdapterFactory) Open(ctx context.Context) (*Backend, error) {
	ctx = ensureContext(ctx)

	switch f.config.Database.Driver {
	case config.DriverPostgres, "postgresql":
		adapter, err := postgres.NewAdapter(f.dbURL, postgres.WithSchema(f.config.Database.Schema))
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres adapter: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := adapter.Ping(pingCtx); err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &Backend{
			Store:       adapter,
			Idempotency: postgres.NewIdempotencyStore(adapter),
			Driver:      config.DriverPostgres,
			Target:      adapter.Schema(),
			migrator:    adapter,
			closers:     []func() error{adapter.Close},
		}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(f.config.Database.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Store:       store,
			Idempotency: sqlite.NewIdempotencyStore(store),
			Driver:      config.DriverSQLite,
			Target:      f.config.Database.Path,
			migrator:    store,
			closers:     []func() error{store.Close},
		}, nil

	case config.DriverMemory:
		adapter := memory.NewAdapter()
		idem := memory.NewIdempotencyStore()
		return &Backend{
			Store:       adapter,
			Idempotency: idem,
			Driver:      config.DriverMemory,
			Target:      "in-memory",
			closers:     []func() error{adapter.Close, idem.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", f.config.Database.Driver)
	}
}

// OpenReady opens the store and checks that its schema exists.
func (f *AdapterFactory) OpenReady(ctx context.Context) (*Backend, error) {
	b, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	v, err := b.SchemaVersion(ensureContext(ctx))
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if b.migrator != nil && v == 0 {
		_ = b.Close()
		return nil, ErrNotMigrated
	}
	if ini, ok := b.Idempotency.(interface{ Initialize(context.Context) error }); ok {
		if err := ini.Initialize(ensureContext(ctx)); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	return b, nil
}

// GetDatabaseURL returns the resolved database URL.
func (f *AdapterFactory) GetDatabaseURL() string {
	return f.dbURL
}

// IsMemoryDriver reports whether state is lost when the process exits.
func (f *AdapterFactory) IsMemoryDriver() bool {
	return f.config.Database.Driver == config.DriverMemory
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
