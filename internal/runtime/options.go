package runtime

import (
	"fmt"
	"log/slog"

	"github.com/autoapply/syncbridge/internal/core/ports"
	"github.com/autoapply/syncbridge/internal/pkg/config"
	"github.com/autoapply/syncbridge/internal/storage/snapshot"
)

// Option is a functional option for configuring a Bridge.
type Option func(*Bridge) error

// WithConfig supplies an already-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(b *Bridge) error {
		b.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from the given YAML file, with
// SYNC_-prefixed environment overrides.
func WithConfigFile(path string) Option {
	return func(b *Bridge) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		b.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) error {
		b.logger = logger
		return nil
	}
}

// WithBackendClient sets a custom backend client. Tests use this to point
// the bridge at a fake backend.
func WithBackendClient(client ports.BackendClient) Option {
	return func(b *Bridge) error {
		b.client = client
		return nil
	}
}

// WithSnapshotStore sets a custom snapshot store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(b *Bridge) error {
		b.snapshots = store
		return nil
	}
}

// WithSQLiteSnapshots persists last-known state to a SQLite file
// (the default for standalone deployments).
func WithSQLiteSnapshots(path string) Option {
	return func(b *Bridge) error {
		store, err := snapshot.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite snapshot store: %w", err)
		}
		b.snapshots = store
		return nil
	}
}

// WithMemorySnapshots keeps last-known state in memory only.
func WithMemorySnapshots() Option {
	return func(b *Bridge) error {
		b.snapshots = snapshot.NewMemory()
		return nil
	}
}
