// Package snapshot persists the last reconciled view locally so a restarted
// bridge shows last-known data before its first poll or connect. The remote
// backend stays the source of truth; this is strictly a cache.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

const (
	kindInterventions = "interventions"
	kindSessions      = "sessions"
)

// SQLiteStore keeps snapshots in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ ports.SnapshotStore = (*SQLiteStore)(nil)

// NewSQLite opens (and if needed initializes) the snapshot database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		kind TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	return err
}

type snapshotRow struct {
	Kind      string    `db:"kind"`
	Payload   string    `db:"payload"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *SQLiteStore) save(ctx context.Context, kind string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", kind, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (kind, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		kind, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write %s snapshot: %w", kind, err)
	}
	return nil
}

func (s *SQLiteStore) load(ctx context.Context, kind string, out interface{}) error {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `SELECT kind, payload, updated_at FROM snapshots WHERE kind = ?`, kind)
	if errors.Is(err, sql.ErrNoRows) {
		// No snapshot yet; leave out untouched.
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s snapshot: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(row.Payload), out); err != nil {
		return fmt.Errorf("decode %s snapshot: %w", kind, err)
	}
	return nil
}

func (s *SQLiteStore) SaveInterventions(ctx context.Context, items []domain.Intervention) error {
	return s.save(ctx, kindInterventions, items)
}

func (s *SQLiteStore) LoadInterventions(ctx context.Context) ([]domain.Intervention, error) {
	var items []domain.Intervention
	if err := s.load(ctx, kindInterventions, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLiteStore) SaveSessions(ctx context.Context, items []domain.Session) error {
	return s.save(ctx, kindSessions, items)
}

func (s *SQLiteStore) LoadSessions(ctx context.Context) ([]domain.Session, error) {
	var items []domain.Session
	if err := s.load(ctx, kindSessions, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
