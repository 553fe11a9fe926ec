// Package postgres provides a Postgres-backed Repository Port. The registry
// itself stays in memory; every committed transaction is written to a single
// records table keyed by (kind, key) inside one SQL transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
)

// Compile-time contract assertions ensuring the store satisfies the domain interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.RecordSource    = (*Store)(nil)
	_ domain.RecordSink      = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/labcore?sslmode=disable"
)

const (
	recordsDDL = `CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		fields JSONB NOT NULL,
		PRIMARY KEY (kind, key)
	)`
	selectRecords = `SELECT key, fields FROM records WHERE kind = $1`
	upsertRecord  = `INSERT INTO records (kind, key, fields) VALUES ($1, $2, $3) ON CONFLICT (kind, key) DO UPDATE SET fields = EXCLUDED.fields`
	deleteRecord  = `DELETE FROM records WHERE kind = $1 AND key = $2`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists records to Postgres while reusing the in-memory registry for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// The registry starts empty; callers hydrate it through a reconciled load.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, recordsDDL); err != nil {
		return nil, fmt.Errorf("ensure records table: %w", err)
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, append(opts, memory.WithRecordSink(s))...)
	return s, nil
}

// ReadRecords returns the persisted records of kind.
func (s *Store) ReadRecords(ctx context.Context, kind domain.EntityType) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords, string(kind))
	if err != nil {
		return nil, fmt.Errorf("select %s records: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Record
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", kind, err)
		}
		var fields []string
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("decode %s record %q: %w", kind, key, err)
		}
		out = append(out, domain.Record{Key: key, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", kind, err)
	}
	return out, nil
}

// ApplyRecords writes ops inside one SQL transaction.
func (s *Store) ApplyRecords(ctx context.Context, ops []domain.RecordOp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, deleteRecord, string(op.Kind), op.Key); err != nil {
				return fmt.Errorf("delete %s %q: %w", op.Kind, op.Key, err)
			}
			continue
		}
		payload, err := json.Marshal(op.Fields)
		if err != nil {
			return fmt.Errorf("encode %s %q: %w", op.Kind, op.Key, err)
		}
		if _, err := tx.ExecContext(ctx, upsertRecord, string(op.Kind), op.Key, string(payload)); err != nil {
			return fmt.Errorf("upsert %s %q: %w", op.Kind, op.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
