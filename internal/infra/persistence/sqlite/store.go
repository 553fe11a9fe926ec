// Package sqlite provides the embedded SQLite Repository Port. Records live in
// a single table keyed by (kind, key); the registry itself is the in-memory
// store, which stages each commit through ApplyRecords.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
)

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.RecordSource    = (*Store)(nil)
	_ domain.RecordSink      = (*Store)(nil)
)

const (
	recordsDDL = `CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		fields TEXT NOT NULL,
		PRIMARY KEY (kind, key)
	)`
	selectRecords = `SELECT key, fields FROM records WHERE kind = ? ORDER BY key`
	upsertRecord  = `INSERT INTO records(kind, key, fields) VALUES(?, ?, ?) ON CONFLICT(kind, key) DO UPDATE SET fields=excluded.fields`
	deleteRecord  = `DELETE FROM records WHERE kind = ? AND key = ?`
)

// Store persists the registry to SQLite one record at a time.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the SQLite file at path.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = "labcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(recordsDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(engine, append(opts, memory.WithRecordSink(s))...)
	return s, nil
}

// ReadRecords returns the persisted records of kind ordered by key.
func (s *Store) ReadRecords(ctx context.Context, kind domain.EntityType) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords, string(kind))
	if err != nil {
		return nil, fmt.Errorf("select %s records: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Record
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var fields []string
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return nil, fmt.Errorf("decode %s %q: %w", kind, key, err)
		}
		out = append(out, domain.Record{Key: key, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", kind, err)
	}
	return out, nil
}

// ApplyRecords writes ops inside one SQL transaction.
func (s *Store) ApplyRecords(ctx context.Context, ops []domain.RecordOp) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
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
		data, err := json.Marshal(op.Fields)
		if err != nil {
			return fmt.Errorf("encode %s %q: %w", op.Kind, op.Key, err)
		}
		if _, err := tx.ExecContext(ctx, upsertRecord, string(op.Kind), op.Key, string(data)); err != nil {
			return fmt.Errorf("upsert %s %q: %w", op.Kind, op.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
