package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

const (
	upsert = "INSERT INTO records (kind, key, fields) VALUES ($1, $2, $3) ON CONFLICT (kind, key) DO UPDATE SET fields = EXCLUDED.fields"
	remove = "DELETE FROM records WHERE kind = $1 AND key = $2"
)

func named(args ...any) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

func TestStubDBUpsertsAndFiltersByKind(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	for _, args := range [][]any{
		{"lab", "Optics", `["Optics","lasers","B001"]`},
		{"project", "Optics", `["Optics"]`},
		{"lab", "Optics", `["Optics","photonics","B001"]`},
	} {
		if _, err := conn.ExecContext(ctx, upsert, named(args...)); err != nil {
			t.Fatalf("ExecContext insert: %v", err)
		}
	}
	if got := conn.Len(); got != 2 {
		t.Fatalf("expected upsert to replace only the matching key, got %d rows", got)
	}

	rows, err := conn.QueryContext(ctx, "SELECT key, fields FROM records WHERE kind = $1", named("lab"))
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "Optics" || dest[1] != `["Optics","photonics","B001"]` {
		t.Fatalf("unexpected row values: %v", dest)
	}
	if err := rows.Next(dest); err == nil {
		t.Fatalf("expected rows filtered by kind")
	}
	_ = rows.Close()

	if _, err := conn.ExecContext(ctx, remove, named("lab", "Optics")); err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	if got := conn.Len(); got != 1 {
		t.Fatalf("expected one remaining row, got %d", got)
	}
}

func TestStubDBDiscardsWritesOnFailedCommit(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailCommit = true

	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := conn.ExecContext(ctx, upsert, named("lab", "Optics", `[]`)); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if conn.Len() != 0 {
		t.Fatalf("expected staged write to stay invisible before commit")
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected commit failure")
	}
	if conn.Len() != 0 {
		t.Fatalf("expected failed commit to drop staged writes")
	}
}
