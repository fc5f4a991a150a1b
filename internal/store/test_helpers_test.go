package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/roach88/finishline/internal/model"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// update runs fn in a committed transaction and fails the test on error.
func update(t *testing.T, s *Store, fn func(context.Context, *Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.Update(ctx, func(tx *Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
}

func createTestContext(t *testing.T, s *Store, name string) model.Context {
	t.Helper()
	var c model.Context
	update(t, s, func(ctx context.Context, tx *Tx) error {
		var err error
		c, err = tx.CreateContext(ctx, model.Context{Name: name, Kind: model.KindRace})
		return err
	})
	return c
}

func insertRawContext(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO contexts (name) VALUES (?)`, name)
	if err != nil {
		t.Fatalf("insert context: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("table_info(%s): %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			dflt     sql.NullString
			primeKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primeKey); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query(
		"SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?",
		table,
	)
	if err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
