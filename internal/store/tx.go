package store

import (
	"database/sql"
	"errors"
	"strings"
)

// Tx is a store transaction. All reads and writes of one engine operation go
// through the same Tx so they commit or roll back together.
type Tx struct {
	tx *sql.Tx
}

// notFound converts sql.ErrNoRows into ErrNotFound, leaving other errors alone.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
