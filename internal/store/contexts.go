package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/finishline/internal/model"
)

const contextColumns = `id, name, kind, race_date, start_offset, output_file, export_dirty`

// CreateContext inserts a new context and returns it with its assigned ID.
func (t *Tx) CreateContext(ctx context.Context, c model.Context) (model.Context, error) {
	if c.Kind == "" {
		c.Kind = model.KindRace
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO contexts (name, kind, race_date, start_offset, output_file)
		VALUES (?, ?, ?, ?, ?)
	`, c.Name, string(c.Kind), c.Date, c.StartOffset, c.OutputFile)
	if err != nil {
		return model.Context{}, fmt.Errorf("create context: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Context{}, fmt.Errorf("create context: last insert id: %w", err)
	}
	c.ID = id
	return c, nil
}

// GetContext returns the context with the given ID.
// Returns ErrNotFound if it does not exist.
func (t *Tx) GetContext(ctx context.Context, id int64) (model.Context, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM contexts WHERE id = ?`, id)
	c, err := scanContext(row)
	if err != nil {
		return model.Context{}, fmt.Errorf("get context %d: %w", id, notFound(err))
	}
	return c, nil
}

// GetContextByName returns the context with the given name.
// Returns ErrNotFound if it does not exist.
func (t *Tx) GetContextByName(ctx context.Context, name string) (model.Context, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM contexts WHERE name = ?`, name)
	c, err := scanContext(row)
	if err != nil {
		return model.Context{}, fmt.Errorf("get context %q: %w", name, notFound(err))
	}
	return c, nil
}

// ListContexts returns all contexts ordered by ID.
func (t *Tx) ListContexts(ctx context.Context) ([]model.Context, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+contextColumns+` FROM contexts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer rows.Close()

	contexts := []model.Context{}
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contexts: %w", err)
	}
	return contexts, nil
}

// SetExportDirty records whether the context's artifact needs a rewrite.
func (t *Tx) SetExportDirty(ctx context.Context, id int64, dirty bool) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE contexts SET export_dirty = ? WHERE id = ?`, boolInt(dirty), id)
	if err != nil {
		return fmt.Errorf("set export dirty: %w", err)
	}
	return requireOneRow(res, "set export dirty", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContext(row rowScanner) (model.Context, error) {
	var (
		c     model.Context
		kind  string
		dirty int
	)
	if err := row.Scan(&c.ID, &c.Name, &kind, &c.Date, &c.StartOffset, &c.OutputFile, &dirty); err != nil {
		return model.Context{}, err
	}
	c.Kind = model.Kind(kind)
	c.ExportDirty = dirty != 0
	return c, nil
}

func requireOneRow(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrNotFound)
	}
	return nil
}
