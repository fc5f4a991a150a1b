package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/finishline/internal/model"
)

const resultColumns = `id, context_id, device_position, place, bib_number, time,
	scanned_bib_id, had_scanned_bib, is_confirmed`

// Slot is the scan assignment of one result: linked to ScanID, a hole
// (HadScan without ScanID), or empty.
type Slot struct {
	ResultID int64
	ScanID   int64
	HadScan  bool
}

// InsertResult appends a result. Place is left for the caller to recompute.
func (t *Tx) InsertResult(ctx context.Context, r model.Result) (model.Result, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO results (context_id, device_position, place, bib_number, time, had_scanned_bib)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ContextID, r.DevicePosition, r.Place, nullString(r.BibNumber), r.Time, boolInt(r.HadScan))
	if err != nil {
		return model.Result{}, fmt.Errorf("insert result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Result{}, fmt.Errorf("insert result: last insert id: %w", err)
	}
	r.ID = id
	r.ScanID = 0
	r.Confirmed = false
	return r, nil
}

// GetResult returns the result with the given ID.
// Returns ErrNotFound if it does not exist.
func (t *Tx) GetResult(ctx context.Context, id int64) (model.Result, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id = ?`, id)
	r, err := scanResult(row)
	if err != nil {
		return model.Result{}, fmt.Errorf("get result %d: %w", id, notFound(err))
	}
	return r, nil
}

// ListResults returns every result in a context ordered by place.
//
// Results with equal place (only possible before places are recomputed)
// are ordered by ID for determinism.
func (t *Tx) ListResults(ctx context.Context, contextID int64) ([]model.Result, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM results
		WHERE context_id = ?
		ORDER BY place ASC, id ASC
	`, contextID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []model.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// UpdateResultFields writes the operator-editable columns of a result.
func (t *Tx) UpdateResultFields(ctx context.Context, r model.Result) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE results SET bib_number = ?, time = ?, device_position = ? WHERE id = ?
	`, nullString(r.BibNumber), r.Time, r.DevicePosition, r.ID)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return requireOneRow(res, "update result", r.ID)
}

// SetResultBib sets the bib number of a result.
func (t *Tx) SetResultBib(ctx context.Context, id int64, bib string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE results SET bib_number = ? WHERE id = ?`, nullString(bib), id)
	if err != nil {
		return fmt.Errorf("set result bib: %w", err)
	}
	return requireOneRow(res, "set result bib", id)
}

// UpdatePlace sets the place of a result.
func (t *Tx) UpdatePlace(ctx context.Context, id int64, place int) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE results SET place = ? WHERE id = ?`, place, id); err != nil {
		return fmt.Errorf("update place: %w", err)
	}
	return nil
}

// SetHadScan sets had_scanned_bib on a result that has no linked scan.
func (t *Tx) SetHadScan(ctx context.Context, id int64, had bool) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE results SET had_scanned_bib = ? WHERE id = ? AND scanned_bib_id IS NULL
	`, boolInt(had), id); err != nil {
		return fmt.Errorf("set had scan: %w", err)
	}
	return nil
}

// AssignSlots rewrites the scan slots of the given results.
//
// Links are cleared before any are set, so scans may move between the
// listed results without tripping the one-result-per-scan constraint.
func (t *Tx) AssignSlots(ctx context.Context, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}
	ids := make([]int64, len(slots))
	for i, s := range slots {
		ids[i] = s.ResultID
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE results SET scanned_bib_id = NULL WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	); err != nil {
		return fmt.Errorf("assign slots: clear links: %w", err)
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		UPDATE results SET scanned_bib_id = ?, had_scanned_bib = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("assign slots: prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range slots {
		had := s.HadScan || s.ScanID != 0
		if _, err := stmt.ExecContext(ctx, nullInt64(s.ScanID), boolInt(had), s.ResultID); err != nil {
			return fmt.Errorf("assign slot to result %d: %w", s.ResultID, err)
		}
	}
	return nil
}

// ConfirmResults marks results confirmed. Already confirmed rows are left
// untouched. Returns the number of rows that changed.
func (t *Tx) ConfirmResults(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE results SET is_confirmed = 1 WHERE is_confirmed = 0 AND id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	)
	if err != nil {
		return 0, fmt.Errorf("confirm results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("confirm results: rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteResult removes a result row.
func (t *Tx) DeleteResult(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return requireOneRow(res, "delete result", id)
}

func scanResult(row rowScanner) (model.Result, error) {
	var (
		r         model.Result
		bib       sql.NullString
		scanID    sql.NullInt64
		had, conf int
	)
	if err := row.Scan(&r.ID, &r.ContextID, &r.DevicePosition, &r.Place, &bib, &r.Time,
		&scanID, &had, &conf); err != nil {
		return model.Result{}, err
	}
	r.BibNumber = bib.String
	r.ScanID = scanID.Int64
	r.HadScan = had != 0
	r.Confirmed = conf != 0
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
