package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/finishline/internal/model"
)

const scanColumns = `id, context_id, seq, bib_number`

// AppendScan stores a scan at the end of the context's scan sequence.
func (t *Tx) AppendScan(ctx context.Context, contextID int64, bib string) (model.ScannedBib, error) {
	var last int
	if err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM scanned_bibs WHERE context_id = ?`, contextID,
	).Scan(&last); err != nil {
		return model.ScannedBib{}, fmt.Errorf("append scan: max order: %w", err)
	}
	return t.InsertScanAt(ctx, contextID, last+1, bib)
}

// InsertScanAt stores a scan with an explicit order. The caller must have
// made room for it with ShiftScanOrders.
func (t *Tx) InsertScanAt(ctx context.Context, contextID int64, order int, bib string) (model.ScannedBib, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO scanned_bibs (context_id, seq, bib_number) VALUES (?, ?, ?)
	`, contextID, order, bib)
	if err != nil {
		return model.ScannedBib{}, fmt.Errorf("insert scan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ScannedBib{}, fmt.Errorf("insert scan: last insert id: %w", err)
	}
	return model.ScannedBib{ID: id, ContextID: contextID, Order: order, BibNumber: bib}, nil
}

// GetScan returns the scan with the given ID.
// Returns ErrNotFound if it does not exist.
func (t *Tx) GetScan(ctx context.Context, id int64) (model.ScannedBib, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scanned_bibs WHERE id = ?`, id)
	s, err := scanScan(row)
	if err != nil {
		return model.ScannedBib{}, fmt.Errorf("get scan %d: %w", id, notFound(err))
	}
	return s, nil
}

// ListScans returns every scan in a context ordered by arrival order.
func (t *Tx) ListScans(ctx context.Context, contextID int64) ([]model.ScannedBib, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+scanColumns+`
		FROM scanned_bibs
		WHERE context_id = ?
		ORDER BY seq ASC
	`, contextID)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	scans := []model.ScannedBib{}
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scanned bib: %w", err)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return scans, nil
}

// ShiftScanOrders adds delta to the order of every scan in the context whose
// order is at least from.
//
// UNIQUE(context_id, seq) is checked per row, so the shift goes through
// negative orders first and flips them back in a second statement.
func (t *Tx) ShiftScanOrders(ctx context.Context, contextID int64, from, delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE scanned_bibs SET seq = -(seq + ?) WHERE context_id = ? AND seq >= ?
	`, delta, contextID, from); err != nil {
		return fmt.Errorf("shift scan orders: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE scanned_bibs SET seq = -seq WHERE context_id = ? AND seq < 0
	`, contextID); err != nil {
		return fmt.Errorf("shift scan orders: restore sign: %w", err)
	}
	return nil
}

// DeleteScan removes a scan. Any queue cursor pointing at it is cleared by
// the foreign key.
func (t *Tx) DeleteScan(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM scanned_bibs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	return requireOneRow(res, "delete scan", id)
}

// GetCursor returns the scan at the front of the context's pending queue,
// or 0 when no cursor is set.
func (t *Tx) GetCursor(ctx context.Context, contextID int64) (int64, error) {
	var scanID sql.NullInt64
	err := t.tx.QueryRowContext(ctx,
		`SELECT scan_id FROM scan_cursors WHERE context_id = ?`, contextID,
	).Scan(&scanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get cursor: %w", err)
	}
	return scanID.Int64, nil
}

// SetCursor points the context's pending queue at scanID. Zero clears it.
func (t *Tx) SetCursor(ctx context.Context, contextID, scanID int64) error {
	if scanID == 0 {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM scan_cursors WHERE context_id = ?`, contextID); err != nil {
			return fmt.Errorf("clear cursor: %w", err)
		}
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO scan_cursors (context_id, scan_id) VALUES (?, ?)
		ON CONFLICT(context_id) DO UPDATE SET scan_id = excluded.scan_id
	`, contextID, scanID); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

func scanScan(row rowScanner) (model.ScannedBib, error) {
	var s model.ScannedBib
	if err := row.Scan(&s.ID, &s.ContextID, &s.Order, &s.BibNumber); err != nil {
		return model.ScannedBib{}, err
	}
	return s, nil
}
