package engine

import (
	"context"
	"fmt"

	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
)

// Board is a snapshot of one context's two sequences.
type Board struct {
	Context model.Context      `json:"context"`
	Results []model.Result     `json:"results"` // place order
	Scans   []model.ScannedBib `json:"scans"`   // scan order
	Cursor  int64              `json:"cursor,omitempty"`
}

// Scan returns the scan with the given ID.
func (b Board) Scan(id int64) (model.ScannedBib, bool) {
	for _, s := range b.Scans {
		if s.ID == id {
			return s, true
		}
	}
	return model.ScannedBib{}, false
}

// ScanBibs maps scan IDs to bib numbers.
func (b Board) ScanBibs() map[int64]string {
	m := make(map[int64]string, len(b.Scans))
	for _, s := range b.Scans {
		m[s.ID] = s.BibNumber
	}
	return m
}

// Index returns the place-order index of a result, or -1.
func (b Board) Index(resultID int64) int {
	for i, r := range b.Results {
		if r.ID == resultID {
			return i
		}
	}
	return -1
}

// lastMatchedOrder returns the highest order among linked scans, or 0.
func (b Board) lastMatchedOrder() int {
	linked := b.linkedScans()
	last := 0
	for _, s := range b.Scans {
		if linked[s.ID] && s.Order > last {
			last = s.Order
		}
	}
	return last
}

func (b Board) linkedScans() map[int64]bool {
	linked := make(map[int64]bool, len(b.Results))
	for _, r := range b.Results {
		if r.HasScan() {
			linked[r.ScanID] = true
		}
	}
	return linked
}

// Pending returns the scans waiting for a result: unlinked scans after the
// last matched scan, in order.
func (b Board) Pending() []model.ScannedBib {
	linked := b.linkedScans()
	last := b.lastMatchedOrder()
	pending := []model.ScannedBib{}
	for _, s := range b.Scans {
		if !linked[s.ID] && s.Order > last {
			pending = append(pending, s)
		}
	}
	return pending
}

// Unmatched returns the results that have not yet been offered a scan, in
// place order.
func (b Board) Unmatched() []model.Result {
	unmatched := []model.Result{}
	for _, r := range b.Results {
		if !r.HadScan {
			unmatched = append(unmatched, r)
		}
	}
	return unmatched
}

func loadBoard(ctx context.Context, tx *store.Tx, contextID int64) (Board, error) {
	c, err := tx.GetContext(ctx, contextID)
	if err != nil {
		return Board{}, err
	}
	results, err := tx.ListResults(ctx, contextID)
	if err != nil {
		return Board{}, err
	}
	scans, err := tx.ListScans(ctx, contextID)
	if err != nil {
		return Board{}, err
	}
	cursor, err := tx.GetCursor(ctx, contextID)
	if err != nil {
		return Board{}, fmt.Errorf("load board: %w", err)
	}
	return Board{Context: c, Results: results, Scans: scans, Cursor: cursor}, nil
}
