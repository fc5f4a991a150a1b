package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
)

// slot is the scan assignment a result holds.
type slot struct {
	scanID int64
	had    bool
}

func slotOf(r model.Result) slot {
	return slot{scanID: r.ScanID, had: r.HadScan}
}

// checkFrozen rejects slot assignments that would change the scan link of a
// confirmed result. The result with ID skip is exempt.
func checkFrozen(results []model.Result, slots []store.Slot, skip int64) error {
	byID := make(map[int64]model.Result, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	for _, s := range slots {
		r, ok := byID[s.ResultID]
		if !ok || r.ID == skip || !r.Confirmed {
			continue
		}
		if r.ScanID != s.ScanID || r.HadScan != s.HadScan {
			return NewParameterError("result %d is confirmed and its scan cannot be shifted", r.ID)
		}
	}
	return nil
}

// matchPending pairs unmatched results with pending scans, oldest first.
//
// The queue cursor, when set, must be the first pending scan; it is cleared
// once that scan is consumed. Returns the number of pairs made.
func matchPending(ctx context.Context, tx *store.Tx, b Board) (int, error) {
	unmatched := b.Unmatched()
	pending := b.Pending()
	if len(unmatched) == 0 || len(pending) == 0 {
		return 0, nil
	}
	if b.Cursor != 0 && pending[0].ID != b.Cursor {
		return 0, fault(InvariantCursor, "queue cursor %d is not the earliest pending scan %d", b.Cursor, pending[0].ID)
	}

	n := min(len(unmatched), len(pending))
	slots := make([]store.Slot, n)
	for i := 0; i < n; i++ {
		slots[i] = store.Slot{ResultID: unmatched[i].ID, ScanID: pending[i].ID, HadScan: true}
	}
	if err := tx.AssignSlots(ctx, slots); err != nil {
		return 0, err
	}
	if b.Cursor != 0 {
		if err := tx.SetCursor(ctx, b.Context.ID, 0); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// useScan copies the scan's bib number onto the result. A blank scan clears
// the result's bib number.
func useScan(ctx context.Context, tx *store.Tx, r model.Result, s model.ScannedBib) (model.Result, error) {
	bib := s.BibNumber
	if s.IsBlank() {
		bib = ""
	}
	if err := tx.SetResultBib(ctx, r.ID, bib); err != nil {
		return model.Result{}, err
	}
	r.BibNumber = bib
	return r, nil
}

// insertBlank pushes a blank scan in front of the result at index k and
// shifts every later slot one result down.
//
// The result's scan moves to the next result, and so on down the board.
// The shift is rejected if it would move the scan of a confirmed result.
// A scan pushed past the last result becomes the queue cursor; a pushed-off
// hole is dropped. The blank takes the result's old scan order and every
// scan from that order on is renumbered up by one.
func insertBlank(ctx context.Context, tx *store.Tx, b Board, k int, logger *slog.Logger) error {
	this := b.Results[k]
	thisScan, ok := b.Scan(this.ScanID)
	if !ok {
		return fault(InvariantLink, "result %d is linked to missing scan %d", this.ID, this.ScanID)
	}

	carry := []slot{slotOf(this)}
	for _, r := range b.Results[k+1:] {
		if r.HadScan {
			carry = append(carry, slotOf(r))
		}
	}

	slots := []store.Slot{}
	i := 0
	for _, r := range b.Results[k+1:] {
		if i == len(carry) {
			break
		}
		slots = append(slots, store.Slot{ResultID: r.ID, ScanID: carry[i].scanID, HadScan: carry[i].had})
		i++
	}
	overflow := carry[i:]
	if len(overflow) > 1 {
		return fault(InvariantHadPrefix, "insert at result %d would overflow %d slots", this.ID, len(overflow))
	}
	if err := checkFrozen(b.Results, slots, 0); err != nil {
		return err
	}

	if err := tx.ShiftScanOrders(ctx, b.Context.ID, thisScan.Order, 1); err != nil {
		return err
	}
	blank, err := tx.InsertScanAt(ctx, b.Context.ID, thisScan.Order, model.BlankBib)
	if err != nil {
		return err
	}
	slots = append([]store.Slot{{ResultID: this.ID, ScanID: blank.ID, HadScan: true}}, slots...)
	if err := tx.AssignSlots(ctx, slots); err != nil {
		return err
	}

	if len(overflow) == 1 && overflow[0].scanID != 0 {
		if err := tx.SetCursor(ctx, b.Context.ID, overflow[0].scanID); err != nil {
			return err
		}
		logger.Debug("insert overflowed scan to queue",
			"context_id", b.Context.ID,
			"scan_id", overflow[0].scanID)
	}
	return nil
}

// deleteScan removes the scan held by the result at index k and shifts every
// later slot one result up. The last result is left unmatched so the next
// matching pass can backfill it from the pending queue. Scans after the
// deleted one are renumbered down by one. As with insert, confirmed results
// must keep their scans.
func deleteScan(ctx context.Context, tx *store.Tx, b Board, k int) error {
	this := b.Results[k]
	thisScan, ok := b.Scan(this.ScanID)
	if !ok {
		return fault(InvariantLink, "result %d is linked to missing scan %d", this.ID, this.ScanID)
	}

	later := b.Results[k:]
	slots := make([]store.Slot, len(later))
	for i, r := range later {
		next := slot{}
		if i+1 < len(later) {
			next = slotOf(later[i+1])
		}
		slots[i] = store.Slot{ResultID: r.ID, ScanID: next.scanID, HadScan: next.had}
	}
	if err := checkFrozen(b.Results, slots, 0); err != nil {
		return err
	}
	if err := tx.AssignSlots(ctx, slots); err != nil {
		return err
	}

	if err := tx.DeleteScan(ctx, thisScan.ID); err != nil {
		return err
	}
	if err := tx.ShiftScanOrders(ctx, b.Context.ID, thisScan.Order+1, -1); err != nil {
		return fmt.Errorf("delete scan %d: %w", thisScan.ID, err)
	}
	return nil
}
