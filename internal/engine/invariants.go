package engine

import (
	"fmt"

	"github.com/roach88/finishline/internal/model"
)

// Invariant names reported in ConsistencyFault details.
const (
	InvariantPlaces     = "places"
	InvariantHadPrefix  = "had-prefix"
	InvariantLink       = "link"
	InvariantScanOrder  = "scan-order"
	InvariantContiguous = "contiguous"
	InvariantOrphan     = "orphan"
	InvariantCursor     = "cursor"
	InvariantDrained    = "drained"
)

// CheckBoard verifies the reconciliation invariants of a board:
//
//   - places are 1..N in (time, device position) order
//   - had_scanned_bib holds for a prefix of the results
//   - a linked scan belongs to the context and implies had_scanned_bib
//   - linked scan orders increase with place
//   - scan orders are exactly 1..S
//   - every unlinked scan follows the last matched scan
//   - the queue cursor, when set, is the earliest pending scan
//   - no unmatched result coexists with a pending scan
//
// The engine runs it at the end of every mutating operation, inside the
// transaction. A violation is a ConsistencyFault.
func CheckBoard(b Board) error {
	for i, r := range b.Results {
		if r.Place != i+1 {
			return fault(InvariantPlaces, "result %d has place %d, want %d", r.ID, r.Place, i+1)
		}
		if i > 0 && model.FinishLess(r, b.Results[i-1]) {
			return fault(InvariantPlaces, "result %d finishes before result %d but is placed after it", r.ID, b.Results[i-1].ID)
		}
	}

	seenEmpty := false
	for _, r := range b.Results {
		if !r.HadScan {
			seenEmpty = true
			continue
		}
		if seenEmpty {
			return fault(InvariantHadPrefix, "result %d (place %d) had a scan after an unmatched result", r.ID, r.Place)
		}
	}

	orders := make(map[int64]int, len(b.Scans))
	for i, s := range b.Scans {
		if s.Order != i+1 {
			return fault(InvariantContiguous, "scan %d has order %d, want %d", s.ID, s.Order, i+1)
		}
		orders[s.ID] = s.Order
	}

	prev := 0
	for _, r := range b.Results {
		if !r.HasScan() {
			continue
		}
		if !r.HadScan {
			return fault(InvariantLink, "result %d is linked to scan %d without had_scanned_bib", r.ID, r.ScanID)
		}
		order, ok := orders[r.ScanID]
		if !ok {
			return fault(InvariantLink, "result %d is linked to scan %d outside its context", r.ID, r.ScanID)
		}
		if order <= prev {
			return fault(InvariantScanOrder, "result %d (place %d) holds scan order %d after order %d", r.ID, r.Place, order, prev)
		}
		prev = order
	}

	linked := b.linkedScans()
	for _, s := range b.Scans {
		if !linked[s.ID] && s.Order < prev {
			return fault(InvariantOrphan, "scan %d (order %d) is unlinked before the last matched order %d", s.ID, s.Order, prev)
		}
	}

	pending := b.Pending()
	if b.Cursor != 0 {
		if len(pending) == 0 || pending[0].ID != b.Cursor {
			return fault(InvariantCursor, "queue cursor %d is not the earliest pending scan", b.Cursor)
		}
	}

	if len(pending) > 0 && len(b.Unmatched()) > 0 {
		return fault(InvariantDrained, "%d pending scans left beside %d unmatched results", len(pending), len(b.Unmatched()))
	}
	return nil
}

func fault(invariant, format string, args ...any) *Error {
	return NewConsistencyFault(invariant, fmt.Sprintf(format, args...))
}
