package engine

import (
	"context"

	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
)

// recomputePlaces sorts the context's results by finish and rewrites every
// place that changed. Returns the results in their new place order.
func recomputePlaces(ctx context.Context, tx *store.Tx, contextID int64) ([]model.Result, error) {
	results, err := tx.ListResults(ctx, contextID)
	if err != nil {
		return nil, err
	}
	model.SortByFinish(results)
	for i := range results {
		place := i + 1
		if results[i].Place == place {
			continue
		}
		if err := tx.UpdatePlace(ctx, results[i].ID, place); err != nil {
			return nil, err
		}
		results[i].Place = place
	}
	return results, nil
}

// keepSlotsPositional reassigns slots so the k-th place holds the slot the
// k-th place held before a reorder. before is the old place order; after is
// the new one over the same result set. Only the edited result may be a
// confirmed result whose slot changes.
func keepSlotsPositional(ctx context.Context, tx *store.Tx, before, after []model.Result, edited int64) error {
	if len(before) != len(after) {
		return nil
	}
	changed := false
	slots := make([]store.Slot, len(after))
	for i := range after {
		if before[i].ID != after[i].ID {
			changed = true
		}
		slots[i] = store.Slot{ResultID: after[i].ID, ScanID: before[i].ScanID, HadScan: before[i].HadScan}
	}
	if !changed {
		return nil
	}
	if err := checkFrozen(after, slots, edited); err != nil {
		return err
	}
	return tx.AssignSlots(ctx, slots)
}
