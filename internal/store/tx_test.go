package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/finishline/internal/model"
)

func TestContexts_CreateGetList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var created model.Context
	update(t, s, func(ctx context.Context, tx *Tx) error {
		var err error
		created, err = tx.CreateContext(ctx, model.Context{
			Name:        "race1",
			Date:        "2026-05-02",
			StartOffset: 9 * 3600,
		})
		return err
	})
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.KindRace, created.Kind, "empty kind defaults to race")

	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetContext(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)

		byName, err := tx.GetContextByName(ctx, "race1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byName.ID)

		all, err := tx.ListContexts(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestContexts_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.View(ctx, func(tx *Tx) error {
		_, err := tx.GetContext(ctx, 42)
		return err
	})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestContexts_ExportDirty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContext(t, s, "race1")

	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SetExportDirty(ctx, c.ID, true)
	})
	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetContext(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, got.ExportDirty)
		return nil
	})
	require.NoError(t, err)
}

func TestSettings_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	update(t, s, func(ctx context.Context, tx *Tx) error {
		if err := tx.SetSetting(ctx, SettingOutputFile, "a.csv"); err != nil {
			return err
		}
		return tx.SetSetting(ctx, SettingOutputFile, "b.csv")
	})

	err := s.View(ctx, func(tx *Tx) error {
		v, ok, err := tx.GetSetting(ctx, SettingOutputFile)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "b.csv", v)

		_, ok, err = tx.GetSetting(ctx, SettingActiveContext)
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := tx.ListSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{SettingOutputFile: "b.csv"}, all)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		if _, err := tx.CreateContext(ctx, model.Context{Name: "race1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(tx *Tx) error {
		all, err := tx.ListContexts(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
		return nil
	})
	require.NoError(t, err)
}

func TestResults_InsertListOrderedByPlace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContext(t, s, "race1")

	update(t, s, func(ctx context.Context, tx *Tx) error {
		for i, place := range []int{2, 1, 3} {
			if _, err := tx.InsertResult(ctx, model.Result{
				ContextID:      c.ID,
				DevicePosition: i + 1,
				Place:          place,
				Time:           float64(10 * (i + 1)),
			}); err != nil {
				return err
			}
		}
		return nil
	})

	err := s.View(ctx, func(tx *Tx) error {
		results, err := tx.ListResults(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []int{2, 1, 3}, []int{
			results[0].DevicePosition, results[1].DevicePosition, results[2].DevicePosition,
		})
		assert.Empty(t, results[0].BibNumber)
		return nil
	})
	require.NoError(t, err)
}

func TestResults_UpdateFieldsAndConfirm(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContext(t, s, "race1")

	var r model.Result
	update(t, s, func(ctx context.Context, tx *Tx) error {
		var err error
		r, err = tx.InsertResult(ctx, model.Result{ContextID: c.ID, DevicePosition: 1, Place: 1, Time: 12.5})
		if err != nil {
			return err
		}
		r.BibNumber = "42"
		r.Time = 13.25
		return tx.UpdateResultFields(ctx, r)
	})

	var changed int
	update(t, s, func(ctx context.Context, tx *Tx) error {
		var err error
		changed, err = tx.ConfirmResults(ctx, []int64{r.ID})
		if err != nil {
			return err
		}
		// A second confirm is a no-op.
		n, err := tx.ConfirmResults(ctx, []int64{r.ID})
		assert.Zero(t, n)
		return err
	})
	assert.Equal(t, 1, changed)

	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetResult(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "42", got.BibNumber)
		assert.InDelta(t, 13.25, got.Time, 1e-9)
		assert.True(t, got.Confirmed)
		return nil
	})
	require.NoError(t, err)
}

func TestResults_AssignSlotsSwapsLinks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContext(t, s, "race1")

	var r1, r2 model.Result
	var s1, s2 model.ScannedBib
	update(t, s, func(ctx context.Context, tx *Tx) error {
		var err error
		if r1, err = tx.InsertResult(ctx, model.Result{ContextID: c.ID, DevicePosition: 1, Place: 1, Time: 1}); err != nil {
			return err
		}
		if r2, err = tx.InsertResult(ctx, model.Result{ContextID: c.ID, DevicePosition: 2, Place: 2, Time: 2}); err != nil {
			return err
		}
		if s1, err = tx.AppendScan(ctx, c.ID, "1"); err != nil {
			return err
		}
		if s2, err = tx.AppendScan(ctx, c.ID, "2"); err != nil {
			return err
		}
		return tx.AssignSlots(ctx, []Slot{{ResultID: r1.ID, ScanID: s1.ID}, {ResultID: r2.ID, ScanID: s2.ID}})
	})

	// Swapping requires clearing both links before setting either.
	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.AssignSlots(ctx, []Slot{{ResultID: r1.ID, ScanID: s2.ID}, {ResultID: r2.ID, ScanID: s1.ID}})
	})

	err := s.View(ctx, func(tx *Tx) error {
		got1, err := tx.GetResult(ctx, r1.ID)
		require.NoError(t, err)
		got2, err := tx.GetResult(ctx, r2.ID)
		require.NoError(t, err)
		assert.Equal(t, s2.ID, got1.ScanID)
		assert.Equal(t, s1.ID, got2.ScanID)
		assert.True(t, got1.HadScan)
		return nil
	})
	require.NoError(t, err)

	// A hole keeps had_scanned_bib without a link.
	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.AssignSlots(ctx, []Slot{{ResultID: r1.ID, HadScan: true}, {ResultID: r2.ID}})
	})
	err = s.View(ctx, func(tx *Tx) error {
		got1, err := tx.GetResult(ctx, r1.ID)
		require.NoError(t, err)
		got2, err := tx.GetResult(ctx, r2.ID)
		require.NoError(t, err)
		assert.True(t, got1.IsHole())
		assert.False(t, got2.HadScan)
		return nil
	})
	require.NoError(t, err)
}

func TestScans_AppendAndShift(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContext(t, s, "race1")

	update(t, s, func(ctx context.Context, tx *Tx) error {
		for _, bib := range []string{"10", "20", "30"} {
			if _, err := tx.AppendScan(ctx, c.ID, bib); err != nil {
				return err
			}
		}
		// Make room at order 2 and fill it.
		if err := tx.ShiftScanOrders(ctx, c.ID, 2, 1); err != nil {
			return err
		}
		_, err := tx.InsertScanAt(ctx, c.ID, 2, model.BlankBib)
		return err
	})

	orders := func() map[string]int {
		m := map[string]int{}
		err := s.View(ctx, func(tx *Tx) error {
			scans, err := tx.ListScans(ctx, c.ID)
			require.NoError(t, err)
			for _, sc := range scans {
				m[sc.BibNumber] = sc.Order
			}
			return nil
		})
		require.NoError(t, err)
		return m
	}
	assert.Equal(t, map[string]int{"10": 1, model.BlankBib: 2, "20": 3, "30": 4}, orders())

	update(t, s, func(ctx context.Context, tx *Tx) error {
		scans, err := tx.ListScans(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteScan(ctx, scans[1].ID); err != nil {
			return err
		}
		return tx.ShiftScanOrders(ctx, c.ID, 3, -1)
	})
	assert.Equal(t, map[string]int{"10": 1, "20": 2, "30": 3}, orders())
}

func TestScans_Cursor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContext(t, s, "race1")

	var sc model.ScannedBib
	update(t, s, func(ctx context.Context, tx *Tx) error {
		var err error
		if sc, err = tx.AppendScan(ctx, c.ID, "7"); err != nil {
			return err
		}
		return tx.SetCursor(ctx, c.ID, sc.ID)
	})

	err := s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetCursor(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, sc.ID, got)
		return nil
	})
	require.NoError(t, err)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SetCursor(ctx, c.ID, 0)
	})
	err = s.View(ctx, func(tx *Tx) error {
		got, err := tx.GetCursor(ctx, c.ID)
		require.NoError(t, err)
		assert.Zero(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestScans_DeleteMissing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.DeleteScan(ctx, 99)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
