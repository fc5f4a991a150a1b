package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/finishline/internal/export"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
)

func TestLiteralRaceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	r1 := f.result(1, 601.23)
	assert.Equal(t, 1, r1.Place)
	assert.False(t, r1.HadScan)

	s1 := f.scan("42")
	assert.Equal(t, 1, s1.Order)

	b := f.board()
	require.Len(t, b.Results, 1)
	assert.True(t, b.Results[0].HadScan)
	assert.Equal(t, s1.ID, b.Results[0].ScanID)
	assert.Empty(t, b.Results[0].BibNumber, "matching does not set the bib")

	r1, err := f.e.Correct(ctx, model.Correction{Action: model.ActionUse, ResultID: r1.ID, ScanID: s1.ID})
	require.NoError(t, err)
	assert.Equal(t, "42", r1.BibNumber)

	r2 := f.result(2, 610.50)
	assert.Equal(t, 2, r2.Place)

	confirmed, err := f.e.Confirm(ctx, r2.ID)
	require.NoError(t, err)
	require.Len(t, confirmed, 2)
	assert.Equal(t, r1.ID, confirmed[0].ID)
	assert.Equal(t, r2.ID, confirmed[1].ID)
	assert.Equal(t, "1,42,00:10:01.23\r\n2,,00:10:10.50\r\n", f.artifact())

	err = f.e.DeleteResult(ctx, r1.ID)
	require.Error(t, err)
	assert.True(t, IsParameter(err), "got %v", err)
	assert.Len(t, f.board().Results, 2)

	// activate rewrote, the first result rewrote, confirm appended.
	assert.Equal(t, []string{"rewrite:0", "rewrite:0", "append:2"}, f.writer.Calls())
}

func TestConfirm_PrefixAndIdempotent(t *testing.T) {
	f := newFixture(t)
	r1 := f.result(1, 10)
	r2 := f.result(2, 20)
	r3 := f.result(3, 30)

	confirmed, err := f.e.Confirm(f.ctx, r2.ID)
	require.NoError(t, err)
	assert.Len(t, confirmed, 2)

	again, err := f.e.Confirm(f.ctx, r1.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	confirmed, err = f.e.Confirm(f.ctx, r3.ID)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, r3.ID, confirmed[0].ID)

	assert.Equal(t, "1,,00:00:10.00\r\n2,,00:00:20.00\r\n3,,00:00:30.00\r\n", f.artifact())
	assert.Equal(t, []string{"rewrite:0", "rewrite:0", "append:2", "append:1"}, f.writer.Calls())
}

func TestConfirm_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.e.Confirm(f.ctx, 999)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestConfirm_EarlierArrivalForcesRewrite(t *testing.T) {
	f := newFixture(t)
	f.result(1, 10)
	r2 := f.result(2, 20)
	_, err := f.e.Confirm(f.ctx, r2.ID)
	require.NoError(t, err)

	// A late result finishing first lands at place 1, unconfirmed.
	late := f.result(3, 5)
	assert.Equal(t, 1, late.Place)
	assert.False(t, late.Confirmed)

	_, err = f.e.Confirm(f.ctx, late.ID)
	require.NoError(t, err)

	assert.Equal(t, "3,,00:00:05.00\r\n1,,00:00:10.00\r\n2,,00:00:20.00\r\n", f.artifact())
	calls := f.writer.Calls()
	assert.Equal(t, "rewrite:3", calls[len(calls)-1])
}

func TestPlaceColumn_ReplacementRewritesOnPlaceShift(t *testing.T) {
	f := newFixture(t, WithPositionColumn(export.PositionPlace))
	f.result(1, 10)
	r2 := f.result(2, 20)
	_, err := f.e.Confirm(f.ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, "1,,00:00:10.00\r\n2,,00:00:20.00\r\n", f.artifact())

	// Confirmed rows move down a place, so the projection changes.
	f.result(3, 5)
	assert.Equal(t, "2,,00:00:10.00\r\n3,,00:00:20.00\r\n", f.artifact())
}

func TestSubmitResult_Ordering(t *testing.T) {
	f := newFixture(t)
	f.result(1, 30)
	f.result(2, 10)
	f.result(3, 20)
	f.result(5, 20) // tie broken by device position
	f.result(4, 20)

	b := f.board()
	var got []int
	for _, r := range b.Results {
		got = append(got, r.DevicePosition)
	}
	assert.Equal(t, []int{2, 3, 4, 5, 1}, got)
}

func TestSubmitResult_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.e.SubmitResult(f.ctx, f.race.ID, ResultInput{DevicePosition: 1, Time: -1})
	assert.True(t, IsParameter(err))

	_, err = f.e.SubmitResult(f.ctx, f.race.ID, ResultInput{DevicePosition: 1, Time: 1, BibNumber: "abc"})
	assert.True(t, IsParameter(err))

	_, err = f.e.SubmitResult(f.ctx, 999, ResultInput{DevicePosition: 1, Time: 1})
	assert.True(t, IsNotFound(err))
}

func TestSubmitResult_InheritsHoleFromFollower(t *testing.T) {
	f := newFixture(t)
	f.matched(3)

	mid := f.result(9, 101.5)
	assert.Equal(t, 2, mid.Place)
	assert.True(t, mid.IsHole(), "a result slotted among matched results becomes a hole")
	assert.Equal(t, []string{"1", "-", "2", "3"}, slotBibs(f.board()))

	// A result after every matched one waits for the next scan.
	last := f.result(10, 200)
	assert.False(t, last.HadScan)
	f.scan("77")
	assert.Equal(t, []string{"1", "-", "2", "3", "77"}, slotBibs(f.board()))
}

func TestSubmitScan_NormalizesBib(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "42", f.scan("0042").BibNumber)
	assert.Equal(t, model.BlankBib, f.scan("0000").BibNumber)
	assert.Equal(t, "42", f.scan("０４２").BibNumber)

	_, err := f.e.SubmitScan(f.ctx, f.race.ID, "  ")
	assert.True(t, IsParameter(err))

	_, err = f.e.SubmitScan(f.ctx, f.race.ID, "00000")
	assert.True(t, IsParameter(err), "got %v", err)
	assert.Len(t, f.board().Scans, 3)
}

func TestSubmitScan_QueuesUntilResultArrives(t *testing.T) {
	f := newFixture(t)
	f.scan("5")
	f.scan("6")

	b := f.board()
	assert.Len(t, b.Pending(), 2)

	f.result(1, 10)
	assert.Equal(t, []string{"5"}, slotBibs(f.board()))
	assert.Len(t, f.board().Pending(), 1)
}

func TestCorrect_Use(t *testing.T) {
	f := newFixture(t)
	b := f.matched(2)

	// use accepts any scan in the context, not only the linked one.
	r, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionUse, ResultID: b.Results[0].ID, ScanID: b.Scans[1].ID})
	require.NoError(t, err)
	assert.Equal(t, "2", r.BibNumber)
	assert.Equal(t, []string{"1", "2"}, slotBibs(f.board()), "use does not move scans")
}

func TestCorrect_Rejections(t *testing.T) {
	f := newFixture(t)
	b := f.matched(3)
	r1, r2 := b.Results[0], b.Results[1]
	s1, s2 := b.Scans[0], b.Scans[1]

	other, err := f.e.CreateContext(f.ctx, model.Context{Name: "race2"})
	require.NoError(t, err)
	foreign, err := f.e.SubmitScan(f.ctx, other.ID, "9")
	require.NoError(t, err)

	tests := []struct {
		name  string
		c     model.Correction
		check func(error) bool
	}{
		{"unknown action", model.Correction{Action: "swap", ResultID: r1.ID, ScanID: s1.ID}, IsParameter},
		{"missing result", model.Correction{Action: model.ActionUse, ResultID: 999, ScanID: s1.ID}, IsNotFound},
		{"missing scan", model.Correction{Action: model.ActionUse, ResultID: r1.ID, ScanID: 999}, IsNotFound},
		{"foreign scan", model.Correction{Action: model.ActionUse, ResultID: r1.ID, ScanID: foreign.ID}, IsParameter},
		{"insert with other scan", model.Correction{Action: model.ActionInsert, ResultID: r1.ID, ScanID: s2.ID}, IsParameter},
		{"delete with other scan", model.Correction{Action: model.ActionDelete, ResultID: r2.ID, ScanID: s1.ID}, IsParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.e.Correct(f.ctx, tt.c)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
	assert.Equal(t, []string{"1", "2", "3"}, slotBibs(f.board()))

	_, err = f.e.Confirm(f.ctx, r1.ID)
	require.NoError(t, err)
	for _, action := range model.Actions {
		_, err := f.e.Correct(f.ctx, model.Correction{Action: action, ResultID: r1.ID, ScanID: s1.ID})
		assert.True(t, IsParameter(err), "%s on confirmed result: got %v", action, err)
	}
}

func TestCorrect_ShiftAcrossConfirmedRejected(t *testing.T) {
	f := newFixture(t)
	f.result(1, 10)
	r2 := f.result(2, 20)
	_, err := f.e.Confirm(f.ctx, r2.ID)
	require.NoError(t, err)

	// A late result lands ahead of the confirmed rows.
	late := f.result(3, 5)
	require.Equal(t, 1, late.Place)
	f.scan("7")
	f.scan("8")
	f.scan("9")
	b := f.board()
	require.Equal(t, []string{"7", "8", "9"}, slotBibs(b))
	late = b.Results[0]

	for _, action := range []model.Action{model.ActionInsert, model.ActionDelete} {
		_, err := f.e.Correct(f.ctx, model.Correction{Action: action, ResultID: late.ID, ScanID: late.ScanID})
		require.Error(t, err)
		assert.True(t, IsParameter(err), "%s: got %v", action, err)
	}

	after := f.board()
	assert.Equal(t, []string{"7", "8", "9"}, slotBibs(after))
	assert.Len(t, after.Scans, 3)

	// use touches only the unconfirmed result.
	r, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionUse, ResultID: late.ID, ScanID: late.ScanID})
	require.NoError(t, err)
	assert.Equal(t, "7", r.BibNumber)
}

func TestCorrect_InsertShiftsScansDown(t *testing.T) {
	f := newFixture(t)
	b := f.matched(3)

	r, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionInsert, ResultID: b.Results[0].ID, ScanID: b.Scans[0].ID})
	require.NoError(t, err)

	after := f.board()
	assert.Equal(t, []string{model.BlankBib, "1", "2"}, slotBibs(after))
	assert.Equal(t, after.Results[0].ScanID, r.ScanID)

	// The scan pushed off the end is the front of the queue.
	s3 := b.Scans[2]
	assert.Equal(t, s3.ID, after.Cursor)
	require.Len(t, after.Pending(), 1)
	assert.Equal(t, s3.ID, after.Pending()[0].ID)

	orders := map[string]int{}
	for _, s := range after.Scans {
		orders[s.BibNumber] = s.Order
	}
	assert.Equal(t, map[string]int{model.BlankBib: 1, "1": 2, "2": 3, "3": 4}, orders)

	// The next result consumes the queued scan and clears the cursor.
	f.result(4, 500)
	final := f.board()
	assert.Equal(t, []string{model.BlankBib, "1", "2", "3"}, slotBibs(final))
	assert.Zero(t, final.Cursor)
}

func TestCorrect_InsertWithUnmatchedTail(t *testing.T) {
	f := newFixture(t)
	f.matched(2)
	f.result(3, 200)
	f.result(4, 300)
	b := f.board()
	assert.Equal(t, []string{"1", "2", "", ""}, slotBibs(b))

	_, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionInsert, ResultID: b.Results[0].ID, ScanID: b.Scans[0].ID})
	require.NoError(t, err)

	after := f.board()
	assert.Equal(t, []string{model.BlankBib, "1", "2", ""}, slotBibs(after))
	assert.Zero(t, after.Cursor)
}

func TestCorrect_InsertCarriesHoleDown(t *testing.T) {
	f := newFixture(t)
	f.matched(2)
	f.result(9, 101.5) // hole at place 2
	b := f.board()
	require.Equal(t, []string{"1", "-", "2"}, slotBibs(b))

	_, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionInsert, ResultID: b.Results[0].ID, ScanID: b.Scans[0].ID})
	require.NoError(t, err)

	after := f.board()
	assert.Equal(t, []string{model.BlankBib, "1", "-"}, slotBibs(after))
	assert.Equal(t, b.Scans[1].ID, after.Cursor, "scan 2 was pushed off the end")
}

func TestCorrect_DeleteShiftsScansUp(t *testing.T) {
	f := newFixture(t)
	b := f.matched(3)

	_, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionDelete, ResultID: b.Results[0].ID, ScanID: b.Scans[0].ID})
	require.NoError(t, err)

	after := f.board()
	assert.Equal(t, []string{"2", "3", ""}, slotBibs(after))
	assert.False(t, after.Results[2].HadScan)
	require.Len(t, after.Scans, 2)
	assert.Equal(t, 1, after.Scans[0].Order)
	assert.Equal(t, 2, after.Scans[1].Order)

	// The emptied slot fills from the next scan.
	f.scan("4")
	assert.Equal(t, []string{"2", "3", "4"}, slotBibs(f.board()))
}

func TestCorrect_DeleteBackfillsFromPendingQueue(t *testing.T) {
	f := newFixture(t)
	f.matched(2)
	f.scan("3") // pending
	b := f.board()
	require.Len(t, b.Pending(), 1)

	_, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionDelete, ResultID: b.Results[0].ID, ScanID: b.Scans[0].ID})
	require.NoError(t, err)

	after := f.board()
	assert.Equal(t, []string{"2", "3"}, slotBibs(after))
	assert.Empty(t, after.Pending())
}

func TestCorrect_InsertDeleteRoundTrip(t *testing.T) {
	for _, k := range []int{0, 1, 2, 3} {
		f := newFixture(t)
		b := f.matched(4)
		want := slotBibs(b)

		this := b.Results[k]
		inserted, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionInsert, ResultID: this.ID, ScanID: this.ScanID})
		require.NoError(t, err)

		_, err = f.e.Correct(f.ctx, model.Correction{Action: model.ActionDelete, ResultID: this.ID, ScanID: inserted.ScanID})
		require.NoError(t, err)

		after := f.board()
		assert.Equal(t, want, slotBibs(after), "insert then delete at place %d", k+1)
		assert.Zero(t, after.Cursor)
		assert.Len(t, after.Scans, 4)
	}
}

func TestDeleteResult(t *testing.T) {
	f := newFixture(t)
	f.matched(1)
	r2 := f.result(2, 300)
	r3 := f.result(3, 400)

	require.NoError(t, f.e.DeleteResult(f.ctx, r2.ID))

	b := f.board()
	require.Len(t, b.Results, 2)
	assert.Equal(t, r3.ID, b.Results[1].ID)
	assert.Equal(t, 2, b.Results[1].Place)

	err := f.e.DeleteResult(f.ctx, r2.ID)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestDeleteResult_ConfirmedRowRewrites(t *testing.T) {
	f := newFixture(t)
	f.result(1, 10)
	r2 := f.result(2, 20)
	_, err := f.e.Confirm(f.ctx, r2.ID)
	require.NoError(t, err)

	require.NoError(t, f.e.DeleteResult(f.ctx, r2.ID))
	assert.Equal(t, "1,,00:00:10.00\r\n", f.artifact())
}

func TestUpdateResult_ReorderKeepsSlotsPositional(t *testing.T) {
	f := newFixture(t)
	b := f.matched(2)

	later := 300.0
	r, err := f.e.UpdateResult(f.ctx, b.Results[0].ID, ResultUpdate{Time: &later})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Place)

	after := f.board()
	assert.Equal(t, b.Results[1].ID, after.Results[0].ID)
	assert.Equal(t, []string{"1", "2"}, slotBibs(after))
}

func TestUpdateResult_ReorderAcrossConfirmedRejected(t *testing.T) {
	f := newFixture(t)
	b := f.matched(2)
	_, err := f.e.Confirm(f.ctx, b.Results[0].ID)
	require.NoError(t, err)

	// Moving r2 ahead would hand the confirmed r1 a different scan.
	early := 5.0
	_, err = f.e.UpdateResult(f.ctx, b.Results[1].ID, ResultUpdate{Time: &early})
	require.Error(t, err)
	assert.True(t, IsParameter(err), "got %v", err)

	after := f.board()
	assert.Equal(t, b.Results[0].ID, after.Results[0].ID)
	assert.Equal(t, []string{"1", "2"}, slotBibs(after))
	assert.Equal(t, "1,,00:01:41.00\r\n", f.artifact())
}

func TestUpdateResult_ConfirmedRowRewrites(t *testing.T) {
	f := newFixture(t)
	r1 := f.result(1, 10)
	_, err := f.e.Confirm(f.ctx, r1.ID)
	require.NoError(t, err)

	bib := "88"
	_, err = f.e.UpdateResult(f.ctx, r1.ID, ResultUpdate{BibNumber: &bib})
	require.NoError(t, err)
	assert.Equal(t, "1,88,00:00:10.00\r\n", f.artifact())

	calls := f.writer.Calls()
	assert.Equal(t, "rewrite:1", calls[len(calls)-1])

	bad := "x1"
	_, err = f.e.UpdateResult(f.ctx, r1.ID, ResultUpdate{BibNumber: &bad})
	assert.True(t, IsParameter(err))
}

func TestExportFailure_LeavesDirtyAndRecovers(t *testing.T) {
	f := newFixture(t)
	r1 := f.result(1, 10)

	f.writer.setFail(errors.New("disk full"))
	confirmed, err := f.e.Confirm(f.ctx, r1.ID)
	require.NoError(t, err, "a failed artifact write does not fail the operation")
	assert.Len(t, confirmed, 1)
	assert.True(t, f.board().Context.ExportDirty)
	assert.Equal(t, 1, f.metrics.Export("append/error"))

	err = f.e.Rewrite(f.ctx, f.race.ID)
	assert.True(t, IsExportIO(err), "got %v", err)

	f.writer.setFail(nil)
	f.scan("5") // unrelated edit; dirty context rewrites
	assert.Equal(t, "1,,00:00:10.00\r\n", f.artifact())
	assert.False(t, f.board().Context.ExportDirty)
}

func TestRewrite_RegeneratesDeletedArtifact(t *testing.T) {
	f := newFixture(t)
	r1 := f.result(1, 10)
	_, err := f.e.Confirm(f.ctx, r1.ID)
	require.NoError(t, err)
	want := f.artifact()
	require.NoError(t, removeFile(f.dir, "results.csv"))

	require.NoError(t, f.e.Rewrite(f.ctx, f.race.ID))
	assert.Equal(t, want, f.artifact())
}

func TestAppendToMissingArtifactRewrites(t *testing.T) {
	f := newFixture(t)
	r1 := f.result(1, 10)
	r2 := f.result(2, 20)
	_, err := f.e.Confirm(f.ctx, r1.ID)
	require.NoError(t, err)

	require.NoError(t, removeFile(f.dir, "results.csv"))
	_, err = f.e.Confirm(f.ctx, r2.ID)
	require.NoError(t, err)

	assert.Equal(t, "1,,00:00:10.00\r\n2,,00:00:20.00\r\n", f.artifact())
}

func TestOutputTarget(t *testing.T) {
	f := newFixture(t)

	target, err := f.e.OutputTarget(f.ctx, f.race.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "results.csv"), target)

	// Inactive contexts without their own file do not export.
	other, err := f.e.CreateContext(f.ctx, model.Context{Name: "race2"})
	require.NoError(t, err)
	target, err = f.e.OutputTarget(f.ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, target)

	own, err := f.e.CreateContext(f.ctx, model.Context{Name: "sim", Kind: model.KindSimulation, OutputFile: "sim.csv"})
	require.NoError(t, err)
	target, err = f.e.OutputTarget(f.ctx, own.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "sim.csv"), target)
}

func TestActivate_SwitchesArtifact(t *testing.T) {
	f := newFixture(t)
	r1 := f.result(1, 10)
	_, err := f.e.Confirm(f.ctx, r1.ID)
	require.NoError(t, err)

	other, err := f.e.CreateContext(f.ctx, model.Context{Name: "race2"})
	require.NoError(t, err)
	require.NoError(t, f.e.Activate(f.ctx, other.ID))
	assert.Empty(t, f.artifact())

	active, ok, err := f.e.ActiveContext(f.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, other.ID, active.ID)

	require.NoError(t, f.e.SetSetting(f.ctx, store.SettingActiveContext, fmt.Sprint(f.race.ID)))
	assert.Equal(t, "1,,00:00:10.00\r\n", f.artifact())
}

func TestCreateContext_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.e.CreateContext(f.ctx, model.Context{Name: " "})
	assert.True(t, IsParameter(err))

	_, err = f.e.CreateContext(f.ctx, model.Context{Name: "race1"})
	assert.True(t, IsParameter(err), "duplicate name: got %v", err)

	_, err = f.e.CreateContext(f.ctx, model.Context{Name: "x", Kind: "practice"})
	assert.True(t, IsParameter(err))
}

func TestNotificationsAndMetrics(t *testing.T) {
	f := newFixture(t)
	r1 := f.result(1, 10)
	_ = f.e.DeleteResult(f.ctx, 999)

	changes := f.notifier.Changes()
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1]
	assert.Equal(t, f.race.ID, last.ContextID)
	assert.Equal(t, OpSubmitResult, last.Op)
	assert.NotEmpty(t, last.Token)
	for i := 1; i < len(changes); i++ {
		assert.Greater(t, changes[i].Seq, changes[i-1].Seq, "change sequence must increase")
	}

	assert.Equal(t, 1, f.metrics.Op(OpSubmitResult+"/"+OutcomeOK))
	assert.GreaterOrEqual(t, f.metrics.waits, 1)

	_, err := f.e.Correct(f.ctx, model.Correction{Action: model.ActionUse, ResultID: r1.ID, ScanID: 12345})
	require.Error(t, err)
	assert.Equal(t, 1, f.metrics.Op(OpCorrectUse+"/"+OutcomeRejected))

	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.NotEmpty(t, ee.Token, "rejections carry the operation token")
}

func TestConcurrentArrivals(t *testing.T) {
	f := newFixture(t)
	const n = 25

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.e.SubmitResult(context.Background(), f.race.ID, ResultInput{DevicePosition: i, Time: float64(i)})
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := f.e.SubmitScan(context.Background(), f.race.ID, "7")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	b := f.board()
	assert.Len(t, b.Results, n)
	assert.Len(t, b.Scans, n)

	// Late arrivals can become holes, leaving scans queued, but every scan
	// is either linked or pending and nothing waits beside an open result.
	linked := 0
	for _, r := range b.Results {
		if r.HasScan() {
			linked++
		}
	}
	assert.Equal(t, n, linked+len(b.Pending()))
	if len(b.Pending()) > 0 {
		assert.Empty(t, b.Unmatched())
	}
}
