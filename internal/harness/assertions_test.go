package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/finishline/internal/store"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddTrace(StepResult, map[string]any{"device_position": 1, "time": 10.5}, OutcomeOK, nil)
	r.AddTrace(StepScan, map[string]any{"bib": "42"}, OutcomeOK, nil)
	r.AddTrace(StepUse, map[string]any{"result": "r1", "scan": "s1"}, OutcomeOK, nil)
	r.AddTrace(StepConfirm, map[string]any{"result": "r1"}, OutcomeOK, nil)
	r.AddTrace(StepDeleteResult, map[string]any{"result": "r1"}, "PARAMETER", nil)
	return r.Trace
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name string
		a    Assertion
		ok   bool
	}{
		{"op only", Assertion{Op: StepScan}, true},
		{"subset args", Assertion{Op: StepUse, Args: map[string]any{"scan": "s1"}}, true},
		{"numeric coercion", Assertion{Op: StepResult, Args: map[string]any{"device_position": int64(1)}}, true},
		{"wrong args", Assertion{Op: StepScan, Args: map[string]any{"bib": "7"}}, false},
		{"missing key", Assertion{Op: StepScan, Args: map[string]any{"order": 1}}, false},
		{"absent op", Assertion{Op: StepInsert}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, tt.a)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceContains, ae.Type)
			assert.Len(t, ae.Trace, len(trace))
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{StepResult, StepConfirm}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{StepScan, StepUse, StepDeleteResult}}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{StepConfirm, StepScan}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scan after [confirm]")

	err = assertTraceOrder(trace, Assertion{Ops: []string{StepResult, StepInsert}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no insert after [result]")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Op: StepScan, Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: StepInsert, Count: 0}))

	err := assertTraceCount(trace, Assertion{Op: StepScan, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences of scan")
	assert.Contains(t, err.Error(), "Actual: 1 occurrences")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 occurrences of scan",
		Actual:   "1 occurrences",
		Trace:    sampleTrace()[:2],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 occurrences of scan")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[2] scan map[bib:42] -> ok")

	noTrace := &AssertionError{Type: AssertSlots, Expected: "a", Actual: "b"}
	assert.NotContains(t, noTrace.Error(), "Full trace")
}

func TestEvaluateAssertions_BoardChecks(t *testing.T) {
	r := NewResult()
	r.Trace = sampleTrace()
	r.Slots = []string{"42", "-", ""}
	r.Pending = []string{"9"}
	r.Cursor = "9"
	r.Artifact = "1,42,00:00:10.50\r\n"

	pass := []Assertion{
		{Type: AssertSlots, Slots: []string{"42", "-", ""}},
		{Type: AssertPending, Bibs: []string{"9"}},
		{Type: AssertCursor, Bib: "9"},
		{Type: AssertArtifact, Content: "1,42,00:00:10.50\r\n"},
		{Type: AssertTraceCount, Op: StepResult, Count: 1},
	}
	assert.Empty(t, EvaluateAssertions(r, pass, nil))

	fail := []Assertion{
		{Type: AssertSlots, Slots: []string{"42", "", ""}},
		{Type: AssertPending},
		{Type: AssertCursor},
		{Type: AssertArtifact, Content: ""},
		{Type: "vibes"},
		{Type: AssertFinalState, Table: "results", Where: map[string]any{"id": 1}},
	}
	errs := EvaluateAssertions(r, fail, nil)
	require.Len(t, errs, len(fail))
	assert.Contains(t, errs[0], "Assertion failed: slots")
	assert.Contains(t, errs[1], "Assertion failed: pending")
	assert.Contains(t, errs[2], "Assertion failed: cursor")
	assert.Contains(t, errs[3], "Assertion failed: artifact")
	assert.Contains(t, errs[4], `unknown assertion type "vibes"`)
	assert.Contains(t, errs[5], "final_state requires database context")
}

func TestLooseEqual(t *testing.T) {
	assert.True(t, looseEqual(1, int64(1)))
	assert.True(t, looseEqual(json.Number("2"), 2))
	assert.True(t, looseEqual(json.Number("601.23"), 601.23))
	assert.True(t, looseEqual(true, true))
	assert.True(t, looseEqual("42", "42"))
	assert.True(t, looseEqual(nil, nil))
	assert.False(t, looseEqual(json.Number("2"), "2"))
	assert.False(t, looseEqual(nil, 0))
	assert.False(t, looseEqual(1, 2))
}

func TestMatchArgs_SubsetSemantics(t *testing.T) {
	actual := map[string]any{"bib_number": "42", "place": json.Number("1"), "had_scanned_bib": true}

	assert.True(t, matchArgs(actual, nil))
	assert.True(t, matchArgs(actual, map[string]any{"place": 1}))
	assert.True(t, matchArgs(actual, map[string]any{"bib_number": "42", "had_scanned_bib": true}))
	assert.False(t, matchArgs(actual, map[string]any{"place": 2}))
	assert.False(t, matchArgs(actual, map[string]any{"scan_id": 3}))
	assert.False(t, matchArgs(nil, map[string]any{"place": 1}))
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	sql, args, err = buildWhereClause(map[string]any{"place": 1, "context_id": 2, "is_confirmed": true})
	require.NoError(t, err)
	assert.Equal(t, "context_id = ? AND is_confirmed = ? AND place = ?", sql)
	assert.Equal(t, []any{2, 1, 1}, args)

	_, _, err = buildWhereClause(map[string]any{"place; DROP TABLE results": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "bib_number=42 AND place=1", formatWhereClause(map[string]any{"place": 1, "bib_number": "42"}))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("42", "42"))
	assert.True(t, stateValuesEqual("42", []byte("42")))
	assert.False(t, stateValuesEqual("42", int64(42)))
	assert.True(t, stateValuesEqual(1, int64(1)))
	assert.True(t, stateValuesEqual(601.23, 601.23))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.False(t, stateValuesEqual(true, int64(0)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual("", nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedFinishers(t *testing.T, st *store.Store) {
	t.Helper()
	_, err := st.DB().Exec(`
		CREATE TABLE finishers (
			bib   TEXT PRIMARY KEY,
			place INTEGER,
			time  REAL,
			done  INTEGER
		)
	`)
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO finishers VALUES ('42', 1, 601.23, 1), ('7', 2, 610.5, 0), ('8', 2, 611, 0)`)
	require.NoError(t, err)
}

func TestAssertFinalState(t *testing.T) {
	st := setupTestStore(t)
	seedFinishers(t, st)
	ctx := context.Background()

	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{
			name: "row matches",
			a: Assertion{Table: "finishers", Where: map[string]any{"bib": "42"},
				Expect: map[string]any{"place": 1, "time": 601.23, "done": true}},
		},
		{
			name: "empty expect",
			a:    Assertion{Table: "finishers", Where: map[string]any{"bib": "7"}},
		},
		{
			name: "row not found",
			a:    Assertion{Table: "finishers", Where: map[string]any{"bib": "99"}},
			want: "row not found",
		},
		{
			name: "ambiguous",
			a:    Assertion{Table: "finishers", Where: map[string]any{"place": 2}},
			want: "multiple rows matched",
		},
		{
			name: "value mismatch",
			a: Assertion{Table: "finishers", Where: map[string]any{"bib": "42"},
				Expect: map[string]any{"place": 2}},
			want: `field "place" = 2`,
		},
		{
			name: "missing column",
			a: Assertion{Table: "finishers", Where: map[string]any{"bib": "42"},
				Expect: map[string]any{"scan": 1}},
			want: `field "scan" not present`,
		},
		{
			name: "unknown table",
			a:    Assertion{Table: "nope", Where: map[string]any{"bib": "42"}},
			want: "query error",
		},
		{
			name: "invalid table name",
			a:    Assertion{Table: "finishers; DROP TABLE finishers", Where: map[string]any{"bib": "42"}},
			want: "invalid table name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.a)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEvaluateAssertions_FinalStateWithContext(t *testing.T) {
	st := setupTestStore(t)
	seedFinishers(t, st)

	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "finishers", Where: map[string]any{"bib": "42"}, Expect: map[string]any{"place": 1}},
	}, &AssertionContext{Store: st, Ctx: context.Background()})
	assert.Empty(t, errs)
}
