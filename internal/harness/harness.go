package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/export"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
	"github.com/roach88/finishline/internal/testutil"
)

const defaultOutputFile = "results.csv"

// Harness executes one scenario against a real engine.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	outputDir string
	race      model.Context
	labels    map[string]int64
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with its own output
// directory.
//
// Execution flow:
// 1. Create the store, the engine, and the scenario context
// 2. Activate the context and set the output file
// 3. Execute steps, checking expectations and board invariants
// 4. Snapshot the final board and artifact
// 5. Evaluate assertions
//
// Run returns an error only when the scenario cannot be executed at all,
// e.g. a step references an unknown label. Failed expectations and
// assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	dir, err := os.MkdirTemp("", "finishline-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	defer os.RemoveAll(dir)

	col, err := export.ParsePositionColumn(scenario.PositionColumn)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store: st,
		engine: engine.New(st,
			engine.WithOutputDir(dir),
			engine.WithPositionColumn(col),
			engine.WithTokenGenerator(testutil.NewCountingTokenGenerator(scenario.Name)),
			engine.WithLogger(logger),
		),
		outputDir: dir,
		labels:    make(map[string]int64),
		logger:    logger,
	}

	ctx := context.Background()
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	board, err := h.engine.Board(ctx, h.race.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read final board: %w", err)
	}
	result.Slots = SlotView(board)
	result.Pending = pendingBibs(board)
	if s, ok := board.Scan(board.Cursor); ok {
		result.Cursor = s.BibNumber
	}
	if result.Artifact, err = h.artifact(ctx); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ctx: ctx, Store: st}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context, s *Scenario) error {
	race, err := h.engine.CreateContext(ctx, model.Context{
		Name:        s.Context.Name,
		Kind:        model.Kind(s.Context.Kind),
		Date:        s.Context.Date,
		StartOffset: s.Context.StartOffset,
	})
	if err != nil {
		return err
	}
	h.race = race

	out := s.OutputFile
	if out == "" {
		out = defaultOutputFile
	}
	if err := h.engine.SetSetting(ctx, store.SettingOutputFile, out); err != nil {
		return err
	}
	return h.engine.Activate(ctx, race.ID)
}

// executeStep runs one step, records it, and checks its expectation.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	out, id, err := h.invoke(ctx, step)

	outcome := OutcomeOK
	if err != nil {
		code := engine.CodeOf(err)
		if code == "" {
			return err
		}
		outcome = string(code)
	}
	seq := result.AddTrace(step.Op, step.Args, outcome, out)
	h.logger.Debug("step executed", "seq", seq, "op", step.Op, "outcome", outcome)

	if err == nil && step.As != "" {
		h.labels[step.As] = id
	}

	switch {
	case step.Expect != nil && step.Expect.Error != "":
		if outcome != step.Expect.Error {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %s", index, step.Op, step.Expect.Error, outcome))
		}
	case err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, step.Op, err))
	case step.Expect != nil:
		if !matchArgs(out, step.Expect.Result) {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected result %v, got %v", index, step.Op, step.Expect.Result, out))
		}
	}

	b, err := h.engine.Board(ctx, h.race.ID)
	if err != nil {
		return err
	}
	if err := engine.CheckBoard(b); err != nil {
		result.AddError(fmt.Sprintf("steps[%d] %s: board invariant violated: %v", index, step.Op, err))
	}
	return nil
}

// invoke dispatches a step to the engine. It returns the affected row as a
// map, the ID of the created row for labelling, and the engine error.
// Argument errors are returned as plain errors and abort the run.
func (h *Harness) invoke(ctx context.Context, step Step) (map[string]any, int64, error) {
	a := args(step.Args)
	switch step.Op {
	case StepResult:
		t, err := a.seconds("time")
		if err != nil {
			return nil, 0, err
		}
		pos, err := a.integer("device_position")
		if err != nil {
			return nil, 0, err
		}
		r, err := h.engine.SubmitResult(ctx, h.race.ID, engine.ResultInput{
			DevicePosition: pos,
			Time:           t,
			BibNumber:      a.text("bib"),
		})
		return rowMap(r, err), r.ID, err

	case StepScan:
		s, err := h.engine.SubmitScan(ctx, h.race.ID, a.text("bib"))
		return rowMap(s, err), s.ID, err

	case StepUse, StepInsert, StepDelete:
		resultID, err := h.ref(a, "result")
		if err != nil {
			return nil, 0, err
		}
		scanID, err := h.scanRef(ctx, a)
		if err != nil {
			return nil, 0, err
		}
		r, err := h.engine.Correct(ctx, model.Correction{
			Action:   model.Action(step.Op),
			ResultID: resultID,
			ScanID:   scanID,
		})
		return rowMap(r, err), 0, err

	case StepConfirm:
		resultID, err := h.ref(a, "result")
		if err != nil {
			return nil, 0, err
		}
		confirmed, err := h.engine.Confirm(ctx, resultID)
		if err != nil {
			return nil, 0, err
		}
		return map[string]any{"confirmed": len(confirmed)}, 0, nil

	case StepDeleteResult:
		resultID, err := h.ref(a, "result")
		if err != nil {
			return nil, 0, err
		}
		return nil, 0, h.engine.DeleteResult(ctx, resultID)

	case StepUpdateResult:
		resultID, err := h.ref(a, "result")
		if err != nil {
			return nil, 0, err
		}
		var u engine.ResultUpdate
		if a.has("bib") {
			bib := a.text("bib")
			u.BibNumber = &bib
		}
		if a.has("time") {
			t, err := a.seconds("time")
			if err != nil {
				return nil, 0, err
			}
			u.Time = &t
		}
		if a.has("device_position") {
			pos, err := a.integer("device_position")
			if err != nil {
				return nil, 0, err
			}
			u.DevicePosition = &pos
		}
		r, err := h.engine.UpdateResult(ctx, resultID, u)
		return rowMap(r, err), 0, err

	case StepRewrite:
		return nil, 0, h.engine.Rewrite(ctx, h.race.ID)

	case StepActivate:
		return nil, 0, h.engine.Activate(ctx, h.race.ID)

	case StepSetSetting:
		return nil, 0, h.engine.SetSetting(ctx, a.text("name"), a.text("value"))
	}
	return nil, 0, fmt.Errorf("unknown op %q", step.Op)
}

// ref resolves a label argument to a row ID. Integer arguments are taken
// as literal IDs so scenarios can reference rows that do not exist.
func (h *Harness) ref(a args, key string) (int64, error) {
	switch v := a[key].(type) {
	case string:
		id, ok := h.labels[v]
		if !ok {
			return 0, fmt.Errorf("unknown label %q", v)
		}
		return id, nil
	case int:
		return int64(v), nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be a label or an id, got %T", key, v)
	}
}

// scanRef resolves "scan" as a label or "scan_of" as the scan currently
// held by a labelled result.
func (h *Harness) scanRef(ctx context.Context, a args) (int64, error) {
	if !a.has("scan_of") {
		return h.ref(a, "scan")
	}
	resultID, err := h.ref(a, "scan_of")
	if err != nil {
		return 0, err
	}
	r, err := h.engine.Result(ctx, resultID)
	if err != nil {
		return 0, err
	}
	if !r.HasScan() {
		return 0, fmt.Errorf("result %d holds no scan", resultID)
	}
	return r.ScanID, nil
}

// artifact reads the context's export artifact. A missing file reads as
// empty.
func (h *Harness) artifact(ctx context.Context) (string, error) {
	path, err := h.engine.OutputTarget(ctx, h.race.ID)
	if err != nil || path == "" {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

// SlotView returns, per result in place order, the bib of its linked scan,
// "-" for a hole, or "" for an empty slot.
func SlotView(b engine.Board) []string {
	bibs := b.ScanBibs()
	out := make([]string, len(b.Results))
	for i, r := range b.Results {
		switch {
		case r.HasScan():
			out[i] = bibs[r.ScanID]
		case r.IsHole():
			out[i] = "-"
		}
	}
	return out
}

func pendingBibs(b engine.Board) []string {
	out := []string{}
	for _, s := range b.Pending() {
		out = append(out, s.BibNumber)
	}
	return out
}

// rowMap converts a returned row to a generic map for subset matching.
func rowMap(v any, err error) map[string]any {
	if err != nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

// args wraps step arguments decoded from YAML.
type args map[string]any

func (a args) has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a args) text(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (a args) integer(key string) (int, error) {
	switch v := a[key].(type) {
	case int:
		return v, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

// seconds accepts seconds as a number or an "hh:mm:ss.dd" string.
func (a args) seconds(key string) (float64, error) {
	switch v := a[key].(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		t, err := model.ParseElapsed(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return t, nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be seconds or hh:mm:ss.dd, got %T", key, v)
	}
}
