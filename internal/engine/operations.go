package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/finishline/internal/export"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
)

// ResultInput is a result arriving from a capture device.
type ResultInput struct {
	DevicePosition int     `json:"device_position"`
	Time           float64 `json:"time"`
	BibNumber      string  `json:"bib_number,omitempty"`
}

// ResultUpdate is an operator edit of a result. Nil fields are unchanged.
type ResultUpdate struct {
	BibNumber      *string  `json:"bib_number,omitempty"`
	Time           *float64 `json:"time,omitempty"`
	DevicePosition *int     `json:"device_position,omitempty"`
}

func validTime(t float64) bool {
	return t >= 0 && !math.IsNaN(t) && !math.IsInf(t, 0)
}

// CreateContext creates a race or simulation context.
func (e *Engine) CreateContext(ctx context.Context, c model.Context) (model.Context, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return model.Context{}, NewParameterError("context name is required")
	}
	kind, err := model.ParseKind(string(c.Kind))
	if err != nil {
		return model.Context{}, NewParameterError("%v", err)
	}
	c.Kind = kind
	if !validTime(c.StartOffset) {
		return model.Context{}, NewParameterError("start offset must be a non-negative number of seconds")
	}

	var created model.Context
	_, err = e.execute(ctx, OpCreateContext, 0, func(ctx context.Context, tx *store.Tx, op *operation) error {
		if _, err := tx.GetContextByName(ctx, c.Name); err == nil {
			return NewParameterError("context %q already exists", c.Name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		created, err = tx.CreateContext(ctx, c)
		if err != nil {
			return err
		}
		op.contextID = created.ID
		return nil
	})
	return created, err
}

// Activate makes contextID the active context and rewrites its artifact.
func (e *Engine) Activate(ctx context.Context, contextID int64) error {
	if _, err := e.Context(ctx, contextID); err != nil {
		return err
	}
	_, err := e.execute(ctx, OpActivate, contextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		op.forceRewrite = true
		return tx.SetSetting(ctx, store.SettingActiveContext, strconv.FormatInt(contextID, 10))
	})
	return err
}

// SetSetting stores a setting. Setting active-context activates that
// context; changing output-file rewrites the active context's artifact.
func (e *Engine) SetSetting(ctx context.Context, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewParameterError("setting name is required")
	}
	if name == store.SettingActiveContext {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return NewParameterError("active-context must be a context id, got %q", value)
		}
		return e.Activate(ctx, id)
	}

	active, ok, err := e.ActiveContext(ctx)
	if err != nil {
		return err
	}
	var contextID int64
	if ok {
		contextID = active.ID
	}
	_, err = e.execute(ctx, OpSetSetting, contextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		op.forceRewrite = name == store.SettingOutputFile
		return tx.SetSetting(ctx, name, value)
	})
	return err
}

// SubmitResult appends a result to a context.
//
// The new result takes its place by finish time. It inherits had_scanned_bib
// from the result that now follows it, so a result slotted in among matched
// results becomes a hole rather than stealing a later scan. The first result
// in a context creates the artifact.
func (e *Engine) SubmitResult(ctx context.Context, contextID int64, in ResultInput) (model.Result, error) {
	in.BibNumber = strings.TrimSpace(in.BibNumber)
	if !validTime(in.Time) {
		return model.Result{}, NewParameterError("time must be a non-negative number of seconds")
	}
	if in.DevicePosition < 0 {
		return model.Result{}, NewParameterError("device position must not be negative")
	}
	if err := model.ValidateBib(in.BibNumber); err != nil {
		return model.Result{}, NewParameterError("%v", err)
	}
	if _, err := e.Context(ctx, contextID); err != nil {
		return model.Result{}, err
	}

	var id int64
	op, err := e.execute(ctx, OpSubmitResult, contextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		existing, err := tx.ListResults(ctx, contextID)
		if err != nil {
			return err
		}
		op.forceRewrite = len(existing) == 0

		r, err := tx.InsertResult(ctx, model.Result{
			ContextID:      contextID,
			DevicePosition: in.DevicePosition,
			Time:           in.Time,
			BibNumber:      in.BibNumber,
		})
		if err != nil {
			return err
		}
		id = r.ID

		results, err := recomputePlaces(ctx, tx, contextID)
		if err != nil {
			return err
		}
		for i := range results {
			if results[i].ID == id && i+1 < len(results) && results[i+1].HadScan {
				return tx.SetHadScan(ctx, id, true)
			}
		}
		return nil
	})
	if err != nil {
		return model.Result{}, err
	}
	return op.result(id), nil
}

// SubmitScan appends a scanned bib to a context.
func (e *Engine) SubmitScan(ctx context.Context, contextID int64, bib string) (model.ScannedBib, error) {
	bib, err := model.ParseScan(bib)
	if err != nil {
		return model.ScannedBib{}, NewParameterError("%v", err)
	}
	if bib == "" {
		return model.ScannedBib{}, NewParameterError("bib number is required")
	}
	if _, err := e.Context(ctx, contextID); err != nil {
		return model.ScannedBib{}, err
	}

	var scan model.ScannedBib
	_, err = e.execute(ctx, OpSubmitScan, contextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		var err error
		scan, err = tx.AppendScan(ctx, contextID, bib)
		return err
	})
	if err != nil {
		return model.ScannedBib{}, err
	}
	return scan, nil
}

// Correct applies an operator correction to a result and one of its
// context's scans. Confirmed results reject every correction, and insert or
// delete on an earlier result is rejected if it would shift a confirmed
// result's scan. Insert and delete additionally require the scan to be the
// one the result holds.
func (e *Engine) Correct(ctx context.Context, c model.Correction) (model.Result, error) {
	if err := c.Validate(); err != nil {
		return model.Result{}, NewParameterError("%v", err)
	}
	r, err := e.Result(ctx, c.ResultID)
	if err != nil {
		return model.Result{}, err
	}

	name := map[model.Action]string{
		model.ActionUse:    OpCorrectUse,
		model.ActionInsert: OpCorrectInsert,
		model.ActionDelete: OpCorrectDelete,
	}[c.Action]

	op, err := e.execute(ctx, name, r.ContextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		b, err := loadBoard(ctx, tx, r.ContextID)
		if err != nil {
			return err
		}
		k := b.Index(r.ID)
		if k < 0 {
			return NewNotFoundError("result", r.ID)
		}
		this := b.Results[k]
		if this.Confirmed {
			return NewParameterError("result %d is confirmed and cannot be corrected", this.ID)
		}

		scan, ok := b.Scan(c.ScanID)
		if !ok {
			if _, err := tx.GetScan(ctx, c.ScanID); err != nil {
				return translate(err, "scan", c.ScanID)
			}
			return NewParameterError("scan %d belongs to another context", c.ScanID)
		}

		if c.Action != model.ActionUse && this.ScanID != scan.ID {
			return NewParameterError("scan %d is not assigned to result %d", scan.ID, this.ID)
		}

		switch c.Action {
		case model.ActionUse:
			_, err = useScan(ctx, tx, this, scan)
		case model.ActionInsert:
			err = insertBlank(ctx, tx, b, k, e.logger.With("token", op.token))
		case model.ActionDelete:
			err = deleteScan(ctx, tx, b, k)
		}
		return err
	})
	if err != nil {
		return model.Result{}, err
	}
	return op.result(r.ID), nil
}

// Confirm confirms every unconfirmed result placed at or before the given
// result and returns the newly confirmed rows in place order. Confirming an
// already confirmed prefix is a no-op.
func (e *Engine) Confirm(ctx context.Context, resultID int64) ([]model.Result, error) {
	r, err := e.Result(ctx, resultID)
	if err != nil {
		return nil, err
	}

	var ids []int64
	op, err := e.execute(ctx, OpConfirm, r.ContextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		results, err := tx.ListResults(ctx, r.ContextID)
		if err != nil {
			return err
		}
		place := 0
		for _, res := range results {
			if res.ID == resultID {
				place = res.Place
			}
		}
		if place == 0 {
			return NewNotFoundError("result", resultID)
		}
		for _, res := range results {
			if res.Place <= place && !res.Confirmed {
				ids = append(ids, res.ID)
			}
		}
		_, err = tx.ConfirmResults(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	confirmed := make([]model.Result, 0, len(ids))
	for _, id := range ids {
		confirmed = append(confirmed, op.result(id))
	}
	return confirmed, nil
}

// DeleteResult removes a result that holds no scan and re-derives places.
func (e *Engine) DeleteResult(ctx context.Context, resultID int64) error {
	r, err := e.Result(ctx, resultID)
	if err != nil {
		return err
	}
	_, err = e.execute(ctx, OpDeleteResult, r.ContextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		cur, err := tx.GetResult(ctx, resultID)
		if err != nil {
			return translate(err, "result", resultID)
		}
		if cur.HasScan() {
			return NewParameterError("cannot delete result %d with scanned bib %d assigned: unlink first", cur.ID, cur.ScanID)
		}
		if err := tx.DeleteResult(ctx, resultID); err != nil {
			return err
		}
		_, err = recomputePlaces(ctx, tx, r.ContextID)
		return err
	})
	return err
}

// UpdateResult edits a result. If the edit reorders results, scan slots
// stay with their places; a reorder that would change the scan of another
// confirmed result is rejected. Editing a confirmed result rewrites the
// artifact.
func (e *Engine) UpdateResult(ctx context.Context, resultID int64, u ResultUpdate) (model.Result, error) {
	if u.Time != nil && !validTime(*u.Time) {
		return model.Result{}, NewParameterError("time must be a non-negative number of seconds")
	}
	if u.DevicePosition != nil && *u.DevicePosition < 0 {
		return model.Result{}, NewParameterError("device position must not be negative")
	}
	if u.BibNumber != nil {
		bib := strings.TrimSpace(*u.BibNumber)
		if err := model.ValidateBib(bib); err != nil {
			return model.Result{}, NewParameterError("%v", err)
		}
		u.BibNumber = &bib
	}
	r, err := e.Result(ctx, resultID)
	if err != nil {
		return model.Result{}, err
	}

	op, err := e.execute(ctx, OpUpdateResult, r.ContextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		before, err := tx.ListResults(ctx, r.ContextID)
		if err != nil {
			return err
		}
		cur, err := tx.GetResult(ctx, resultID)
		if err != nil {
			return translate(err, "result", resultID)
		}
		if u.BibNumber != nil {
			cur.BibNumber = *u.BibNumber
		}
		if u.Time != nil {
			cur.Time = *u.Time
		}
		if u.DevicePosition != nil {
			cur.DevicePosition = *u.DevicePosition
		}
		if err := tx.UpdateResultFields(ctx, cur); err != nil {
			return err
		}
		after, err := recomputePlaces(ctx, tx, r.ContextID)
		if err != nil {
			return err
		}
		return keepSlotsPositional(ctx, tx, before, after, resultID)
	})
	if err != nil {
		return model.Result{}, err
	}
	return op.result(resultID), nil
}

// Rewrite regenerates a context's artifact from its confirmed results.
// Unlike the implicit writes of other operations, a failed write is
// returned as an EXPORT_IO error.
func (e *Engine) Rewrite(ctx context.Context, contextID int64) error {
	if _, err := e.Context(ctx, contextID); err != nil {
		return err
	}
	_, err := e.execute(ctx, OpRewrite, contextID, func(ctx context.Context, tx *store.Tx, op *operation) error {
		op.forceRewrite = true
		op.requireWrite = true
		return nil
	})
	return err
}

func (op *operation) result(id int64) model.Result {
	if k := op.final.Index(id); k >= 0 {
		return op.final.Results[k]
	}
	return model.Result{}
}

// Context returns a context by ID.
func (e *Engine) Context(ctx context.Context, id int64) (model.Context, error) {
	var c model.Context
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		c, err = tx.GetContext(ctx, id)
		return translate(err, "context", id)
	})
	return c, err
}

// ContextByName returns a context by name.
func (e *Engine) ContextByName(ctx context.Context, name string) (model.Context, error) {
	var c model.Context
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		c, err = tx.GetContextByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return &Error{Code: ErrCodeNotFound, Message: "context " + strconv.Quote(name) + " not found"}
		}
		return err
	})
	return c, err
}

// Contexts lists every context.
func (e *Engine) Contexts(ctx context.Context) ([]model.Context, error) {
	var cs []model.Context
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		cs, err = tx.ListContexts(ctx)
		return err
	})
	return cs, err
}

// ActiveContext returns the active context, if one is set.
func (e *Engine) ActiveContext(ctx context.Context) (model.Context, bool, error) {
	var (
		c     model.Context
		found bool
	)
	err := e.store.View(ctx, func(tx *store.Tx) error {
		v, ok, err := tx.GetSetting(ctx, store.SettingActiveContext)
		if err != nil || !ok {
			return err
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		c, err = tx.GetContext(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	return c, found, err
}

// Result returns a result by ID.
func (e *Engine) Result(ctx context.Context, id int64) (model.Result, error) {
	var r model.Result
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		r, err = tx.GetResult(ctx, id)
		return translate(err, "result", id)
	})
	return r, err
}

// Board returns a snapshot of a context's sequences.
func (e *Engine) Board(ctx context.Context, contextID int64) (Board, error) {
	var b Board
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		b, err = loadBoard(ctx, tx, contextID)
		return translate(err, "context", contextID)
	})
	return b, err
}

// Settings returns every setting.
func (e *Engine) Settings(ctx context.Context) (map[string]string, error) {
	var m map[string]string
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		m, err = tx.ListSettings(ctx)
		return err
	})
	return m, err
}

// OutputTarget returns the artifact path for a context, or "" when export
// is disabled for it.
func (e *Engine) OutputTarget(ctx context.Context, contextID int64) (string, error) {
	var target string
	err := e.store.View(ctx, func(tx *store.Tx) error {
		c, err := tx.GetContext(ctx, contextID)
		if err != nil {
			return translate(err, "context", contextID)
		}
		target, err = e.outputTarget(ctx, tx, c)
		return err
	})
	return target, err
}

// Artifact returns the rows the artifact for a context must contain.
func (e *Engine) Artifact(ctx context.Context, contextID int64) ([]export.Row, error) {
	b, err := e.Board(ctx, contextID)
	if err != nil {
		return nil, err
	}
	return export.Project(b.Context, b.Results, e.positionColumn), nil
}

// WriteWorkbook writes an XLSX snapshot of a context's board.
func (e *Engine) WriteWorkbook(ctx context.Context, contextID int64, w io.Writer) error {
	b, err := e.Board(ctx, contextID)
	if err != nil {
		return err
	}
	return export.WriteWorkbook(w, b.Context, b.Results, b.ScanBibs())
}
