package engine

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roach88/finishline/internal/export"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
)

// Operation names used in logs, metrics, and change notifications.
const (
	OpCreateContext = "create_context"
	OpActivate      = "activate"
	OpSetSetting    = "set_setting"
	OpSubmitResult  = "submit_result"
	OpSubmitScan    = "submit_scan"
	OpCorrectUse    = "correct_use"
	OpCorrectInsert = "correct_insert"
	OpCorrectDelete = "correct_delete"
	OpConfirm       = "confirm"
	OpDeleteResult  = "delete_result"
	OpUpdateResult  = "update_result"
	OpRewrite       = "rewrite"
)

// Operation outcomes used in metrics.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFault    = "fault"
	OutcomeError    = "error"
)

// Export write modes used in metrics.
const (
	ModeAppend  = "append"
	ModeRewrite = "rewrite"
)

// Change describes a committed mutation of a context.
type Change struct {
	Seq       int64  `json:"seq"`
	ContextID int64  `json:"context_id"`
	Op        string `json:"op"`
	Token     string `json:"token"`
}

// Notifier receives a Change after every committed mutating operation.
// Delivery failures are logged and never fail the operation.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// Metrics receives operation, gate, and export observations.
type Metrics interface {
	OperationCompleted(op, outcome string)
	GateWaited(scope string, wait time.Duration)
	ExportWritten(mode, outcome string)
}

// ArtifactWriter writes the export artifact. Implemented by export.Writer.
type ArtifactWriter interface {
	Exists(path string) bool
	Append(path string, rows []export.Row) error
	Rewrite(path string, rows []export.Row) error
}

// Engine runs the finish-line operations.
//
// Every mutating operation follows the same path:
//
//  1. acquire the gate
//  2. open one store transaction
//  3. apply the operation, recompute places, run the matching pass
//  4. verify the board invariants (violations roll everything back)
//  5. mark the context export-dirty if the artifact must change, commit
//  6. write the artifact, then clear the dirty flag in a second transaction
//  7. notify subscribers and release the gate
//
// The artifact write happens after the commit, so the store stays the
// source of truth and a failed write is repaired by the next rewrite.
//
// Thread-safety: Engine is safe for concurrent use; the gate serializes
// mutating operations.
type Engine struct {
	store    *store.Store
	gate     *Gate
	tokens   TokenGenerator
	writer   ArtifactWriter
	notifier Notifier
	metrics  Metrics
	clock    *Clock
	logger   *slog.Logger

	outputDir      string
	positionColumn export.PositionColumn
}

// Option configures an Engine.
type Option func(*Engine)

// WithGateScope sets the gate scope. Default: ScopeGlobal.
func WithGateScope(scope GateScope) Option {
	return func(e *Engine) {
		e.gate = NewGate(scope)
	}
}

// WithTokenGenerator sets the operation token generator.
// Default: UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithArtifactWriter replaces the filesystem artifact writer.
func WithArtifactWriter(w ArtifactWriter) Option {
	return func(e *Engine) {
		e.writer = w
	}
}

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithOutputDir sets the directory relative output file names resolve in.
func WithOutputDir(dir string) Option {
	return func(e *Engine) {
		e.outputDir = dir
	}
}

// WithPositionColumn selects the artifact's position column.
// Default: export.PositionDevice.
func WithPositionColumn(col export.PositionColumn) Option {
	return func(e *Engine) {
		e.positionColumn = col
	}
}

// New creates an Engine over the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		gate:           NewGate(ScopeGlobal),
		tokens:         UUIDv7Generator{},
		writer:         export.NewWriter(),
		notifier:       nopNotifier{},
		metrics:        nopMetrics{},
		clock:          NewClock(),
		positionColumn: export.PositionDevice,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.gate.observe = func(scope GateScope, wait time.Duration) {
		e.metrics.GateWaited(string(scope), wait)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// operation carries per-invocation state through execute.
type operation struct {
	name      string
	token     string
	contextID int64

	// exports is set when the context was known before the operation ran;
	// only then can the artifact projection be compared.
	exports bool

	// forceRewrite replaces the artifact even if the projection is unchanged.
	forceRewrite bool

	// requireWrite turns an artifact write failure into the operation's error.
	requireWrite bool

	// final is the committed board after matching.
	final Board
}

type projection struct {
	target string
	rows   []export.Row
}

type exportPlan struct {
	contextID int64
	target    string
	mode      string
	rows      []export.Row // rows to write for mode
	all       []export.Row // full projection, used when an append target is missing
}

type opFunc func(ctx context.Context, tx *store.Tx, op *operation) error

// execute runs fn as one gated, transactional operation on contextID.
// A zero contextID means the operation is not bound to a context yet; fn may
// set op.contextID for notification.
func (e *Engine) execute(ctx context.Context, name string, contextID int64, fn opFunc) (*operation, error) {
	op := &operation{
		name:      name,
		token:     e.tokens.Generate(),
		contextID: contextID,
		exports:   contextID != 0,
	}
	logger := e.logger.With("op", name, "token", op.token)

	release, err := e.gate.Acquire(ctx, contextID)
	if err != nil {
		e.metrics.OperationCompleted(name, OutcomeError)
		logger.Warn("operation abandoned waiting for gate", "context_id", contextID, "error", err)
		return nil, err
	}
	defer release()

	var plan *exportPlan
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		var before projection
		if op.exports {
			b, err := loadBoard(ctx, tx, op.contextID)
			if err != nil {
				return translate(err, "context", op.contextID)
			}
			if before, err = e.project(ctx, tx, b); err != nil {
				return err
			}
		}

		if err := fn(ctx, tx, op); err != nil {
			return err
		}
		if op.contextID == 0 {
			return nil
		}

		b, err := loadBoard(ctx, tx, op.contextID)
		if err != nil {
			return err
		}
		n, err := matchPending(ctx, tx, b)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Debug("matched pending scans", "context_id", op.contextID, "pairs", n)
			if b, err = loadBoard(ctx, tx, op.contextID); err != nil {
				return err
			}
		}
		if err := CheckBoard(b); err != nil {
			return err
		}
		op.final = b

		if !op.exports {
			return nil
		}
		after, err := e.project(ctx, tx, b)
		if err != nil {
			return err
		}
		plan = planExport(op, b.Context.ExportDirty, before, after)
		if plan != nil && !b.Context.ExportDirty {
			if err := tx.SetExportDirty(ctx, op.contextID, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.finishWithError(logger, op, err)
		return nil, err
	}

	e.metrics.OperationCompleted(name, OutcomeOK)
	logger.Info("operation committed", "context_id", op.contextID)

	var writeErr error
	if plan != nil {
		writeErr = e.writeArtifact(ctx, logger, plan)
	}

	if op.contextID != 0 {
		change := Change{Seq: e.clock.Next(), ContextID: op.contextID, Op: name, Token: op.token}
		if err := e.notifier.Notify(ctx, change); err != nil {
			logger.Warn("change notification failed", "context_id", op.contextID, "error", err)
		}
	}

	if writeErr != nil && op.requireWrite {
		return op, writeErr
	}
	return op, nil
}

func (e *Engine) finishWithError(logger *slog.Logger, op *operation, err error) {
	var ee *Error
	if errors.As(err, &ee) && ee.Token == "" {
		ee.Token = op.token
	}

	switch CodeOf(err) {
	case ErrCodeNotFound, ErrCodeParameter:
		e.metrics.OperationCompleted(op.name, OutcomeRejected)
		logger.Warn("operation rejected", "context_id", op.contextID, "error", err)
	case ErrCodeConsistency:
		e.metrics.OperationCompleted(op.name, OutcomeFault)
		attrs := []any{"context_id", op.contextID, "error", err}
		if ee != nil {
			for k, v := range ee.Details {
				attrs = append(attrs, k, v)
			}
		}
		logger.Error("consistency fault, operation rolled back", attrs...)
	default:
		e.metrics.OperationCompleted(op.name, OutcomeError)
		logger.Error("operation failed", "context_id", op.contextID, "error", err)
	}
}

// writeArtifact performs a planned write and clears the dirty flag on
// success. Failures leave the flag set so the next operation rewrites.
func (e *Engine) writeArtifact(ctx context.Context, logger *slog.Logger, plan *exportPlan) error {
	mode, rows := plan.mode, plan.rows
	if mode == ModeAppend && !e.writer.Exists(plan.target) {
		mode, rows = ModeRewrite, plan.all
	}

	var err error
	if mode == ModeAppend {
		err = e.writer.Append(plan.target, rows)
	} else {
		err = e.writer.Rewrite(plan.target, rows)
	}
	if err != nil {
		e.metrics.ExportWritten(mode, OutcomeError)
		logger.Error("export write failed, artifact left stale",
			"context_id", plan.contextID,
			"path", plan.target,
			"mode", mode,
			"error", err)
		return NewExportError(plan.target, err)
	}
	e.metrics.ExportWritten(mode, OutcomeOK)
	logger.Debug("export written", "context_id", plan.contextID, "path", plan.target, "mode", mode, "rows", len(rows))

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		return tx.SetExportDirty(ctx, plan.contextID, false)
	})
	if err != nil {
		logger.Warn("clear export dirty flag failed", "context_id", plan.contextID, "error", err)
	}
	return nil
}

func planExport(op *operation, dirty bool, before, after projection) *exportPlan {
	if after.target == "" {
		return nil
	}
	rewrite := &exportPlan{
		contextID: op.contextID,
		target:    after.target,
		mode:      ModeRewrite,
		rows:      after.rows,
		all:       after.rows,
	}
	if op.forceRewrite || dirty || before.target != after.target {
		return rewrite
	}
	suffix, ok := export.Diff(before.rows, after.rows)
	if !ok {
		return rewrite
	}
	if len(suffix) == 0 {
		return nil
	}
	return &exportPlan{
		contextID: op.contextID,
		target:    after.target,
		mode:      ModeAppend,
		rows:      suffix,
		all:       after.rows,
	}
}

func (e *Engine) project(ctx context.Context, tx *store.Tx, b Board) (projection, error) {
	target, err := e.outputTarget(ctx, tx, b.Context)
	if err != nil {
		return projection{}, err
	}
	return projection{
		target: target,
		rows:   export.Project(b.Context, b.Results, e.positionColumn),
	}, nil
}

// outputTarget resolves where a context's artifact goes. A context's own
// output file wins; otherwise the output-file setting applies to the active
// context only. Relative names resolve under the output directory. An empty
// result disables export.
func (e *Engine) outputTarget(ctx context.Context, tx *store.Tx, c model.Context) (string, error) {
	name := c.OutputFile
	if name == "" {
		active, ok, err := tx.GetSetting(ctx, store.SettingActiveContext)
		if err != nil {
			return "", err
		}
		if !ok || active != strconv.FormatInt(c.ID, 10) {
			return "", nil
		}
		if name, _, err = tx.GetSetting(ctx, store.SettingOutputFile); err != nil {
			return "", err
		}
	}
	if name == "" {
		return "", nil
	}
	if filepath.IsAbs(name) || e.outputDir == "" {
		return name, nil
	}
	return filepath.Join(e.outputDir, name), nil
}

// translate maps store.ErrNotFound to a NOT_FOUND engine error.
func translate(err error, kind string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError(kind, id)
	}
	return err
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) error { return nil }

type nopMetrics struct{}

func (nopMetrics) OperationCompleted(string, string) {}
func (nopMetrics) GateWaited(string, time.Duration)  {}
func (nopMetrics) ExportWritten(string, string)      {}
