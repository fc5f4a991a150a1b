// Package ingest feeds timer records into the engine.
//
// A reader goroutine decodes the device stream into a queue; a single
// writer loop drains the queue in arrival order and submits each record as a
// result. Keeping one writer preserves device order even though the engine
// itself accepts concurrent callers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/tmreader"
)

// Submitter accepts results. Implemented by *engine.Engine.
type Submitter interface {
	SubmitResult(ctx context.Context, contextID int64, in engine.ResultInput) (model.Result, error)
}

// ContextResolver picks the context a record is submitted to.
type ContextResolver func(ctx context.Context) (int64, error)

// FixedContext always submits to id.
func FixedContext(id int64) ContextResolver {
	return func(context.Context) (int64, error) {
		return id, nil
	}
}

// ActiveContext submits to whatever context is active when the record is
// drained, so switching races mid-stream takes effect immediately.
func ActiveContext(e *engine.Engine) ContextResolver {
	return func(ctx context.Context) (int64, error) {
		c, ok, err := e.ActiveContext(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, engine.NewParameterError("no active context")
		}
		return c.ID, nil
	}
}

// Stats counts what a Run did.
type Stats struct {
	Submitted int
	Rejected  int
}

// Ingester moves records from a device stream into the engine.
type Ingester struct {
	submit  Submitter
	resolve ContextResolver
	logger  *slog.Logger
}

// New creates an Ingester.
func New(s Submitter, resolve ContextResolver, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		submit:  s,
		resolve: resolve,
		logger:  logger,
	}
}

// Run reads src until it ends or ctx is done, submitting every record.
//
// Rejected records (unknown context, invalid bib) are logged and counted;
// any other engine error stops the run. Records already queued when src
// ends are still submitted. Each Run has its own queue; when Run returns
// early the queue is closed, so the reader stops at its next record.
func (in *Ingester) Run(ctx context.Context, src io.Reader) (Stats, error) {
	queue := newRecordQueue()
	defer queue.Close()

	reader := tmreader.NewReader(src, in.logger)
	readErr := make(chan error, 1)
	go func() {
		defer queue.Close()
		for {
			rec, err := reader.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
			if !queue.Enqueue(rec) {
				readErr <- nil
				return
			}
		}
	}()

	var stats Stats
	for {
		rec, ok := queue.TryDequeue()
		if !ok {
			if queue.Closed() && queue.Len() == 0 {
				break
			}
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-queue.Wait():
			}
			continue
		}

		if err := in.handle(ctx, rec, &stats); err != nil {
			return stats, err
		}
	}

	if err := <-readErr; err != nil {
		return stats, fmt.Errorf("read timer stream: %w", err)
	}
	return stats, nil
}

func (in *Ingester) handle(ctx context.Context, rec tmreader.Record, stats *Stats) error {
	contextID, err := in.resolve(ctx)
	if err == nil {
		_, err = in.submit.SubmitResult(ctx, contextID, engine.ResultInput{
			DevicePosition: rec.Position,
			Time:           rec.Time,
			BibNumber:      rec.Bib,
		})
	}
	switch {
	case err == nil:
		stats.Submitted++
		in.logger.Debug("timer record submitted", "kind", rec.Kind, "pos", rec.Position, "context_id", contextID)
		return nil
	case engine.IsParameter(err) || engine.IsNotFound(err):
		stats.Rejected++
		in.logger.Warn("timer record rejected", "kind", rec.Kind, "pos", rec.Position, "error", err)
		return nil
	default:
		return fmt.Errorf("submit timer record %d: %w", rec.Position, err)
	}
}
