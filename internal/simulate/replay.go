package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/model"
)

// Submitter accepts results and scans. Implemented by *engine.Engine.
type Submitter interface {
	SubmitResult(ctx context.Context, contextID int64, in engine.ResultInput) (model.Result, error)
	SubmitScan(ctx context.Context, contextID int64, bib string) (model.ScannedBib, error)
}

// Stats counts what a replay did.
type Stats struct {
	Results  int `json:"results"`
	Scans    int `json:"scans"`
	Rejected int `json:"rejected"`
}

// Replayer steps events through the engine.
type Replayer struct {
	submit Submitter
	logger *slog.Logger
	speed  float64
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Replayer) {
		p.logger = l
	}
}

// WithSpeed paces the replay at speed times real time. Zero, the default,
// replays without waiting.
func WithSpeed(speed float64) Option {
	return func(p *Replayer) {
		p.speed = speed
	}
}

// New creates a Replayer.
func New(s Submitter, opts ...Option) *Replayer {
	p := &Replayer{submit: s}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Steps returns the events in time order with time machine events numbered
// 1..n, the positions the device would have printed. Ties keep file order.
func Steps(events []Event) []Event {
	steps := append([]Event(nil), events...)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Time < steps[j].Time
	})
	pos := 0
	for i := range steps {
		steps[i].Position = 0
		if steps[i].Kind == EventTimer {
			pos++
			steps[i].Position = pos
		}
	}
	return steps
}

// Run replays events into c, which must be a simulation context.
//
// Every event is validated before the first is submitted. Rejected steps
// (an invalid bib, say) are logged and counted; any other engine error
// stops the replay.
func (p *Replayer) Run(ctx context.Context, c model.Context, events []Event) (Stats, error) {
	if c.Kind != model.KindSimulation {
		return Stats{}, engine.NewParameterError("context %q is a %s, not a simulation", c.Name, c.Kind)
	}
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			return Stats{}, engine.NewParameterError("event %d: %v", i+1, err)
		}
	}

	var stats Stats
	var last float64
	for _, ev := range Steps(events) {
		if err := p.wait(ctx, ev.Time-last); err != nil {
			return stats, err
		}
		last = ev.Time
		if err := p.step(ctx, c.ID, ev, &stats); err != nil {
			return stats, err
		}
	}
	p.logger.Info("simulation replayed",
		"context_id", c.ID,
		"results", stats.Results,
		"scans", stats.Scans,
		"rejected", stats.Rejected)
	return stats, nil
}

func (p *Replayer) step(ctx context.Context, contextID int64, ev Event, stats *Stats) error {
	var err error
	switch ev.Kind {
	case EventTimer:
		_, err = p.submit.SubmitResult(ctx, contextID, engine.ResultInput{
			DevicePosition: ev.Position,
			Time:           ev.Time,
			BibNumber:      ev.Bib,
		})
		if err == nil {
			stats.Results++
		}
	case EventScan:
		_, err = p.submit.SubmitScan(ctx, contextID, ev.Bib)
		if err == nil {
			stats.Scans++
		}
	}
	switch {
	case err == nil:
		return nil
	case engine.IsParameter(err) || engine.IsNotFound(err):
		stats.Rejected++
		p.logger.Warn("simulation event rejected", "etype", ev.Kind, "time", ev.Time, "bibno", ev.Bib, "error", err)
		return nil
	default:
		return fmt.Errorf("replay %s at %s: %w", ev.Kind, model.FormatElapsed(ev.Time), err)
	}
}

// wait sleeps for the gap between two events scaled by the replay speed.
func (p *Replayer) wait(ctx context.Context, gap float64) error {
	if p.speed <= 0 || gap <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(gap / p.speed * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
