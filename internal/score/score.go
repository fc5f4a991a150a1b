// Package score grades a simulation run against its expected results.
//
// Entries are grouped by bib number. Each finish recorded for an expected
// bib must fall within that bib's epsilon of the expected time; anything
// else is a mismatch. Expected bibs never recorded are missing, and recorded
// bibs never expected are extra. The score is the share of correct entries
// over the larger of the two lists.
package score

import (
	"context"
	"math"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/model"
)

// Expected is one expected finish.
type Expected struct {
	Order   int     `json:"order"`
	Bib     string  `json:"bib_number"`
	Time    float64 `json:"time"`
	Epsilon float64 `json:"epsilon"`
}

// Finish is one recorded finish.
type Finish struct {
	Bib  string  `json:"bib_number"`
	Time float64 `json:"time"`
}

// TimeMismatch is a recorded finish outside its bib's tolerance.
type TimeMismatch struct {
	Bib          string  `json:"bib_number"`
	ExpectedTime float64 `json:"expected_time"`
	ActualTime   float64 `json:"actual_time"`
}

// Missing is an expected bib with no recorded finish.
type Missing struct {
	Bib           string    `json:"bib_number"`
	ExpectedTimes []float64 `json:"expected_times"`
}

// Extra is a recorded bib that was not expected.
type Extra struct {
	Bib         string    `json:"bib_number"`
	ActualTimes []float64 `json:"actual_times"`
}

// Report is the outcome of Compare.
type Report struct {
	Expected   int            `json:"expected"`
	Recorded   int            `json:"recorded"`
	Correct    int            `json:"correct"`
	Score      float64        `json:"score"` // percent
	Mismatches []TimeMismatch `json:"time_mismatches"`
	Missing    []Missing      `json:"missing"`
	Extra      []Extra        `json:"extra"`
}

// Errors returns the number of discrepancies.
func (r Report) Errors() int {
	return len(r.Mismatches) + len(r.Missing) + len(r.Extra)
}

// FinishesFrom returns the confirmed results as recorded finishes, in place
// order.
func FinishesFrom(results []model.Result) []Finish {
	out := []Finish{}
	for _, r := range results {
		if r.Confirmed {
			out = append(out, Finish{Bib: r.BibNumber, Time: r.Time})
		}
	}
	return out
}

type group[T any] struct {
	bib     string
	entries []T
}

// groupByBib groups entries by bib, keeping first-appearance order.
func groupByBib[T any](entries []T, bib func(T) string) []*group[T] {
	index := map[string]*group[T]{}
	var groups []*group[T]
	for _, e := range entries {
		b := bib(e)
		g, ok := index[b]
		if !ok {
			g = &group[T]{bib: b}
			index[b] = g
			groups = append(groups, g)
		}
		g.entries = append(g.entries, e)
	}
	return groups
}

// Compare grades recorded against expected.
//
// When a bib is expected more than once, only its first expected entry is
// used as the reference time.
func Compare(expected []Expected, recorded []Finish) Report {
	rep := Report{
		Expected:   len(expected),
		Recorded:   len(recorded),
		Mismatches: []TimeMismatch{},
		Missing:    []Missing{},
		Extra:      []Extra{},
	}

	actual := groupByBib(recorded, func(f Finish) string { return f.Bib })
	byBib := make(map[string]*group[Finish], len(actual))
	for _, g := range actual {
		byBib[g.bib] = g
	}

	for _, eg := range groupByBib(expected, func(e Expected) string { return e.Bib }) {
		ref := eg.entries[0]
		ag, ok := byBib[eg.bib]
		if !ok {
			times := make([]float64, len(eg.entries))
			for i, e := range eg.entries {
				times[i] = e.Time
			}
			rep.Missing = append(rep.Missing, Missing{Bib: eg.bib, ExpectedTimes: times})
			continue
		}
		for _, f := range ag.entries {
			if math.Abs(f.Time-ref.Time) > ref.Epsilon {
				rep.Mismatches = append(rep.Mismatches, TimeMismatch{Bib: eg.bib, ExpectedTime: ref.Time, ActualTime: f.Time})
			}
		}
		delete(byBib, eg.bib)
	}

	for _, ag := range actual {
		if _, ok := byBib[ag.bib]; !ok {
			continue
		}
		times := make([]float64, len(ag.entries))
		for i, f := range ag.entries {
			times[i] = f.Time
		}
		rep.Extra = append(rep.Extra, Extra{Bib: ag.bib, ActualTimes: times})
	}

	divisor := max(rep.Expected, rep.Recorded)
	if divisor > rep.Errors() {
		rep.Correct = divisor - rep.Errors()
	}
	if divisor > 0 {
		rep.Score = float64(rep.Correct) / float64(divisor) * 100
	}
	return rep
}

// BoardSource loads a context's board. Implemented by *engine.Engine.
type BoardSource interface {
	Board(ctx context.Context, contextID int64) (engine.Board, error)
}

// ForContext grades the confirmed results of a context.
func ForContext(ctx context.Context, src BoardSource, contextID int64, expected []Expected) (Report, error) {
	b, err := src.Board(ctx, contextID)
	if err != nil {
		return Report{}, err
	}
	return Compare(expected, FinishesFrom(b.Results)), nil
}
