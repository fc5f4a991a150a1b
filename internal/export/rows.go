package export

import (
	"fmt"
	"strconv"

	"github.com/roach88/finishline/internal/model"
)

// PositionColumn selects what the first artifact column carries.
type PositionColumn string

const (
	// PositionDevice writes the capture device's position index.
	PositionDevice PositionColumn = "device"
	// PositionPlace writes the computed place.
	PositionPlace PositionColumn = "place"
)

// ParsePositionColumn validates a position column name. Empty defaults to
// PositionDevice.
func ParsePositionColumn(s string) (PositionColumn, error) {
	switch PositionColumn(s) {
	case "", PositionDevice:
		return PositionDevice, nil
	case PositionPlace:
		return PositionPlace, nil
	default:
		return "", fmt.Errorf("invalid position column %q: must be device or place", s)
	}
}

// Row is one line of the artifact.
type Row struct {
	Position int
	Bib      string
	Time     string
}

// Record returns the CSV fields of the row.
func (r Row) Record() []string {
	return []string{strconv.Itoa(r.Position), r.Bib, r.Time}
}

// Project returns the artifact rows for a context: every confirmed result
// in place order. results must already be sorted by place.
func Project(c model.Context, results []model.Result, col PositionColumn) []Row {
	rows := []Row{}
	for _, r := range results {
		if !r.Confirmed {
			continue
		}
		pos := r.DevicePosition
		if col == PositionPlace {
			pos = r.Place
		}
		rows = append(rows, Row{
			Position: pos,
			Bib:      r.BibNumber,
			Time:     model.FormatTimeOfDay(c.StartOffset + r.Time),
		})
	}
	return rows
}

// Diff compares two projections. It returns the rows to append when after
// extends before, and ok=false when only a rewrite can produce after.
func Diff(before, after []Row) (suffix []Row, ok bool) {
	if len(after) < len(before) {
		return nil, false
	}
	for i := range before {
		if before[i] != after[i] {
			return nil, false
		}
	}
	return after[len(before):], true
}
