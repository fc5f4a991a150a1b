package model

import (
	"fmt"
	"sort"
)

// BlankBib is the reserved bib number meaning "no bib was actually scanned".
const BlankBib = "0000"

// Kind distinguishes real races from simulation runs.
type Kind string

const (
	KindRace       Kind = "race"
	KindSimulation Kind = "simulation"
)

// ParseKind validates a context kind. An empty string defaults to KindRace.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindRace:
		return KindRace, nil
	case KindSimulation:
		return KindSimulation, nil
	default:
		return "", fmt.Errorf("invalid context kind %q: must be race or simulation", s)
	}
}

// Context scopes one independent pair of result/scan sequences.
type Context struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Date string `json:"date,omitempty"`

	// StartOffset is the race start as seconds since midnight. It converts
	// elapsed result times into times of day for the export artifact.
	StartOffset float64 `json:"start_offset"`

	// OutputFile overrides the global output-file setting when non-empty.
	OutputFile string `json:"output_file,omitempty"`

	// ExportDirty is set while confirmed data has changed but the artifact
	// has not yet been rewritten successfully.
	ExportDirty bool `json:"export_dirty"`
}

// Result is one finish-line observation.
type Result struct {
	ID             int64   `json:"id"`
	ContextID      int64   `json:"context_id"`
	DevicePosition int     `json:"device_position"`
	Place          int     `json:"place"`
	BibNumber      string  `json:"bib_number"`
	Time           float64 `json:"time"`
	ScanID         int64   `json:"scan_id,omitempty"`
	HadScan        bool    `json:"had_scanned_bib"`
	Confirmed      bool    `json:"is_confirmed"`
}

// HasScan reports whether a ScannedBib is currently linked to the result.
func (r Result) HasScan() bool {
	return r.ScanID != 0
}

// IsHole reports whether the result expected a scan that is no longer linked.
func (r Result) IsHole() bool {
	return r.HadScan && r.ScanID == 0
}

// ScannedBib is one barcode-scan observation.
type ScannedBib struct {
	ID        int64  `json:"id"`
	ContextID int64  `json:"context_id"`
	Order     int    `json:"order"`
	BibNumber string `json:"bib_number"`
}

// IsBlank reports whether the scan is the blank sentinel.
func (s ScannedBib) IsBlank() bool {
	return s.BibNumber == BlankBib
}

// FinishLess orders results by time, then device position, then id.
// The id tie-break only matters for exact duplicates and keeps sorting stable
// across runs.
func FinishLess(a, b Result) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if a.DevicePosition != b.DevicePosition {
		return a.DevicePosition < b.DevicePosition
	}
	return a.ID < b.ID
}

// SortByFinish sorts results in place by FinishLess.
func SortByFinish(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return FinishLess(results[i], results[j])
	})
}
