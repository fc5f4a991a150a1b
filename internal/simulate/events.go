// Package simulate replays recorded race events into a simulation context.
//
// A simulation is a list of events: time machine finishes and bib scans,
// each stamped with seconds since the race start. Replaying them in time
// order through the engine rebuilds the board an operator would have seen,
// which can then be corrected, confirmed, and scored.
package simulate

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roach88/finishline/internal/model"
)

// EventKind is the source of an event.
type EventKind string

const (
	EventScan  EventKind = "scan"
	EventTimer EventKind = "timemachine"
)

// ParseEventKind validates an event kind.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(strings.TrimSpace(s)); k {
	case EventScan, EventTimer:
		return k, nil
	default:
		return "", fmt.Errorf("invalid etype %q: must be scan or timemachine", s)
	}
}

// Event is one recorded occurrence. Position is assigned by Steps.
type Event struct {
	Time     float64   `json:"time"`
	Kind     EventKind `json:"etype"`
	Bib      string    `json:"bibno,omitempty"`
	Position int       `json:"tmpos,omitempty"`
}

// Validate checks the fields the replay depends on.
func (e Event) Validate() error {
	if _, err := ParseEventKind(string(e.Kind)); err != nil {
		return err
	}
	if e.Time < 0 {
		return fmt.Errorf("time %v must not be negative", e.Time)
	}
	if e.Kind == EventScan && strings.TrimSpace(e.Bib) == "" {
		return errors.New("etype scan requires bibno")
	}
	return nil
}

// Loader reads a simulation event file. start is the race start as seconds
// since midnight, for formats stamped with wall-clock times.
type Loader interface {
	Load(r io.Reader, start float64) ([]Event, error)
}

// LoaderFor picks a loader by file extension.
func LoaderFor(filename string) (Loader, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return CSVLoader{}, nil
	case ".txt", ".log":
		return LogLoader{}, nil
	default:
		return nil, fmt.Errorf("unsupported event file type %q: use .csv, .txt or .log", ext)
	}
}

// CSVLoader reads events from CSV with a header row naming time, etype,
// and bibno. Times are elapsed since the start, so start is unused.
type CSVLoader struct{}

// Load implements Loader.
func (CSVLoader) Load(r io.Reader, _ float64) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("event file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"time", "etype", "bibno"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	cell := func(row []string, name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	events := []Event{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		if len(strings.TrimSpace(strings.Join(row, ""))) == 0 {
			continue
		}

		kind, err := ParseEventKind(cell(row, "etype"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, err := model.ParseElapsed(cell(row, "time"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ev := Event{Time: t, Kind: kind, Bib: cell(row, "bibno")}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// logLine matches a "received data" line of the server log. The bracketed
// timestamp is the wall-clock time the message arrived.
var logLine = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} \[\d{4}-\d{2}-\d{2} (?P<time>\d{2}:\d{2}:\d{2},\d{3})\].*received data (?P<cmd>\{.*\})`)

// LogLoader reads events from a server log, picking out the messages
// received from the time machine and the scanner.
//
// Time machine messages carry their own elapsed time. Scans take the
// arrival time less start, and anything logged before start is skipped.
// Other lines and opcodes are ignored.
type LogLoader struct{}

// Load implements Loader.
func (LogLoader) Load(r io.Reader, start float64) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	events := []Event{}
	for line := 1; sc.Scan(); line++ {
		m := logLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		stamp, err := model.ParseElapsed(strings.Replace(m[1], ",", ".", 1))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if stamp < start {
			continue
		}

		msg, err := decodeMessage(m[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var ev Event
		switch msg.text("opcode") {
		case "select":
			ev = Event{Kind: EventTimer, Bib: msg.text("bibno")}
		case "primary":
			ev = Event{Kind: EventTimer}
		case "scannedbib":
			ev = Event{Kind: EventScan, Bib: msg.text("bibno"), Time: stamp - start}
		default:
			continue
		}
		if ev.Kind == EventTimer {
			if ev.Time, err = model.ParseElapsed(msg.text("time")); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return events, nil
}

// message is a logged command. The log renders it with single quotes.
type message map[string]any

func decodeMessage(raw string) (message, error) {
	dec := json.NewDecoder(strings.NewReader(strings.ReplaceAll(raw, "'", `"`)))
	dec.UseNumber()
	var m message
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", raw, err)
	}
	return m, nil
}

func (m message) text(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}
