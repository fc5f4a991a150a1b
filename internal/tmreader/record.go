package tmreader

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/finishline/internal/model"
)

// Control bytes.
const (
	Primary byte = 0x17
	Select  byte = 0x14
)

// Kind is the record type selected by the control byte.
type Kind string

const (
	KindPrimary Kind = "primary"
	KindSelect  Kind = "select"
)

// ErrUnknownControl is returned for lines whose first byte is neither
// Primary nor Select. Such lines are status output and are skipped.
var ErrUnknownControl = errors.New("tmreader: unknown control byte")

// Record is one decoded finish.
type Record struct {
	Kind     Kind    `json:"kind"`
	Position int     `json:"pos"`
	Time     float64 `json:"time"`
	Bib      string  `json:"bib,omitempty"`
}

// Parse decodes one line without its CRLF terminator.
func Parse(line []byte) (Record, error) {
	if len(line) == 0 {
		return Record{}, ErrUnknownControl
	}
	var rec Record
	switch line[0] {
	case Primary:
		rec.Kind = KindPrimary
	case Select:
		rec.Kind = KindSelect
	default:
		return Record{}, fmt.Errorf("%w 0x%02x", ErrUnknownControl, line[0])
	}

	if len(line) < 26 {
		return Record{}, fmt.Errorf("tmreader: %s record too short (%d bytes)", rec.Kind, len(line))
	}
	pos, err := strconv.Atoi(string(bytes.TrimSpace(line[9:13])))
	if err != nil {
		return Record{}, fmt.Errorf("tmreader: position %q: %w", line[9:13], err)
	}
	rec.Position = pos

	if rec.Time, err = model.ParseElapsed(string(line[14:26])); err != nil {
		return Record{}, fmt.Errorf("tmreader: %w", err)
	}

	if rec.Kind == KindSelect {
		if len(line) < 33 {
			return Record{}, fmt.Errorf("tmreader: select record too short for bib (%d bytes)", len(line))
		}
		bib, err := strconv.Atoi(string(bytes.TrimSpace(line[29:33])))
		if err != nil || bib < 0 {
			return Record{}, fmt.Errorf("tmreader: bib %q is not a number", line[29:33])
		}
		rec.Bib = strconv.Itoa(bib)
	}
	return rec, nil
}
