package model

import "fmt"

// Action is the closed set of operator corrections.
type Action string

const (
	// ActionUse copies the scanned bib number onto the result.
	ActionUse Action = "use"
	// ActionInsert pushes a blank scan in front of the result and shifts
	// every later scan one result down.
	ActionInsert Action = "insert"
	// ActionDelete removes the result's scan and shifts every later scan
	// one result up.
	ActionDelete Action = "delete"
)

// Actions lists every valid action in display order.
var Actions = []Action{ActionUse, ActionInsert, ActionDelete}

// ParseAction rejects anything outside the closed action set.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q: must be one of %v", s, Actions)
}

// Correction is a typed correction request.
type Correction struct {
	Action   Action `json:"action"`
	ResultID int64  `json:"resultid"`
	ScanID   int64  `json:"scanid"`
}

// Validate checks the payload shape. Existence of the referenced rows is the
// engine's concern.
func (c Correction) Validate() error {
	if _, err := ParseAction(string(c.Action)); err != nil {
		return err
	}
	if c.ResultID <= 0 {
		return fmt.Errorf("resultid must be positive, got %d", c.ResultID)
	}
	if c.ScanID <= 0 {
		return fmt.Errorf("scanid must be positive, got %d", c.ScanID)
	}
	return nil
}
