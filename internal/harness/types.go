package harness

// TraceEvent records one executed scenario step.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Op      string         `json:"op"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"` // OutcomeOK or an engine error code
	Result  map[string]any `json:"result,omitempty"`
}

// OutcomeOK marks a step that completed without error.
const OutcomeOK = "ok"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Slots is the final slot view of the scenario context: the linked
	// scan's bib, "-" for a hole, or "" for an empty slot, in place order.
	Slots []string `json:"slots"`

	// Pending lists the bibs of unmatched scans in scan order.
	Pending []string `json:"pending"`

	// Cursor is the bib of the cursor scan, or "".
	Cursor string `json:"cursor,omitempty"`

	// Artifact is the final export artifact content.
	Artifact string `json:"artifact"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Slots:   []string{},
		Pending: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace and returns its sequence number.
func (r *Result) AddTrace(op string, args map[string]any, outcome string, result map[string]any) int64 {
	seq := int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     seq,
		Op:      op,
		Args:    args,
		Outcome: outcome,
		Result:  result,
	})
	return seq
}
