package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot captures the observable outcome of a scenario: the steps with
// their outcomes, the final board, and the artifact.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []SnapshotStep `json:"trace"`
	Slots        []string       `json:"slots"`
	Pending      []string       `json:"pending"`
	Cursor       string         `json:"cursor,omitempty"`
	Artifact     string         `json:"artifact"`
}

// SnapshotStep is a trace event without its returned row. Row IDs depend on
// insertion history and would make snapshots brittle.
type SnapshotStep struct {
	Seq     int64          `json:"seq"`
	Op      string         `json:"op"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	steps := make([]SnapshotStep, len(result.Trace))
	for i, event := range result.Trace {
		steps[i] = SnapshotStep{
			Seq:     event.Seq,
			Op:      event.Op,
			Args:    event.Args,
			Outcome: event.Outcome,
		}
	}
	return Snapshot{
		ScenarioName: name,
		Trace:        steps,
		Slots:        result.Slots,
		Pending:      result.Pending,
		Cursor:       result.Cursor,
		Artifact:     result.Artifact,
	}
}

// Marshal renders the snapshot as indented JSON with a trailing newline.
// encoding/json sorts map keys, so the output is deterministic.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
