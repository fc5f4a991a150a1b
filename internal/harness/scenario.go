package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a finish-line test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Context is the race the steps run against. It is created and
	// activated before the first step.
	Context ContextSpec `yaml:"context"`

	// OutputFile is the output-file setting. Defaults to "results.csv".
	OutputFile string `yaml:"output_file,omitempty"`

	// PositionColumn selects the artifact's first column: device or place.
	PositionColumn string `yaml:"position_column,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final board.
	Assertions []Assertion `yaml:"assertions"`
}

// ContextSpec describes the scenario's context.
type ContextSpec struct {
	Name        string  `yaml:"name"`
	Kind        string  `yaml:"kind,omitempty"`
	Date        string  `yaml:"date,omitempty"`
	StartOffset float64 `yaml:"start_offset,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Op is one of the operation names listed in the package docs.
	Op string `yaml:"op"`

	// As labels the result or scan the step creates.
	As string `yaml:"as,omitempty"`

	// Args contains the operation arguments. Row references are labels.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect validates the step outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected engine error code, e.g. "PARAMETER".
	Error string `yaml:"error,omitempty"`

	// Result contains expected fields of the returned row (subset match).
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Args are the expected step arguments (trace_contains, subset match).
	Args map[string]any `yaml:"args,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where, and Expect drive final_state.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Slots is the expected slot view (slots).
	Slots []string `yaml:"slots,omitempty"`

	// Bibs is the expected pending queue (pending).
	Bibs []string `yaml:"bibs,omitempty"`

	// Bib is the expected cursor bib (cursor).
	Bib string `yaml:"bib,omitempty"`

	// Content is the expected artifact (artifact).
	Content string `yaml:"content,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertSlots         = "slots"
	AssertPending       = "pending"
	AssertCursor        = "cursor"
	AssertArtifact      = "artifact"
)

// Operation names accepted in steps.
const (
	StepResult       = "result"
	StepScan         = "scan"
	StepUse          = "use"
	StepInsert       = "insert"
	StepDelete       = "delete"
	StepConfirm      = "confirm"
	StepDeleteResult = "delete_result"
	StepUpdateResult = "update_result"
	StepRewrite      = "rewrite"
	StepActivate     = "activate"
	StepSetSetting   = "set_setting"
)

var knownSteps = map[string]bool{
	StepResult: true, StepScan: true, StepUse: true, StepInsert: true,
	StepDelete: true, StepConfirm: true, StepDeleteResult: true,
	StepUpdateResult: true, StepRewrite: true, StepActivate: true,
	StepSetSetting: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Context.Name == "" {
		return fmt.Errorf("context.name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		if !knownSteps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.As != "" {
			if step.Op != StepResult && step.Op != StepScan {
				return fmt.Errorf("steps[%d]: only result and scan steps can be labelled", i)
			}
			if labels[step.As] {
				return fmt.Errorf("steps[%d]: label %q is already used", i, step.As)
			}
			labels[step.As] = true
		}
		if step.Expect != nil && step.Expect.Error != "" && len(step.Expect.Result) > 0 {
			return fmt.Errorf("steps[%d].expect: error and result are mutually exclusive", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
	case AssertSlots, AssertPending, AssertCursor, AssertArtifact:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
