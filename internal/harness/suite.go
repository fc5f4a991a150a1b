package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that failed to load, run, or pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// ScenarioPaths returns the scenario files under path. A file path is
// returned as is; a directory yields its *.yaml and *.yml files in name
// order.
func ScenarioPaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunPath runs every scenario at path and collects failures. Load and
// execution errors count as failures rather than aborting the suite.
func RunPath(path string) (*SuiteResult, error) {
	paths, err := ScenarioPaths(path)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{}
	for _, p := range paths {
		suite.Total++
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))

		scenario, err := LoadScenario(p)
		if err != nil {
			suite.fail(name, p, err.Error())
			continue
		}
		name = scenario.Name

		result, err := Run(scenario)
		if err != nil {
			suite.fail(name, p, err.Error())
			continue
		}
		if !result.Pass {
			suite.fail(name, p, result.Errors...)
			continue
		}
		suite.Passed++
	}
	return suite, nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{
		Scenario: name,
		Path:     path,
		Errors:   errs,
	})
}
