package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/finishline/internal/config"
)

// cliEnv runs commands against one database and output directory.
type cliEnv struct {
	t   *testing.T
	db  string
	out string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	dir := t.TempDir()
	return &cliEnv{t: t, db: filepath.Join(dir, "race.db"), out: dir}
}

// run executes one command line and returns stdout and the error.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--db", e.db, "--output-dir", e.out}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *cliEnv) must(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "finishline %s", strings.Join(args, " "))
	return out
}

func TestRaceFlow(t *testing.T) {
	env := newCLIEnv(t)

	out := env.must("context", "create", "Spring 5K", "--start", "09:00:00", "--output-file", "results.csv", "--activate")
	assert.Contains(t, out, `Created context 1 "Spring 5K"`)
	assert.Contains(t, out, "Context 1 is active")

	out = env.must("result", "add", "--device", "1", "--time", "10")
	assert.Contains(t, out, "Submitted result 1: place 1, device 1, time 0:00:10.00, bib -")

	out = env.must("scan", "42")
	assert.Contains(t, out, "Scanned bib 42 (scan 1, order 1)")

	out = env.must("correct", "use", "1", "1")
	assert.Contains(t, out, "bib 42")

	env.must("result", "add", "--device", "2", "--time", "00:20.50")

	out = env.must("board")
	assert.Contains(t, out, "Spring 5K (race)")
	assert.Contains(t, out, "PLACE")
	assert.Contains(t, out, "0:00:20.50")
	assert.Contains(t, out, "pending: none")

	out = env.must("confirm", "1")
	assert.Contains(t, out, "Confirmed 1 result(s)")

	data, err := os.ReadFile(filepath.Join(env.out, "results.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1,42,09:00:10.00\r\n", string(data))

	out = env.must("context", "list")
	assert.Contains(t, out, "*   1  Spring 5K")
}

func TestRejectedOperationExitCodes(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "race", "--activate")
	env.must("result", "add", "--device", "1", "--time", "10")
	env.must("scan", "42")

	// Result 1 holds scan 1, so it cannot be deleted.
	_, err := env.run("result", "delete", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := env.run("--format", "json", "result", "delete", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	_, err = env.run("correct", "swap", "1", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("result", "update", "abc", "--bib", "7")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("result", "update", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

func TestNoActiveContext(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "race")

	out, err := env.run("--format", "json", "scan", "42")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "PARAMETER")

	out = env.must("scan", "42", "--context", "race")
	assert.Contains(t, out, "Scanned bib 42")
}

func TestContextActivateByName(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "first")
	env.must("context", "create", "second", "--kind", "simulation")

	out := env.must("context", "activate", "second")
	assert.Contains(t, out, `Context 2 "second" is active`)

	out = env.must("--format", "json", "context", "list")
	var resp struct {
		Data []contextRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.False(t, resp.Data[0].Active)
	assert.True(t, resp.Data[1].Active)
	assert.Equal(t, "simulation", string(resp.Data[1].Kind))

	_, err := env.run("context", "create", "third", "--kind", "relay")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResultUpdate(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "race", "--activate")
	env.must("result", "add", "--device", "1", "--time", "10")
	env.must("result", "add", "--device", "2", "--time", "20")

	out := env.must("result", "update", "2", "--time", "5", "--bib", "7")
	assert.Contains(t, out, "Updated result 2: place 1")
	assert.Contains(t, out, "bib 7")

	out = env.must("result", "delete", "1")
	assert.Contains(t, out, "Deleted result 1")
}

func TestSettingsAndRewrite(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "race", "--activate")

	out := env.must("rewrite")
	assert.Contains(t, out, "No output file configured.")

	env.must("setting", "set", "output-file", "out.csv")
	out = env.must("setting", "list")
	assert.Contains(t, out, "active-context = 1")
	assert.Contains(t, out, "output-file = out.csv")

	out = env.must("rewrite")
	assert.Contains(t, out, filepath.Join(env.out, "out.csv"))
	_, err := os.Stat(filepath.Join(env.out, "out.csv"))
	require.NoError(t, err)
}

func TestBoardJSONAndWorkbook(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "race", "--activate")
	env.must("result", "add", "--device", "1", "--time", "10")
	env.must("scan", "42")
	env.must("scan", "43")

	xlsx := filepath.Join(env.out, "board.xlsx")
	out := env.must("--format", "json", "board", "--xlsx", xlsx)
	var resp struct {
		Data struct {
			Results []struct {
				ScanID int64 `json:"scan_id"`
			} `json:"results"`
			Scans  []json.RawMessage `json:"scans"`
			Cursor int64             `json:"cursor"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, int64(1), resp.Data.Results[0].ScanID)
	assert.Len(t, resp.Data.Scans, 2)

	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	out = env.must("board")
	assert.Contains(t, out, "pending: 43#2")
}

func TestScoreCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "sim", "--kind", "simulation", "--activate")
	env.must("result", "add", "--device", "1", "--time", "10", "--bib", "42")
	env.must("result", "add", "--device", "2", "--time", "20", "--bib", "43")
	env.must("result", "add", "--device", "3", "--time", "30", "--bib", "45")
	env.must("confirm", "3")

	expected := filepath.Join(env.out, "expected.csv")
	require.NoError(t, os.WriteFile(expected, []byte("order,time,bibno\n1,10,42\n2,20,44\n3,30,45\n"), 0644))

	out := env.must("score", expected)
	assert.Contains(t, out, "sim: 33.3% (1 correct of 3 expected, 3 recorded)")
	assert.Contains(t, out, "missing bib 44")
	assert.Contains(t, out, "extra  bib 43")

	_, err := env.run("score", filepath.Join(env.out, "expected.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSimulateCommand(t *testing.T) {
	env := newCLIEnv(t)
	env.must("context", "create", "sim", "--kind", "simulation", "--activate")

	events := filepath.Join(env.out, "events.csv")
	require.NoError(t, os.WriteFile(events, []byte("time,etype,bibno\n"+
		"30,timemachine,45\n"+
		"10,timemachine,42\n"+
		"12,scan,42\n"+
		"20,timemachine,43\n"+
		"21,scan,00000\n"+
		"22,scan,43\n"), 0644))

	out := env.must("simulate", events)
	assert.Contains(t, out, "sim: replayed 3 result(s) and 2 scan(s), 1 rejected")

	out = env.must("--format", "json", "board")
	assert.Contains(t, out, `"device_position":3`)

	env.must("confirm", "3")
	expected := filepath.Join(env.out, "expected.csv")
	require.NoError(t, os.WriteFile(expected, []byte("order,time,bibno\n1,10,42\n2,20,43\n3,30,45\n"), 0644))
	out = env.must("score", expected)
	assert.Contains(t, out, "sim: 100.0% (3 correct of 3 expected, 3 recorded)")

	// Only simulation contexts replay.
	env.must("context", "create", "race")
	_, err := env.run("simulate", events, "--context", "race")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = env.run("simulate", filepath.Join(env.out, "events.xlsx"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
