package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/finishline/internal/export"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/store"
	"github.com/roach88/finishline/internal/testutil"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// recordingWriter wraps export.Writer, recording each call and optionally
// failing them.
type recordingWriter struct {
	mu    sync.Mutex
	inner *export.Writer
	calls []string
	fail  error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{inner: export.NewWriter()}
}

func (w *recordingWriter) Exists(path string) bool {
	return w.inner.Exists(path)
}

func (w *recordingWriter) Append(path string, rows []export.Row) error {
	if err := w.record(ModeAppend, rows); err != nil {
		return err
	}
	return w.inner.Append(path, rows)
}

func (w *recordingWriter) Rewrite(path string, rows []export.Row) error {
	if err := w.record(ModeRewrite, rows); err != nil {
		return err
	}
	return w.inner.Rewrite(path, rows)
}

func (w *recordingWriter) record(mode string, rows []export.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, fmt.Sprintf("%s:%d", mode, len(rows)))
	return w.fail
}

func (w *recordingWriter) setFail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

func (w *recordingWriter) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) Notify(_ context.Context, c Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return nil
}

func (n *recordingNotifier) Changes() []Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Change(nil), n.changes...)
}

type recordingMetrics struct {
	mu      sync.Mutex
	ops     map[string]int
	exports map[string]int
	waits   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ops: map[string]int{}, exports: map[string]int{}}
}

func (m *recordingMetrics) OperationCompleted(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op+"/"+outcome]++
}

func (m *recordingMetrics) GateWaited(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits++
}

func (m *recordingMetrics) ExportWritten(mode, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[mode+"/"+outcome]++
}

func (m *recordingMetrics) Op(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops[key]
}

func (m *recordingMetrics) Export(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exports[key]
}

// fixture is an engine with an active context "race1" exporting to
// results.csv in a temp directory.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	e        *Engine
	dir      string
	writer   *recordingWriter
	notifier *recordingNotifier
	metrics  *recordingMetrics
	race     model.Context
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		dir:      t.TempDir(),
		writer:   newRecordingWriter(),
		notifier: &recordingNotifier{},
		metrics:  newRecordingMetrics(),
	}
	base := []Option{
		WithOutputDir(f.dir),
		WithArtifactWriter(f.writer),
		WithNotifier(f.notifier),
		WithMetrics(f.metrics),
		WithTokenGenerator(testutil.NewCountingTokenGenerator("op")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.e = New(setupTestStore(t), append(base, opts...)...)

	var err error
	f.race, err = f.e.CreateContext(f.ctx, model.Context{Name: "race1"})
	require.NoError(t, err)
	require.NoError(t, f.e.SetSetting(f.ctx, store.SettingOutputFile, "results.csv"))
	require.NoError(t, f.e.Activate(f.ctx, f.race.ID))
	return f
}

func (f *fixture) result(device int, secs float64) model.Result {
	f.t.Helper()
	r, err := f.e.SubmitResult(f.ctx, f.race.ID, ResultInput{DevicePosition: device, Time: secs})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) scan(bib string) model.ScannedBib {
	f.t.Helper()
	s, err := f.e.SubmitScan(f.ctx, f.race.ID, bib)
	require.NoError(f.t, err)
	return s
}

func (f *fixture) board() Board {
	f.t.Helper()
	b, err := f.e.Board(f.ctx, f.race.ID)
	require.NoError(f.t, err)
	require.NoError(f.t, CheckBoard(b))
	return b
}

func (f *fixture) artifact() string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, "results.csv"))
	require.NoError(f.t, err)
	return string(data)
}

// slotBibs returns, per result in place order, the bib of its linked scan,
// "-" for a hole, or "" for an empty slot.
func slotBibs(b Board) []string {
	bibs := b.ScanBibs()
	out := make([]string, len(b.Results))
	for i, r := range b.Results {
		switch {
		case r.HasScan():
			out[i] = bibs[r.ScanID]
		case r.IsHole():
			out[i] = "-"
		}
	}
	return out
}

// matched submits n results one second apart and n scans with bibs "1".."n".
func (f *fixture) matched(n int) Board {
	f.t.Helper()
	for i := 1; i <= n; i++ {
		f.result(i, float64(100+i))
		f.scan(fmt.Sprint(i))
	}
	return f.board()
}

func removeFile(dir, name string) error {
	return os.Remove(filepath.Join(dir, name))
}
