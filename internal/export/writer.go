package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Encode writes rows as headerless CRLF CSV.
func Encode(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Writer writes artifacts to the filesystem.
//
// Writes are serialized per Writer, so contexts sharing one output file
// never interleave rows even when the engine gate is per context.
//
// Thread-safety: Writer is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
}

// NewWriter creates a filesystem artifact writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Exists reports whether the artifact file is present.
func (w *Writer) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Append adds rows to the end of the artifact, creating it if needed.
func (w *Writer) Append(path string, rows []Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	if err := Encode(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	return f.Close()
}

// Rewrite replaces the artifact with rows. The new content is written to a
// temporary file in the same directory and renamed over the old one, so
// readers see either the old or the new file, never a partial one.
func (w *Writer) Rewrite(path string, rows []Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := Encode(tmp, rows); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}
