package tmreader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
)

var crlf = []byte("\r\n")

// Framer splits a byte stream into CRLF-terminated lines.
type Framer struct {
	residual []byte
}

// Feed adds a chunk and returns every line it completes, without
// terminators. The unterminated tail is kept for the next call.
func (f *Framer) Feed(chunk []byte) [][]byte {
	data := append(f.residual, chunk...)
	var lines [][]byte
	for {
		i := bytes.Index(data, crlf)
		if i < 0 {
			break
		}
		lines = append(lines, bytes.Clone(data[:i]))
		data = data[i+len(crlf):]
	}
	f.residual = bytes.Clone(data)
	return lines
}

// Residual returns the buffered partial line.
func (f *Framer) Residual() []byte {
	return f.residual
}

// Reader decodes records from a byte stream such as a serial port.
type Reader struct {
	src     io.Reader
	framer  Framer
	buf     []byte
	pending [][]byte
	logger  *slog.Logger
}

// NewReader creates a Reader over src.
func NewReader(src io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{src: src, buf: make([]byte, 4096), logger: logger}
}

// Next returns the next decodable record. Undecodable lines are logged and
// skipped. It returns io.EOF once the source is exhausted; a trailing
// unterminated line is discarded.
func (r *Reader) Next() (Record, error) {
	for {
		for len(r.pending) > 0 {
			line := r.pending[0]
			r.pending = r.pending[1:]
			rec, err := Parse(line)
			if err == nil {
				return rec, nil
			}
			if errors.Is(err, ErrUnknownControl) {
				r.logger.Debug("skipping non-record line", "line", string(line))
			} else {
				r.logger.Warn("could not decode timer line", "line", string(line), "error", err)
			}
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = r.framer.Feed(r.buf[:n])
		}
		if err != nil {
			if len(r.pending) > 0 {
				continue
			}
			if len(r.framer.Residual()) > 0 {
				r.logger.Warn("discarding unterminated timer line", "line", string(r.framer.Residual()))
			}
			return Record{}, err
		}
	}
}

// Stream sends every record from r on the returned channel until the source
// ends or ctx is done. The error channel receives the terminal error (nil at
// io.EOF) and is closed with the record channel.
func (r *Reader) Stream(ctx context.Context) (<-chan Record, <-chan error) {
	out := make(chan Record)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for {
			rec, err := r.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errc <- err
				}
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return out, errc
}
