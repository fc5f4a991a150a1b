package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/model"
)

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

type reply struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
	Token  string `json:"token,omitempty"`
	Data   any    `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}

func (s *Server) ok(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, reply{Status: StatusSuccess, Data: data})
}

// fail renders err. Rejections carry their message; internal faults are
// logged by the engine and reported generically.
func (s *Server) fail(w http.ResponseWriter, err error) {
	rep := reply{Status: StatusFail, Code: string(engine.CodeOf(err))}
	var ee *engine.Error
	if errors.As(err, &ee) {
		rep.Token = ee.Token
	}

	status := http.StatusInternalServerError
	switch engine.CodeOf(err) {
	case engine.ErrCodeNotFound:
		status = http.StatusNotFound
		rep.Error = err.Error()
	case engine.ErrCodeParameter:
		status = http.StatusBadRequest
		rep.Error = err.Error()
	case engine.ErrCodeExportIO:
		rep.Error = err.Error()
	default:
		if rep.Code == "" {
			s.logger.Error("request failed", "error", err)
		}
		rep.Error = "internal error"
	}
	s.writeJSON(w, status, rep)
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...any) {
	s.fail(w, engine.NewParameterError(format, args...))
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return engine.NewParameterError("invalid request body: %v", err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, engine.NewParameterError("invalid %s %q", name, raw)
	}
	return id, nil
}

// elapsed accepts seconds as a JSON number or as a "[[hh:]mm:]ss[.dd]"
// string.
type elapsed float64

func (e *elapsed) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*e = elapsed(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time must be a number of seconds or a [[hh:]mm:]ss[.dd] string")
	}
	secs, err := model.ParseElapsed(s)
	if err != nil {
		return err
	}
	*e = elapsed(secs)
	return nil
}
