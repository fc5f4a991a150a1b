package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/model"
	"github.com/roach88/finishline/internal/score"
	"github.com/roach88/finishline/internal/simulate"
)

type createContextRequest struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Date        string  `json:"date"`
	StartOffset elapsed `json:"start_offset"`
	OutputFile  string  `json:"output_file"`
}

type resultRequest struct {
	DevicePosition int     `json:"device_position"`
	Time           elapsed `json:"time"`
	BibNumber      string  `json:"bib_number"`
}

type updateResultRequest struct {
	BibNumber      *string  `json:"bib_number"`
	Time           *elapsed `json:"time"`
	DevicePosition *int     `json:"device_position"`
}

type scanRequest struct {
	BibNumber string `json:"bib_number"`
}

type eventRequest struct {
	Time  elapsed `json:"time"`
	Etype string  `json:"etype"`
	Bibno string  `json:"bibno"`
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) listContexts(w http.ResponseWriter, r *http.Request) {
	cs, err := s.engine.Contexts(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, cs)
}

func (s *Server) createContext(w http.ResponseWriter, r *http.Request) {
	var req createContextRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	c, err := s.engine.CreateContext(r.Context(), model.Context{
		Name:        req.Name,
		Kind:        model.Kind(req.Kind),
		Date:        req.Date,
		StartOffset: float64(req.StartOffset),
		OutputFile:  req.OutputFile,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, reply{Status: StatusSuccess, Data: c})
}

func (s *Server) activeContext(w http.ResponseWriter, r *http.Request) {
	c, ok, err := s.engine.ActiveContext(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		s.fail(w, &engine.Error{Code: engine.ErrCodeNotFound, Message: "no active context"})
		return
	}
	s.ok(w, c)
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	c, err := s.engine.Context(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, c)
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.Activate(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) board(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	b, err := s.engine.Board(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, b)
}

func (s *Server) submitResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req resultRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.engine.SubmitResult(r.Context(), id, engine.ResultInput{
		DevicePosition: req.DevicePosition,
		Time:           float64(req.Time),
		BibNumber:      req.BibNumber,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, reply{Status: StatusSuccess, Data: res})
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req scanRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	scan, err := s.engine.SubmitScan(r.Context(), id, req.BibNumber)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, reply{Status: StatusSuccess, Data: scan})
}

func (s *Server) rewrite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.Rewrite(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) artifact(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	rows, err := s.engine.Artifact(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, rows)
}

func (s *Server) workbook(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.engine.Context(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="context-%d.xlsx"`, id))
	if err := s.engine.WriteWorkbook(r.Context(), id, w); err != nil {
		s.logger.Error("write workbook failed", "context_id", id, "error", err)
	}
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	var expected []score.Expected
	if err := decode(r, &expected); err != nil {
		s.fail(w, err)
		return
	}
	rep, err := score.ForContext(r.Context(), s.engine, id, expected)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, rep)
}

// simulate replays events into a simulation context. The body is a JSON
// list of events, or with ?format=csv or ?format=log an event file.
func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	c, err := s.engine.Context(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	var events []simulate.Event
	switch format := r.URL.Query().Get("format"); format {
	case "":
		var req []eventRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, err)
			return
		}
		for _, e := range req {
			events = append(events, simulate.Event{Time: float64(e.Time), Kind: simulate.EventKind(e.Etype), Bib: e.Bibno})
		}
	case "csv", "log":
		loader := simulate.Loader(simulate.CSVLoader{})
		if format == "log" {
			loader = simulate.LogLoader{}
		}
		if events, err = loader.Load(r.Body, c.StartOffset); err != nil {
			s.fail(w, engine.NewParameterError("invalid event file: %v", err))
			return
		}
	default:
		s.fail(w, engine.NewParameterError("unsupported format %q: use csv or log", format))
		return
	}

	stats, err := simulate.New(s.engine, simulate.WithLogger(s.logger)).Run(r.Context(), c, events)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, stats)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "resultID")
	if err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.engine.Result(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, res)
}

func (s *Server) updateResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "resultID")
	if err != nil {
		s.fail(w, err)
		return
	}
	var req updateResultRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	u := engine.ResultUpdate{BibNumber: req.BibNumber, DevicePosition: req.DevicePosition}
	if req.Time != nil {
		t := float64(*req.Time)
		u.Time = &t
	}
	res, err := s.engine.UpdateResult(r.Context(), id, u)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, res)
}

func (s *Server) deleteResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "resultID")
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.DeleteResult(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "resultID")
	if err != nil {
		s.fail(w, err)
		return
	}
	confirmed, err := s.engine.Confirm(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, confirmed)
}

func (s *Server) correct(w http.ResponseWriter, r *http.Request) {
	var c model.Correction
	if err := decode(r, &c); err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.engine.Correct(r.Context(), c)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, res)
}

func (s *Server) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.Settings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, settings)
}

func (s *Server) setSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.SetSetting(r.Context(), chi.URLParam(r, "name"), req.Value); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

// events streams the context's change notifications as server-sent events.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "contextID")
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.subscriber == nil {
		s.writeJSON(w, http.StatusNotImplemented, reply{Status: StatusFail, Error: "change stream disabled"})
		return
	}
	if _, err := s.engine.Context(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, fmt.Errorf("streaming unsupported"))
		return
	}

	changes, err := s.subscriber.Subscribe(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(c)
			if err != nil {
				s.logger.Warn("marshal change failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: change\ndata: %s\n\n", c.Seq, data)
			flusher.Flush()
		}
	}
}
