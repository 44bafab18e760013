package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/fieldserve/pkg/engine"
	"github.com/bastiangx/fieldserve/pkg/lookup"
)

// Server handles the IPC for one search input.
type Server struct {
	engine *engine.Engine
	reader io.Reader
	writer io.Writer

	wmu sync.Mutex
	// sent is the highest state version written, guarded by wmu.
	sent uint64

	rmu       sync.RWMutex
	timeRange lookup.TimeRange

	requests int
}

// NewServer creates a server reading requests from r and writing to w.
// Attach an engine before calling Start.
func NewServer(r io.Reader, w io.Writer) *Server {
	return &Server{
		reader: r,
		writer: w,
	}
}

// Attach wires the engine and routes its background updates to the host.
func (s *Server) Attach(e *engine.Engine) {
	s.engine = e
	e.SetOnUpdate(s.pushUpdate)
}

// TimeRange returns the range last set by the host. It is meant to be passed
// as the engine's lookup.TimeRangeFunc.
func (s *Server) TimeRange() lookup.TimeRange {
	s.rmu.RLock()
	defer s.rmu.RUnlock()
	return s.timeRange
}

// Start serves requests until the input is closed.
func (s *Server) Start() error {
	if s.engine == nil {
		return errors.New("server has no engine attached")
	}
	log.Debug("Starting Server.")

	s.send(StatusResponse{Status: "ready"})

	dec := msgpack.NewDecoder(bufio.NewReader(s.reader))
	for {
		raw, err := dec.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("Input closed, stopping server.")
				return nil
			}
			log.Errorf("Reading request: %v", err)
			return err
		}

		var req Request
		if err := msgpack.Unmarshal(raw, &req); err != nil {
			log.Errorf("Unmarshaling request: %v", err)
			s.sendError("", "invalid request", 400)
			continue
		}
		s.requests++
		s.handleRequest(req)
	}
}

func (s *Server) handleRequest(req Request) {
	start := time.Now()

	switch req.Op {
	case "text":
		s.sendState(req.ID, s.engine.OnTextChange(req.Text), start)
	case "cursor":
		if req.Cursor == nil {
			s.sendError(req.ID, "missing 'c' parameter", 400)
			return
		}
		s.sendState(req.ID, s.engine.OnCursorChange(*req.Cursor), start)
	case "edit":
		if req.Cursor == nil {
			s.sendError(req.ID, "missing 'c' parameter", 400)
			return
		}
		s.sendState(req.ID, s.engine.Update(req.Text, *req.Cursor), start)
	case "select":
		if req.Candidate == "" {
			s.sendError(req.ID, "missing 'v' parameter", 400)
			return
		}
		s.engine.OnSelect(req.Candidate)
		s.sendState(req.ID, s.engine.State(), start)
	case "submit":
		s.send(SubmitResponse{ID: req.ID, Query: s.engine.OnSubmit()})
	case "fields":
		s.sendState(req.ID, s.engine.SetFields(req.Fields), start)
	case "range":
		s.handleRange(req, start)
	case "state":
		s.sendState(req.ID, s.engine.State(), start)
	case "health":
		stats := s.engine.Stats()
		stats["requests"] = s.requests
		s.send(StatusResponse{ID: req.ID, Status: "ok", Stats: stats})
	default:
		s.sendError(req.ID, fmt.Sprintf("unknown op: %q", req.Op), 400)
	}
}

// handleRange stores the new range; a changed range invalidates every
// vocabulary fetched for the old one.
func (s *Server) handleRange(req Request, start time.Time) {
	r := lookup.RangeFromMillis(req.Start, req.End)

	s.rmu.Lock()
	changed := !s.timeRange.Equal(r)
	s.timeRange = r
	s.rmu.Unlock()

	if !changed {
		s.sendState(req.ID, s.engine.State(), start)
		return
	}
	log.Debugf("Time range changed to [%v, %v]", r.Start, r.End)
	s.sendState(req.ID, s.engine.InvalidateVocabulary(), start)
}

// pushUpdate writes a background state unless a newer one already went out.
func (s *Server) pushUpdate(st engine.State) {
	resp := stateResponse(st)
	resp.Event = "update"
	s.sendVersioned(resp, true)
}

func (s *Server) sendState(id string, st engine.State, start time.Time) {
	resp := stateResponse(st)
	resp.ID = id
	resp.TimeTaken = time.Since(start).Microseconds()
	s.sendVersioned(resp, false)
}

// sendVersioned writes a state frame. Responses always go out since the host
// waits for them; an outdated push is dropped.
func (s *Server) sendVersioned(resp StateResponse, push bool) {
	data, err := msgpack.Marshal(resp)
	if err != nil {
		log.Errorf("Marshaling response: %v", err)
		return
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if push && resp.Version <= s.sent {
		log.Debugf("Dropping outdated update (version %d, sent %d)", resp.Version, s.sent)
		return
	}
	if resp.Version > s.sent {
		s.sent = resp.Version
	}
	s.write(data)
}

func stateResponse(st engine.State) StateResponse {
	items := make([]SuggestionItem, len(st.Suggestions))
	for i, sg := range st.Suggestions {
		items[i] = SuggestionItem{
			Label: sg.Label,
			Kind:  sg.Kind.String(),
			Hits:  sg.Hits,
		}
	}
	return StateResponse{
		Text:         st.Text,
		Cursor:       st.Cursor,
		Phase:        st.Phase.String(),
		Field:        st.Context.Field,
		Prefix:       st.Context.Prefix,
		ReplaceStart: st.Context.ReplaceStart,
		ReplaceEnd:   st.Context.ReplaceEnd,
		Suggestions:  items,
		Open:         st.Open,
		Loading:      st.Loading,
		NoMatch:      st.NoMatch,
		Version:      st.Version,
	}
}

// send marshals response and writes it as one frame.
func (s *Server) send(response any) {
	data, err := msgpack.Marshal(response)
	if err != nil {
		log.Errorf("Marshaling response: %v", err)
		return
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.write(data)
}

// write sends one frame. Caller holds wmu.
func (s *Server) write(data []byte) {
	if _, err := s.writer.Write(data); err != nil {
		log.Errorf("Writing response: %v", err)
	}
}

func (s *Server) sendError(id, message string, code int) {
	s.send(ErrorResponse{ID: id, Error: message, Code: code})
}
