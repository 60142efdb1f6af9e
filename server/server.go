// Package server exposes the engine's control surface over HTTP: run
// lifecycle, inbound completion and approval signals, graph validation, and
// a server-sent-events progress stream.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/deepnoodle-ai/dagflow"
)

// Server wraps an engine with HTTP handlers.
type Server struct {
	engine *dagflow.Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a server over the given engine.
func New(engine *dagflow.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /graphs/validate", s.handleValidate)
	s.mux.HandleFunc("POST /runs", s.handleStartRun)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{runID}", s.handleGetRun)
	s.mux.HandleFunc("POST /runs/{runID}/resume", s.handleResume)
	s.mux.HandleFunc("POST /runs/{runID}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /runs/{runID}/pending", s.handlePending)
	s.mux.HandleFunc("GET /runs/{runID}/events", s.handleEvents)
	s.mux.HandleFunc("POST /runs/{runID}/nodes/{nodeID}/complete", s.handleComplete)
	s.mux.HandleFunc("POST /runs/{runID}/nodes/{nodeID}/fail", s.handleFail)
	s.mux.HandleFunc("POST /runs/{runID}/nodes/{nodeID}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /runs/{runID}/nodes/{nodeID}/reject", s.handleReject)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var opts dagflow.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	if err := s.engine.Validate(opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

type startRunRequest struct {
	Graph  string         `json:"graph"`
	Inputs map[string]any `json:"inputs"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	run, err := s.engine.Start(r.Context(), req.Graph, req.Inputs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.ListRuns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.Status(r.Context(), r.PathValue("runID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.Resume(r.Context(), r.PathValue("runID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context(), r.PathValue("runID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"cancelling": true})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.engine.PollPending(r.Context(), r.PathValue("runID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pending)
}

type completeRequest struct {
	Output any `json:"output"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	err := s.engine.CompleteNode(r.Context(), r.PathValue("runID"), r.PathValue("nodeID"), req.Output)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"completed": true})
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req failRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	if req.Reason == "" {
		req.Reason = "failed by external signal"
	}
	err := s.engine.FailNode(r.Context(), r.PathValue("runID"), r.PathValue("nodeID"), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"failed": true})
}

type decisionRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	err := s.engine.ApproveNode(r.Context(), r.PathValue("runID"), r.PathValue("nodeID"), req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"approved": true})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	err := s.engine.RejectNode(r.Context(), r.PathValue("runID"), r.PathValue("nodeID"), req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rejected": true})
}

// handleEvents streams a run's progress as server-sent events: the recorded
// history first, then live events. Events carry unique ids, so a client that
// sees one twice across the replay/live boundary can dedupe by id.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapshot, err := s.engine.Status(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing falls between history and live.
	sub := s.engine.Subscribe(runID)
	defer sub.Close()

	history, err := s.engine.Events(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to load event history", "run_id", runID, "error", err)
		return
	}
	for _, event := range history {
		if err := writeSSE(w, event); err != nil {
			return
		}
	}
	flusher.Flush()

	if snapshot.Run.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event *dagflow.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data)
	return err
}

// decodeOptional decodes a JSON body, tolerating an empty one.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type apiError struct {
	status int
	err    error
}

func (e *apiError) Error() string { return e.err.Error() }

func badRequest(err error) error {
	return &apiError{status: http.StatusBadRequest, err: err}
}

// writeError maps engine errors onto HTTP status codes: unknown run or node
// is 404, a signal conflict is 409, an invalid graph or input is 400, and
// persistence failures are 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var api *apiError
	var graphErr *dagflow.GraphError
	var conflict *dagflow.SignalConflictError
	switch {
	case errors.As(err, &api):
		status = api.status
	case errors.Is(err, dagflow.ErrRunNotFound), errors.Is(err, dagflow.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &graphErr):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
