package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/labflow-core/internal/sequence"
)

// defaultRunListLimit bounds GET /api/runs when no limit is given.
const defaultRunListLimit = 50

// sequenceSummary is the list representation of a registered sequence.
type sequenceSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Actions     int    `json:"actions"`
}

// startRunRequest is the body for POST /api/runs.
type startRunRequest struct {
	Sequence string `json:"sequence"`
}

// startRunResponse is returned when a run is accepted.
type startRunResponse struct {
	Run sequence.RunRecord `json:"run"`
}

// handleListSequences returns the sequences registered with the engine.
func (s *Server) handleListSequences(w http.ResponseWriter, _ *http.Request) {
	seqs := s.engine.Sequences()

	summaries := make([]sequenceSummary, 0, len(seqs))
	for _, seq := range seqs {
		summaries = append(summaries, sequenceSummary{
			Name:        seq.Name,
			Description: seq.Description,
			Actions:     seq.Root.CountActions(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sequences": summaries,
		"count":     len(summaries),
	})
}

// handleStartRun launches a registered sequence by name. The run
// executes asynchronously; the accepted record is returned immediately.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Sequence == "" {
		writeBadRequest(w, "sequence name is required")
		return
	}

	// The run outlives this request. Detach from the request context so
	// the response being written does not cancel the run mid-sequence.
	runCtx := context.WithoutCancel(r.Context())

	run, err := s.engine.Start(runCtx, req.Sequence, "api")
	if err != nil {
		switch {
		case errors.Is(err, sequence.ErrSequenceNotFound):
			writeNotFound(w, "unknown sequence: "+req.Sequence)
		case errors.Is(err, sequence.ErrConfig):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("failed to start run", "sequence", req.Sequence, "error", err)
			writeInternalError(w, "failed to start run")
		}
		return
	}

	s.logger.Info("run started via API", "run_id", run.ID(), "sequence", req.Sequence)
	writeJSON(w, http.StatusAccepted, startRunResponse{Run: run.Record()})
}

// handleListRuns returns recent runs, newest first. The limit query
// parameter caps the result count.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.engine.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  records,
		"count": len(records),
	})
}

// handleGetRun returns one run by ID, live or historical.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	record, err := s.engine.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, sequence.ErrRunNotFound) {
			writeNotFound(w, "unknown run: "+runID)
			return
		}
		s.logger.Error("failed to get run", "run_id", runID, "error", err)
		writeInternalError(w, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleInterruptRun delivers an interrupt signal to an active run.
// A signal-conditioned loop consumes it and exits at its next boundary.
func (s *Server) handleInterruptRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if err := s.engine.Interrupt(runID); err != nil {
		if errors.Is(err, sequence.ErrRunNotFound) {
			writeNotFound(w, "no active run: "+runID)
			return
		}
		s.logger.Error("failed to interrupt run", "run_id", runID, "error", err)
		writeInternalError(w, "failed to interrupt run")
		return
	}

	s.logger.Info("run interrupted via API", "run_id", runID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "interrupted"})
}

// handleCancelRun requests cooperative cancellation of an active run.
// The run stops at the next action boundary; in-flight instrument
// operations are never killed mid-call.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if err := s.engine.Cancel(runID); err != nil {
		if errors.Is(err, sequence.ErrRunNotFound) {
			writeNotFound(w, "no active run: "+runID)
			return
		}
		s.logger.Error("failed to cancel run", "run_id", runID, "error", err)
		writeInternalError(w, "failed to cancel run")
		return
	}

	s.logger.Info("run cancelled via API", "run_id", runID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}
