package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoapply/syncbridge/internal/core/domain"
)

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Adapter.Snapshot())
}

func (s *Server) handleViewInterventions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending_count": s.opts.Adapter.PendingCount(),
		"interventions": s.opts.Adapter.Interventions(),
	})
}

func (s *Server) handleViewSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.opts.Adapter.Sessions(),
	})
}

// handleRefresh requests a fresh snapshot: over the live channel when open,
// plus an immediate authoritative session re-fetch either way.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.opts.Channel != nil {
		s.opts.Channel.Refresh()
	}
	if err := s.opts.Tracker.Refresh(r.Context()); err != nil {
		s.logger.Warn("session refresh failed", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleResolve proxies a resolution to the backend and feeds the confirmed
// result into the reconciler. The matching channel event may arrive before
// or after this response; removal by id is idempotent so both orders
// converge.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrCommand("invalid resolve request").WithStatusCode(http.StatusBadRequest))
		return
	}
	if req.Action == "" {
		req.Action = domain.ResolveContinue
	}

	result, err := s.opts.Client.ResolveIntervention(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	s.opts.Resolver.MarkResolved(id, string(result.Action))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.opts.Tracker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var opts domain.ResumeOptions
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			writeError(w, domain.ErrCommand("invalid resume options").WithStatusCode(http.StatusBadRequest))
			return
		}
	}

	result, err := s.opts.Tracker.Resume(r.Context(), id, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Tracker.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkApplied(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Tracker.MarkApplied(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Tracker.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req domain.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrCommand("invalid start request").WithStatusCode(http.StatusBadRequest))
		return
	}
	if req.JobURL == "" {
		writeError(w, domain.ErrCommand("job_url is required").WithStatusCode(http.StatusBadRequest))
		return
	}

	result, err := s.opts.Client.StartApplication(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	// Pick up the new session without waiting for the next poll tick.
	if err := s.opts.Tracker.Refresh(r.Context()); err != nil {
		s.logger.Warn("post-start refresh failed", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a bridge error as an inline JSON error without
// discarding any other view state; plain errors become a generic command
// failure.
func writeError(w http.ResponseWriter, err error) {
	var be *domain.BridgeError
	if !errors.As(err, &be) {
		be = domain.ErrCommand(err.Error())
	}
	writeJSON(w, be.HTTPStatusCode(), map[string]interface{}{
		"error": be,
	})
}
