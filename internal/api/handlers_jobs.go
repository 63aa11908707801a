package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/djsydney04/wrapshot/internal/jobs"
)

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.orchestrator.Job(r.Context(), jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("get job", "job_id", jobID, "error", err)
		jsonError(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	list, err := s.orchestrator.Jobs(r.Context(), docID)
	if err != nil {
		s.log.Error("list jobs", "doc_id", docID, "error", err)
		jsonError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"jobs":        list,
	})
}

func (s *Server) handleGetBreakdown(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	bd, err := s.orchestrator.Breakdown(r.Context(), docID)
	if errors.Is(err, jobs.ErrNotFound) {
		jsonError(w, "no breakdown for document", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("get breakdown", "doc_id", docID, "error", err)
		jsonError(w, "failed to load breakdown", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": bd.DocumentID,
		"job_id":      bd.JobID,
		"updated_at":  bd.UpdatedAt,
		"result":      bd.Result,
	})
}

// handleSweep cancels the document's jobs that have been active longer than
// the staleness timeout.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	n, err := s.orchestrator.CancelStaleJobs(r.Context(), docID)
	if err != nil {
		s.log.Error("sweep stale jobs", "doc_id", docID, "error", err)
		jsonError(w, "failed to sweep jobs", http.StatusInternalServerError)
		return
	}
	if n > 0 {
		s.log.Warn("cancelled stale jobs", "doc_id", docID, "count", n)
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": n})
}
