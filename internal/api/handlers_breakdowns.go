package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/djsydney04/wrapshot/internal/chunker"
	"github.com/djsydney04/wrapshot/internal/document"
	"github.com/djsydney04/wrapshot/internal/jobs"
	"github.com/djsydney04/wrapshot/internal/parser"
	"github.com/djsydney04/wrapshot/internal/pipeline"
)

type breakdownRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	PageCount  int    `json:"page_count"`
}

// handleStartBreakdown accepts either a JSON body with the script text or a
// multipart upload with a "file" field, starts a job and queues it.
func (s *Server) handleStartBreakdown(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	var (
		req breakdownRequest
		ok  bool
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, ok = s.readUpload(w, r)
	} else {
		req, ok = s.readJSON(w, r)
	}
	if !ok {
		return
	}

	if req.DocumentID == "" {
		req.DocumentID = document.IDFromText(req.Text)
	}

	job, task, err := s.orchestrator.Start(r.Context(), pipeline.Request{
		DocumentID: req.DocumentID,
		Title:      req.Title,
		Text:       req.Text,
		PageCount:  req.PageCount,
	})
	switch {
	case errors.Is(err, chunker.ErrNoContent):
		jsonError(w, "document has no text content", http.StatusBadRequest)
		return
	case errors.Is(err, pipeline.ErrNoDocument):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, jobs.ErrAlreadyRunning):
		jsonError(w, "a breakdown is already running for this document", http.StatusConflict)
		return
	case err != nil:
		s.log.Error("start breakdown", "doc_id", req.DocumentID, "error", err)
		jsonError(w, "failed to start breakdown", http.StatusInternalServerError)
		return
	}

	if err := s.orchestrator.Submit(task); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"document_id": job.DocumentID,
		"status":      job.Status,
		"poll_url":    fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request) (breakdownRequest, bool) {
	var req breakdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, fmt.Sprintf("request exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return req, false
		}
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if req.PageCount < 0 {
		jsonError(w, "page_count must not be negative", http.StatusBadRequest)
		return req, false
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	return req, true
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (breakdownRequest, bool) {
	var req breakdownRequest
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return req, false
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return req, false
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return req, false
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return req, false
	}

	p, err := parser.ForFile(filename, s.parserOpts)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		s.log.Warn("parse upload", "filename", filename, "error", err)
		jsonError(w, "failed to parse file: "+err.Error(), http.StatusUnprocessableEntity)
		return req, false
	}

	req = breakdownRequest{
		DocumentID: strings.TrimSpace(r.FormValue("document_id")),
		Title:      doc.Title,
		Text:       doc.Text,
		PageCount:  doc.PageCount,
	}
	if t := strings.TrimSpace(r.FormValue("title")); t != "" {
		req.Title = t
	}
	if v := r.FormValue("page_count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.PageCount = n
		}
	}
	return req, true
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
