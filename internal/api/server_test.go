package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/extract"
	"github.com/djsydney04/wrapshot/internal/jobs"
	"github.com/djsydney04/wrapshot/internal/pipeline"
)

const script = "INT. KITCHEN - DAY\nMary cooks eggs for everyone.\n\n" +
	"EXT. ROOF - NIGHT\nJoe watches the city lights."

type staticCompleter struct{ resp string }

func (c staticCompleter) Complete(ctx context.Context, req extract.Request) (string, error) {
	return c.resp, nil
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.MaxQueueSize = 2
	cfg.SweepInterval = 0
	cfg.MaxUploadBytes = 1 << 16
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *pipeline.Orchestrator) {
	t.Helper()
	store, err := jobs.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := staticCompleter{resp: `{"scenes": [{"scene_number": "1", "int_ext": "INT", "set_name": "Kitchen",
		"time_of_day": "DAY", "page_eighths": 3, "characters": ["MARY"], "start_page": 1, "end_page": 1}]}`}
	ext := extract.NewExtractor(fake, log, extract.Options{Backoff: func(int) time.Duration { return 0 }})
	orch := pipeline.NewOrchestrator(cfg, store, ext, log)
	return NewServer(orch, extract.NewClaudeClient("test-key", "test-model"), log, cfg), orch
}

func do(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func postJSON(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/breakdowns", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", rec.Code, body)
	}
}

func TestStartBreakdown_JSON(t *testing.T) {
	s, orch := newTestServer(t, testConfig())

	rec, body := postJSON(t, s, `{"document_id": "doc-1", "title": "Pilot", "text": "`+strings.ReplaceAll(script, "\n", `\n`)+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", rec.Code, body)
	}
	if body["document_id"] != "doc-1" || body["status"] != string(jobs.StatusInProgress) {
		t.Fatalf("unexpected body: %v", body)
	}
	jobID, _ := body["job_id"].(string)
	if body["poll_url"] != "/api/jobs/"+jobID {
		t.Errorf("unexpected poll url %v", body["poll_url"])
	}
	if orch.QueueDepth() != 1 {
		t.Errorf("expected one queued task, got %d", orch.QueueDepth())
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil))
	if rec.Code != http.StatusOK || body["id"] != jobID {
		t.Fatalf("unexpected job response %d %v", rec.Code, body)
	}
}

func TestStartBreakdown_DerivesDocumentID(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec, body := postJSON(t, s, `{"text": "INT. KITCHEN - DAY\nMary cooks."}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", rec.Code, body)
	}
	id, _ := body["document_id"].(string)
	if !strings.HasPrefix(id, "doc-") || len(id) != 20 {
		t.Errorf("unexpected derived id %q", id)
	}
}

func TestStartBreakdown_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty text", `{"document_id": "doc-1", "text": "  \n "}`, http.StatusBadRequest},
		{"bad json", `{"document_id": `, http.StatusBadRequest},
		{"negative pages", `{"document_id": "doc-1", "text": "x", "page_count": -1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, testConfig())
			rec, body := postJSON(t, s, tt.body)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %v", tt.code, rec.Code, body)
			}
			if _, ok := body["error"]; !ok {
				t.Errorf("expected error field, got %v", body)
			}
		})
	}
}

func TestStartBreakdown_ConflictAndQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueSize = 1
	s, orch := newTestServer(t, cfg)

	if rec, body := postJSON(t, s, `{"document_id": "doc-1", "text": "INT. KITCHEN - DAY"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", rec.Code, body)
	}
	if rec, body := postJSON(t, s, `{"document_id": "doc-1", "text": "INT. KITCHEN - DAY"}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %v", rec.Code, body)
	}

	rec, body := postJSON(t, s, `{"document_id": "doc-2", "text": "INT. GARAGE - DAY"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %v", rec.Code, body)
	}
	list, err := orch.Jobs(context.Background(), "doc-2")
	if err != nil || len(list) != 1 || list[0].Status != jobs.StatusFailed {
		t.Fatalf("expected the rejected job to be FAILED, got %v %v", list, err)
	}
}

func TestStartBreakdown_Upload(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "../pilot.fountain")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("Title: Pilot\n\n" + script))
	_ = mw.WriteField("document_id", "doc-up")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/breakdowns", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, body := do(t, s, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", rec.Code, body)
	}
	if body["document_id"] != "doc-up" {
		t.Errorf("unexpected document id %v", body["document_id"])
	}
}

func TestStartBreakdown_UploadUnsupported(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "budget.xlsx")
	_, _ = fw.Write([]byte("PK"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/breakdowns", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, body := do(t, s, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(body["error"].(string), ".xlsx") {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
}

func TestBreakdownAndJobsListing(t *testing.T) {
	s, orch := newTestServer(t, testConfig())
	ctx := context.Background()

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/breakdown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d: %v", rec.Code, body)
	}

	job, err := orch.Process(ctx, pipeline.Request{DocumentID: "doc-1", Text: script})
	if err != nil || job.Status != jobs.StatusComplete {
		t.Fatalf("Process: %v %+v", err, job)
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/breakdown", nil))
	if rec.Code != http.StatusOK || body["job_id"] != job.ID {
		t.Fatalf("unexpected breakdown response %d %v", rec.Code, body)
	}
	result := body["result"].(map[string]any)
	if result["total_scenes"].(float64) != 1 {
		t.Errorf("expected one merged scene, got %v", result["total_scenes"])
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/jobs", nil))
	if rec.Code != http.StatusOK || len(body["jobs"].([]any)) != 1 {
		t.Fatalf("unexpected jobs response %d %v", rec.Code, body)
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/doc-none/jobs", nil))
	if rec.Code != http.StatusOK || len(body["jobs"].([]any)) != 0 {
		t.Fatalf("expected empty list, got %d %v", rec.Code, body)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSweep(t *testing.T) {
	cfg := testConfig()
	cfg.StaleTimeout = time.Nanosecond
	s, _ := newTestServer(t, cfg)

	if rec, body := postJSON(t, s, `{"document_id": "doc-1", "text": "INT. KITCHEN - DAY"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", rec.Code, body)
	}
	time.Sleep(5 * time.Millisecond)

	rec, body := do(t, s, httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/sweep", nil))
	if rec.Code != http.StatusOK || body["cancelled"].(float64) != 1 {
		t.Fatalf("unexpected sweep response %d %v", rec.Code, body)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "secret"
	s, _ := newTestServer(t, cfg)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"ok", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, body := do(t, s, req)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %v", tt.code, rec.Code, body)
			}
			if tt.code == http.StatusOK && body["model"] != "test-model" {
				t.Errorf("unexpected stats body %v", body)
			}
		})
	}

	// Health stays public.
	rec, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected public health, got %d", rec.Code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"pilot.pdf", "pilot.pdf"},
		{"../../etc/passwd", "passwd"},
		{"a..b.txt", "a_b.txt"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
