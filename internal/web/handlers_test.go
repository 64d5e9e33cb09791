package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/config"
	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/logging"
	"github.com/hpungsan/tablesnap/internal/ops"
)

func setupTest(t *testing.T) *Handlers {
	t.Helper()
	base := t.TempDir()
	database, err := db.Init(base)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}

	return &Handlers{
		env:      ops.NewEnv(database, config.DefaultConfig(), base, nil),
		renderer: NewRenderer(templateSub, "test", logging.Discard()),
	}
}

// writeCapture writes one table capture under label.
func writeCapture(t *testing.T, h *Handlers, label, table string, rows ...capture.Row) {
	t.Helper()
	w, err := h.env.Store.Create(capture.Header{Table: table, Label: label, Mode: capture.ModeFull, Key: "id"})
	if err != nil {
		t.Fatalf("create capture: %v", err)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	if _, err := w.Close(); err != nil {
		t.Fatalf("close capture: %v", err)
	}
}

// seedRun records a comparison with one inserted and one updated user and
// returns its ID.
func seedRun(t *testing.T, h *Handlers) string {
	t.Helper()
	writeCapture(t, h, "before", "users",
		capture.Row{"id": 1, "name": "ada"},
	)
	writeCapture(t, h, "after", "users",
		capture.Row{"id": 1, "name": "ada lovelace"},
		capture.Row{"id": 2, "name": "<script>alert(1)</script>"},
	)
	out, err := ops.Compare(context.Background(), h.env, ops.CompareInput{})
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return out.RunID
}

// --- HandleRuns ---

func TestHandleRuns_List(t *testing.T) {
	h := setupTest(t)
	id := seedRun(t, h)

	req := httptest.NewRequest("GET", "/runs", nil)
	rec := httptest.NewRecorder()
	h.HandleRuns(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, id) {
		t.Errorf("expected run ID %s in response", id)
	}
	if !strings.Contains(body, "before → after") {
		t.Error("expected labels in response")
	}
}

func TestHandleRuns_Empty(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/runs", nil)
	rec := httptest.NewRecorder()
	h.HandleRuns(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No runs recorded yet") {
		t.Error("expected empty state message")
	}
}

func TestHandleRuns_FilterAndJSON(t *testing.T) {
	h := setupTest(t)
	seedRun(t, h)

	req := httptest.NewRequest("GET", "/runs?before=release-1", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleRuns(rec, req)

	var out ops.RunsOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Items) != 0 || out.Pagination.Total != 0 {
		t.Errorf("filtered runs = %+v", out)
	}
}

// --- HandleRunDetail ---

func TestHandleRunDetail_Found(t *testing.T) {
	h := setupTest(t)
	id := seedRun(t, h)

	req := httptest.NewRequest("GET", "/runs/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.HandleRunDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2>users</h2>") {
		t.Error("expected rendered markdown table heading")
	}
	if !strings.Contains(body, "<td>ada lovelace</td>") {
		t.Error("expected updated value in rendered table")
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("captured values must be escaped")
	}
}

func TestHandleRunDetail_JSON(t *testing.T) {
	h := setupTest(t)
	id := seedRun(t, h)

	req := httptest.NewRequest("GET", "/runs/"+id, nil)
	req.SetPathValue("id", id)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleRunDetail(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	totals := payload["totals"].(map[string]any)
	if totals["inserted"] != float64(1) || totals["updated"] != float64(1) {
		t.Errorf("totals = %v", totals)
	}
}

func TestHandleRunDetail_NotFound(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/runs/01HZZZZZZZZZZZZZZZZZZZZZZZ", nil)
	req.SetPathValue("id", "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	rec := httptest.NewRecorder()
	h.HandleRunDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "run not found") {
		t.Error("expected not found message on error page")
	}
}

func TestHandleRunDetail_EmptyID(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/runs/", nil)
	rec := httptest.NewRecorder()
	h.HandleRunDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- HandleCaptures ---

func TestHandleCaptures(t *testing.T) {
	h := setupTest(t)
	writeCapture(t, h, "before", "orders", capture.Row{"id": 1})

	req := httptest.NewRequest("GET", "/captures", nil)
	rec := httptest.NewRecorder()
	h.HandleCaptures(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<td>orders</td>") {
		t.Error("expected captured table in response")
	}
}

func TestHandleCaptures_InvalidLabel(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/captures?label=a/b", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleCaptures(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"INVALID_REQUEST"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// --- HandlePurge ---

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest("POST", "/runs/purge", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandlePurge_MissingConfirm(t *testing.T) {
	h := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandlePurge(rec, postForm(url.Values{}))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePurge_InvalidOlderThanDays(t *testing.T) {
	h := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandlePurge(rec, postForm(url.Values{"confirm": {"true"}, "older_than_days": {"soon"}}))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePurge_JSONResponse(t *testing.T) {
	h := setupTest(t)
	seedRun(t, h)

	req := postForm(url.Values{"confirm": {"true"}})
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandlePurge(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out ops.PurgeOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Purged != 1 {
		t.Errorf("purged = %d, want 1", out.Purged)
	}
}

func TestHandlePurge_HTMLResponse(t *testing.T) {
	h := setupTest(t)

	rec := httptest.NewRecorder()
	h.HandlePurge(rec, postForm(url.Values{"confirm": {"true"}, "older_than_days": {"7"}}))

	if !strings.Contains(rec.Body.String(), "No runs to purge") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// --- Server ---

func TestServer_RoutesAndSecurityHeaders(t *testing.T) {
	h := setupTest(t)
	id := seedRun(t, h)

	srv, err := NewServer(h.env, "test", "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusFound},
		{"/runs", http.StatusOK},
		{"/runs/" + id, http.StatusOK},
		{"/captures", http.StatusOK},
		{"/static/style.css", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Header().Get("X-Frame-Options") != "DENY" {
				t.Error("missing X-Frame-Options header")
			}
			if rec.Header().Get("Content-Security-Policy") == "" {
				t.Error("missing Content-Security-Policy header")
			}
		})
	}
}

// --- helpers ---

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=abc", 20},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/runs?"+tt.query, nil)
		if got := parseIntParam(req, "limit", 20); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestParseBoolParam(t *testing.T) {
	for query, want := range map[string]bool{"x=true": true, "x=1": true, "x=no": false, "": false} {
		req := httptest.NewRequest("GET", "/?"+query, nil)
		if got := parseBoolParam(req, "x"); got != want {
			t.Errorf("parseBoolParam(%q) = %v, want %v", query, got, want)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatCount(1234567); got != "1,234,567" {
		t.Errorf("formatCount = %s", got)
	}
	if got := formatBytes(1500); got != "1.5 kB" {
		t.Errorf("formatBytes = %s", got)
	}
	if got := formatTime(0); got != "1970-01-01 00:00" {
		t.Errorf("formatTime = %s", got)
	}
}
