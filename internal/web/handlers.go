package web

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/hpungsan/tablesnap/internal/errors"
	"github.com/hpungsan/tablesnap/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	env      *ops.Env
	renderer *Renderer
}

// HandleRuns handles GET /runs list recorded comparison runs.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	input := ops.RunsInput{
		Before: r.URL.Query().Get("before"),
		After:  r.URL.Query().Get("after"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}

	result, err := ops.Runs(h.env.DB, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "runs", RunsPageData{
		PageData: h.renderer.page("Runs", "runs"),
		Output:   result,
		Before:   input.Before,
		After:    input.After,
	})
}

// HandleRunDetail handles GET /runs/{id} view one run's report.
func (h *Handlers) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("run ID is required"))
		return
	}

	format := "markdown"
	if wantsJSON(r) {
		format = "json"
	}
	run, err := ops.FetchRun(h.env.DB, ops.FetchRunInput{
		ID:         id,
		Format:     format,
		NoTruncate: parseBoolParam(r, "no_truncate"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(run.Report))
		return
	}

	h.renderer.renderPage(w, "run", RunPageData{
		PageData:     h.renderer.page(run.Before+" → "+run.After, "runs"),
		Run:          run,
		RenderedHTML: renderMarkdown(run.Report),
	})
}

// HandleCaptures handles GET /captures list captures on disk.
func (h *Handlers) HandleCaptures(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Captures(h.env, ops.CapturesInput{Label: r.URL.Query().Get("label")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "captures", CapturesPageData{
		PageData: h.renderer.page("Captures", "captures"),
		Output:   result,
	})
}

// HandlePurge handles POST /runs/purge permanently delete recorded runs.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	var input ops.PurgeInput
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(h.env.DB, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="purge-result">` + template.HTMLEscapeString(result.Message) + `</div>` +
		`<p><a href="/runs">Back to runs</a></p>`))
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
