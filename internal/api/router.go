package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/grantfinder/adverts/internal/middleware"
	"github.com/grantfinder/adverts/internal/models"
	"github.com/grantfinder/adverts/internal/services"
)

// Router exposes the advert workflow over HTTP. Transition submissions are
// form-encoded, matching what the admin front end posts.
type Router struct {
	adverts *services.AdvertService
}

func NewRouter(adverts *services.AdvertService) *Router {
	return &Router{adverts: adverts}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/adverts", rt.handleAdverts)       // POST create
	mux.HandleFunc("/api/adverts/", rt.handleAdvertScoped) // GET summary, POST page/transition
}

// POST /api/adverts — create a draft advert from the template
func (rt *Router) handleAdverts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SchemeID string `json:"schemeId"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := rt.adverts.CreateAdvert(req.SchemeID, req.Name, editorEmail(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(a)
}

func (rt *Router) handleAdvertScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/adverts/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	advertID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		rt.handleSummary(w, advertID)
	case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "publish":
		rt.handlePublish(w, r, advertID)
	case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "unpublish":
		rt.handleUnpublish(w, r, advertID)
	case len(parts) == 2 && r.Method == http.MethodPost && parts[1] == "unschedule":
		rt.handleUnschedule(w, r, advertID)
	case len(parts) == 5 && r.Method == http.MethodPost && parts[1] == "sections" && parts[3] == "pages":
		rt.handleSavePage(w, r, advertID, parts[2], parts[4])
	default:
		http.NotFound(w, r)
	}
}

// GET /api/adverts/{id}
func (rt *Router) handleSummary(w http.ResponseWriter, advertID string) {
	summary, err := rt.adverts.GetSummary(advertID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// POST /api/adverts/{id}/sections/{sid}/pages/{pid}
// Form-encoded page save: question inputs plus the optional "completed" flag
// and the "jsEnabled" marker from the rich editor.
func (rt *Router) handleSavePage(w http.ResponseWriter, r *http.Request, advertID, sectionID, pageID string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsEnabled := r.PostForm.Get("jsEnabled") == "true"
	if err := rt.adverts.SavePage(advertID, sectionID, pageID, r.PostForm, jsEnabled, editorEmail(r)); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// POST /api/adverts/{id}/publish
// expectedStatus is the status the editor's session loaded the form against.
func (rt *Router) handlePublish(w http.ResponseWriter, r *http.Request, advertID string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expected := models.AdvertStatus(r.PostForm.Get("expectedStatus"))
	outcome, err := rt.adverts.SubmitPublish(r.Context(), advertID, expected, editorEmail(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(outcome)
}

// POST /api/adverts/{id}/unpublish
func (rt *Router) handleUnpublish(w http.ResponseWriter, r *http.Request, advertID string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expected := models.AdvertStatus(r.PostForm.Get("expectedStatus"))
	if expected == "" {
		expected = models.StatusPublished
	}
	outcome, err := rt.adverts.SubmitUnpublish(r.Context(), advertID, expected, r.PostForm.Get("confirmation"), editorEmail(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeConfirmOutcome(w, outcome)
}

// POST /api/adverts/{id}/unschedule
func (rt *Router) handleUnschedule(w http.ResponseWriter, r *http.Request, advertID string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	expected := models.AdvertStatus(r.PostForm.Get("expectedStatus"))
	if expected == "" {
		expected = models.StatusScheduled
	}
	outcome, err := rt.adverts.SubmitUnschedule(r.Context(), advertID, expected, r.PostForm.Get("confirmation"), editorEmail(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeConfirmOutcome(w, outcome)
}

// writeConfirmOutcome redirects declined confirmations back to the summary
// view; confirmed ones report the new status.
func writeConfirmOutcome(w http.ResponseWriter, outcome *services.ConfirmOutcome) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{
		"status":    outcome.Status,
		"confirmed": outcome.Confirmed,
	}
	if !outcome.Confirmed {
		body["redirect"] = "summary"
	}
	_ = json.NewEncoder(w).Encode(body)
}

func editorEmail(r *http.Request) string {
	if c := middleware.ClaimsFromContext(r.Context()); c != nil {
		return c.Email
	}
	return ""
}

// writeError maps the error taxonomy onto responses. The four kinds stay
// distinguishable: conflicts carry who/when/current status, guard violations
// and malformed submissions carry validation messages, collaborator failures
// get a generic retry hint.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if ce, ok := services.AsConflictError(err); ok {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":         "multi_editor_conflict",
			"lastUpdatedBy": ce.LastUpdatedBy,
			"lastUpdated":   ce.LastUpdated.Format(time.RFC3339),
			"currentStatus": ce.CurrentStatus,
		})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		body := map[string]any{"error": se.Code, "message": se.Message}
		if se.Field != "" {
			body["field"] = se.Field
		}
		switch se.Code {
		case services.ErrorNotFound:
			w.WriteHeader(http.StatusNotFound)
		case services.ErrorUnauthorized:
			w.WriteHeader(http.StatusUnauthorized)
		case services.ErrorBadGateway:
			body["message"] = "Something went wrong while saving your advert. It has not been changed; try again."
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
		_ = json.NewEncoder(w).Encode(body)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": "internal", "message": err.Error()})
}
