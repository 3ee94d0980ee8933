package events

import (
	"net/http"
	"time"

	"github.com/bissquit/crisis-room/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Pagination constants.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrEventNotFound, Status: http.StatusNotFound, Code: "event_not_found"},
}

// Handler serves read-only event lookups used when opening rooms.
type Handler struct {
	repo Repository
}

// NewHandler creates a new events handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers event routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)
}

// GetEvent handles GET /events/{id} request.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.repo.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, event)
}

// ListEvents handles GET /events request.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := httputil.ParsePage(q, DefaultListLimit, MaxListLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	filters := EventFilters{
		Region:   q.Get("region"),
		Severity: q.Get("severity"),
		Limit:    page.Limit,
		Offset:   page.Offset,
	}

	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filters.Since = &since
	}

	list, total, err := h.repo.ListEvents(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.List(w, "events", list, total, page)
}
