// Package identity exposes the authenticated caller to API clients.
package identity

import (
	"net/http"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler handles HTTP requests for the identity module.
type Handler struct{}

// NewHandler creates a new identity handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// MeResponse describes the caller.
type MeResponse struct {
	UserID     string      `json:"user_id"`
	Role       domain.Role `json:"role"`
	CanOperate bool        `json:"can_operate"`
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	role := httputil.GetRole(r.Context())
	httputil.Success(w, http.StatusOK, MeResponse{
		UserID:     userID,
		Role:       role,
		CanOperate: role.HasPermission(domain.RoleOperator),
	})
}
