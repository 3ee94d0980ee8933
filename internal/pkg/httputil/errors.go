package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/crisis-room/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Code    string // machine-readable, e.g. "room_not_found"
	Message string // if empty, uses err.Error()
}

// HandleError maps a domain error to an HTTP response using the first
// matching mapping. Conflicts are logged at info since they usually mean a
// concurrent operator or a closed room. Unmapped errors are logged and
// answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	logger := ctxlog.FromContext(ctx)

	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		if m.Status == http.StatusConflict {
			logger.Info("request conflicts with room state", "code", m.Code, "error", err)
		}
		writeError(w, m.Status, errorBody{Message: msg, Code: m.Code})
		return
	}

	logger.Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, errorBody{Message: "internal error", Code: "internal"})
}
