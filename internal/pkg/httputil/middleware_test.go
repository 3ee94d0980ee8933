package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	tokens map[string]domain.Role
}

func (v stubValidator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	role, ok := v.tokens[token]
	if !ok {
		return "", "", errors.New("unknown token")
	}
	return "user-" + token, role, nil
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Message
}

func TestAuthMiddleware(t *testing.T) {
	validator := stubValidator{tokens: map[string]domain.Role{
		"op":   domain.RoleOperator,
		"view": domain.RoleViewer,
	}}

	var gotUser string
	var gotRole domain.Role
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{name: "missing header", status: http.StatusUnauthorized, message: "missing authorization header"},
		{name: "basic scheme", header: "Basic abc", status: http.StatusUnauthorized, message: "invalid authorization header format"},
		{name: "empty token", header: "Bearer ", status: http.StatusUnauthorized, message: "invalid authorization header format"},
		{name: "unknown token", header: "Bearer nope", status: http.StatusUnauthorized, message: "invalid or expired token"},
		{name: "valid", header: "Bearer op", status: http.StatusNoContent},
		{name: "scheme is case-insensitive", header: "bearer view", status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotRole = "", ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, errorMessage(t, rec))
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
				assert.Empty(t, gotUser)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer op")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "user-op", gotUser)
	assert.Equal(t, domain.RoleOperator, gotRole)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(domain.RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		role   *domain.Role
		status int
	}{
		{name: "no role", status: http.StatusUnauthorized},
		{name: "viewer", role: ptr(domain.RoleViewer), status: http.StatusForbidden},
		{name: "operator", role: ptr(domain.RoleOperator), status: http.StatusNoContent},
		{name: "unknown role", role: ptr(domain.Role("admin")), status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rooms", nil)
			if tt.role != nil {
				req = req.WithContext(context.WithValue(req.Context(), RoleKey, *tt.role))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"https://ops.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rooms", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleError(t *testing.T) {
	errNotFound := errors.New("room not found")
	errBusy := errors.New("version conflict")
	mappings := []ErrorMapping{
		{Error: errNotFound, Status: http.StatusNotFound, Code: "room_not_found"},
		{Error: errBusy, Status: http.StatusConflict, Code: "version_conflict", Message: "room is busy, retry the request"},
	}

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "wrapped mapping uses error text", err: fmt.Errorf("load: %w", errNotFound), status: http.StatusNotFound, code: "room_not_found", message: "load: room not found"},
		{name: "fixed message", err: errBusy, status: http.StatusConflict, code: "version_conflict", message: "room is busy, retry the request"},
		{name: "unmapped", err: errors.New("db down"), status: http.StatusInternalServerError, code: "internal", message: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(context.Background(), rec, tt.err, mappings)
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error struct {
					Message string `json:"message"`
					Code    string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Error.Message)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func ptr[T any](v T) *T { return &v }
