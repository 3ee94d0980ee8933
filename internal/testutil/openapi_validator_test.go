package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadValidator(t *testing.T) *OpenAPIValidator {
	t.Helper()
	v, err := LoadOpenAPIValidator("../../api/openapi/openapi.yaml")
	require.NoError(t, err)
	return v
}

func newAPIRequest(method, path, token, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestOpenAPIValidator_CheckRequest(t *testing.T) {
	v := loadValidator(t)

	tests := []struct {
		name    string
		method  string
		path    string
		token   string
		body    string
		wantErr bool
	}{
		{"escalation with token", http.MethodPost, "/api/v1/rooms/r1/escalations", "tok", `{"reason":"board approval"}`, false},
		{"escalation without token", http.MethodPost, "/api/v1/rooms/r1/escalations", "", `{"reason":"board approval"}`, true},
		{"escalation without reason", http.MethodPost, "/api/v1/rooms/r1/escalations", "tok", `{}`, true},
		{"unknown status", http.MethodPatch, "/api/v1/rooms/r1/status", "tok", `{"status":"paused"}`, true},
		{"health is public", http.MethodGet, "/healthz", "", "", false},
		{"docs are not documented", http.MethodGet, "/docs", "", "", false},
		{"unknown route", http.MethodGet, "/api/v1/unknown", "tok", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newAPIRequest(tt.method, tt.path, tt.token, tt.body)
			err := v.CheckRequest(req, []byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpenAPIValidator_CheckResponse(t *testing.T) {
	v := loadValidator(t)
	req := newAPIRequest(http.MethodGet, "/api/v1/rooms/r1", "tok", "")

	respond := func(status int, body string) *http.Response {
		rec := httptest.NewRecorder()
		rec.Header().Set("Content-Type", "application/json")
		rec.WriteHeader(status)
		_, _ = rec.WriteString(body)
		return rec.Result()
	}

	t.Run("error with code", func(t *testing.T) {
		body := `{"error":{"message":"room not found","code":"room_not_found"}}`
		resp := respond(http.StatusNotFound, body)
		require.NoError(t, v.CheckResponse(req, resp))

		restored, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(restored))
	})

	t.Run("error without envelope", func(t *testing.T) {
		resp := respond(http.StatusNotFound, `{"message":"room not found"}`)
		assert.Error(t, v.CheckResponse(req, resp))
	})

	t.Run("undocumented status", func(t *testing.T) {
		resp := respond(http.StatusTeapot, `{"error":{"message":"teapot"}}`)
		assert.Error(t, v.CheckResponse(req, resp))
	})
}
