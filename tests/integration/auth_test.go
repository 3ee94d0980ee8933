//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/identity/jwt"
	"github.com/bissquit/crisis-room/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_MissingToken(t *testing.T) {
	client := newTestClient(t)

	for _, path := range []string{"/api/v1/me", "/api/v1/rooms", "/api/v1/events"} {
		resp, err := client.GET(path)
		require.NoError(t, err)
		requireStatus(t, resp, http.StatusUnauthorized)
	}
}

func TestAuth_ForeignSecret(t *testing.T) {
	client := newTestClient(t)
	client.AuthenticateAs(t, jwt.Config{SecretKey: "someone-else", Issuer: testJWT.Issuer}, "intruder", domain.RoleOperator)

	resp, err := client.GET("/api/v1/rooms")
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusUnauthorized)
}

func TestAuth_Me(t *testing.T) {
	client := newTestClient(t)
	client.AuthenticateAs(t, testJWT, "analyst-7", domain.RoleViewer)

	resp, err := client.GET("/api/v1/me")
	require.NoError(t, err)
	me := decodeData[struct {
		UserID     string      `json:"user_id"`
		Role       domain.Role `json:"role"`
		CanOperate bool        `json:"can_operate"`
	}](t, resp, http.StatusOK)

	assert.Equal(t, "analyst-7", me.UserID)
	assert.Equal(t, domain.RoleViewer, me.Role)
	assert.False(t, me.CanOperate)
}

func TestAuth_ViewerIsReadOnly(t *testing.T) {
	room := createRoom(t, operatorClient(t), seedEvent(t, "Embassy evacuation"))
	viewer := viewerClient(t)

	resp, err := viewer.GET("/api/v1/rooms/" + room.ID)
	require.NoError(t, err)
	requireStatus(t, resp, http.StatusOK)

	writes := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodPost, "/api/v1/rooms", map[string]string{"event_id": room.EventID}},
		{http.MethodPatch, "/api/v1/rooms/" + room.ID + "/status", map[string]string{"status": "monitoring"}},
		{http.MethodPost, "/api/v1/rooms/" + room.ID + "/escalations", map[string]string{"reason": "viewer"}},
		{http.MethodPost, "/api/v1/rooms/" + room.ID + "/resolve", map[string]string{}},
	}

	for _, w := range writes {
		t.Run(w.method+" "+w.path, func(t *testing.T) {
			var resp *http.Response
			var err error
			switch w.method {
			case http.MethodPatch:
				resp, err = viewer.PATCH(w.path, w.body)
			default:
				resp, err = viewer.POST(w.path, w.body)
			}
			require.NoError(t, err)
			requireStatus(t, resp, http.StatusForbidden)
		})
	}
}

func TestSystemEndpoints(t *testing.T) {
	client := testutil.NewClient(testServer.URL)

	for _, path := range []string{"/healthz", "/readyz", "/version", "/api/openapi.yaml"} {
		resp, err := client.GET(path)
		require.NoError(t, err)
		requireStatus(t, resp, http.StatusOK)
	}
}
