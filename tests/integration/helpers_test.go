//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// operatorClient returns a validating client authenticated as an operator.
func operatorClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := newTestClient(t)
	client.AuthenticateAs(t, testJWT, "operator-"+uuid.NewString()[:8], domain.RoleOperator)
	return client
}

// viewerClient returns a validating client authenticated as a viewer.
func viewerClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := newTestClient(t)
	client.AuthenticateAs(t, testJWT, "viewer-"+uuid.NewString()[:8], domain.RoleViewer)
	return client
}

// seedEvent inserts a geopolitical event and returns its ID.
func seedEvent(t *testing.T, title string, regions ...string) string {
	t.Helper()

	id := "evt-" + uuid.NewString()
	require.NoError(t, testDB.InsertEvent(context.Background(), domain.GeopoliticalEvent{
		ID:          id,
		Title:       title,
		Description: "seeded by integration tests",
		Severity:    "high",
		Regions:     regions,
	}))
	return id
}

// seedProfile inserts a stakeholder scoring profile once per industry.
func seedProfile(t *testing.T, industry string) {
	t.Helper()

	require.NoError(t, testDB.UpsertProfile(context.Background(), domain.StakeholderProfile{
		ID:       "profile-" + industry,
		Name:     industry + " desk",
		Industry: industry,
		Regions:  []string{"middle-east"},
		Keywords: []string{"shipping lanes"},
	}))
}

// uniqueEmail returns a mailbox that no other test uses.
func uniqueEmail(name string) string {
	return name + "-" + uuid.NewString()[:8] + "@example.com"
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// decodeData decodes a {"data": ...} response and checks the status.
func decodeData[T any](t *testing.T, resp *http.Response, status int) T {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("unexpected status %d (want %d): %s", resp.StatusCode, status, testutil.ReadBody(t, resp))
	}
	var out envelope[T]
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

// requireStatus checks the response status and closes the body.
func requireStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	body := testutil.ReadBody(t, resp)
	require.Equal(t, status, resp.StatusCode, body)
}

// createRoom opens a room for eventID with the given stakeholders.
func createRoom(t *testing.T, client *testutil.Client, eventID string, stakeholders ...map[string]interface{}) domain.Room {
	t.Helper()

	resp, err := client.POST("/api/v1/rooms", map[string]interface{}{
		"event_id":     eventID,
		"stakeholders": stakeholders,
		"settings": map[string]interface{}{
			"auto_escalation_enabled":   true,
			"time_threshold_min":        60,
			"no_response_threshold_min": 30,
		},
	})
	require.NoError(t, err)
	return decodeData[domain.Room](t, resp, http.StatusCreated)
}

func stakeholder(id, name, email string, level int) map[string]interface{} {
	return map[string]interface{}{
		"id":                    id,
		"name":                  name,
		"email":                 email,
		"role":                  name,
		"notification_channels": []string{"email"},
		"escalation_level":      level,
	}
}
