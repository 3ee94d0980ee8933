//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/crisis-room/internal/app"
	"github.com/bissquit/crisis-room/internal/config"
	"github.com/bissquit/crisis-room/internal/identity/jwt"
	"github.com/bissquit/crisis-room/internal/testutil"
)

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *testutil.PostgresContainer
	testJWT       = jwt.Config{SecretKey: "integration-secret", Issuer: "crisis-idp"}

	mailpitContainer *testutil.MailpitContainer
	mailpitClient    *MailpitClient
)

// Paths relative to the tests/integration directory.
const (
	openAPISpecPath = "../../api/openapi/openapi.yaml"
	migrationsURL   = "file://../../migrations"
)

// newTestClient creates a new test client with OpenAPI validation enabled.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

// newTestClientWithoutValidation creates a test client without OpenAPI validation.
// Use this for tests that intentionally send invalid requests.
func newTestClientWithoutValidation() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

// scorerHandler stands in for the relevance scorer. Profiles in the
// shipping industry score high for events touching a strait.
func scorerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile struct {
			Industry string `json:"industry"`
		} `json:"profile"`
		Event struct {
			Title string `json:"title"`
		} `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	score := 0.2
	if req.Profile.Industry == "shipping" && strings.Contains(strings.ToLower(req.Event.Title), "strait") {
		score = 0.7
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]float64{"relevanceScore": score})
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx, migrationsURL)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	testDB = pgContainer

	mailpitContainer, err = testutil.NewMailpitContainer(ctx)
	if err != nil {
		log.Fatalf("start mailpit: %v", err)
	}

	mailpitClient = NewMailpitClient(mailpitContainer.APIHost, mailpitContainer.APIPort)

	scorer := httptest.NewServer(http.HandlerFunc(scorerHandler))
	defer scorer.Close()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Database.URL = pgContainer.ConnectionString
	cfg.Database.MaxOpenConns = 5
	cfg.Database.ConnectAttempts = 3
	cfg.Log = config.LogConfig{Level: "error", Format: "text"}
	cfg.JWT = config.JWTConfig{SecretKey: testJWT.SecretKey, Issuer: testJWT.Issuer}
	cfg.Scorer.URL = scorer.URL
	cfg.Notifications.Email = config.EmailConfig{
		Enabled:     true,
		SMTPHost:    mailpitContainer.SMTPHost,
		SMTPPort:    mailpitContainer.SMTPPort,
		FromAddress: "crisis-room@example.com",
		FromName:    "Crisis Room",
	}
	// Tests drive escalations explicitly.
	cfg.Monitor.Enabled = false

	application, err := app.New(&cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	testServer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}
	if err := pgContainer.Close(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	if err := mailpitContainer.Terminate(ctx); err != nil {
		log.Printf("terminate mailpit: %v", err)
	}

	os.Exit(code)
}
