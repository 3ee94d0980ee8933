package testutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migrate driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // migrate source
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer is a migrated crisis room database. Pool is a direct
// connection for seeding the tables the service only reads.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
	Pool             *pgxpool.Pool
}

// MailpitContainer wraps a Mailpit testcontainer. Stakeholder emails sent
// by the service land in its inbox.
type MailpitContainer struct {
	testcontainers.Container
	SMTPHost string
	SMTPPort int
	APIHost  string
	APIPort  int
}

// NewPostgresContainer starts PostgreSQL and applies every migration found
// at migrationsURL, e.g. "file://../../migrations".
func NewPostgresContainer(ctx context.Context, migrationsURL string) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("crisisroom"),
		postgres.WithUsername("crisisroom"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, errors.Join(fmt.Errorf("get connection string: %w", err), container.Terminate(ctx))
	}

	if err := migrateUp(migrationsURL, connStr); err != nil {
		return nil, errors.Join(err, container.Terminate(ctx))
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open seed pool: %w", err), container.Terminate(ctx))
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
		Pool:              pool,
	}, nil
}

func migrateUp(sourceURL, connStr string) error {
	m, err := migrate.New(sourceURL, connStr)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// InsertEvent stores a detected event the way the upstream pipeline would.
func (c *PostgresContainer) InsertEvent(ctx context.Context, event domain.GeopoliticalEvent) error {
	if event.Regions == nil {
		event.Regions = []string{}
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now().UTC()
	}
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO geopolitical_events (id, title, description, severity, regions, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.Title, event.Description, event.Severity, event.Regions, event.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}
	return nil
}

// UpsertProfile stores a scoring profile, keeping an existing one with the
// same ID.
func (c *PostgresContainer) UpsertProfile(ctx context.Context, profile domain.StakeholderProfile) error {
	if profile.Regions == nil {
		profile.Regions = []string{}
	}
	if profile.Keywords == nil {
		profile.Keywords = []string{}
	}
	_, err := c.Pool.Exec(ctx, `
		INSERT INTO stakeholder_profiles (id, name, industry, regions, keywords)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, profile.ID, profile.Name, profile.Industry, profile.Regions, profile.Keywords)
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", profile.ID, err)
	}
	return nil
}

// Close releases the seed pool and stops the container.
func (c *PostgresContainer) Close(ctx context.Context) error {
	c.Pool.Close()
	return c.Terminate(ctx)
}

// NewMailpitContainer starts Mailpit, which accepts SMTP on 1025 and
// exposes received mail over its REST API on 8025.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/axllent/mailpit:latest",
			ExposedPorts: []string{"1025/tcp", "8025/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("1025/tcp"),
				wait.ForHTTP("/api/v1/info").WithPort("8025/tcp"),
			).WithDeadline(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mailpit container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("get mailpit host: %w", err)
	}

	smtpPort, err := container.MappedPort(ctx, "1025/tcp")
	if err != nil {
		return nil, fmt.Errorf("get smtp port: %w", err)
	}

	apiPort, err := container.MappedPort(ctx, "8025/tcp")
	if err != nil {
		return nil, fmt.Errorf("get api port: %w", err)
	}

	return &MailpitContainer{
		Container: container,
		SMTPHost:  host,
		SMTPPort:  smtpPort.Int(),
		APIHost:   host,
		APIPort:   apiPort.Int(),
	}, nil
}
