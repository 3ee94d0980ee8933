// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/crisis-room/internal/audit"
	"github.com/bissquit/crisis-room/internal/config"
	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/events"
	eventspostgres "github.com/bissquit/crisis-room/internal/events/postgres"
	"github.com/bissquit/crisis-room/internal/identity"
	"github.com/bissquit/crisis-room/internal/identity/jwt"
	"github.com/bissquit/crisis-room/internal/notifications"
	"github.com/bissquit/crisis-room/internal/notifications/email"
	"github.com/bissquit/crisis-room/internal/notifications/slack"
	"github.com/bissquit/crisis-room/internal/notifications/sms"
	"github.com/bissquit/crisis-room/internal/notifications/teams"
	"github.com/bissquit/crisis-room/internal/notifications/webhook"
	"github.com/bissquit/crisis-room/internal/pkg/ctxlog"
	"github.com/bissquit/crisis-room/internal/pkg/httputil"
	"github.com/bissquit/crisis-room/internal/pkg/postgres"
	"github.com/bissquit/crisis-room/internal/rooms"
	roomspostgres "github.com/bissquit/crisis-room/internal/rooms/postgres"
	"github.com/bissquit/crisis-room/internal/scoring"
	scoringpostgres "github.com/bissquit/crisis-room/internal/scoring/postgres"
	"github.com/bissquit/crisis-room/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	monitor       *rooms.Monitor
	auditor       *audit.Publisher
	roomsService  *rooms.Service
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(ctxlog.WithLogger(context.Background(), logger), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		MaxBackoff:      cfg.Database.MaxBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go postgres.ReportPoolStats(metricsCtx, db, cfg.Database.StatsInterval)

	if err := app.setupRooms(); err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup rooms: %w", err)
	}

	router := app.setupRouter()

	if cfg.Monitor.Enabled {
		app.monitor = rooms.NewMonitor(rooms.MonitorConfig{
			PollInterval: cfg.Monitor.PollInterval,
			BatchSize:    cfg.Monitor.BatchSize,
		}, app.roomsService)
		app.monitor.Start(ctxlog.WithLogger(metricsCtx, logger))
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the monitor first so no escalation starts mid-shutdown
	if a.monitor != nil {
		a.monitor.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown main server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.auditor != nil {
		if err := a.auditor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit publisher: %w", err))
		}
	}

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Monitor returns the no-response monitor. Returns nil if the monitor is disabled.
func (a *App) Monitor() *rooms.Monitor {
	return a.monitor
}

func (a *App) setupRooms() error {
	scorer, err := scoring.NewClient(scoring.Config{
		URL:     a.config.Scorer.URL,
		APIKey:  a.config.Scorer.APIKey,
		Timeout: a.config.Scorer.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create scorer client: %w", err)
	}

	dispatcher, err := a.setupDispatcher()
	if err != nil {
		return err
	}

	a.roomsService = rooms.NewService(
		roomspostgres.NewRepository(a.db),
		eventspostgres.NewRepository(a.db),
		scoringpostgres.NewProfileRepository(a.db),
		scorer,
		dispatcher,
	)

	if a.config.Audit.Kafka.Enabled {
		kafkaCfg := a.config.Audit.Kafka
		a.auditor, err = audit.NewPublisher(audit.Config{
			Brokers:  kafkaCfg.Brokers,
			Topic:    kafkaCfg.Topic,
			Username: kafkaCfg.Username,
			Password: kafkaCfg.Password,
		})
		if err != nil {
			return fmt.Errorf("create audit publisher: %w", err)
		}
		a.roomsService.SetTimelinePublisher(a.auditor)
	}

	return nil
}

func (a *App) setupDispatcher() (*notifications.Dispatcher, error) {
	cfg := a.config.Notifications

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	var senders []notifications.Sender
	var enabled []string

	if cfg.Email.Enabled {
		sender, err := email.NewSender(email.Config{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUser:     cfg.Email.SMTPUser,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromAddress:  cfg.Email.FromAddress,
			FromName:     cfg.Email.FromName,
		}, renderer)
		if err != nil {
			return nil, fmt.Errorf("create email sender: %w", err)
		}
		senders = append(senders, sender)
		enabled = append(enabled, string(domain.ChannelTypeEmail))
	}

	if cfg.Slack.Enabled {
		sender, err := slack.NewSender(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Username:   cfg.Slack.Username,
			Channel:    cfg.Slack.Channel,
			Timeout:    cfg.SendTimeout,
		}, renderer)
		if err != nil {
			return nil, fmt.Errorf("create slack sender: %w", err)
		}
		senders = append(senders, sender)
		enabled = append(enabled, string(domain.ChannelTypeSlack))
	}

	if cfg.Teams.Enabled {
		sender, err := teams.NewSender(teams.Config{
			WebhookURL: cfg.Teams.WebhookURL,
			Timeout:    cfg.SendTimeout,
		}, renderer)
		if err != nil {
			return nil, fmt.Errorf("create teams sender: %w", err)
		}
		senders = append(senders, sender)
		enabled = append(enabled, string(domain.ChannelTypeTeams))
	}

	if cfg.SMS.Enabled {
		sender, err := sms.NewSender(sms.Config{
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
			FromNumber: cfg.SMS.FromNumber,
			RateLimit:  cfg.SMS.RateLimit,
			Timeout:    cfg.SendTimeout,
		}, renderer)
		if err != nil {
			return nil, fmt.Errorf("create sms sender: %w", err)
		}
		senders = append(senders, sender)
		enabled = append(enabled, string(domain.ChannelTypeSMS))
	}

	if cfg.Webhook.Enabled {
		sender, err := webhook.NewSender(webhook.Config{
			URL:     cfg.Webhook.URL,
			Token:   cfg.Webhook.Token,
			Timeout: cfg.SendTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create webhook sender: %w", err)
		}
		senders = append(senders, sender)
		enabled = append(enabled, string(domain.ChannelTypeWebhook))
	}

	a.logger.Info("notification channels configured", "enabled", enabled)

	return notifications.NewDispatcher(cfg.SendTimeout, senders...), nil
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Crisis Room API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	validator := jwt.NewValidator(jwt.Config{
		SecretKey: a.config.JWT.SecretKey,
		Issuer:    a.config.JWT.Issuer,
	})

	identityHandler := identity.NewHandler()
	eventsHandler := events.NewHandler(eventspostgres.NewRepository(a.db))
	roomsHandler := rooms.NewHandler(a.roomsService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(validator))

		identityHandler.RegisterProtectedRoutes(r)
		eventsHandler.RegisterRoutes(r)
		roomsHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireRole(domain.RoleOperator))
			roomsHandler.RegisterOperatorRoutes(r)
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
