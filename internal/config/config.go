// Package config loads service configuration from a YAML file and
// CRISIS_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated by a double underscore: CRISIS_DATABASE__URL sets database.url.
const EnvPrefix = "CRISIS_"

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	JWT           JWTConfig           `koanf:"jwt"`
	Scorer        ScorerConfig        `koanf:"scorer"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Monitor       MonitorConfig       `koanf:"monitor"`
	Audit         AuditConfig         `koanf:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MaxBackoff      time.Duration `koanf:"max_backoff"`
	StatsInterval   time.Duration `koanf:"stats_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// JWTConfig holds settings for validating externally issued tokens.
type JWTConfig struct {
	SecretKey string `koanf:"secret_key"`
	Issuer    string `koanf:"issuer"`
}

// ScorerConfig holds severity scorer client settings.
type ScorerConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// NotificationsConfig holds channel sender settings. Disabled channels
// are not registered and deliveries to them are recorded as failed.
type NotificationsConfig struct {
	SendTimeout time.Duration `koanf:"send_timeout"`
	Email       EmailConfig   `koanf:"email"`
	Slack       SlackConfig   `koanf:"slack"`
	Teams       TeamsConfig   `koanf:"teams"`
	SMS         SMSConfig     `koanf:"sms"`
	Webhook     WebhookConfig `koanf:"webhook"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
	FromName     string `koanf:"from_name"`
}

// SlackConfig holds Slack incoming webhook settings.
type SlackConfig struct {
	Enabled    bool   `koanf:"enabled"`
	WebhookURL string `koanf:"webhook_url"`
	Username   string `koanf:"username"`
	Channel    string `koanf:"channel"`
}

// TeamsConfig holds Microsoft Teams incoming webhook settings.
type TeamsConfig struct {
	Enabled    bool   `koanf:"enabled"`
	WebhookURL string `koanf:"webhook_url"`
}

// SMSConfig holds Twilio settings.
type SMSConfig struct {
	Enabled    bool    `koanf:"enabled"`
	AccountSID string  `koanf:"account_sid"`
	AuthToken  string  `koanf:"auth_token"`
	FromNumber string  `koanf:"from_number"`
	RateLimit  float64 `koanf:"rate_limit"`
}

// WebhookConfig holds generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Token   string `koanf:"token"`
}

// MonitorConfig holds no-response monitor settings.
type MonitorConfig struct {
	Enabled      bool          `koanf:"enabled"`
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size"`
}

// AuditConfig holds audit stream settings.
type AuditConfig struct {
	Kafka KafkaConfig `koanf:"kafka"`
}

// KafkaConfig holds Kafka timeline publisher settings.
type KafkaConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
}

// Default returns configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MaxBackoff:      16 * time.Second,
			StatsInterval:   15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Scorer: ScorerConfig{
			Timeout: 5 * time.Second,
		},
		Notifications: NotificationsConfig{
			SendTimeout: 10 * time.Second,
			Email: EmailConfig{
				SMTPPort: 587,
				FromName: "Crisis Room",
			},
			SMS: SMSConfig{
				RateLimit: 1,
			},
		},
		Monitor: MonitorConfig{
			Enabled:      true,
			PollInterval: time.Minute,
			BatchSize:    100,
		},
		Audit: AuditConfig{
			Kafka: KafkaConfig{
				Topic: "crisis-room.timeline",
			},
		},
	}
}

// Load reads configuration from path (optional) and the environment, on
// top of defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CRISIS_AUDIT__KAFKA__BROKERS=a,b to audit.kafka.brokers=[a b].
func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if strings.Contains(value, ",") {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// Validate checks required settings and settings of enabled components.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Database.StatsInterval <= 0 {
		errs = append(errs, errors.New("database.stats_interval must be positive"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.Scorer.URL == "" {
		errs = append(errs, errors.New("scorer.url is required"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	n := c.Notifications
	if n.Email.Enabled && (n.Email.SMTPHost == "" || n.Email.FromAddress == "") {
		errs = append(errs, errors.New("notifications.email requires smtp_host and from_address"))
	}
	if n.Slack.Enabled && n.Slack.WebhookURL == "" {
		errs = append(errs, errors.New("notifications.slack requires webhook_url"))
	}
	if n.Teams.Enabled && n.Teams.WebhookURL == "" {
		errs = append(errs, errors.New("notifications.teams requires webhook_url"))
	}
	if n.SMS.Enabled && (n.SMS.AccountSID == "" || n.SMS.AuthToken == "" || n.SMS.FromNumber == "") {
		errs = append(errs, errors.New("notifications.sms requires account_sid, auth_token and from_number"))
	}
	if n.Webhook.Enabled && n.Webhook.URL == "" {
		errs = append(errs, errors.New("notifications.webhook requires url"))
	}

	if c.Audit.Kafka.Enabled && (len(c.Audit.Kafka.Brokers) == 0 || c.Audit.Kafka.Topic == "") {
		errs = append(errs, errors.New("audit.kafka requires brokers and topic"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
