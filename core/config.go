package core

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultServiceName      = "interview-scoring"
	defaultSignatureHeader  = "signature-header"
	defaultReplayWindow     = 300 * time.Second
	defaultCompletionStatus = "done"
	defaultEnqueueRetries   = 3
	defaultInitialBackoff   = 500 * time.Millisecond
	defaultScoringTimeout   = 55 * time.Second
	defaultAlertTimeout     = 5 * time.Second
	defaultHTTPAddress      = ":8080"
	defaultHTTPReadTimeout  = 10 * time.Second
	defaultHTTPWriteTimeout = 90 * time.Second
	defaultShutdownTimeout  = 15 * time.Second
	defaultSessionCacheTTL  = 30 * time.Second
	DatabaseDriverPostgres  = "postgres"
	DatabaseDriverSQLite    = "sqlite3"
	DatabaseDriverMemory    = "memory"
	defaultAlertTitlePrefix = "[interview-scoring]"
)

var defaultGracefulEndReasons = []string{
	"end_call tool was called.",
	"Client disconnected: 1000",
	"Call ended by remote party",
}

type WebhookConfig struct {
	Secret             string        `koanf:"secret" mapstructure:"secret"`
	SecretFile         string        `koanf:"secret_file" mapstructure:"secret_file"`
	SignatureHeader    string        `koanf:"signature_header" mapstructure:"signature_header"`
	ReplayWindow       time.Duration `koanf:"replay_window" mapstructure:"replay_window"`
	CompletionStatus   string        `koanf:"completion_status" mapstructure:"completion_status"`
	GracefulEndReasons []string      `koanf:"graceful_end_reasons" mapstructure:"graceful_end_reasons"`
	GateOnEndReason    bool          `koanf:"gate_on_end_reason" mapstructure:"gate_on_end_reason"`
}

type EnqueueConfig struct {
	MaxRetries     int           `koanf:"max_retries" mapstructure:"max_retries"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
}

type RunnerConfig struct {
	ScoringTimeout   time.Duration `koanf:"scoring_timeout" mapstructure:"scoring_timeout"`
	MaxAttempts      int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	TriggerToken     string        `koanf:"trigger_token" mapstructure:"trigger_token"`
	TriggerTokenFile string        `koanf:"trigger_token_file" mapstructure:"trigger_token_file"`
	AllowDuplicates  bool          `koanf:"allow_duplicate_jobs" mapstructure:"allow_duplicate_jobs"`
}

type AlertsConfig struct {
	TitlePrefix string        `koanf:"title_prefix" mapstructure:"title_prefix"`
	Timeout     time.Duration `koanf:"timeout" mapstructure:"timeout"`
	WebhookURL  string        `koanf:"webhook_url" mapstructure:"webhook_url"`
	RedisAddr   string        `koanf:"redis_addr" mapstructure:"redis_addr"`
	RedisStream string        `koanf:"redis_stream" mapstructure:"redis_stream"`
}

type HTTPConfig struct {
	Address         string        `koanf:"address" mapstructure:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver   string        `koanf:"driver" mapstructure:"driver"`
	DSN      string        `koanf:"dsn" mapstructure:"dsn"`
	Debug    bool          `koanf:"debug" mapstructure:"debug"`
	CacheTTL time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Enqueue     EnqueueConfig  `koanf:"enqueue" mapstructure:"enqueue"`
	Runner      RunnerConfig   `koanf:"runner" mapstructure:"runner"`
	Alerts      AlertsConfig   `koanf:"alerts" mapstructure:"alerts"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		Webhook: WebhookConfig{
			SignatureHeader:    defaultSignatureHeader,
			ReplayWindow:       defaultReplayWindow,
			CompletionStatus:   defaultCompletionStatus,
			GracefulEndReasons: append([]string(nil), defaultGracefulEndReasons...),
		},
		Enqueue: EnqueueConfig{
			MaxRetries:     defaultEnqueueRetries,
			InitialBackoff: defaultInitialBackoff,
		},
		Runner: RunnerConfig{
			ScoringTimeout: defaultScoringTimeout,
			MaxAttempts:    DefaultMaxAttempts,
		},
		Alerts: AlertsConfig{
			TitlePrefix: defaultAlertTitlePrefix,
			Timeout:     defaultAlertTimeout,
			RedisStream: "scoring:alerts",
		},
		HTTP: HTTPConfig{
			Address:         defaultHTTPAddress,
			ReadTimeout:     defaultHTTPReadTimeout,
			WriteTimeout:    defaultHTTPWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Database: DatabaseConfig{
			Driver:   DatabaseDriverMemory,
			CacheTTL: defaultSessionCacheTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhook.ReplayWindow < 0 {
		return fmt.Errorf("core: webhook.replay_window must not be negative")
	}
	if c.Enqueue.MaxRetries < 0 {
		return fmt.Errorf("core: enqueue.max_retries must not be negative")
	}
	if c.Enqueue.InitialBackoff < 0 {
		return fmt.Errorf("core: enqueue.initial_backoff must not be negative")
	}
	if c.Runner.ScoringTimeout < 0 {
		return fmt.Errorf("core: runner.scoring_timeout must not be negative")
	}
	if c.Runner.MaxAttempts < 0 {
		return fmt.Errorf("core: runner.max_attempts must not be negative")
	}
	if c.HTTP.WriteTimeout > 0 && c.Runner.ScoringTimeout > 0 && c.HTTP.WriteTimeout <= c.Runner.ScoringTimeout {
		return fmt.Errorf("core: http.write_timeout must exceed runner.scoring_timeout")
	}
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", DatabaseDriverMemory, DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return fmt.Errorf("core: database.driver %q is invalid", c.Database.Driver)
	}
	return nil
}

// Normalized fills zero values with defaults so partially built configs
// remain usable by the runtime components.
func (c Config) Normalized() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = defaults.ServiceName
	}
	if strings.TrimSpace(c.Webhook.SignatureHeader) == "" {
		c.Webhook.SignatureHeader = defaults.Webhook.SignatureHeader
	}
	if c.Webhook.ReplayWindow <= 0 {
		c.Webhook.ReplayWindow = defaults.Webhook.ReplayWindow
	}
	if strings.TrimSpace(c.Webhook.CompletionStatus) == "" {
		c.Webhook.CompletionStatus = defaults.Webhook.CompletionStatus
	}
	if c.Webhook.GracefulEndReasons == nil {
		c.Webhook.GracefulEndReasons = defaults.Webhook.GracefulEndReasons
	}
	if c.Enqueue.MaxRetries <= 0 {
		c.Enqueue.MaxRetries = defaults.Enqueue.MaxRetries
	}
	if c.Enqueue.InitialBackoff <= 0 {
		c.Enqueue.InitialBackoff = defaults.Enqueue.InitialBackoff
	}
	if c.Runner.ScoringTimeout <= 0 {
		c.Runner.ScoringTimeout = defaults.Runner.ScoringTimeout
	}
	if c.Runner.MaxAttempts <= 0 {
		c.Runner.MaxAttempts = defaults.Runner.MaxAttempts
	}
	if strings.TrimSpace(c.Alerts.TitlePrefix) == "" {
		c.Alerts.TitlePrefix = defaults.Alerts.TitlePrefix
	}
	if c.Alerts.Timeout <= 0 {
		c.Alerts.Timeout = defaults.Alerts.Timeout
	}
	if strings.TrimSpace(c.HTTP.Address) == "" {
		c.HTTP.Address = defaults.HTTP.Address
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = defaults.HTTP.ReadTimeout
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = defaults.HTTP.WriteTimeout
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = defaults.HTTP.ShutdownTimeout
	}
	if strings.TrimSpace(c.Database.Driver) == "" {
		c.Database.Driver = defaults.Database.Driver
	}
	if c.Database.CacheTTL <= 0 {
		c.Database.CacheTTL = defaults.Database.CacheTTL
	}
	return c
}

// ResolveSecret returns the trimmed contents of file when set, otherwise the
// trimmed inline value.
func ResolveSecret(value string, file string) (string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return strings.TrimSpace(value), nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("core: read secret file %q: %w", file, err)
	}
	return strings.TrimSpace(string(raw)), nil
}
