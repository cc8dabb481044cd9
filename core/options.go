package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	sessionStore      SessionStore
	jobQueue          JobQueue
	scoreStore        ScoreStore
	scoringEngine     ScoringEngine
	emailSender       EmailSender
	alertingSink      AlertingSink
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithSessionStore(store SessionStore) Option {
	return func(b *serviceBuilder) {
		b.sessionStore = store
	}
}

func WithJobQueue(queue JobQueue) Option {
	return func(b *serviceBuilder) {
		b.jobQueue = queue
	}
}

func WithScoreStore(store ScoreStore) Option {
	return func(b *serviceBuilder) {
		b.scoreStore = store
	}
}

func WithScoringEngine(engine ScoringEngine) Option {
	return func(b *serviceBuilder) {
		b.scoringEngine = engine
	}
}

func WithEmailSender(sender EmailSender) Option {
	return func(b *serviceBuilder) {
		b.emailSender = sender
	}
}

func WithAlertingSink(sink AlertingSink) Option {
	return func(b *serviceBuilder) {
		b.alertingSink = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("scoring", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
	}
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(section map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			section[key] = value
		}
	}
	setDuration := func(section map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			section[key] = value
		}
	}
	setInt := func(section map[string]any, key string, value int) {
		if includeZero || value != 0 {
			section[key] = value
		}
	}
	setBool := func(section map[string]any, key string, value bool) {
		if includeZero || value {
			section[key] = value
		}
	}
	attach := func(key string, section map[string]any) {
		if includeZero || len(section) > 0 {
			layer[key] = section
		}
	}

	setString(layer, "service_name", cfg.ServiceName)

	webhook := map[string]any{}
	setString(webhook, "secret", cfg.Webhook.Secret)
	setString(webhook, "secret_file", cfg.Webhook.SecretFile)
	setString(webhook, "signature_header", cfg.Webhook.SignatureHeader)
	setDuration(webhook, "replay_window", cfg.Webhook.ReplayWindow)
	setString(webhook, "completion_status", cfg.Webhook.CompletionStatus)
	if includeZero || len(cfg.Webhook.GracefulEndReasons) > 0 {
		webhook["graceful_end_reasons"] = append([]string(nil), cfg.Webhook.GracefulEndReasons...)
	}
	setBool(webhook, "gate_on_end_reason", cfg.Webhook.GateOnEndReason)
	attach("webhook", webhook)

	enqueue := map[string]any{}
	setInt(enqueue, "max_retries", cfg.Enqueue.MaxRetries)
	setDuration(enqueue, "initial_backoff", cfg.Enqueue.InitialBackoff)
	attach("enqueue", enqueue)

	runner := map[string]any{}
	setDuration(runner, "scoring_timeout", cfg.Runner.ScoringTimeout)
	setInt(runner, "max_attempts", cfg.Runner.MaxAttempts)
	setString(runner, "trigger_token", cfg.Runner.TriggerToken)
	setString(runner, "trigger_token_file", cfg.Runner.TriggerTokenFile)
	setBool(runner, "allow_duplicate_jobs", cfg.Runner.AllowDuplicates)
	attach("runner", runner)

	alerts := map[string]any{}
	setString(alerts, "title_prefix", cfg.Alerts.TitlePrefix)
	setDuration(alerts, "timeout", cfg.Alerts.Timeout)
	setString(alerts, "webhook_url", cfg.Alerts.WebhookURL)
	setString(alerts, "redis_addr", cfg.Alerts.RedisAddr)
	setString(alerts, "redis_stream", cfg.Alerts.RedisStream)
	attach("alerts", alerts)

	httpSection := map[string]any{}
	setString(httpSection, "address", cfg.HTTP.Address)
	setDuration(httpSection, "read_timeout", cfg.HTTP.ReadTimeout)
	setDuration(httpSection, "write_timeout", cfg.HTTP.WriteTimeout)
	setDuration(httpSection, "shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	attach("http", httpSection)

	database := map[string]any{}
	setString(database, "driver", cfg.Database.Driver)
	setString(database, "dsn", cfg.Database.DSN)
	setBool(database, "debug", cfg.Database.Debug)
	setDuration(database, "cache_ttl", cfg.Database.CacheTTL)
	attach("database", database)

	return layer
}
