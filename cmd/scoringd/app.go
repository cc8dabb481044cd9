package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/adapters/gojob"
	"github.com/goliatone/go-interview-scoring/adapters/gologger"
	"github.com/goliatone/go-interview-scoring/core"
	scoringmigrations "github.com/goliatone/go-interview-scoring/migrations"
	"github.com/goliatone/go-interview-scoring/providers/alerts"
	"github.com/goliatone/go-interview-scoring/providers/gemini"
	"github.com/goliatone/go-interview-scoring/providers/mailer"
	sqlstore "github.com/goliatone/go-interview-scoring/store/sql"
	"github.com/goliatone/go-interview-scoring/transport"
	"github.com/goliatone/go-interview-scoring/voice"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// app holds everything a subcommand needs; close releases it in reverse
// order of construction.
type app struct {
	cfg      core.Config
	settings providerSettings
	logs     *gologger.Components
	logger   glog.Logger
	service  *core.Service
	metrics  *core.MemoryMetricsRecorder
	wakeups  *gojob.LocalQueue
	closers  []func() error
}

func (a *app) close() {
	if a == nil {
		return
	}
	if a.service != nil {
		a.service.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown step failed", "error", err.Error())
		}
	}
}

type persistenceConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-interview-scoring" }

func newLoggerProvider(settings providerSettings) (glog.LoggerProvider, func() error, error) {
	zl, err := gologger.NewZap(gologger.ZapConfig{Level: settings.LogLevel, JSON: settings.LogJSON})
	if err != nil {
		return nil, nil, err
	}
	return gologger.ZapProvider(zl), func() error {
		_ = zl.Sync()
		return nil
	}, nil
}

// openPersistence opens the configured SQL database. It returns nil for the
// memory driver.
func openPersistence(cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == core.DatabaseDriverMemory {
		return nil, nil
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("command: database.dsn is required for driver %s", driver)
	}
	var dialect schema.Dialect
	switch driver {
	case core.DatabaseDriverPostgres:
		dialect = pgdialect.New()
	case core.DatabaseDriverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("command: unsupported database driver %q", driver)
	}
	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("command: open database: %w", err)
	}
	if driver == core.DatabaseDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, dsn: cfg.DSN, debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("command: persistence client: %w", err)
	}
	return client, nil
}

func migrate(ctx context.Context, client *persistence.Client, driver string) error {
	dialect, err := scoringmigrations.DialectForDriver(driver)
	if err != nil {
		return err
	}
	return scoringmigrations.Apply(ctx, dialect, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}, client.Migrate)
}

type bootstrapOptions struct {
	migrate     bool
	withWakeups bool
	// engine replaces the gemini engine built from settings.
	engine core.ScoringEngine
}

func bootstrap(ctx context.Context, cfg core.Config, settings providerSettings, opts bootstrapOptions) (*app, error) {
	provider, syncLogger, err := newLoggerProvider(settings)
	if err != nil {
		return nil, err
	}
	logs := gologger.NewComponents(cfg.ServiceName, provider, nil)
	a := &app{
		cfg:      cfg,
		settings: settings,
		logs:     logs,
		logger:   logs.Logger("scoringd"),
		metrics:  core.NewMemoryMetricsRecorder(),
		closers:  []func() error{syncLogger},
	}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	serviceOpts := []core.Option{
		core.WithLoggerProvider(provider),
		core.WithMetricsRecorder(a.metrics),
	}

	client, err := openPersistence(cfg.Database)
	if err != nil {
		return fail(err)
	}
	if client != nil {
		a.closers = append(a.closers, client.Close)
		if opts.migrate {
			if err := migrate(ctx, client, cfg.Database.Driver); err != nil {
				return fail(err)
			}
		}
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = cfg.Database.CacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return fail(fmt.Errorf("command: session cache: %w", err))
		}
		serviceOpts = append(serviceOpts,
			core.WithPersistenceClient(client),
			core.WithRepositoryFactory(sqlstore.NewRepositoryFactory(sqlstore.WithSessionCache(cacheService))),
		)
	}

	doer := transport.NewRESTAdapter(nil)

	engine := opts.engine
	if engine == nil {
		engine, err = buildEngine(ctx, settings, doer, a.logs.Logger("gemini"))
		if err != nil {
			return fail(err)
		}
	}
	if engine != nil {
		serviceOpts = append(serviceOpts, core.WithScoringEngine(engine))
	}

	if settings.MailerEndpoint != "" {
		sender, err := mailer.NewSender(doer, mailer.Config{
			Endpoint: settings.MailerEndpoint,
			APIKey:   settings.MailerAPIKey,
			From:     settings.MailerFrom,
			Subject:  settings.MailerSubject,
		}, a.logs.Logger("mailer"))
		if err != nil {
			return fail(err)
		}
		serviceOpts = append(serviceOpts, core.WithEmailSender(sender))
	}

	sink, closeSink, err := buildAlertSink(cfg.Alerts, doer)
	if err != nil {
		return fail(err)
	}
	if closeSink != nil {
		a.closers = append(a.closers, closeSink)
	}
	if sink != nil {
		serviceOpts = append(serviceOpts, core.WithAlertingSink(sink))
	}

	svc, err := core.NewService(cfg, serviceOpts...)
	if err != nil {
		return fail(err)
	}
	a.service = svc
	if opts.withWakeups {
		a.wakeups = gojob.NewLocalQueue().WithLogger(a.logs.JobLogger("wakeups"))
	}
	return a, nil
}

func buildEngine(ctx context.Context, settings providerSettings, doer transport.Doer, logger glog.Logger) (core.ScoringEngine, error) {
	if settings.GeminiAPIKey == "" {
		return nil, nil
	}
	rubrics, err := loadRubrics(settings.RubricsDir)
	if err != nil {
		return nil, err
	}
	if settings.TranscriptsURL == "" {
		return nil, fmt.Errorf("command: transcripts.url is required when gemini is configured")
	}
	generator, err := gemini.NewGenerator(ctx, settings.GeminiAPIKey, settings.GeminiModel)
	if err != nil {
		return nil, err
	}
	return gemini.NewEngine(generator, gemini.EngineConfig{
		Rubrics: rubrics,
		Transcripts: voice.RemoteTranscripts{
			Doer:         doer,
			BaseURL:      settings.TranscriptsURL,
			APIKey:       settings.TranscriptsAPIKey,
			APIKeyHeader: settings.TranscriptsKeyHeader,
		},
		Logger: logger,
	})
}

// loadRubrics reads <rubric_id>.md and <rubric_id>.txt files from dir.
func loadRubrics(dir string) (gemini.StaticRubrics, error) {
	if dir == "" {
		return nil, fmt.Errorf("command: rubrics.dir is required when gemini is configured")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("command: read rubrics dir: %w", err)
	}
	rubrics := gemini.StaticRubrics{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".md" && ext != ".txt" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("command: read rubric %s: %w", entry.Name(), err)
		}
		rubrics[strings.TrimSuffix(entry.Name(), ext)] = string(raw)
	}
	if len(rubrics) == 0 {
		return nil, fmt.Errorf("command: no rubrics found in %s", dir)
	}
	return rubrics, nil
}

func buildAlertSink(cfg core.AlertsConfig, doer transport.Doer) (core.AlertingSink, func() error, error) {
	var (
		sinks   alerts.Fanout
		closeFn func() error
	)
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		chat, err := alerts.NewChatWebhookSink(doer, url)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, chat)
	}
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		stream, err := alerts.NewRedisStreamSink(client, cfg.RedisStream, 10000)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		sinks = append(sinks, stream)
		closeFn = client.Close
	}
	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return sinks, closeFn, nil
	}
}
