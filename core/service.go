package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
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
	alerter           *BestEffortAlerter
	lifecycle         *Lifecycle
	runner            *JobRunner
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	SessionStore      SessionStore
	JobQueue          JobQueue
	ScoreStore        ScoreStore
	ScoringEngine     ScoringEngine
	EmailSender       EmailSender
	AlertingSink      AlertingSink
	Alerter           *BestEffortAlerter
	Lifecycle         *Lifecycle
	Runner            *JobRunner
	Now               func() time.Time
}

// SessionStatusView is the user-facing projection of a session. It carries
// the friendly label and never the raw status error.
type SessionStatusView struct {
	SessionID        string        `json:"session_id"`
	Status           SessionStatus `json:"status"`
	Label            string        `json:"label"`
	Failed           bool          `json:"failed"`
	Terminal         bool          `json:"terminal"`
	ResultsEmailSent bool          `json:"results_email_sent"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("scoring", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("scoring"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig = finalConfig.Normalized()

	if err := resolveStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.sessionStore == nil || builder.jobQueue == nil || builder.scoreStore == nil {
		memory := NewMemoryStore().WithUniqueActiveJob(!finalConfig.Runner.AllowDuplicates)
		memory.Now = builder.now
		if builder.sessionStore == nil {
			builder.sessionStore = memory
		}
		if builder.jobQueue == nil {
			builder.jobQueue = memory
		}
		if builder.scoreStore == nil {
			builder.scoreStore = memory
		}
	}

	alerter := NewBestEffortAlerter(builder.alertingSink, finalConfig.Alerts, logger, builder.metricsRecorder)
	lifecycle := NewLifecycle(builder.sessionStore, alerter, logger, builder.metricsRecorder)
	lifecycle.now = builder.now
	runner := NewJobRunner(JobRunnerDeps{
		Queue:     builder.jobQueue,
		Sessions:  builder.sessionStore,
		Scores:    builder.scoreStore,
		Engine:    builder.scoringEngine,
		Email:     builder.emailSender,
		Lifecycle: lifecycle,
		Alerter:   alerter,
		Logger:    logger,
		Metrics:   builder.metricsRecorder,
		Now:       builder.now,
	}, JobRunnerConfig{ScoringTimeout: finalConfig.Runner.ScoringTimeout})

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		sessionStore:      builder.sessionStore,
		jobQueue:          builder.jobQueue,
		scoreStore:        builder.scoreStore,
		scoringEngine:     builder.scoringEngine,
		emailSender:       builder.emailSender,
		alertingSink:      builder.alertingSink,
		alerter:           alerter,
		lifecycle:         lifecycle,
		runner:            runner,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func resolveStores(builder *serviceBuilder) error {
	if builder.repositoryFactory == nil {
		return nil
	}
	if builder.sessionStore != nil && builder.jobQueue != nil && builder.scoreStore != nil {
		return nil
	}
	var provider StoreProvider
	if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
		built, err := storeFactory.BuildStores(builder.persistenceClient)
		if err != nil {
			return err
		}
		provider = built
	} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
		provider = direct
	}
	if provider == nil {
		return nil
	}
	if builder.sessionStore == nil {
		builder.sessionStore = provider.SessionStore()
	}
	if builder.jobQueue == nil {
		builder.jobQueue = provider.JobQueue()
	}
	if builder.scoreStore == nil {
		builder.scoreStore = provider.ScoreStore()
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		SessionStore:      s.sessionStore,
		JobQueue:          s.jobQueue,
		ScoreStore:        s.scoreStore,
		ScoringEngine:     s.scoringEngine,
		EmailSender:       s.emailSender,
		AlertingSink:      s.alertingSink,
		Alerter:           s.alerter,
		Lifecycle:         s.lifecycle,
		Runner:            s.runner,
		Now:               s.now,
	}
}

func (s *Service) Lifecycle() *Lifecycle {
	if s == nil {
		return nil
	}
	return s.lifecycle
}

func (s *Service) Runner() *JobRunner {
	if s == nil {
		return nil
	}
	return s.runner
}

func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (session Session, err error) {
	startedAt := time.Now()
	fields := map[string]any{"session_id": strings.TrimSpace(in.ID), "rubric_id": strings.TrimSpace(in.RubricID)}
	defer func() {
		s.observeOperation(ctx, startedAt, "session.create", err, fields)
	}()
	if s == nil || s.sessionStore == nil {
		return Session{}, fmt.Errorf("core: session store is not configured")
	}
	if strings.TrimSpace(in.RubricID) == "" {
		return Session{}, s.mapError(NewValidationError("rubric_id", "rubric id is required"))
	}
	session, err = s.sessionStore.CreateSession(ctx, in)
	if err != nil {
		err = s.mapError(err)
		return Session{}, err
	}
	fields["session_id"] = session.ID
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	if s == nil || s.sessionStore == nil {
		return Session{}, fmt.Errorf("core: session store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, s.mapError(NewValidationError("session_id", "session id is required"))
	}
	session, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		return Session{}, s.mapError(err)
	}
	return session, nil
}

func (s *Service) Transition(ctx context.Context, in SessionTransition) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("core: service is not configured")
	}
	session, err := s.lifecycle.Transition(ctx, in)
	if err != nil {
		return Session{}, s.mapError(err)
	}
	return session, nil
}

// EnqueueScoring submits one scoring job. It does not retry; the webhook
// pipeline owns the retry loop around it.
func (s *Service) EnqueueScoring(ctx context.Context, sessionID string, rubricID string) (result EnqueueResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{"session_id": strings.TrimSpace(sessionID)}
	defer func() {
		fields["created"] = result.Created
		s.observeOperation(ctx, startedAt, "scoring.enqueue", err, fields)
	}()
	if s == nil || s.jobQueue == nil {
		return EnqueueResult{}, fmt.Errorf("core: job queue is not configured")
	}
	result, err = s.jobQueue.Enqueue(ctx, EnqueueJobInput{
		SessionID:   sessionID,
		RubricID:    rubricID,
		MaxAttempts: s.config.Runner.MaxAttempts,
	})
	if err != nil {
		return EnqueueResult{}, err
	}
	fields["job_id"] = result.Job.ID
	return result, nil
}

func (s *Service) RunNextJob(ctx context.Context) (RunOutcome, error) {
	if s == nil || s.runner == nil {
		return RunOutcome{}, fmt.Errorf("core: job runner is not configured")
	}
	if s.scoringEngine == nil {
		return RunOutcome{}, fmt.Errorf("core: scoring engine is not configured")
	}
	return s.runner.RunOnce(ctx)
}

func (s *Service) SessionStatus(ctx context.Context, id string) (SessionStatusView, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return SessionStatusView{}, err
	}
	return SessionStatusView{
		SessionID:        session.ID,
		Status:           session.Status,
		Label:            StatusLabel(session.Status),
		Failed:           IsFailureStatus(session.Status),
		Terminal:         IsTerminalStatus(session.Status),
		ResultsEmailSent: session.ResultsEmailSent,
		UpdatedAt:        session.UpdatedAt,
	}, nil
}

func (s *Service) ListSessionJobs(ctx context.Context, sessionID string, limit int) ([]ScoringJob, error) {
	if s == nil || s.jobQueue == nil {
		return nil, fmt.Errorf("core: job queue is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, s.mapError(NewValidationError("session_id", "session id is required"))
	}
	jobs, err := s.jobQueue.ListJobs(ctx, JobFilter{SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return jobs, nil
}

// Close waits for in-flight alerts.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.alerter.Wait()
}

func (s *Service) MapError(err error) error {
	return s.mapError(err)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if s == nil {
		return
	}
	newObserver(s.logger, s.metricsRecorder).observe(ctx, startedAt, operation, err, fields)
}
