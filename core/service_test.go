package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type staticStoreFactory struct {
	store *MemoryStore
	calls int
}

func (f *staticStoreFactory) BuildStores(any) (StoreProvider, error) {
	f.calls++
	return f.store, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil || deps.LoggerProvider == nil {
		t.Fatalf("expected default logger and provider")
	}
	if deps.ErrorMapper == nil || deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default error mapper, config provider and options resolver")
	}
	if deps.SessionStore == nil || deps.JobQueue == nil || deps.ScoreStore == nil {
		t.Fatalf("expected memory stores as fallback")
	}
	if deps.Lifecycle == nil || deps.Runner == nil || deps.Alerter == nil {
		t.Fatalf("expected lifecycle, runner and alerter")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "interview-scoring" {
		t.Fatalf("expected default service_name, got %q", cfg.ServiceName)
	}
	if cfg.Webhook.ReplayWindow != 300*time.Second || cfg.Enqueue.MaxRetries != 3 || cfg.Runner.ScoringTimeout != 55*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestNewService_WithOverrides(t *testing.T) {
	customLogger := stubLogger{}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved"}}
	factory := &staticStoreFactory{store: NewMemoryStore()}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(stubLoggerProvider{logger: customLogger}),
		WithErrorMapper(customMapper),
		WithRepositoryFactory(factory),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if deps.ConfigProvider != configProvider || deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected config provider and options resolver overrides")
	}
	if factory.calls != 1 || deps.SessionStore != SessionStore(factory.store) {
		t.Fatalf("expected stores built from repository factory")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	_, err = svc.GetSession(context.Background(), "missing")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Message != "mapped" {
		t.Fatalf("expected custom mapper applied, got %v", err)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"enqueue": map[string]any{
			"max_retries": 5,
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.Enqueue.MaxRetries != 5 {
		t.Fatalf("expected config layer max_retries=5, got %d", cfg.Enqueue.MaxRetries)
	}
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	_, err := NewService(Config{
		Runner: RunnerConfig{ScoringTimeout: 2 * time.Minute},
		HTTP:   HTTPConfig{WriteTimeout: time.Minute},
	})
	if err == nil {
		t.Fatalf("expected write timeout below scoring timeout to fail validation")
	}
}

func TestService_EndToEndWithMemoryStores(t *testing.T) {
	ctx := context.Background()
	sender := &recordingSender{result: true}
	svc, err := NewService(Config{},
		WithLogger(stubLogger{}),
		WithScoringEngine(okEngine("Clear communicator")),
		WithEmailSender(sender),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer svc.Close()

	if _, err := svc.CreateSession(ctx, CreateSessionInput{ID: "sess_1"}); err == nil {
		t.Fatalf("expected rubric id to be required")
	}
	session, err := svc.CreateSession(ctx, CreateSessionInput{ID: "sess_1", RubricID: "rubric_1", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Status != SessionStatusStarted {
		t.Fatalf("expected started, got %s", session.Status)
	}

	for _, status := range []SessionStatus{SessionStatusWebhookReceived, SessionStatusScoringEnqueued} {
		if _, err := svc.Transition(ctx, SessionTransition{SessionID: "sess_1", To: status}); err != nil {
			t.Fatalf("transition %s: %v", status, err)
		}
	}
	if _, err := svc.EnqueueScoring(ctx, "sess_1", "rubric_1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	outcome, err := svc.RunNextJob(ctx)
	if err != nil {
		t.Fatalf("run next job: %v", err)
	}
	if outcome.Status != RunOutcomeCompleted {
		t.Fatalf("expected completed outcome, got %+v", outcome)
	}

	view, err := svc.SessionStatus(ctx, "sess_1")
	if err != nil {
		t.Fatalf("session status: %v", err)
	}
	if view.Label != "Results ready" || !view.ResultsEmailSent || !view.Terminal {
		t.Fatalf("unexpected status view %+v", view)
	}
	jobs, err := svc.ListSessionJobs(ctx, "sess_1", 0)
	if err != nil || len(jobs) != 1 || jobs[0].Status != JobStatusCompleted {
		t.Fatalf("expected one completed job, got %+v err=%v", jobs, err)
	}

	_, err = svc.Transition(ctx, SessionTransition{SessionID: "sess_1", To: SessionStatusWebhookReceived})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != ErrorInvalidTransition {
		t.Fatalf("expected invalid transition envelope, got %v", err)
	}
}

func TestService_RunNextJobRequiresEngine(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.RunNextJob(context.Background()); err == nil {
		t.Fatalf("expected missing scoring engine error")
	}
}

func TestMapError_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		status   int
	}{
		{NewSessionNotFoundError("sess_1"), ErrorSessionNotFound, 404},
		{NewJobNotFoundError("job_1"), ErrorJobNotFound, 404},
		{NewInvalidTransitionError("sess_1", SessionStatusStarted, SessionStatusScoredSuccessfully), ErrorInvalidTransition, 409},
		{&EngineError{Err: errors.New("boom")}, ErrorEngineFailed, 500},
		{&PersistenceError{Op: "save score", Err: errors.New("boom")}, ErrorPersistenceFailed, 500},
		{NewValidationError("session_id", "session id is required"), ErrorBadInput, 400},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: expected text code %s, got %s", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestClassifyFailure(t *testing.T) {
	if ClassifyFailure(nil) != FailureKindNone {
		t.Fatalf("expected none for nil")
	}
	if ClassifyFailure(errors.New("llm")) != FailureKindEngine {
		t.Fatalf("expected unclassified errors to be engine failures")
	}
	if ClassifyFailure(engineFailure(context.DeadlineExceeded, "55s")) != FailureKindEngine {
		t.Fatalf("expected timeout to be an engine failure")
	}
	if ClassifyFailure(&PersistenceError{Op: "save score"}) != FailureKindPersistence {
		t.Fatalf("expected persistence kind")
	}
	if FailureKindPersistence.SessionStatus() != SessionStatusScoringFailedDB || FailureKindEngine.SessionStatus() != SessionStatusScoringFailedLLM {
		t.Fatalf("unexpected failure kind status mapping")
	}
}
