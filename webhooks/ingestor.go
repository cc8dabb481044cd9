package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	DecisionRejectedSignature     = "rejected_signature"
	DecisionMalformedPayload      = "malformed_payload"
	DecisionMissingConversationID = "missing_conversation_id"
	DecisionUnknownSession        = "unknown_session"
	DecisionAlreadyProcessed      = "already_processed"
	DecisionNotScored             = "not_scored"
	DecisionEnqueued              = "enqueued"
	DecisionEnqueueFailed         = "enqueue_failed"
	DecisionInternalError         = "internal_error"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type SessionReader interface {
	GetSession(ctx context.Context, id string) (core.Session, error)
}

type SessionTransitioner interface {
	Transition(ctx context.Context, in core.SessionTransition) (core.Session, error)
}

type Enqueuer interface {
	EnqueueScoring(ctx context.Context, sessionID string, rubricID string) (core.EnqueueResult, error)
}

// Notifier is told about a successful enqueue so a worker can wake up.
// Its failure never changes the webhook outcome.
type Notifier interface {
	NotifyEnqueued(ctx context.Context, job core.ScoringJob) error
}

type IngestorDeps struct {
	Verifier    Verifier
	Sessions    SessionReader
	Transitions SessionTransitioner
	Enqueuer    Enqueuer
	Notifier    Notifier
	Logger      core.Logger
	Metrics     core.MetricsRecorder
}

type Ingestor struct {
	verifier    Verifier
	sessions    SessionReader
	transitions SessionTransitioner
	enqueuer    Enqueuer
	notifier    Notifier
	policy      ScorabilityPolicy
	retry       RetryConfig
	logger      core.Logger
	metrics     core.MetricsRecorder
}

func NewIngestor(deps IngestorDeps, policy ScorabilityPolicy, retry RetryConfig) *Ingestor {
	_, logger := glog.Resolve("webhooks", nil, deps.Logger)
	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &Ingestor{
		verifier:    deps.Verifier,
		sessions:    deps.Sessions,
		transitions: deps.Transitions,
		enqueuer:    deps.Enqueuer,
		notifier:    deps.Notifier,
		policy:      policy,
		retry:       retry,
		logger:      glog.Ensure(logger),
		metrics:     metrics,
	}
}

// NewServiceIngestor wires an ingestor to the service's stores, lifecycle
// and configuration.
func NewServiceIngestor(svc *core.Service, notifier Notifier) (*Ingestor, error) {
	if svc == nil {
		return nil, fmt.Errorf("webhooks: service is required")
	}
	cfg := svc.Config()
	verifier, err := NewSignatureVerifier(cfg.Webhook)
	if err != nil {
		return nil, err
	}
	deps := svc.Dependencies()
	return NewIngestor(IngestorDeps{
		Verifier:    verifier,
		Sessions:    deps.SessionStore,
		Transitions: deps.Lifecycle,
		Enqueuer:    svc,
		Notifier:    notifier,
		Logger:      deps.Logger,
		Metrics:     deps.MetricsRecorder,
	}, NewScorabilityPolicy(cfg.Webhook), RetryConfig{
		MaxRetries:     cfg.Enqueue.MaxRetries,
		InitialBackoff: cfg.Enqueue.InitialBackoff,
	}), nil
}

// WithSleep replaces the backoff sleep. Tests use it to avoid real delays.
func (i *Ingestor) WithSleep(sleep SleepFunc) *Ingestor {
	if i != nil {
		i.retry.Sleep = sleep
	}
	return i
}

// Process runs one delivery end to end and always returns a well-formed
// result; panics are converted into a 500.
func (i *Ingestor) Process(ctx context.Context, req core.InboundRequest) (result core.InboundResult) {
	if i == nil {
		return reject(http.StatusInternalServerError, DecisionInternalError, "")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	fields := map[string]any{"surface": strings.TrimSpace(req.Surface)}
	var opErr error
	sessionID := ""

	defer func() {
		if recovered := recover(); recovered != nil {
			opErr = fmt.Errorf("webhooks: ingestion panicked: %v", recovered)
			result = i.recoverSession(ctx, sessionID, opErr)
		}
		fields["decision"] = result.Decision
		fields["status_code"] = result.StatusCode
		if result.SessionID != "" {
			fields["session_id"] = result.SessionID
		}
		core.ObserveOperation(ctx, i.logger, i.metrics, startedAt, "webhook.ingest", opErr, fields)
	}()

	if i.sessions == nil || i.transitions == nil || i.enqueuer == nil {
		opErr = fmt.Errorf("webhooks: ingestor is not configured")
		return reject(http.StatusInternalServerError, DecisionInternalError, "")
	}

	// Verification reads req.Body as received; decoding works on a clone.
	if i.verifier == nil {
		opErr = ErrSecretNotConfigured
		return reject(http.StatusUnauthorized, DecisionRejectedSignature, "")
	}
	if err := i.verifier.Verify(ctx, req); err != nil {
		opErr = err
		return reject(http.StatusUnauthorized, DecisionRejectedSignature, "")
	}

	event, err := DecodeCallEvent(req.Body)
	if err != nil {
		opErr = err
		return reject(http.StatusBadRequest, DecisionMalformedPayload, "")
	}
	sessionID = event.ConversationID()
	if sessionID == "" {
		opErr = fmt.Errorf("webhooks: data.conversation_id is required")
		return reject(http.StatusBadRequest, DecisionMissingConversationID, "")
	}
	fields["call_status"] = event.CallStatus()
	fields["termination_reason"] = event.TerminationReason()

	session, err := i.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if core.IsSessionNotFound(err) {
			core.LogWithFields(ctx, i.logger, "warn", "webhook for unknown session acknowledged", map[string]any{
				"session_id": sessionID,
			})
			return accept(DecisionUnknownSession, sessionID)
		}
		opErr = err
		return reject(http.StatusInternalServerError, DecisionInternalError, sessionID)
	}

	if _, err := i.transitions.Transition(ctx, core.SessionTransition{
		SessionID:         sessionID,
		To:                core.SessionStatusWebhookReceived,
		CallStatus:        event.CallStatus(),
		TerminationReason: event.TerminationReason(),
	}); err != nil {
		if core.IsTransitionRejected(err) {
			core.LogWithFields(ctx, i.logger, "info", "webhook for processed session acknowledged", map[string]any{
				"session_id": sessionID,
				"status":     string(session.Status),
			})
			return accept(DecisionAlreadyProcessed, sessionID)
		}
		opErr = err
		return reject(http.StatusInternalServerError, DecisionInternalError, sessionID)
	}

	decision := i.policy.Decide(event.CallStatus(), event.TerminationReason())
	fields["graceful_end"] = decision.GracefulEnd
	fields["scorable"] = decision.Scorable
	metadata := map[string]any{
		"call_status":        event.CallStatus(),
		"termination_reason": event.TerminationReason(),
		"graceful_end":       decision.GracefulEnd,
		"scorable_reason":    decision.Reason,
	}

	if !decision.Scorable {
		if _, err := i.transitions.Transition(ctx, core.SessionTransition{
			SessionID: sessionID,
			To:        core.SessionStatusWebhookReceivedNotScored,
		}); err != nil {
			opErr = err
			return reject(http.StatusInternalServerError, DecisionInternalError, sessionID)
		}
		out := accept(DecisionNotScored, sessionID)
		out.Metadata = metadata
		return out
	}

	var enqueued core.EnqueueResult
	attempts, enqueueErr := EnqueueWithRetry(ctx, i.retry, func(ctx context.Context, attempt int) error {
		res, err := i.enqueuer.EnqueueScoring(ctx, sessionID, session.RubricID)
		if err != nil {
			core.LogWithFields(ctx, i.logger, "warn", "scoring enqueue attempt failed", map[string]any{
				"session_id": sessionID,
				"attempt":    attempt,
				"error":      err.Error(),
			})
			return err
		}
		enqueued = res
		return nil
	})
	metadata["enqueue_attempts"] = attempts
	fields["enqueue_attempts"] = attempts

	if enqueueErr != nil {
		if _, err := i.transitions.Transition(ctx, core.SessionTransition{
			SessionID: sessionID,
			To:        core.SessionStatusScoringEnqueueFailed,
			Error:     enqueueErr.Error(),
		}); err != nil {
			opErr = errors.Join(enqueueErr, err)
			return reject(http.StatusInternalServerError, DecisionInternalError, sessionID)
		}
		opErr = enqueueErr
		out := accept(DecisionEnqueueFailed, sessionID)
		metadata["error"] = enqueueErr.Error()
		out.Metadata = metadata
		return out
	}

	metadata["job_id"] = enqueued.Job.ID
	metadata["job_created"] = enqueued.Created
	if _, err := i.transitions.Transition(ctx, core.SessionTransition{
		SessionID: sessionID,
		To:        core.SessionStatusScoringEnqueued,
	}); err != nil {
		opErr = err
		return reject(http.StatusInternalServerError, DecisionInternalError, sessionID)
	}
	if i.notifier != nil && enqueued.Created {
		if err := i.notifier.NotifyEnqueued(ctx, enqueued.Job); err != nil {
			core.LogWithFields(ctx, i.logger, "warn", "scoring wake-up notification failed", map[string]any{
				"session_id": sessionID,
				"job_id":     enqueued.Job.ID,
				"error":      err.Error(),
			})
		}
	}
	out := accept(DecisionEnqueued, sessionID)
	out.Metadata = metadata
	return out
}

// recoverSession is the last-resort path: when the session is known it is
// marked scoring_enqueue_failed so the failure is visible and alerted.
func (i *Ingestor) recoverSession(ctx context.Context, sessionID string, cause error) core.InboundResult {
	if i.transitions != nil && sessionID != "" {
		func() {
			defer func() { _ = recover() }()
			_, _ = i.transitions.Transition(ctx, core.SessionTransition{
				SessionID: sessionID,
				To:        core.SessionStatusScoringEnqueueFailed,
				Error:     cause.Error(),
			})
		}()
	}
	return reject(http.StatusInternalServerError, DecisionInternalError, sessionID)
}

func accept(decision string, sessionID string) core.InboundResult {
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		SessionID:  sessionID,
		Decision:   decision,
		Metadata:   map[string]any{},
	}
}

func reject(status int, decision string, sessionID string) core.InboundResult {
	return core.InboundResult{
		Accepted:   false,
		StatusCode: status,
		SessionID:  sessionID,
		Decision:   decision,
		Metadata:   map[string]any{},
	}
}
