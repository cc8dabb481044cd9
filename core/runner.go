package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type JobRunnerConfig struct {
	ScoringTimeout time.Duration
}

func DefaultJobRunnerConfig() JobRunnerConfig {
	return JobRunnerConfig{ScoringTimeout: defaultScoringTimeout}
}

// JobRunner claims at most one job per RunOnce call and drives it to a
// terminal state. It holds no state between calls; exclusivity comes from
// JobQueue.ClaimNext.
type JobRunner struct {
	queue     JobQueue
	sessions  SessionStore
	scores    ScoreStore
	engine    ScoringEngine
	email     EmailSender
	lifecycle *Lifecycle
	alerter   *BestEffortAlerter
	observer  observer
	config    JobRunnerConfig
	now       func() time.Time
}

type JobRunnerDeps struct {
	Queue     JobQueue
	Sessions  SessionStore
	Scores    ScoreStore
	Engine    ScoringEngine
	Email     EmailSender
	Lifecycle *Lifecycle
	Alerter   *BestEffortAlerter
	Logger    Logger
	Metrics   MetricsRecorder
	Now       func() time.Time
}

func NewJobRunner(deps JobRunnerDeps, cfg JobRunnerConfig) *JobRunner {
	if cfg.ScoringTimeout <= 0 {
		cfg.ScoringTimeout = DefaultJobRunnerConfig().ScoringTimeout
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &JobRunner{
		queue:     deps.Queue,
		sessions:  deps.Sessions,
		scores:    deps.Scores,
		engine:    deps.Engine,
		email:     deps.Email,
		lifecycle: deps.Lifecycle,
		alerter:   deps.Alerter,
		observer:  newObserver(deps.Logger, deps.Metrics),
		config:    cfg,
		now:       now,
	}
}

// RunOnce returns an error only when the runner itself cannot operate or
// the claim query fails. Scoring failures are a RunOutcomeFailed outcome.
func (r *JobRunner) RunOnce(ctx context.Context) (outcome RunOutcome, err error) {
	if r == nil || r.queue == nil || r.lifecycle == nil || r.engine == nil {
		return RunOutcome{}, fmt.Errorf("core: job runner is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()

	job, claimed, err := r.queue.ClaimNext(ctx, ClaimParams{Now: r.now()})
	if err != nil {
		r.observer.observe(ctx, startedAt, "scoring.run", err, map[string]any{"outcome": "claim_error"})
		return RunOutcome{}, fmt.Errorf("core: claim next scoring job: %w", err)
	}
	if !claimed {
		outcome = RunOutcome{Status: RunOutcomeNoJobs, Duration: time.Since(startedAt)}
		r.observer.info(ctx, "no scoring jobs available", map[string]any{"outcome": string(RunOutcomeNoJobs)})
		return outcome, nil
	}

	// A claimed job must reach a terminal write even when the caller's
	// context is cancelled mid-score; only the engine call sees ctx.
	writeCtx := context.WithoutCancel(ctx)

	defer func() {
		if recovered := recover(); recovered != nil {
			cause := fmt.Errorf("core: scoring run panicked: %v", recovered)
			outcome = r.fail(writeCtx, job, FailureKindEngine, cause)
			err = nil
		}
		outcome.Duration = time.Since(startedAt)
		var runErr error
		if outcome.Status == RunOutcomeFailed {
			runErr = fmt.Errorf("%s", outcome.Error)
		}
		r.observer.observe(writeCtx, startedAt, "scoring.run", runErr, map[string]any{
			"job_id":       job.ID,
			"session_id":   job.SessionID,
			"attempts":     job.Attempts,
			"outcome":      string(outcome.Status),
			"failure_kind": string(outcome.FailureKind),
		})
	}()

	return r.execute(ctx, writeCtx, job), nil
}

// execute scores under scoreCtx and does every store write under ctx.
func (r *JobRunner) execute(scoreCtx context.Context, ctx context.Context, job ScoringJob) RunOutcome {
	if _, err := r.lifecycle.To(ctx, job.SessionID, SessionStatusScoringInProgress, nil); err != nil {
		if IsTransitionRejected(err) {
			return r.failJobOnly(ctx, job, FailureKindPersistence, err)
		}
		return r.fail(ctx, job, FailureKindPersistence, &PersistenceError{Op: "mark session in progress", Err: err})
	}

	result, err := r.score(scoreCtx, job)
	if err != nil {
		return r.fail(ctx, job, FailureKindEngine, err)
	}

	if _, err := r.saveScore(ctx, job, result); err != nil {
		return r.fail(ctx, job, FailureKindPersistence, err)
	}

	if err := r.settle(ctx, job, SessionStatusScoredSuccessfully, nil); err != nil {
		return r.fail(ctx, job, FailureKindPersistence, &PersistenceError{Op: "mark session scored", Err: err})
	}

	emailSent := r.sendResults(ctx, job, result)

	if err := r.queue.Complete(ctx, CompleteJobInput{JobID: job.ID, At: r.now()}); err != nil {
		r.observer.error(ctx, "mark scoring job completed failed", map[string]any{
			"job_id":     job.ID,
			"session_id": job.SessionID,
			"error":      err.Error(),
		})
		return RunOutcome{
			Status:      RunOutcomeFailed,
			JobID:       job.ID,
			SessionID:   job.SessionID,
			Attempts:    job.Attempts,
			FailureKind: FailureKindPersistence,
			Error:       (&PersistenceError{Op: "complete job", Err: err}).Error(),
			EmailSent:   emailSent,
		}
	}

	return RunOutcome{
		Status:    RunOutcomeCompleted,
		JobID:     job.ID,
		SessionID: job.SessionID,
		Attempts:  job.Attempts,
		EmailSent: emailSent,
	}
}

func (r *JobRunner) score(ctx context.Context, job ScoringJob) (ScoreResult, error) {
	timeout := r.config.ScoringTimeout
	scoreCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type scoreResponse struct {
		result ScoreResult
		err    error
	}
	done := make(chan scoreResponse, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- scoreResponse{err: fmt.Errorf("scoring engine panicked: %v", recovered)}
			}
		}()
		result, err := r.engine.Score(scoreCtx, ScoreRequest{SessionID: job.SessionID, RubricID: job.RubricID})
		done <- scoreResponse{result: result, err: err}
	}()

	select {
	case response := <-done:
		if response.err != nil {
			return ScoreResult{}, engineFailure(response.err, timeout.String())
		}
		return response.result, nil
	case <-scoreCtx.Done():
		return ScoreResult{}, engineFailure(scoreCtx.Err(), timeout.String())
	}
}

func (r *JobRunner) saveScore(ctx context.Context, job ScoringJob, result ScoreResult) (Score, error) {
	if r.scores == nil {
		return Score{}, &PersistenceError{Op: "save score", Err: fmt.Errorf("score store is not configured")}
	}
	saved, err := r.scores.SaveScore(ctx, Score{
		SessionID: job.SessionID,
		RubricID:  job.RubricID,
		Summary:   strings.TrimSpace(result.Summary),
		Payload:   copyAnyMap(result.Payload),
		CreatedAt: r.now(),
	})
	if err != nil {
		return Score{}, &PersistenceError{Op: "save score", Err: err}
	}
	return saved, nil
}

// sendResults never fails the job. Every problem is logged and the
// returned flag only reports whether results_email_sent flipped.
func (r *JobRunner) sendResults(ctx context.Context, job ScoringJob, result ScoreResult) bool {
	startedAt := time.Now()
	fields := map[string]any{"session_id": job.SessionID, "job_id": job.ID}
	if r.email == nil || r.sessions == nil {
		r.observer.warn(ctx, "results email skipped: sender not configured", fields)
		return false
	}

	session, err := r.sessions.GetSession(ctx, job.SessionID)
	if err != nil {
		fields["error"] = err.Error()
		r.observer.warn(ctx, "results email skipped: session lookup failed", fields)
		return false
	}
	recipient := strings.TrimSpace(session.Email)
	if recipient == "" {
		r.observer.warn(ctx, "results email skipped: session has no email", fields)
		return false
	}
	if session.ResultsEmailSent {
		r.observer.info(ctx, "results email already sent", fields)
		return false
	}

	if err := r.sessions.AppendEmailAudit(ctx, EmailAuditInput{SessionID: job.SessionID, Email: recipient, At: r.now()}); err != nil {
		fields["audit_error"] = err.Error()
	}

	sent := r.email.SendResults(ctx, ResultsEmail{
		SessionID: job.SessionID,
		Recipient: recipient,
		UserName:  session.UserName,
		Summary:   strings.TrimSpace(result.Summary),
	})
	if !sent {
		r.observer.observe(ctx, startedAt, "email.send", fmt.Errorf("email sender reported failure"), fields)
		return false
	}

	flipped, err := r.sessions.MarkResultsEmailSent(ctx, MarkEmailSentInput{SessionID: job.SessionID, At: r.now()})
	if err != nil {
		r.observer.observe(ctx, startedAt, "email.send", fmt.Errorf("mark results email sent: %w", err), fields)
		return false
	}
	fields["flag_flipped"] = flipped
	r.observer.observe(ctx, startedAt, "email.send", nil, fields)
	return flipped
}

func (r *JobRunner) fail(ctx context.Context, job ScoringJob, kind FailureKind, cause error) RunOutcome {
	if classified := ClassifyFailure(cause); classified != FailureKindNone {
		kind = classified
	}
	status := kind.SessionStatus()
	if err := r.settle(ctx, job, status, cause); err != nil {
		r.observer.error(ctx, "record scoring failure on session failed", map[string]any{
			"job_id":         job.ID,
			"session_id":     job.SessionID,
			"session_status": string(status),
			"error":          err.Error(),
		})
	}
	return r.failJobOnly(ctx, job, kind, cause)
}

// settle writes the terminal session status for a claimed job. A webhook
// redelivered while the job was scoring can move the session back to
// webhook_received or scoring_enqueued; the claim still owns the session, so
// it is put back in progress before the terminal write.
func (r *JobRunner) settle(ctx context.Context, job ScoringJob, to SessionStatus, cause error) error {
	_, err := r.lifecycle.To(ctx, job.SessionID, to, cause)
	if err == nil || !IsTransitionRejected(err) || r.sessions == nil {
		return err
	}
	session, getErr := r.sessions.GetSession(ctx, job.SessionID)
	if getErr != nil {
		return err
	}
	switch normalizeSessionStatus(session.Status) {
	case SessionStatusWebhookReceived, SessionStatusScoringEnqueued:
	default:
		return err
	}
	r.observer.info(ctx, "session moved by redelivered webhook during scoring", map[string]any{
		"job_id":         job.ID,
		"session_id":     job.SessionID,
		"session_status": string(session.Status),
	})
	if _, reErr := r.lifecycle.To(ctx, job.SessionID, SessionStatusScoringInProgress, nil); reErr != nil {
		return err
	}
	_, err = r.lifecycle.To(ctx, job.SessionID, to, cause)
	return err
}

// failJobOnly marks the job failed without touching the session. The
// session alert fires from the lifecycle, so a job-only failure alerts here.
func (r *JobRunner) failJobOnly(ctx context.Context, job ScoringJob, kind FailureKind, cause error) RunOutcome {
	message := strings.TrimSpace(cause.Error())
	if err := r.queue.Fail(ctx, FailJobInput{JobID: job.ID, Error: message, At: r.now()}); err != nil {
		r.observer.error(ctx, "mark scoring job failed failed", map[string]any{
			"job_id":     job.ID,
			"session_id": job.SessionID,
			"error":      err.Error(),
		})
	}
	if IsTransitionRejected(cause) {
		r.alerter.Notify(ctx, Alert{
			Title:       "Scoring job rejected",
			Description: message,
			Fields: map[string]any{
				"job_id":     job.ID,
				"session_id": job.SessionID,
			},
		})
	}
	return RunOutcome{
		Status:      RunOutcomeFailed,
		JobID:       job.ID,
		SessionID:   job.SessionID,
		Attempts:    job.Attempts,
		FailureKind: kind,
		Error:       message,
	}
}
