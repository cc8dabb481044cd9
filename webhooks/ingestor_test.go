package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
)

type countingEnqueuer struct {
	next  Enqueuer
	err   error
	calls int
}

func (e *countingEnqueuer) EnqueueScoring(ctx context.Context, sessionID string, rubricID string) (core.EnqueueResult, error) {
	e.calls++
	if e.err != nil {
		return core.EnqueueResult{}, e.err
	}
	return e.next.EnqueueScoring(ctx, sessionID, rubricID)
}

type recordingNotifier struct {
	jobs []core.ScoringJob
	err  error
}

func (n *recordingNotifier) NotifyEnqueued(_ context.Context, job core.ScoringJob) error {
	n.jobs = append(n.jobs, job)
	return n.err
}

type ingestFixture struct {
	svc      *core.Service
	ingestor *Ingestor
	enqueuer *countingEnqueuer
	notifier *recordingNotifier
	sleeps   []time.Duration
}

func newIngestFixture(t *testing.T, enqueueErr error, policy ScorabilityPolicy) *ingestFixture {
	t.Helper()
	svc, err := core.NewService(core.Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)

	fixture := &ingestFixture{
		svc:      svc,
		enqueuer: &countingEnqueuer{next: svc, err: enqueueErr},
		notifier: &recordingNotifier{},
	}
	deps := svc.Dependencies()
	fixture.ingestor = NewIngestor(IngestorDeps{
		Verifier:    SignatureVerifier{Secret: testSecret, Now: func() time.Time { return testNow }},
		Sessions:    deps.SessionStore,
		Transitions: deps.Lifecycle,
		Enqueuer:    fixture.enqueuer,
		Notifier:    fixture.notifier,
	}, policy, RetryConfig{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond}).
		WithSleep(func(_ context.Context, delay time.Duration) error {
			fixture.sleeps = append(fixture.sleeps, delay)
			return nil
		})
	return fixture
}

func (f *ingestFixture) createSession(t *testing.T, id string) {
	t.Helper()
	if _, err := f.svc.CreateSession(context.Background(), core.CreateSessionInput{ID: id, RubricID: "rubric_1", Email: "ada@example.com"}); err != nil {
		t.Fatalf("create session: %v", err)
	}
}

func (f *ingestFixture) deliver(body string) core.InboundResult {
	raw := []byte(body)
	return f.ingestor.Process(context.Background(), core.InboundRequest{
		Surface: "voice",
		Headers: signedHeaders(testSecret, testNow, raw),
		Body:    raw,
	})
}

func (f *ingestFixture) session(t *testing.T, id string) core.Session {
	t.Helper()
	session, err := f.svc.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return session
}

func (f *ingestFixture) jobs(t *testing.T, id string) []core.ScoringJob {
	t.Helper()
	jobs, err := f.svc.ListSessionJobs(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	return jobs
}

func callBody(sessionID string, status string, reason string) string {
	return fmt.Sprintf(`{"type":"post_call_transcription","data":{"conversation_id":%q,"status":%q,"metadata":{"termination_reason":%q}}}`, sessionID, status, reason)
}

func defaultPolicy() ScorabilityPolicy {
	return NewScorabilityPolicy(core.DefaultConfig().Webhook)
}

func TestIngestor_CompletedCallIsEnqueued(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())
	fixture.createSession(t, "sess_1")

	result := fixture.deliver(callBody("sess_1", "done", "end_call tool was called."))
	if result.StatusCode != http.StatusOK || result.Decision != DecisionEnqueued {
		t.Fatalf("expected enqueued 200, got %+v", result)
	}
	if result.Metadata["graceful_end"] != true {
		t.Fatalf("expected graceful end recorded, got %#v", result.Metadata)
	}

	session := fixture.session(t, "sess_1")
	if session.Status != core.SessionStatusScoringEnqueued {
		t.Fatalf("expected scoring_enqueued, got %s", session.Status)
	}
	if session.CallStatus != "done" || session.TerminationReason != "end_call tool was called." {
		t.Fatalf("expected call metadata on session, got %+v", session)
	}
	jobs := fixture.jobs(t, "sess_1")
	if len(jobs) != 1 || jobs[0].Status != core.JobStatusPending {
		t.Fatalf("expected exactly one pending job, got %+v", jobs)
	}
	if len(fixture.notifier.jobs) != 1 {
		t.Fatalf("expected wake-up notification")
	}
}

func TestIngestor_IncompleteCallIsNotScored(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())
	fixture.createSession(t, "sess_1")

	result := fixture.deliver(callBody("sess_1", "in-progress", ""))
	if result.StatusCode != http.StatusOK || result.Decision != DecisionNotScored {
		t.Fatalf("expected not_scored 200, got %+v", result)
	}
	if status := fixture.session(t, "sess_1").Status; status != core.SessionStatusWebhookReceivedNotScored {
		t.Fatalf("expected webhook_received_not_scored, got %s", status)
	}
	if jobs := fixture.jobs(t, "sess_1"); len(jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobs))
	}
	if fixture.enqueuer.calls != 0 {
		t.Fatalf("expected no enqueue attempts")
	}
}

func TestIngestor_UnknownSessionIsAcknowledged(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())

	result := fixture.deliver(callBody("ghost", "done", ""))
	if result.StatusCode != http.StatusOK || result.Decision != DecisionUnknownSession {
		t.Fatalf("expected unknown_session 200, got %+v", result)
	}
	if _, err := fixture.svc.GetSession(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected no session to be created")
	}
	if fixture.enqueuer.calls != 0 {
		t.Fatalf("expected no job for an unknown session")
	}
}

func TestIngestor_InvalidSignatureMutatesNothing(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())
	fixture.createSession(t, "sess_1")

	body := []byte(callBody("sess_1", "done", ""))
	result := fixture.ingestor.Process(context.Background(), core.InboundRequest{
		Headers: signedHeaders("wrong-secret", testNow, body),
		Body:    body,
	})
	if result.StatusCode != http.StatusUnauthorized || result.Accepted {
		t.Fatalf("expected 401 rejection, got %+v", result)
	}
	if status := fixture.session(t, "sess_1").Status; status != core.SessionStatusStarted {
		t.Fatalf("expected session untouched, got %s", status)
	}
}

func TestIngestor_MalformedPayloads(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())
	fixture.createSession(t, "sess_1")

	result := fixture.deliver(`{"data":`)
	if result.StatusCode != http.StatusBadRequest || result.Decision != DecisionMalformedPayload {
		t.Fatalf("expected malformed 400, got %+v", result)
	}
	result = fixture.deliver(`{"data":{"status":"done"}}`)
	if result.StatusCode != http.StatusBadRequest || result.Decision != DecisionMissingConversationID {
		t.Fatalf("expected missing conversation id 400, got %+v", result)
	}
	if status := fixture.session(t, "sess_1").Status; status != core.SessionStatusStarted {
		t.Fatalf("expected session untouched, got %s", status)
	}
}

func TestIngestor_EnqueueRetryExhaustion(t *testing.T) {
	fixture := newIngestFixture(t, errors.New("queue unavailable"), defaultPolicy())
	fixture.createSession(t, "sess_1")

	result := fixture.deliver(callBody("sess_1", "done", ""))
	if result.StatusCode != http.StatusOK || result.Decision != DecisionEnqueueFailed {
		t.Fatalf("expected enqueue_failed 200, got %+v", result)
	}
	if fixture.enqueuer.calls != 3 {
		t.Fatalf("expected exactly 3 enqueue attempts, got %d", fixture.enqueuer.calls)
	}
	if len(fixture.sleeps) != 2 || fixture.sleeps[0] != 10*time.Millisecond || fixture.sleeps[1] != 20*time.Millisecond {
		t.Fatalf("unexpected backoff sequence %v", fixture.sleeps)
	}
	session := fixture.session(t, "sess_1")
	if session.Status != core.SessionStatusScoringEnqueueFailed {
		t.Fatalf("expected scoring_enqueue_failed, got %s", session.Status)
	}
	if session.StatusError == "" {
		t.Fatalf("expected non-empty status error")
	}
}

func TestIngestor_DuplicateDeliveryKeepsOneActiveJob(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())
	fixture.createSession(t, "sess_1")
	body := callBody("sess_1", "done", "")

	first := fixture.deliver(body)
	second := fixture.deliver(body)
	if first.Decision != DecisionEnqueued || second.Decision != DecisionEnqueued {
		t.Fatalf("expected both deliveries enqueued, got %s and %s", first.Decision, second.Decision)
	}
	if second.Metadata["job_created"] != false {
		t.Fatalf("expected second delivery to reuse the active job, got %#v", second.Metadata)
	}
	if status := fixture.session(t, "sess_1").Status; status != core.SessionStatusScoringEnqueued {
		t.Fatalf("expected scoring_enqueued, got %s", status)
	}
	if jobs := fixture.jobs(t, "sess_1"); len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	if len(fixture.notifier.jobs) != 1 {
		t.Fatalf("expected one wake-up notification, got %d", len(fixture.notifier.jobs))
	}
}

func TestIngestor_DeliveryAfterScoringIsAcknowledged(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())
	fixture.createSession(t, "sess_1")
	ctx := context.Background()
	for _, status := range []core.SessionStatus{
		core.SessionStatusWebhookReceived,
		core.SessionStatusScoringEnqueued,
		core.SessionStatusScoringInProgress,
		core.SessionStatusScoredSuccessfully,
	} {
		if _, err := fixture.svc.Transition(ctx, core.SessionTransition{SessionID: "sess_1", To: status}); err != nil {
			t.Fatalf("seed %s: %v", status, err)
		}
	}

	result := fixture.deliver(callBody("sess_1", "done", ""))
	if result.StatusCode != http.StatusOK || result.Decision != DecisionAlreadyProcessed {
		t.Fatalf("expected already_processed 200, got %+v", result)
	}
	if status := fixture.session(t, "sess_1").Status; status != core.SessionStatusScoredSuccessfully {
		t.Fatalf("expected scored_successfully to stand, got %s", status)
	}
	if fixture.enqueuer.calls != 0 {
		t.Fatalf("expected no enqueue after scoring")
	}
}

func TestIngestor_GateOnEndReason(t *testing.T) {
	policy := defaultPolicy()
	policy.GateOnEndReason = true
	fixture := newIngestFixture(t, nil, policy)
	fixture.createSession(t, "sess_1")

	result := fixture.deliver(callBody("sess_1", "done", "Max duration exceeded"))
	if result.Decision != DecisionNotScored || result.Metadata["scorable_reason"] != ReasonUngracefulEnd {
		t.Fatalf("expected ungraceful end to block scoring, got %+v", result)
	}
}

func TestIngestor_PanicBecomesServerError(t *testing.T) {
	fixture := newIngestFixture(t, nil, defaultPolicy())
	fixture.createSession(t, "sess_1")
	fixture.ingestor.enqueuer = enqueuerFunc(func(context.Context, string, string) (core.EnqueueResult, error) {
		panic("enqueue exploded")
	})

	result := fixture.deliver(callBody("sess_1", "done", ""))
	if result.StatusCode != http.StatusInternalServerError || result.Decision != DecisionInternalError {
		t.Fatalf("expected 500 internal_error, got %+v", result)
	}
	if status := fixture.session(t, "sess_1").Status; status != core.SessionStatusScoringEnqueueFailed {
		t.Fatalf("expected failure status written for known session, got %s", status)
	}
}

type enqueuerFunc func(ctx context.Context, sessionID string, rubricID string) (core.EnqueueResult, error)

func (f enqueuerFunc) EnqueueScoring(ctx context.Context, sessionID string, rubricID string) (core.EnqueueResult, error) {
	return f(ctx, sessionID, rubricID)
}

func TestScorabilityPolicy_Decide(t *testing.T) {
	policy := defaultPolicy()
	decision := policy.Decide("DONE", "Client disconnected: 1000")
	if !decision.Scorable || !decision.GracefulEnd {
		t.Fatalf("expected scorable graceful decision, got %+v", decision)
	}
	decision = policy.Decide("done", "Max duration exceeded")
	if !decision.Scorable || decision.GracefulEnd {
		t.Fatalf("expected ungated policy to score ungraceful end, got %+v", decision)
	}
	decision = policy.Decide("failed", "end_call tool was called.")
	if decision.Scorable || decision.Reason != ReasonCallNotCompleted {
		t.Fatalf("expected incomplete call to be unscorable, got %+v", decision)
	}
}
