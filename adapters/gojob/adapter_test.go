package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	"github.com/goliatone/go-interview-scoring/webhooks"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

var _ webhooks.Notifier = (*WakeNotifier)(nil)

func TestWakeNotifierPublishesCycleMessage(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	notifier := NewWakeNotifier(enqueuer)

	err := notifier.NotifyEnqueued(context.Background(), core.ScoringJob{ID: "job_1", SessionID: "sess_1"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != JobIDScoringCycle {
		t.Fatalf("expected job id %q, got %q", JobIDScoringCycle, msg.JobID)
	}
	if msg.IdempotencyKey != "scoring.cycle:job_1" {
		t.Fatalf("unexpected idempotency key %q", msg.IdempotencyKey)
	}
	if msg.Parameters["session_id"] != "sess_1" || msg.Parameters["job_id"] != "job_1" {
		t.Fatalf("unexpected parameters %+v", msg.Parameters)
	}
}

func TestWakeNotifierRequiresQueueAndJobID(t *testing.T) {
	var notifier *WakeNotifier
	if err := notifier.NotifyEnqueued(context.Background(), core.ScoringJob{ID: "job_1"}); err == nil {
		t.Fatalf("expected nil notifier to fail")
	}
	if err := NewWakeNotifier(&stubQueueEnqueuer{}).NotifyEnqueued(context.Background(), core.ScoringJob{}); err == nil {
		t.Fatalf("expected missing job id to fail")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	first := policy.NormalizeAttempt(NackOptions{Delay: 30 * time.Second, Requeue: true, Reason: " transient "}, 1)
	if first.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", first.Delay)
	}
	if !first.Requeue || first.DeadLetter {
		t.Fatalf("expected requeue before max attempts, got %+v", first)
	}
	if first.Reason != "transient" {
		t.Fatalf("expected trimmed reason, got %q", first.Reason)
	}

	last := policy.NormalizeAttempt(NackOptions{Delay: time.Second, Requeue: true}, 3)
	if last.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !last.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}

	negative := RetryPolicy{}.NormalizeAttempt(NackOptions{Delay: -time.Second}, 1)
	if negative.Delay != 0 || !negative.Requeue {
		t.Fatalf("expected zero delay with requeue, got %+v", negative)
	}
}

func TestCycleWorkerAcksAfterSuccessfulCycle(t *testing.T) {
	delivery := &stubQueueDelivery{msg: WakeMessage(core.ScoringJob{ID: "job_1", SessionID: "sess_1"})}
	runner := &stubRunner{outcomes: []core.RunOutcome{{Status: core.RunOutcomeCompleted, JobID: "job_1"}}}
	hook := &capturingHook{}
	w, err := NewCycleWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{delivery}}, runner, CycleWorkerConfig{Hook: hook})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	outcome, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Status != core.RunOutcomeCompleted || outcome.JobID != "job_1" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack without nack")
	}
	if hook.started != 1 || hook.succeeded != 1 {
		t.Fatalf("expected start and success hooks, got %+v", hook)
	}
}

func TestCycleWorkerNacksUntilPolicyGivesUp(t *testing.T) {
	msg := WakeMessage(core.ScoringJob{ID: "job_2", SessionID: "sess_2"})
	first := &stubQueueDelivery{msg: msg}
	second := &stubQueueDelivery{msg: msg}
	boom := errors.New("claim failed")
	runner := &stubRunner{errs: []error{boom, boom}}
	hook := &capturingHook{}
	w, err := NewCycleWorker(
		&stubQueueDequeuer{deliveries: []queue.Delivery{first, second}},
		runner,
		CycleWorkerConfig{
			Policy:     RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true},
			RetryDelay: time.Second,
			Hook:       hook,
		},
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if _, err := w.ProcessNext(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if !first.nacked || !first.nackOpts.Requeue || first.nackOpts.Delay != time.Second {
		t.Fatalf("expected requeue nack, got %+v", first.nackOpts)
	}
	if hook.retried != 1 || hook.lastAttempt != 1 {
		t.Fatalf("expected retry hook on attempt 1, got %+v", hook)
	}

	if _, err := w.ProcessNext(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if second.nackOpts.Requeue || !second.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on final attempt, got %+v", second.nackOpts)
	}
	if hook.failed != 1 || hook.lastAttempt != 2 {
		t.Fatalf("expected failure hook on attempt 2, got %+v", hook)
	}
}

func TestCycleWorkerDropsForeignMessages(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "other.job"}}
	runner := &stubRunner{}
	w, err := NewCycleWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{delivery}}, runner, CycleWorkerConfig{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	outcome, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Status != core.RunOutcomeNoJobs || runner.calls != 0 {
		t.Fatalf("expected foreign message to be skipped, outcome=%+v calls=%d", outcome, runner.calls)
	}
	if !delivery.acked {
		t.Fatalf("expected foreign message to be acked")
	}
}

func TestCycleWorkerRunsRealService(t *testing.T) {
	engine := core.ScoringEngineFunc(func(context.Context, core.ScoreRequest) (core.ScoreResult, error) {
		return core.ScoreResult{Summary: "ok"}, nil
	})
	svc, err := core.NewService(core.Config{}, core.WithScoringEngine(engine))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)

	delivery := &stubQueueDelivery{msg: WakeMessage(core.ScoringJob{ID: "job_3"})}
	w, err := NewCycleWorker(&stubQueueDequeuer{deliveries: []queue.Delivery{delivery}}, svc, CycleWorkerConfig{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	outcome, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Status != core.RunOutcomeNoJobs {
		t.Fatalf("expected empty queue outcome, got %+v", outcome)
	}
	if !delivery.acked {
		t.Fatalf("expected empty cycle to ack")
	}
}

func TestEventFields(t *testing.T) {
	fields := EventFields(worker.Event{
		Message:  WakeMessage(core.ScoringJob{ID: "job_4", SessionID: "sess_4"}),
		Attempt:  2,
		Delay:    5 * time.Second,
		Err:      errors.New("retry"),
		Duration: 250 * time.Millisecond,
	})
	if fields["job_id"] != "job_4" || fields["session_id"] != "sess_4" {
		t.Fatalf("expected message parameters in fields, got %+v", fields)
	}
	if fields["attempt"] != 2 || fields["retry_delay_ms"] != int64(5000) || fields["duration_ms"] != int64(250) {
		t.Fatalf("unexpected timing fields %+v", fields)
	}
	if fields["error"] != "retry" {
		t.Fatalf("expected error field, got %+v", fields)
	}
}

type stubQueueEnqueuer struct {
	messages []*job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.messages = append(s.messages, msg)
	return nil
}

type stubQueueDequeuer struct {
	deliveries []queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	if len(s.deliveries) == 0 {
		return nil, nil
	}
	next := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return next, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type stubRunner struct {
	outcomes []core.RunOutcome
	errs     []error
	calls    int
}

func (s *stubRunner) RunNextJob(context.Context) (core.RunOutcome, error) {
	idx := s.calls
	s.calls++
	var outcome core.RunOutcome
	if idx < len(s.outcomes) {
		outcome = s.outcomes[idx]
	}
	if idx < len(s.errs) {
		return outcome, s.errs[idx]
	}
	return outcome, nil
}

type capturingHook struct {
	started     int
	succeeded   int
	failed      int
	retried     int
	lastAttempt int
}

func (h *capturingHook) OnStart(context.Context, worker.Event)   { h.started++ }
func (h *capturingHook) OnSuccess(context.Context, worker.Event) { h.succeeded++ }
func (h *capturingHook) OnFailure(_ context.Context, e worker.Event) {
	h.failed++
	h.lastAttempt = e.Attempt
}
func (h *capturingHook) OnRetry(_ context.Context, e worker.Event) {
	h.retried++
	h.lastAttempt = e.Attempt
}
