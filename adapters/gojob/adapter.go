package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-interview-scoring/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// JobIDScoringCycle identifies wake-up messages. The message only says that
// work may be waiting; the durable scoring_jobs table stays the source of
// truth for what runs.
const JobIDScoringCycle = "scoring.cycle"

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

type NackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts NackOptions, attempt int) NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func toQueueNack(opts NackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// WakeMessage builds the go-job message published after a scoring job is
// enqueued. The idempotency key is the job id so duplicate notifications
// for the same job collapse in queues that deduplicate.
func WakeMessage(scoringJob core.ScoringJob) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDScoringCycle,
		ScriptPath: JobIDScoringCycle,
		Parameters: map[string]any{
			"job_id":     strings.TrimSpace(scoringJob.ID),
			"session_id": strings.TrimSpace(scoringJob.SessionID),
		},
		IdempotencyKey: JobIDScoringCycle + ":" + strings.TrimSpace(scoringJob.ID),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// WakeNotifier publishes a wake-up message to a go-job queue each time the
// webhook ingestor creates a scoring job.
type WakeNotifier struct {
	enqueuer queue.Enqueuer
}

func NewWakeNotifier(enqueuer queue.Enqueuer) *WakeNotifier {
	return &WakeNotifier{enqueuer: enqueuer}
}

func (n *WakeNotifier) NotifyEnqueued(ctx context.Context, scoringJob core.ScoringJob) error {
	if n == nil || n.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(scoringJob.ID) == "" {
		return fmt.Errorf("gojob: scoring job id is required")
	}
	return n.enqueuer.Enqueue(ctx, WakeMessage(scoringJob))
}

type CycleRunner interface {
	RunNextJob(ctx context.Context) (core.RunOutcome, error)
}

type CycleWorkerConfig struct {
	Policy RetryPolicy
	// RetryDelay is the nack delay used when a cycle errors.
	RetryDelay time.Duration
	Hook       worker.Hook
	Logger     core.Logger
	Now        func() time.Time
}

// CycleWorker drains wake-up deliveries and runs one scoring cycle per
// delivery. Cycle errors nack the delivery under the retry policy; a cycle
// that finds no claimable job still acks.
type CycleWorker struct {
	dequeuer queue.Dequeuer
	runner   CycleRunner
	policy   RetryPolicy
	delay    time.Duration
	hook     worker.Hook
	logger   core.Logger
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewCycleWorker(dequeuer queue.Dequeuer, runner CycleRunner, cfg CycleWorkerConfig) (*CycleWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("gojob: cycle runner is required")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CycleWorker{
		dequeuer: dequeuer,
		runner:   runner,
		policy:   cfg.Policy,
		delay:    cfg.RetryDelay,
		hook:     cfg.Hook,
		logger:   cfg.Logger,
		now:      now,
		attempts: map[string]int{},
	}, nil
}

// ProcessNext handles a single delivery.
func (w *CycleWorker) ProcessNext(ctx context.Context) (core.RunOutcome, error) {
	if w == nil || w.dequeuer == nil || w.runner == nil {
		return core.RunOutcome{}, fmt.Errorf("gojob: cycle worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return core.RunOutcome{}, err
	}
	if delivery == nil {
		return core.RunOutcome{Status: core.RunOutcomeNoJobs}, nil
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDScoringCycle {
		// Not ours; drop it rather than loop on it.
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			return core.RunOutcome{}, ackErr
		}
		return core.RunOutcome{Status: core.RunOutcomeNoJobs}, nil
	}

	key := deliveryKey(msg)
	attempt := w.nextAttempt(key)
	startedAt := w.now()
	event := worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   attempt,
		StartedAt: startedAt,
	}
	w.emit(ctx, event, w.onStart)

	outcome, runErr := w.runner.RunNextJob(ctx)
	event.Duration = w.now().Sub(startedAt)
	if runErr == nil {
		w.forget(key)
		w.emit(ctx, event, w.onSuccess)
		return outcome, delivery.Ack(ctx)
	}

	event.Err = runErr
	nack := w.policy.NormalizeAttempt(NackOptions{
		Delay:   w.delay,
		Requeue: true,
		Reason:  runErr.Error(),
	}, attempt)
	event.Delay = nack.Delay
	if nack.Requeue {
		w.emit(ctx, event, w.onRetry)
	} else {
		w.forget(key)
		w.emit(ctx, event, w.onFailure)
	}
	if nackErr := delivery.Nack(ctx, toQueueNack(nack)); nackErr != nil {
		return outcome, nackErr
	}
	return outcome, runErr
}

// Run calls ProcessNext until ctx ends, sleeping for idle whenever the
// queue is empty. Cycle errors are logged and do not stop the loop.
func (w *CycleWorker) Run(ctx context.Context, idle time.Duration) error {
	if idle <= 0 {
		idle = time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := w.ProcessNext(ctx)
		if err != nil && w.logger != nil {
			w.logger.Warn("scoring cycle delivery failed", "error", err.Error())
		}
		if err == nil && outcome.Status != core.RunOutcomeNoJobs {
			continue
		}
		timer := time.NewTimer(idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (w *CycleWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *CycleWorker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *CycleWorker) emit(ctx context.Context, event worker.Event, fn func(context.Context, worker.Event)) {
	if w.hook == nil {
		return
	}
	fn(ctx, event)
}

func (w *CycleWorker) onStart(ctx context.Context, e worker.Event)   { w.hook.OnStart(ctx, e) }
func (w *CycleWorker) onSuccess(ctx context.Context, e worker.Event) { w.hook.OnSuccess(ctx, e) }
func (w *CycleWorker) onFailure(ctx context.Context, e worker.Event) { w.hook.OnFailure(ctx, e) }
func (w *CycleWorker) onRetry(ctx context.Context, e worker.Event)   { w.hook.OnRetry(ctx, e) }

func deliveryKey(msg *job.ExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

// LoggingHook writes one structured line per worker event.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "scoring cycle started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "scoring cycle finished", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "scoring cycle gave up", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "scoring cycle will retry", event)
}

func (h *LoggingHook) log(ctx context.Context, level string, message string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	fields := EventFields(event)
	core.LogWithFields(ctx, h.logger, level, message, fields)
}

// EventFields flattens a worker event into log fields.
func EventFields(event worker.Event) map[string]any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{
		"attempt":     event.Attempt,
		"duration_ms": event.Duration.Milliseconds(),
	}
	if event.Delay > 0 {
		fields["retry_delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	if message != nil {
		fields["queue_job"] = message.JobID
		if jobID, ok := message.Parameters["job_id"].(string); ok && jobID != "" {
			fields["job_id"] = jobID
		}
		if sessionID, ok := message.Parameters["session_id"].(string); ok && sessionID != "" {
			fields["session_id"] = sessionID
		}
	}
	return fields
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ CycleRunner = (*core.Service)(nil)
)
