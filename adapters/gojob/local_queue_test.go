package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
)

func TestLocalQueue_DropsDuplicateWakeWhileHeld(t *testing.T) {
	ctx := context.Background()
	q := NewLocalQueue()
	msg := WakeMessage(core.ScoringJob{ID: "job_1", SessionID: "sess_1"})

	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, WakeMessage(core.ScoringJob{ID: "job_1", SessionID: "sess_1"})); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected duplicate to be dropped, got %d pending", q.Len())
	}

	delivery, err := q.Dequeue(ctx)
	if err != nil || delivery == nil {
		t.Fatalf("expected delivery, got %v err=%v", delivery, err)
	}
	if err := q.Enqueue(ctx, WakeMessage(core.ScoringJob{ID: "job_1"})); err != nil {
		t.Fatalf("enqueue while in flight: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected in-flight key to block duplicate")
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := q.Enqueue(ctx, WakeMessage(core.ScoringJob{ID: "job_1"})); err != nil {
		t.Fatalf("enqueue after ack: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected message accepted after ack")
	}
}

func TestLocalQueue_EmptyDequeueReturnsNil(t *testing.T) {
	delivery, err := NewLocalQueue().Dequeue(context.Background())
	if err != nil || delivery != nil {
		t.Fatalf("expected nil delivery, got %v err=%v", delivery, err)
	}
}

func TestLocalQueue_NackRequeuesAfterDelayOrDeadLetters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	q := NewLocalQueue()
	q.now = func() time.Time { return now }

	_ = q.Enqueue(ctx, WakeMessage(core.ScoringJob{ID: "job_1"}))
	delivery, _ := q.Dequeue(ctx)
	if err := delivery.Nack(ctx, queue.NackOptions{Requeue: true, Delay: time.Minute}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if next, _ := q.Dequeue(ctx); next != nil {
		t.Fatalf("expected delayed message to stay hidden")
	}
	now = now.Add(2 * time.Minute)
	delivery, _ = q.Dequeue(ctx)
	if delivery == nil {
		t.Fatalf("expected message after delay")
	}
	if err := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true}); err != nil {
		t.Fatalf("dead letter nack: %v", err)
	}
	if q.Len() != 0 || len(q.DeadLetters()) != 1 {
		t.Fatalf("expected one dead letter, pending=%d dead=%d", q.Len(), len(q.DeadLetters()))
	}
}

func TestLocalQueue_DeadLetterIsLogged(t *testing.T) {
	ctx := context.Background()
	logger := &infoRecorder{}
	q := NewLocalQueue().WithLogger(job.GoLogger(logger))

	_ = q.Enqueue(ctx, WakeMessage(core.ScoringJob{ID: "job_1"}))
	delivery, _ := q.Dequeue(ctx)
	if err := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "poison"}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if logger.msg != "wake-up message dead-lettered" {
		t.Fatalf("expected dead-letter log, got %q", logger.msg)
	}
	if len(logger.args) != 4 || logger.args[3] != "poison" {
		t.Fatalf("expected reason in log args, got %v", logger.args)
	}
}

type infoRecorder struct {
	msg  string
	args []any
}

func (l *infoRecorder) Trace(string, ...any) {}
func (l *infoRecorder) Debug(string, ...any) {}
func (l *infoRecorder) Warn(string, ...any)  {}
func (l *infoRecorder) Error(string, ...any) {}
func (l *infoRecorder) Fatal(string, ...any) {}

func (l *infoRecorder) Info(msg string, args ...any) {
	l.msg = msg
	l.args = append([]any(nil), args...)
}

func (l *infoRecorder) WithContext(context.Context) glog.Logger { return l }

func TestCycleWorker_RunDrainsLocalQueueUntilCancelled(t *testing.T) {
	q := NewLocalQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := NewWakeNotifier(q)
	_ = notifier.NotifyEnqueued(ctx, core.ScoringJob{ID: "job_1", SessionID: "sess_1"})
	_ = notifier.NotifyEnqueued(ctx, core.ScoringJob{ID: "job_2", SessionID: "sess_2"})

	runner := &cancellingRunner{cancel: cancel, stopAfter: 2}
	w, err := NewCycleWorker(q, runner, CycleWorkerConfig{})
	if err != nil {
		t.Fatalf("new cycle worker: %v", err)
	}
	if err := w.Run(ctx, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runner.calls != 2 {
		t.Fatalf("expected two cycles, got %d", runner.calls)
	}
	if q.Len() != 0 {
		t.Fatalf("expected drained queue, got %d", q.Len())
	}
}

type cancellingRunner struct {
	cancel    context.CancelFunc
	stopAfter int
	calls     int
}

func (r *cancellingRunner) RunNextJob(context.Context) (core.RunOutcome, error) {
	r.calls++
	if r.calls >= r.stopAfter {
		r.cancel()
	}
	return core.RunOutcome{Status: core.RunOutcomeCompleted}, nil
}
