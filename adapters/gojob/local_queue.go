package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// LocalQueue is an in-process go-job queue for single-node deployments.
// Dequeue never blocks: an empty or not-yet-due queue returns a nil
// delivery. Messages with DedupPolicy "drop" are ignored while another
// message with the same idempotency key is waiting or in flight.
type LocalQueue struct {
	mu       sync.Mutex
	pending  []localEntry
	inflight map[string]struct{}
	dead     []*job.ExecutionMessage
	now      func() time.Time
	logger   job.Logger
}

type localEntry struct {
	msg       *job.ExecutionMessage
	notBefore time.Time
}

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{
		inflight: map[string]struct{}{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger reports dead-lettered messages to logger.
func (q *LocalQueue) WithLogger(logger job.Logger) *LocalQueue {
	if q != nil {
		q.logger = logger
	}
	return q
}

func (q *LocalQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: local queue is nil")
	}
	if msg == nil {
		return fmt.Errorf("gojob: message is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" && msg.DedupPolicy == job.DeduplicationPolicy("drop") {
		if q.holdsLocked(key) {
			return nil
		}
	}
	q.pending = append(q.pending, localEntry{msg: msg})
	return nil
}

func (q *LocalQueue) Dequeue(context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: local queue is nil")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for idx, entry := range q.pending {
		if !entry.notBefore.IsZero() && now.Before(entry.notBefore) {
			continue
		}
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
		key := strings.TrimSpace(entry.msg.IdempotencyKey)
		if key != "" {
			q.inflight[key] = struct{}{}
		}
		return &localDelivery{queue: q, msg: entry.msg, key: key}, nil
	}
	return nil, nil
}

// Len reports waiting messages, including delayed ones.
func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DeadLetters returns messages nacked with DeadLetter set.
func (q *LocalQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.dead...)
}

func (q *LocalQueue) holdsLocked(key string) bool {
	if _, ok := q.inflight[key]; ok {
		return true
	}
	for _, entry := range q.pending {
		if strings.TrimSpace(entry.msg.IdempotencyKey) == key {
			return true
		}
	}
	return false
}

func (q *LocalQueue) settle(key string, msg *job.ExecutionMessage, opts *queue.NackOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if key != "" {
		delete(q.inflight, key)
	}
	if opts == nil {
		return
	}
	switch {
	case opts.DeadLetter:
		q.dead = append(q.dead, msg)
		if q.logger != nil {
			q.logger.Info("wake-up message dead-lettered", "job_id", msg.JobID, "reason", opts.Reason)
		}
	case opts.Requeue:
		entry := localEntry{msg: msg}
		if opts.Delay > 0 {
			entry.notBefore = q.now().Add(opts.Delay)
		}
		q.pending = append(q.pending, entry)
	}
}

type localDelivery struct {
	queue *LocalQueue
	msg   *job.ExecutionMessage
	key   string
	once  sync.Once
}

func (d *localDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *localDelivery) Ack(context.Context) error {
	d.once.Do(func() { d.queue.settle(d.key, d.msg, nil) })
	return nil
}

func (d *localDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.once.Do(func() { d.queue.settle(d.key, d.msg, &opts) })
	return nil
}

var (
	_ queue.Enqueuer = (*LocalQueue)(nil)
	_ queue.Dequeuer = (*LocalQueue)(nil)
	_ queue.Delivery = (*localDelivery)(nil)
)
