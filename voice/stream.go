package voice

import (
	"context"
	"errors"
	"sync"
)

var ErrStreamClosed = errors.New("voice: stream is closed")

const defaultBuffer = 64

// Stream is the producer side. Publish blocks when the buffer is full until
// the consumer catches up or ctx ends.
type Stream struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Stream{ch: make(chan Event, buffer)}
}

func (s *Stream) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return errors.New("voice: event is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStreamClosed
	}
	select {
	case s.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
