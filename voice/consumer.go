package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-interview-scoring/core"
	glog "github.com/goliatone/go-logger/glog"
)

type Handler interface {
	OnConnect(ctx context.Context, event ConnectEvent) error
	OnDisconnect(ctx context.Context, event DisconnectEvent) error
	OnTranscriptChunk(ctx context.Context, event TranscriptChunkEvent) error
	OnInterruption(ctx context.Context, event InterruptionEvent) error
	OnError(ctx context.Context, event ErrorEvent) error
}

// SessionBinder records which session a conversation belongs to.
type SessionBinder interface {
	BindConversation(ctx context.Context, conversationID string, sessionID string) error
}

type SessionBinderFunc func(ctx context.Context, conversationID string, sessionID string) error

func (f SessionBinderFunc) BindConversation(ctx context.Context, conversationID string, sessionID string) error {
	return f(ctx, conversationID, sessionID)
}

// NopHandler lets callers embed it and override only what they need.
type NopHandler struct{}

func (NopHandler) OnConnect(context.Context, ConnectEvent) error                 { return nil }
func (NopHandler) OnDisconnect(context.Context, DisconnectEvent) error           { return nil }
func (NopHandler) OnTranscriptChunk(context.Context, TranscriptChunkEvent) error { return nil }
func (NopHandler) OnInterruption(context.Context, InterruptionEvent) error       { return nil }
func (NopHandler) OnError(context.Context, ErrorEvent) error                     { return nil }

type Consumer struct {
	handler Handler
	binder  SessionBinder
	logger  glog.Logger
}

func NewConsumer(handler Handler, binder SessionBinder, logger glog.Logger) *Consumer {
	if handler == nil {
		handler = NopHandler{}
	}
	return &Consumer{handler: handler, binder: binder, logger: glog.Ensure(logger)}
}

// Run dispatches events until the channel closes or ctx ends. Handler
// errors are logged and do not stop the loop.
func (c *Consumer) Run(ctx context.Context, events <-chan Event) error {
	if c == nil {
		return fmt.Errorf("voice: consumer is not configured")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.dispatch(ctx, event); err != nil {
				c.logger.Warn("voice event handling failed",
					"kind", string(event.Kind()),
					"conversation_id", event.ConversationID(),
					"error", err.Error(),
				)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case ConnectEvent:
		if err := c.bind(ctx, e); err != nil {
			return err
		}
		return c.handler.OnConnect(ctx, e)
	case DisconnectEvent:
		return c.handler.OnDisconnect(ctx, e)
	case TranscriptChunkEvent:
		return c.handler.OnTranscriptChunk(ctx, e)
	case InterruptionEvent:
		return c.handler.OnInterruption(ctx, e)
	case ErrorEvent:
		message := "unknown error"
		if e.Err != nil {
			message = e.Err.Error()
		}
		c.logger.Error("voice client error", "conversation_id", e.ConversationID(), "error", message)
		return c.handler.OnError(ctx, e)
	default:
		return fmt.Errorf("voice: unsupported event %T", event)
	}
}

func (c *Consumer) bind(ctx context.Context, e ConnectEvent) error {
	if c.binder == nil {
		return nil
	}
	conversationID := strings.TrimSpace(e.ConversationID())
	sessionID := strings.TrimSpace(e.SessionID)
	if conversationID == "" || sessionID == "" {
		return fmt.Errorf("voice: connect event needs conversation and session ids")
	}
	return c.binder.BindConversation(ctx, conversationID, sessionID)
}

// SessionCreator is the slice of core.Service the default binder needs.
type SessionCreator interface {
	GetSession(ctx context.Context, id string) (core.Session, error)
	CreateSession(ctx context.Context, in core.CreateSessionInput) (core.Session, error)
}

// NewSessionBinder ensures the session exists when the call connects. The
// conversation id is used as the session id, which is what the webhook
// looks sessions up by; a different session id is recorded in metadata.
func NewSessionBinder(sessions SessionCreator, rubricID string) SessionBinder {
	return SessionBinderFunc(func(ctx context.Context, conversationID string, sessionID string) error {
		if sessions == nil {
			return fmt.Errorf("voice: session service is required")
		}
		if _, err := sessions.GetSession(ctx, conversationID); err == nil {
			return nil
		} else if !core.IsSessionNotFound(err) {
			return err
		}
		in := core.CreateSessionInput{ID: conversationID, RubricID: rubricID}
		if sessionID != conversationID {
			in.Metadata = map[string]any{"app_session_id": sessionID}
		}
		_, err := sessions.CreateSession(ctx, in)
		return err
	})
}
