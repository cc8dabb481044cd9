// Package voice models the voice-conversation client's lifecycle as typed
// events on a channel. A Consumer binds conversations to interview sessions
// so the webhook for the finished call can find its session.
package voice

import "time"

type EventKind string

const (
	KindConnect         EventKind = "connect"
	KindDisconnect      EventKind = "disconnect"
	KindTranscriptChunk EventKind = "transcript_chunk"
	KindInterruption    EventKind = "interruption"
	KindError           EventKind = "error"
)

// Event is implemented by the five variants below and nothing else.
type Event interface {
	Kind() EventKind
	ConversationID() string
	OccurredAt() time.Time
	isEvent()
}

type base struct {
	Conversation string
	At           time.Time
}

func (b base) ConversationID() string { return b.Conversation }
func (b base) OccurredAt() time.Time  { return b.At }
func (base) isEvent()                 {}

type ConnectEvent struct {
	base
	SessionID string
}

func NewConnectEvent(conversationID, sessionID string, at time.Time) ConnectEvent {
	return ConnectEvent{base: base{Conversation: conversationID, At: at}, SessionID: sessionID}
}

func (ConnectEvent) Kind() EventKind { return KindConnect }

type DisconnectEvent struct {
	base
	Reason string
}

func NewDisconnectEvent(conversationID, reason string, at time.Time) DisconnectEvent {
	return DisconnectEvent{base: base{Conversation: conversationID, At: at}, Reason: reason}
}

func (DisconnectEvent) Kind() EventKind { return KindDisconnect }

type Speaker string

const (
	SpeakerAgent     Speaker = "agent"
	SpeakerCandidate Speaker = "candidate"
)

type TranscriptChunkEvent struct {
	base
	Speaker Speaker
	Text    string
	Final   bool
}

func NewTranscriptChunkEvent(conversationID string, speaker Speaker, text string, final bool, at time.Time) TranscriptChunkEvent {
	return TranscriptChunkEvent{
		base:    base{Conversation: conversationID, At: at},
		Speaker: speaker,
		Text:    text,
		Final:   final,
	}
}

func (TranscriptChunkEvent) Kind() EventKind { return KindTranscriptChunk }

type InterruptionEvent struct {
	base
}

func NewInterruptionEvent(conversationID string, at time.Time) InterruptionEvent {
	return InterruptionEvent{base: base{Conversation: conversationID, At: at}}
}

func (InterruptionEvent) Kind() EventKind { return KindInterruption }

type ErrorEvent struct {
	base
	Err error
}

func NewErrorEvent(conversationID string, err error, at time.Time) ErrorEvent {
	return ErrorEvent{base: base{Conversation: conversationID, At: at}, Err: err}
}

func (ErrorEvent) Kind() EventKind { return KindError }
