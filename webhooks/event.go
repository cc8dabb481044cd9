package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CallEvent is the end-of-call payload posted by the voice platform. Only
// the fields the pipeline reads are decoded.
type CallEvent struct {
	Type           string   `json:"type"`
	EventTimestamp int64    `json:"event_timestamp"`
	Data           CallData `json:"data"`
}

type CallData struct {
	AgentID        string       `json:"agent_id"`
	ConversationID string       `json:"conversation_id"`
	Status         string       `json:"status"`
	Metadata       CallMetadata `json:"metadata"`
}

type CallMetadata struct {
	TerminationReason string `json:"termination_reason"`
	CallDurationSecs  int    `json:"call_duration_secs"`
}

func (e CallEvent) ConversationID() string {
	return strings.TrimSpace(e.Data.ConversationID)
}

func (e CallEvent) CallStatus() string {
	return strings.TrimSpace(e.Data.Status)
}

func (e CallEvent) TerminationReason() string {
	return strings.TrimSpace(e.Data.Metadata.TerminationReason)
}

// DecodeCallEvent parses its own copy of the body so the bytes used for
// signature verification are never touched.
func DecodeCallEvent(body []byte) (CallEvent, error) {
	raw := bytes.TrimSpace(bytes.Clone(body))
	if len(raw) == 0 {
		return CallEvent{}, fmt.Errorf("webhooks: event body is required")
	}
	var event CallEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return CallEvent{}, fmt.Errorf("webhooks: decode event: %w", err)
	}
	return event, nil
}
