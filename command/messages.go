package command

import (
	"strings"

	"github.com/goliatone/go-interview-scoring/core"
)

const (
	TypeCreateSession     = "scoring.command.session.create"
	TypeTransitionSession = "scoring.command.session.transition"
	TypeIngestWebhook     = "scoring.command.webhook.ingest"
	TypeRunScoringCycle   = "scoring.command.runner.run_once"
)

type CreateSessionMessage struct {
	Input core.CreateSessionInput
}

func (CreateSessionMessage) Type() string { return TypeCreateSession }

func (m CreateSessionMessage) Validate() error {
	if strings.TrimSpace(m.Input.RubricID) == "" {
		return commandValidationError("rubric_id", "rubric id is required")
	}
	return nil
}

type TransitionSessionMessage struct {
	Transition core.SessionTransition
}

func (TransitionSessionMessage) Type() string { return TypeTransitionSession }

func (m TransitionSessionMessage) Validate() error {
	if strings.TrimSpace(m.Transition.SessionID) == "" {
		return commandValidationError("session_id", "session id is required")
	}
	if !core.ValidSessionStatus(m.Transition.To) {
		return commandValidationError("to", "unknown session status")
	}
	return nil
}

// IngestWebhookMessage carries one webhook delivery exactly as received. An
// empty body is still a delivery: the ingestor verifies the signature
// before it looks at the payload.
type IngestWebhookMessage struct {
	Request core.InboundRequest
}

func (IngestWebhookMessage) Type() string { return TypeIngestWebhook }

func (m IngestWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Request.Surface) == "" {
		return commandValidationError("surface", "webhook surface is required")
	}
	return nil
}

type RunScoringCycleMessage struct {
	Trigger string
}

func (RunScoringCycleMessage) Type() string { return TypeRunScoringCycle }

func (RunScoringCycleMessage) Validate() error { return nil }
