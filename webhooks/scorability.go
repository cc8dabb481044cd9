package webhooks

import (
	"strings"

	"github.com/goliatone/go-interview-scoring/core"
)

const (
	ReasonCompleted        = "completed"
	ReasonCallNotCompleted = "call_not_completed"
	ReasonUngracefulEnd    = "ungraceful_end"
)

type ScorabilityPolicy struct {
	CompletionStatus   string
	GracefulEndReasons []string
	// GateOnEndReason makes a non-graceful termination reason block scoring.
	// When false the allow-list result is only reported.
	GateOnEndReason bool
}

type ScorabilityDecision struct {
	Scorable    bool
	GracefulEnd bool
	Reason      string
}

func NewScorabilityPolicy(cfg core.WebhookConfig) ScorabilityPolicy {
	return ScorabilityPolicy{
		CompletionStatus:   cfg.CompletionStatus,
		GracefulEndReasons: append([]string(nil), cfg.GracefulEndReasons...),
		GateOnEndReason:    cfg.GateOnEndReason,
	}
}

func (p ScorabilityPolicy) Decide(callStatus string, terminationReason string) ScorabilityDecision {
	completion := strings.TrimSpace(p.CompletionStatus)
	if completion == "" {
		completion = "done"
	}
	decision := ScorabilityDecision{
		GracefulEnd: p.gracefulEnd(terminationReason),
	}
	if !strings.EqualFold(strings.TrimSpace(callStatus), completion) {
		decision.Reason = ReasonCallNotCompleted
		return decision
	}
	if p.GateOnEndReason && !decision.GracefulEnd {
		decision.Reason = ReasonUngracefulEnd
		return decision
	}
	decision.Scorable = true
	decision.Reason = ReasonCompleted
	return decision
}

func (p ScorabilityPolicy) gracefulEnd(reason string) bool {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false
	}
	for _, allowed := range p.GracefulEndReasons {
		if strings.EqualFold(strings.TrimSpace(allowed), reason) {
			return true
		}
	}
	return false
}
