package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-interview-scoring/core"
)

type SessionService interface {
	CreateSession(ctx context.Context, in core.CreateSessionInput) (core.Session, error)
	Transition(ctx context.Context, in core.SessionTransition) (core.Session, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) core.InboundResult
}

type CycleRunner interface {
	RunNextJob(ctx context.Context) (core.RunOutcome, error)
}

type CreateSessionCommand struct {
	service SessionService
}

func NewCreateSessionCommand(service SessionService) *CreateSessionCommand {
	return &CreateSessionCommand{service: service}
}

func (c *CreateSessionCommand) Execute(ctx context.Context, msg CreateSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.CreateSession(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TransitionSessionCommand struct {
	service SessionService
}

func NewTransitionSessionCommand(service SessionService) *TransitionSessionCommand {
	return &TransitionSessionCommand{service: service}
}

func (c *TransitionSessionCommand) Execute(ctx context.Context, msg TransitionSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.Transition(ctx, msg.Transition)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// IngestWebhookCommand never fails for a processed delivery: the HTTP
// outcome lives in the stored core.InboundResult.
type IngestWebhookCommand struct {
	processor WebhookProcessor
}

func NewIngestWebhookCommand(processor WebhookProcessor) *IngestWebhookCommand {
	return &IngestWebhookCommand{processor: processor}
}

func (c *IngestWebhookCommand) Execute(ctx context.Context, msg IngestWebhookMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: webhook processor is required")
	}
	storeResult(ctx, c.processor.Process(ctx, msg.Request))
	return nil
}

type RunScoringCycleCommand struct {
	runner CycleRunner
}

func NewRunScoringCycleCommand(runner CycleRunner) *RunScoringCycleCommand {
	return &RunScoringCycleCommand{runner: runner}
}

func (c *RunScoringCycleCommand) Execute(ctx context.Context, _ RunScoringCycleMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: scoring runner is required")
	}
	out, err := c.runner.RunNextJob(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
