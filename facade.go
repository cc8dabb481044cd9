package scoring

import (
	"fmt"

	"github.com/goliatone/go-interview-scoring/command"
	"github.com/goliatone/go-interview-scoring/core"
	"github.com/goliatone/go-interview-scoring/query"
	"github.com/goliatone/go-interview-scoring/webhooks"
)

// CommandQueryService is what the facade needs from a scoring service.
// *core.Service satisfies it.
type CommandQueryService interface {
	command.SessionService
	command.CycleRunner
	query.SessionStatusReader
	query.SessionJobsReader
}

type Commands struct {
	CreateSession     *command.CreateSessionCommand
	TransitionSession *command.TransitionSessionCommand
	IngestWebhook     *command.IngestWebhookCommand
	RunScoringCycle   *command.RunScoringCycleCommand
}

type Queries struct {
	SessionStatus *query.GetSessionStatusQuery
	SessionJobs   *query.ListSessionJobsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	processor command.WebhookProcessor
	notifier  webhooks.Notifier
}

// WithWebhookProcessor overrides the ingestor built from the service.
func WithWebhookProcessor(processor command.WebhookProcessor) FacadeOption {
	return func(options *facadeOptions) {
		options.processor = processor
	}
}

// WithEnqueueNotifier is passed to the ingestor built from the service.
func WithEnqueueNotifier(notifier webhooks.Notifier) FacadeOption {
	return func(options *facadeOptions) {
		options.notifier = notifier
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("scoring: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	processor := cfg.processor
	if processor == nil {
		resolved, err := resolveWebhookProcessor(service, cfg.notifier)
		if err != nil {
			return nil, err
		}
		processor = resolved
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateSession:     command.NewCreateSessionCommand(service),
		TransitionSession: command.NewTransitionSessionCommand(service),
		IngestWebhook:     command.NewIngestWebhookCommand(processor),
		RunScoringCycle:   command.NewRunScoringCycleCommand(service),
	}
	facade.queries = Queries{
		SessionStatus: query.NewGetSessionStatusQuery(service),
		SessionJobs:   query.NewListSessionJobsQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveWebhookProcessor returns the service itself when it can process
// webhooks, builds an ingestor for a *core.Service, and otherwise leaves
// the ingest command without a backend.
func resolveWebhookProcessor(service CommandQueryService, notifier webhooks.Notifier) (command.WebhookProcessor, error) {
	if processor, ok := service.(command.WebhookProcessor); ok {
		return processor, nil
	}
	svc, ok := service.(*core.Service)
	if !ok {
		return nil, nil
	}
	ingestor, err := webhooks.NewServiceIngestor(svc, notifier)
	if err != nil {
		return nil, fmt.Errorf("scoring: build webhook ingestor: %w", err)
	}
	return ingestor, nil
}
