package gocommand

import (
	"context"
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-interview-scoring/command"
	"github.com/goliatone/go-interview-scoring/core"
	"github.com/goliatone/go-interview-scoring/query"
)

// ScoringHandlers lists the backends behind the scoring bus. Nil fields
// leave the matching messages unsubscribed.
type ScoringHandlers struct {
	Sessions command.SessionService
	Webhooks command.WebhookProcessor
	Cycles   command.CycleRunner
	Status   query.SessionStatusReader
	Jobs     query.SessionJobsReader
}

type Subscriptions struct {
	items []commanddispatcher.Subscription
}

func (s *Subscriptions) add(sub commanddispatcher.Subscription) {
	if sub != nil {
		s.items = append(s.items, sub)
	}
}

func (s *Subscriptions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Subscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, sub := range s.items {
		sub.Unsubscribe()
	}
	s.items = nil
}

// RegisterScoringHandlers registers and subscribes every configured scoring
// command and query. On error nothing stays subscribed.
func RegisterScoringHandlers(adapter *RegistryAdapter, handlers ScoringHandlers, runnerOpts ...runner.Option) (*Subscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	subs := &Subscriptions{}
	fail := func(err error) (*Subscriptions, error) {
		subs.Unsubscribe()
		return nil, err
	}

	if handlers.Sessions != nil {
		sub, err := subscribeCommand[command.CreateSessionMessage](adapter, command.NewCreateSessionCommand(handlers.Sessions), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs.add(sub)
		sub, err = subscribeCommand[command.TransitionSessionMessage](adapter, command.NewTransitionSessionCommand(handlers.Sessions), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs.add(sub)
	}
	if handlers.Webhooks != nil {
		sub, err := subscribeCommand[command.IngestWebhookMessage](adapter, command.NewIngestWebhookCommand(handlers.Webhooks), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs.add(sub)
	}
	if handlers.Cycles != nil {
		sub, err := subscribeCommand[command.RunScoringCycleMessage](adapter, command.NewRunScoringCycleCommand(handlers.Cycles), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs.add(sub)
	}
	if handlers.Status != nil {
		sub, err := subscribeQuery[query.GetSessionStatusMessage, core.SessionStatusView](adapter, query.NewGetSessionStatusQuery(handlers.Status), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs.add(sub)
	}
	if handlers.Jobs != nil {
		sub, err := subscribeQuery[query.ListSessionJobsMessage, []core.ScoringJob](adapter, query.NewListSessionJobsQuery(handlers.Jobs), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		subs.add(sub)
	}
	return subs, nil
}

func IngestWebhook(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	return DispatchWithResult[command.IngestWebhookMessage, core.InboundResult](ctx, command.IngestWebhookMessage{Request: req})
}

func RunScoringCycle(ctx context.Context, trigger string) (core.RunOutcome, error) {
	return DispatchWithResult[command.RunScoringCycleMessage, core.RunOutcome](ctx, command.RunScoringCycleMessage{Trigger: trigger})
}

func SessionStatus(ctx context.Context, sessionID string) (core.SessionStatusView, error) {
	return QueryScoring[query.GetSessionStatusMessage, core.SessionStatusView](ctx, query.GetSessionStatusMessage{SessionID: sessionID})
}
