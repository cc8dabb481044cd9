package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// MessageTypePrefix namespaces every message the scoring bus carries.
const MessageTypePrefix = "scoring."

// validateMessage runs the go-command Validate() hook and checks the
// message type belongs to the scoring namespace.
func validateMessage(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: %T does not implement Type() string", msg)
	}
	msgType := strings.TrimSpace(m.Type())
	if !strings.HasPrefix(msgType, MessageTypePrefix) || msgType == MessageTypePrefix {
		return fmt.Errorf("gocommand: message type %q is outside the %q namespace", msgType, MessageTypePrefix)
	}
	return nil
}

// RegistryAdapter records the scoring commands and queries in a go-command
// registry next to their dispatcher subscriptions.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(msgType string, handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if err := a.registry.RegisterCommand(handler); err != nil {
		return fmt.Errorf("gocommand: register %s: %w", msgType, err)
	}
	return nil
}

// subscribeCommand subscribes cmd for T and records it in the registry.
// A failed registration drops the subscription again.
func subscribeCommand[T command.Message](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	var msg T
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: handler for %s is required", msg.Type())
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.register(msg.Type(), cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func subscribeQuery[T command.Message, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	var msg T
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: handler for %s is required", msg.Type())
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.register(msg.Type(), qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// DispatchWithResult dispatches msg and returns the value its handler
// stored in the result collector.
func DispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := validateMessage(msg); err != nil {
		return zero, err
	}
	collector := command.NewResult[R]()
	if err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, ok := collector.Load()
	if !ok {
		return zero, fmt.Errorf("gocommand: %T handler stored no result", msg)
	}
	return out, nil
}

// QueryScoring validates msg and runs it through the subscribed querier.
func QueryScoring[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := validateMessage(msg); err != nil {
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
