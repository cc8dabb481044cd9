package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// ComponentName joins the service name and a component into the dotted
// logger name, e.g. interview-scoring.webhooks.
func ComponentName(service string, component string) string {
	service = strings.Trim(strings.TrimSpace(service), ".")
	component = strings.Trim(strings.TrimSpace(component), ".")
	switch {
	case service == "":
		return component
	case component == "":
		return service
	default:
		return service + "." + component
	}
}

// Components hands out named loggers for the pipeline parts from one
// provider. Queue-side code gets the same loggers through the go-job bridge.
type Components struct {
	service  string
	provider glog.LoggerProvider
	fallback glog.Logger
	named    bool
}

// NewComponents resolves with precedence provider > logger > nop. Without a
// provider every component shares the single resolved logger.
func NewComponents(service string, provider glog.LoggerProvider, logger glog.Logger) *Components {
	resolvedProvider, resolvedLogger := glog.Resolve(service, provider, logger)
	return &Components{
		service:  strings.TrimSpace(service),
		provider: resolvedProvider,
		fallback: resolvedLogger,
		named:    provider != nil,
	}
}

func (c *Components) Provider() glog.LoggerProvider {
	if c == nil {
		return nil
	}
	return c.provider
}

func (c *Components) Logger(component string) glog.Logger {
	if c == nil {
		return glog.Nop()
	}
	if c.named && c.provider != nil {
		return glog.Ensure(c.provider.GetLogger(ComponentName(c.service, component)))
	}
	return glog.Ensure(c.fallback)
}

// JobLogger bridges the component logger to the go-job logger contract.
func (c *Components) JobLogger(component string) job.Logger {
	return job.GoLogger(c.Logger(component))
}

// JobProvider bridges the whole provider for go-job components that name
// their own loggers.
func (c *Components) JobProvider() job.LoggerProvider {
	if c == nil || c.provider == nil {
		return nil
	}
	return job.GoLoggerProvider(c.provider)
}
