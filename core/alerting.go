package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// BestEffortAlerter dispatches alerts on a detached goroutine. A nil sink is
// a silent no-op and sink failures are only logged.
type BestEffortAlerter struct {
	sink        AlertingSink
	titlePrefix string
	timeout     time.Duration
	observer    observer
	wg          sync.WaitGroup
}

func NewBestEffortAlerter(sink AlertingSink, cfg AlertsConfig, logger Logger, metrics MetricsRecorder) *BestEffortAlerter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAlertTimeout
	}
	return &BestEffortAlerter{
		sink:        sink,
		titlePrefix: strings.TrimSpace(cfg.TitlePrefix),
		timeout:     timeout,
		observer:    newObserver(logger, metrics),
	}
}

func (a *BestEffortAlerter) Enabled() bool {
	return a != nil && a.sink != nil
}

func (a *BestEffortAlerter) Notify(ctx context.Context, alert Alert) {
	if !a.Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	alert.Title = strings.TrimSpace(a.titlePrefix + " " + strings.TrimSpace(alert.Title))
	alert.Fields = copyAnyMap(alert.Fields)

	detached := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		startedAt := time.Now()
		alertCtx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()

		var err error
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					err = fmt.Errorf("core: alerting sink panicked: %v", recovered)
				}
			}()
			err = a.sink.Alert(alertCtx, alert)
		}()
		a.observer.observe(alertCtx, startedAt, "alert.send", err, map[string]any{
			"alert_title": alert.Title,
		})
	}()
}

// Wait blocks until in-flight alerts finish. Used on shutdown and in tests.
func (a *BestEffortAlerter) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

func sessionFailureAlert(sessionID string, status SessionStatus, message string) Alert {
	return Alert{
		Title:       fmt.Sprintf("Session %s", status),
		Description: strings.TrimSpace(message),
		Fields: map[string]any{
			"session_id": sessionID,
			"status":     string(status),
			"error":      strings.TrimSpace(message),
		},
	}
}
