package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Lifecycle struct {
	store    SessionStore
	alerter  *BestEffortAlerter
	observer observer
	now      func() time.Time
}

func NewLifecycle(store SessionStore, alerter *BestEffortAlerter, logger Logger, metrics MetricsRecorder) *Lifecycle {
	return &Lifecycle{
		store:    store,
		alerter:  alerter,
		observer: newObserver(logger, metrics),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Transition writes one status change. Failure statuses fire an alert after
// the write; the alert outcome never reaches the caller.
func (l *Lifecycle) Transition(ctx context.Context, in SessionTransition) (Session, error) {
	if l == nil || l.store == nil {
		return Session{}, fmt.Errorf("core: session lifecycle is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.To = normalizeSessionStatus(in.To)
	in.Error = strings.TrimSpace(in.Error)
	if in.SessionID == "" {
		return Session{}, NewValidationError("session_id", "session id is required")
	}
	if !ValidSessionStatus(in.To) || in.To == SessionStatusStarted {
		return Session{}, NewValidationError("status", fmt.Sprintf("status %q is not a transition target", in.To))
	}
	if in.At.IsZero() {
		in.At = l.now()
	}
	if IsFailureStatus(in.To) && in.Error == "" {
		in.Error = string(in.To)
	}

	startedAt := time.Now()
	session, err := l.store.TransitionSession(ctx, in)
	l.observer.observe(ctx, startedAt, "session.transition", err, map[string]any{
		"session_id":     in.SessionID,
		"session_status": string(in.To),
	})
	if err != nil {
		return Session{}, err
	}

	if IsFailureStatus(in.To) {
		l.alerter.Notify(ctx, sessionFailureAlert(in.SessionID, in.To, in.Error))
	}
	return session, nil
}

func (l *Lifecycle) To(ctx context.Context, sessionID string, to SessionStatus, cause error) (Session, error) {
	in := SessionTransition{SessionID: sessionID, To: to}
	if cause != nil {
		in.Error = cause.Error()
	}
	return l.Transition(ctx, in)
}

// IsTransitionRejected reports whether err came from the transition table
// rather than from the store.
func IsTransitionRejected(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// Store implementations outside core return these sentinel-wrapped forms.
func NewInvalidTransitionError(sessionID string, from, to SessionStatus) error {
	return fmt.Errorf("%w: session %q %s -> %s", ErrInvalidTransition, sessionID, from, to)
}

func NewSessionNotFoundError(sessionID string) error {
	return fmt.Errorf("%w: id %q", ErrSessionNotFound, sessionID)
}

func NewJobNotFoundError(jobID string) error {
	return fmt.Errorf("%w: id %q", ErrJobNotFound, jobID)
}

// ApplyTransition validates in against the stored session and returns the
// updated copy. Stores call it with a freshly read row.
func ApplyTransition(stored Session, in SessionTransition) (Session, error) {
	from := normalizeSessionStatus(stored.Status)
	to := normalizeSessionStatus(in.To)
	if !AllowedTransition(from, to) {
		return Session{}, NewInvalidTransitionError(stored.ID, from, to)
	}
	at := in.At.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updated := cloneSession(stored)
	updated.Status = to
	updated.StatusUpdatedAt = at
	updated.StatusError = strings.TrimSpace(in.Error)
	if callStatus := strings.TrimSpace(in.CallStatus); callStatus != "" {
		updated.CallStatus = callStatus
	}
	if reason := strings.TrimSpace(in.TerminationReason); reason != "" {
		updated.TerminationReason = reason
	}
	updated.UpdatedAt = at
	return updated, nil
}
