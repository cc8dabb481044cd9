package core

import (
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionStatusStarted                  SessionStatus = "started"
	SessionStatusWebhookReceived          SessionStatus = "webhook_received"
	SessionStatusWebhookReceivedNotScored SessionStatus = "webhook_received_not_scored"
	SessionStatusScoringEnqueued          SessionStatus = "scoring_enqueued"
	SessionStatusScoringEnqueueFailed     SessionStatus = "scoring_enqueue_failed"
	SessionStatusScoringInProgress        SessionStatus = "scoring_in_progress"
	SessionStatusScoredSuccessfully       SessionStatus = "scored_successfully"
	SessionStatusScoringFailedLLM         SessionStatus = "scoring_failed_llm"
	SessionStatusScoringFailedDB          SessionStatus = "scoring_failed_db"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusArchived   JobStatus = "archived"
)

const DefaultMaxAttempts = 3

type EmailAuditEntry struct {
	Email  string    `json:"email"`
	SentAt time.Time `json:"sent_at"`
}

// Session is one interview attempt. Status moves through the transition
// table in transitions.go and is the record surfaced to the candidate.
type Session struct {
	ID                string
	RubricID          string
	Email             string
	UserName          string
	Status            SessionStatus
	StatusUpdatedAt   time.Time
	StatusError       string
	ResultsEmailSent  bool
	EmailedResultsTo  []EmailAuditEntry
	CallStatus        string
	TerminationReason string
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ScoringJob struct {
	ID          string
	SessionID   string
	RubricID    string
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	StatusError string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

func (j ScoringJob) Claimable() bool {
	return j.Status == JobStatusPending && j.Attempts < j.MaxAttempts
}

func (j ScoringJob) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

type Score struct {
	ID        string
	SessionID string
	RubricID  string
	Summary   string
	Payload   map[string]any
	CreatedAt time.Time
}

type FailureKind string

const (
	FailureKindNone        FailureKind = ""
	FailureKindEngine      FailureKind = "engine"
	FailureKindPersistence FailureKind = "persistence"
)

func (k FailureKind) SessionStatus() SessionStatus {
	if k == FailureKindPersistence {
		return SessionStatusScoringFailedDB
	}
	return SessionStatusScoringFailedLLM
}

type RunOutcomeStatus string

const (
	RunOutcomeNoJobs    RunOutcomeStatus = "no_jobs"
	RunOutcomeCompleted RunOutcomeStatus = "completed"
	RunOutcomeFailed    RunOutcomeStatus = "failed"
)

type RunOutcome struct {
	Status      RunOutcomeStatus
	JobID       string
	SessionID   string
	Attempts    int
	FailureKind FailureKind
	Error       string
	EmailSent   bool
	Duration    time.Duration
}

func normalizeSessionStatus(status SessionStatus) SessionStatus {
	return SessionStatus(strings.TrimSpace(strings.ToLower(string(status))))
}

func normalizeJobStatus(status JobStatus) JobStatus {
	return JobStatus(strings.TrimSpace(strings.ToLower(string(status))))
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyAudit(in []EmailAuditEntry) []EmailAuditEntry {
	if len(in) == 0 {
		return []EmailAuditEntry{}
	}
	return append([]EmailAuditEntry(nil), in...)
}

func cloneSession(session Session) Session {
	cloned := session
	cloned.EmailedResultsTo = copyAudit(session.EmailedResultsTo)
	cloned.Metadata = copyAnyMap(session.Metadata)
	return cloned
}

func cloneJob(job ScoringJob) ScoringJob {
	cloned := job
	if job.ProcessedAt != nil {
		processed := job.ProcessedAt.UTC()
		cloned.ProcessedAt = &processed
	}
	return cloned
}
