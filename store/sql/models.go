package sqlstore

import (
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	"github.com/uptrace/bun"
)

type sessionRecord struct {
	bun.BaseModel `bun:"table:interview_sessions,alias:ises"`

	ID                string                 `bun:"id,pk"`
	RubricID          string                 `bun:"rubric_id,notnull"`
	Email             string                 `bun:"email,notnull"`
	UserName          string                 `bun:"user_name,notnull"`
	Status            string                 `bun:"status,notnull"`
	StatusUpdatedAt   time.Time              `bun:"status_updated_at,nullzero,notnull,default:current_timestamp"`
	StatusError       string                 `bun:"status_error,notnull"`
	ResultsEmailSent  bool                   `bun:"results_email_sent,notnull"`
	EmailedResultsTo  []core.EmailAuditEntry `bun:"emailed_results_to,type:jsonb,notnull"`
	CallStatus        string                 `bun:"call_status,notnull"`
	TerminationReason string                 `bun:"termination_reason,notnull"`
	Metadata          map[string]any         `bun:"metadata,type:jsonb,notnull"`
	CreatedAt         time.Time              `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time              `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type scoringJobRecord struct {
	bun.BaseModel `bun:"table:scoring_jobs,alias:sj"`

	ID          string     `bun:"id,pk"`
	SessionID   string     `bun:"session_id,notnull"`
	RubricID    string     `bun:"rubric_id,notnull"`
	Status      string     `bun:"status,notnull"`
	Attempts    int        `bun:"attempts,notnull"`
	MaxAttempts int        `bun:"max_attempts,notnull"`
	StatusError string     `bun:"status_error,notnull"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero"`
}

type scoreRecord struct {
	bun.BaseModel `bun:"table:interview_scores,alias:isc"`

	ID        string         `bun:"id,pk"`
	SessionID string         `bun:"session_id,notnull"`
	RubricID  string         `bun:"rubric_id,notnull"`
	Summary   string         `bun:"summary,notnull"`
	Payload   map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
