package sqlstore

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
)

func newSessionRecord(in core.CreateSessionInput, now time.Time) *sessionRecord {
	return &sessionRecord{
		ID:               strings.TrimSpace(in.ID),
		RubricID:         strings.TrimSpace(in.RubricID),
		Email:            strings.TrimSpace(in.Email),
		UserName:         strings.TrimSpace(in.UserName),
		Status:           string(core.SessionStatusStarted),
		StatusUpdatedAt:  now,
		EmailedResultsTo: []core.EmailAuditEntry{},
		Metadata:         copyAnyMap(in.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (r *sessionRecord) toDomain() core.Session {
	if r == nil {
		return core.Session{}
	}
	audit := make([]core.EmailAuditEntry, 0, len(r.EmailedResultsTo))
	for _, entry := range r.EmailedResultsTo {
		audit = append(audit, core.EmailAuditEntry{Email: entry.Email, SentAt: entry.SentAt.UTC()})
	}
	return core.Session{
		ID:                r.ID,
		RubricID:          r.RubricID,
		Email:             r.Email,
		UserName:          r.UserName,
		Status:            core.SessionStatus(r.Status),
		StatusUpdatedAt:   r.StatusUpdatedAt.UTC(),
		StatusError:       r.StatusError,
		ResultsEmailSent:  r.ResultsEmailSent,
		EmailedResultsTo:  audit,
		CallStatus:        r.CallStatus,
		TerminationReason: r.TerminationReason,
		Metadata:          copyAnyMap(r.Metadata),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func newScoringJobRecord(in core.EnqueueJobInput, id string, now time.Time) *scoringJobRecord {
	return &scoringJobRecord{
		ID:          id,
		SessionID:   strings.TrimSpace(in.SessionID),
		RubricID:    strings.TrimSpace(in.RubricID),
		Status:      string(core.JobStatusPending),
		Attempts:    0,
		MaxAttempts: in.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *scoringJobRecord) toDomain() core.ScoringJob {
	if r == nil {
		return core.ScoringJob{}
	}
	job := core.ScoringJob{
		ID:          r.ID,
		SessionID:   r.SessionID,
		RubricID:    r.RubricID,
		Status:      core.JobStatus(r.Status),
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		StatusError: r.StatusError,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.ProcessedAt != nil {
		processed := r.ProcessedAt.UTC()
		job.ProcessedAt = &processed
	}
	return job
}

func newScoreRecord(score core.Score) *scoreRecord {
	return &scoreRecord{
		ID:        score.ID,
		SessionID: strings.TrimSpace(score.SessionID),
		RubricID:  strings.TrimSpace(score.RubricID),
		Summary:   score.Summary,
		Payload:   copyAnyMap(score.Payload),
		CreatedAt: score.CreatedAt,
	}
}

func (r *scoreRecord) toDomain() core.Score {
	if r == nil {
		return core.Score{}
	}
	return core.Score{
		ID:        r.ID,
		SessionID: r.SessionID,
		RubricID:  r.RubricID,
		Summary:   r.Summary,
		Payload:   copyAnyMap(r.Payload),
		CreatedAt: r.CreatedAt.UTC(),
	}
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

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
