package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const scoringJobColumns = `
	id,
	session_id,
	rubric_id,
	status,
	attempts,
	max_attempts,
	status_error,
	created_at,
	updated_at,
	processed_at`

// ScoringJobStore is the durable job queue. The schema allows at most one
// pending or processing job per session; Enqueue surfaces that job instead
// of failing.
type ScoringJobStore struct {
	db   *bun.DB
	repo repository.Repository[*scoringJobRecord]
	now  func() time.Time
}

func NewScoringJobStore(db *bun.DB) (*ScoringJobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*scoringJobRecord](db, scoringJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid scoring job repository wiring: %w", err)
		}
	}
	return &ScoringJobStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ScoringJobStore) Enqueue(ctx context.Context, in core.EnqueueJobInput) (core.EnqueueResult, error) {
	if s == nil || s.db == nil {
		return core.EnqueueResult{}, fmt.Errorf("sqlstore: scoring job store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return core.EnqueueResult{}, fmt.Errorf("sqlstore: job session id is required")
	}
	if in.MaxAttempts <= 0 {
		in.MaxAttempts = core.DefaultMaxAttempts
	}

	// Two passes: the active job that caused the conflict may finish
	// before it can be read back.
	for pass := 0; pass < 2; pass++ {
		record := newScoringJobRecord(in, uuid.NewString(), s.now())
		_, err := s.db.NewInsert().Model(record).Exec(ctx)
		if err == nil {
			return core.EnqueueResult{Job: record.toDomain(), Created: true}, nil
		}
		if !isUniqueViolation(err) {
			return core.EnqueueResult{}, err
		}
		existing, found, lookupErr := s.findActive(ctx, in.SessionID)
		if lookupErr != nil {
			return core.EnqueueResult{}, lookupErr
		}
		if found {
			return core.EnqueueResult{Job: existing, Created: false}, nil
		}
	}
	return core.EnqueueResult{}, fmt.Errorf("sqlstore: could not enqueue job for session %q", in.SessionID)
}

// ClaimNext moves the oldest claimable job to processing and bumps its
// attempts in one statement; the status guard in the UPDATE keeps two
// claimers from taking the same row.
func (s *ScoringJobStore) ClaimNext(ctx context.Context, params core.ClaimParams) (core.ScoringJob, bool, error) {
	if s == nil || s.db == nil {
		return core.ScoringJob{}, false, fmt.Errorf("sqlstore: scoring job store is not configured")
	}
	now := params.Now.UTC()
	if params.Now.IsZero() {
		now = s.now()
	}

	lock := ""
	if s.db.Dialect().Name() == dialect.PG {
		lock = "FOR UPDATE SKIP LOCKED"
	}
	query := `
WITH next AS (
	SELECT id
	FROM scoring_jobs
	WHERE status = ?
	  AND attempts < max_attempts
	ORDER BY created_at ASC, id ASC
	LIMIT 1
	` + lock + `
)
UPDATE scoring_jobs
SET status = ?, attempts = attempts + 1, updated_at = ?
WHERE id IN (SELECT id FROM next)
  AND status = ?
RETURNING` + scoringJobColumns

	var records []scoringJobRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(
			query,
			string(core.JobStatusPending),
			string(core.JobStatusProcessing),
			now,
			string(core.JobStatusPending),
		).Scan(ctx, &records)
	})
	if err != nil {
		if isNoRows(err) {
			return core.ScoringJob{}, false, nil
		}
		return core.ScoringJob{}, false, err
	}
	if len(records) == 0 {
		return core.ScoringJob{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *ScoringJobStore) Complete(ctx context.Context, in core.CompleteJobInput) error {
	return s.finish(ctx, in.JobID, core.JobStatusCompleted, "", in.At)
}

func (s *ScoringJobStore) Fail(ctx context.Context, in core.FailJobInput) error {
	return s.finish(ctx, in.JobID, core.JobStatusFailed, in.Error, in.At)
}

func (s *ScoringJobStore) finish(ctx context.Context, jobID string, status core.JobStatus, message string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: scoring job store is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("sqlstore: job id is required")
	}
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	res, err := s.db.NewUpdate().
		Model((*scoringJobRecord)(nil)).
		Set("status = ?", string(status)).
		Set("status_error = ?", strings.TrimSpace(message)).
		Set("updated_at = ?", at).
		Set("processed_at = ?", at).
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return core.NewJobNotFoundError(jobID)
	}
	return nil
}

func (s *ScoringJobStore) GetJob(ctx context.Context, id string) (core.ScoringJob, error) {
	if s == nil || s.repo == nil {
		return core.ScoringJob{}, fmt.Errorf("sqlstore: scoring job store is not configured")
	}
	id = strings.TrimSpace(id)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ScoringJob{}, err
	}
	if len(records) == 0 {
		return core.ScoringJob{}, core.NewJobNotFoundError(id)
	}
	return records[0].toDomain(), nil
}

func (s *ScoringJobStore) ListJobs(ctx context.Context, filter core.JobFilter) ([]core.ScoringJob, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: scoring job store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at ASC"),
	}
	if sessionID := strings.TrimSpace(filter.SessionID); sessionID != "" {
		selectors = append(selectors, repository.SelectBy("session_id", "=", sessionID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			if !core.ValidJobStatus(status) {
				return nil, core.NewValidationError("statuses", fmt.Sprintf("unknown job status %q", status))
			}
			statuses = append(statuses, strings.TrimSpace(strings.ToLower(string(status))))
		}
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.status IN (?)", bun.In(statuses))
		}))
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.ScoringJob, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ScoringJobStore) findActive(ctx context.Context, sessionID string) (core.ScoringJob, bool, error) {
	jobs, err := s.ListJobs(ctx, core.JobFilter{
		SessionID: sessionID,
		Statuses:  []core.JobStatus{core.JobStatusPending, core.JobStatusProcessing},
		Limit:     1,
	})
	if err != nil {
		return core.ScoringJob{}, false, err
	}
	if len(jobs) == 0 {
		return core.ScoringJob{}, false, nil
	}
	return jobs[0], true, nil
}

var _ core.JobQueue = (*ScoringJobStore)(nil)
