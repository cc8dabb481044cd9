package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions, jobs and scores in process. All mutations go
// through one mutex, which gives ClaimNext the same test-and-set guarantee
// the SQL claim gets from a single UPDATE.
type MemoryStore struct {
	mu              sync.Mutex
	sessions        map[string]Session
	jobs            map[string]ScoringJob
	jobOrder        []string
	scores          map[string]Score
	uniqueActiveJob bool
	Now             func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:        map[string]Session{},
		jobs:            map[string]ScoringJob{},
		scores:          map[string]Score{},
		uniqueActiveJob: true,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithUniqueActiveJob toggles the one-active-job-per-session rule.
func (s *MemoryStore) WithUniqueActiveJob(enabled bool) *MemoryStore {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uniqueActiveJob = enabled
	return s
}

func (s *MemoryStore) SessionStore() SessionStore { return s }

func (s *MemoryStore) JobQueue() JobQueue { return s }

func (s *MemoryStore) ScoreStore() ScoreStore { return s }

func (s *MemoryStore) CreateSession(_ context.Context, in CreateSessionInput) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("core: memory store is not configured")
	}
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[in.ID]; exists {
		return Session{}, NewConflictError(fmt.Sprintf("core: session %q already exists", in.ID), map[string]any{"session_id": in.ID})
	}
	session := Session{
		ID:               in.ID,
		RubricID:         strings.TrimSpace(in.RubricID),
		Email:            strings.TrimSpace(in.Email),
		UserName:         strings.TrimSpace(in.UserName),
		Status:           SessionStatusStarted,
		StatusUpdatedAt:  now,
		EmailedResultsTo: []EmailAuditEntry{},
		Metadata:         copyAnyMap(in.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.sessions[session.ID] = session
	return cloneSession(session), nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("core: memory store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return Session{}, NewSessionNotFoundError(id)
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) TransitionSession(_ context.Context, in SessionTransition) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("core: memory store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.At.IsZero() {
		in.At = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[in.SessionID]
	if !ok {
		return Session{}, NewSessionNotFoundError(in.SessionID)
	}
	updated, err := ApplyTransition(stored, in)
	if err != nil {
		return Session{}, err
	}
	s.sessions[in.SessionID] = updated
	return cloneSession(updated), nil
}

func (s *MemoryStore) MarkResultsEmailSent(_ context.Context, in MarkEmailSentInput) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: memory store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	at := in.At
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[in.SessionID]
	if !ok {
		return false, NewSessionNotFoundError(in.SessionID)
	}
	if session.ResultsEmailSent {
		return false, nil
	}
	session.ResultsEmailSent = true
	session.UpdatedAt = at
	s.sessions[in.SessionID] = session
	return true, nil
}

func (s *MemoryStore) AppendEmailAudit(_ context.Context, in EmailAuditInput) error {
	if s == nil {
		return fmt.Errorf("core: memory store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	at := in.At
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[in.SessionID]
	if !ok {
		return NewSessionNotFoundError(in.SessionID)
	}
	session.EmailedResultsTo = append(copyAudit(session.EmailedResultsTo), EmailAuditEntry{
		Email:  strings.TrimSpace(in.Email),
		SentAt: at,
	})
	session.UpdatedAt = at
	s.sessions[in.SessionID] = session
	return nil
}

func (s *MemoryStore) Enqueue(_ context.Context, in EnqueueJobInput) (EnqueueResult, error) {
	if s == nil {
		return EnqueueResult{}, fmt.Errorf("core: memory store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return EnqueueResult{}, fmt.Errorf("core: job session id is required")
	}
	if in.MaxAttempts <= 0 {
		in.MaxAttempts = DefaultMaxAttempts
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uniqueActiveJob {
		for _, id := range s.jobOrder {
			existing := s.jobs[id]
			if existing.SessionID == in.SessionID && existing.Active() {
				return EnqueueResult{Job: cloneJob(existing), Created: false}, nil
			}
		}
	}
	job := ScoringJob{
		ID:          uuid.NewString(),
		SessionID:   in.SessionID,
		RubricID:    strings.TrimSpace(in.RubricID),
		Status:      JobStatusPending,
		MaxAttempts: in.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	return EnqueueResult{Job: cloneJob(job), Created: true}, nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, params ClaimParams) (ScoringJob, bool, error) {
	if s == nil {
		return ScoringJob{}, false, fmt.Errorf("core: memory store is not configured")
	}
	now := params.Now
	if now.IsZero() {
		now = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.jobOrder {
		job := s.jobs[id]
		if !job.Claimable() {
			continue
		}
		job.Status = JobStatusProcessing
		job.Attempts++
		job.UpdatedAt = now
		s.jobs[id] = job
		return cloneJob(job), true, nil
	}
	return ScoringJob{}, false, nil
}

func (s *MemoryStore) Complete(_ context.Context, in CompleteJobInput) error {
	return s.finishJob(in.JobID, JobStatusCompleted, "", in.At)
}

func (s *MemoryStore) Fail(_ context.Context, in FailJobInput) error {
	return s.finishJob(in.JobID, JobStatusFailed, in.Error, in.At)
}

func (s *MemoryStore) finishJob(jobID string, status JobStatus, message string, at time.Time) error {
	if s == nil {
		return fmt.Errorf("core: memory store is not configured")
	}
	jobID = strings.TrimSpace(jobID)
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return NewJobNotFoundError(jobID)
	}
	job.Status = status
	job.StatusError = strings.TrimSpace(message)
	job.UpdatedAt = at
	processed := at
	job.ProcessedAt = &processed
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (ScoringJob, error) {
	if s == nil {
		return ScoringJob{}, fmt.Errorf("core: memory store is not configured")
	}
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ScoringJob{}, NewJobNotFoundError(id)
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]ScoringJob, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory store is not configured")
	}
	sessionID := strings.TrimSpace(filter.SessionID)
	for _, status := range filter.Statuses {
		if !ValidJobStatus(status) {
			return nil, NewValidationError("statuses", fmt.Sprintf("unknown job status %q", status))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScoringJob, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		job := s.jobs[id]
		if sessionID != "" && job.SessionID != sessionID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, job.Status) {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveScore(_ context.Context, score Score) (Score, error) {
	if s == nil {
		return Score{}, fmt.Errorf("core: memory store is not configured")
	}
	score.SessionID = strings.TrimSpace(score.SessionID)
	if score.SessionID == "" {
		return Score{}, fmt.Errorf("core: score session id is required")
	}
	if strings.TrimSpace(score.ID) == "" {
		score.ID = uuid.NewString()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = s.now()
	}
	score.Payload = copyAnyMap(score.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.SessionID] = score
	return score, nil
}

func (s *MemoryStore) GetScore(_ context.Context, sessionID string) (Score, error) {
	if s == nil {
		return Score{}, fmt.Errorf("core: memory store is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[sessionID]
	if !ok {
		return Score{}, fmt.Errorf("%w: session %q", ErrScoreNotFound, sessionID)
	}
	score.Payload = copyAnyMap(score.Payload)
	return score, nil
}

func (s *MemoryStore) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
