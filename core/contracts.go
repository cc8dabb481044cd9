package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type InboundRequest struct {
	Surface  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	SessionID  string
	Decision   string
	Metadata   map[string]any
}

type CreateSessionInput struct {
	ID       string
	RubricID string
	Email    string
	UserName string
	Metadata map[string]any
}

// SessionTransition is one status write. The store validates it against the
// stored status, not against the caller's copy.
type SessionTransition struct {
	SessionID         string
	To                SessionStatus
	Error             string
	CallStatus        string
	TerminationReason string
	At                time.Time
}

type MarkEmailSentInput struct {
	SessionID string
	At        time.Time
}

type EmailAuditInput struct {
	SessionID string
	Email     string
	At        time.Time
}

type SessionStore interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	TransitionSession(ctx context.Context, in SessionTransition) (Session, error)
	MarkResultsEmailSent(ctx context.Context, in MarkEmailSentInput) (bool, error)
	AppendEmailAudit(ctx context.Context, in EmailAuditInput) error
}

type EnqueueJobInput struct {
	SessionID   string
	RubricID    string
	MaxAttempts int
}

type EnqueueResult struct {
	Job     ScoringJob
	Created bool
}

type ClaimParams struct {
	Now time.Time
}

type CompleteJobInput struct {
	JobID string
	At    time.Time
}

type FailJobInput struct {
	JobID string
	Error string
	At    time.Time
}

type JobFilter struct {
	SessionID string
	Statuses  []JobStatus
	Limit     int
}

type JobQueue interface {
	Enqueue(ctx context.Context, in EnqueueJobInput) (EnqueueResult, error)
	ClaimNext(ctx context.Context, params ClaimParams) (ScoringJob, bool, error)
	Complete(ctx context.Context, in CompleteJobInput) error
	Fail(ctx context.Context, in FailJobInput) error
	GetJob(ctx context.Context, id string) (ScoringJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]ScoringJob, error)
}

type ScoreStore interface {
	SaveScore(ctx context.Context, score Score) (Score, error)
	GetScore(ctx context.Context, sessionID string) (Score, error)
}

type StoreProvider interface {
	SessionStore() SessionStore
	JobQueue() JobQueue
	ScoreStore() ScoreStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type ScoreRequest struct {
	SessionID string
	RubricID  string
}

type ScoreResult struct {
	Summary string
	Payload map[string]any
}

type ScoringEngine interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
}

type ResultsEmail struct {
	SessionID string
	Recipient string
	UserName  string
	Summary   string
}

// EmailSender reports delivery as a boolean and never returns an error past
// its own boundary.
type EmailSender interface {
	SendResults(ctx context.Context, email ResultsEmail) bool
}

type Alert struct {
	Title       string
	Description string
	Fields      map[string]any
}

type AlertingSink interface {
	Alert(ctx context.Context, alert Alert) error
}

type ScoringEngineFunc func(ctx context.Context, req ScoreRequest) (ScoreResult, error)

func (f ScoringEngineFunc) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	return f(ctx, req)
}

type EmailSenderFunc func(ctx context.Context, email ResultsEmail) bool

func (f EmailSenderFunc) SendResults(ctx context.Context, email ResultsEmail) bool {
	return f(ctx, email)
}

type AlertingSinkFunc func(ctx context.Context, alert Alert) error

func (f AlertingSinkFunc) Alert(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}
