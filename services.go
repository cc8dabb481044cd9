package scoring

import "github.com/goliatone/go-interview-scoring/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SessionStore = core.SessionStore
type JobQueue = core.JobQueue
type ScoreStore = core.ScoreStore
type ScoringEngine = core.ScoringEngine
type EmailSender = core.EmailSender
type AlertingSink = core.AlertingSink

type Session = core.Session
type SessionStatus = core.SessionStatus
type ScoringJob = core.ScoringJob
type Score = core.Score
type RunOutcome = core.RunOutcome

type CreateSessionInput = core.CreateSessionInput
type SessionTransition = core.SessionTransition
type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithSessionStore      = core.WithSessionStore
	WithJobQueue          = core.WithJobQueue
	WithScoreStore        = core.WithScoreStore
	WithScoringEngine     = core.WithScoringEngine
	WithEmailSender       = core.WithEmailSender
	WithAlertingSink      = core.WithAlertingSink
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
