package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-interview-scoring/core"
)

type SessionStatusReader interface {
	SessionStatus(ctx context.Context, sessionID string) (core.SessionStatusView, error)
}

type SessionJobsReader interface {
	ListSessionJobs(ctx context.Context, sessionID string, limit int) ([]core.ScoringJob, error)
}

// GetSessionStatusQuery returns the candidate-facing view: the friendly
// label and never the raw status error.
type GetSessionStatusQuery struct {
	reader SessionStatusReader
}

func NewGetSessionStatusQuery(reader SessionStatusReader) *GetSessionStatusQuery {
	return &GetSessionStatusQuery{reader: reader}
}

func (q *GetSessionStatusQuery) Query(ctx context.Context, msg GetSessionStatusMessage) (core.SessionStatusView, error) {
	if q == nil || q.reader == nil {
		return core.SessionStatusView{}, queryDependencyError("query: session status reader is required")
	}
	return q.reader.SessionStatus(ctx, strings.TrimSpace(msg.SessionID))
}

type ListSessionJobsQuery struct {
	reader SessionJobsReader
}

func NewListSessionJobsQuery(reader SessionJobsReader) *ListSessionJobsQuery {
	return &ListSessionJobsQuery{reader: reader}
}

func (q *ListSessionJobsQuery) Query(ctx context.Context, msg ListSessionJobsMessage) ([]core.ScoringJob, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: session jobs reader is required")
	}
	return q.reader.ListSessionJobs(ctx, strings.TrimSpace(msg.SessionID), msg.Limit)
}
