package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-interview-scoring/core"
)

var (
	_ gocmd.Querier[GetSessionStatusMessage, core.SessionStatusView] = (*GetSessionStatusQuery)(nil)
	_ gocmd.Querier[ListSessionJobsMessage, []core.ScoringJob]       = (*ListSessionJobsQuery)(nil)

	_ SessionStatusReader = (*core.Service)(nil)
	_ SessionJobsReader   = (*core.Service)(nil)
)
