package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-interview-scoring/core"
)

var (
	_ gocmd.Commander[CreateSessionMessage]     = (*CreateSessionCommand)(nil)
	_ gocmd.Commander[TransitionSessionMessage] = (*TransitionSessionCommand)(nil)
	_ gocmd.Commander[IngestWebhookMessage]     = (*IngestWebhookCommand)(nil)
	_ gocmd.Commander[RunScoringCycleMessage]   = (*RunScoringCycleCommand)(nil)

	_ SessionService = (*core.Service)(nil)
	_ CycleRunner    = (*core.Service)(nil)
)
