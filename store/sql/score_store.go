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
)

// ScoreStore keeps the latest score per session; a rescore replaces it.
type ScoreStore struct {
	db   *bun.DB
	repo repository.Repository[*scoreRecord]
}

func NewScoreStore(db *bun.DB) (*ScoreStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*scoreRecord](db, scoreHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid score repository wiring: %w", err)
		}
	}
	return &ScoreStore{db: db, repo: repo}, nil
}

func (s *ScoreStore) SaveScore(ctx context.Context, score core.Score) (core.Score, error) {
	if s == nil || s.db == nil {
		return core.Score{}, fmt.Errorf("sqlstore: score store is not configured")
	}
	score.SessionID = strings.TrimSpace(score.SessionID)
	if score.SessionID == "" {
		return core.Score{}, fmt.Errorf("sqlstore: score session id is required")
	}
	if strings.TrimSpace(score.ID) == "" {
		score.ID = uuid.NewString()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now().UTC()
	}
	record := newScoreRecord(score)
	if _, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (session_id) DO UPDATE").
		Set("rubric_id = EXCLUDED.rubric_id").
		Set("summary = EXCLUDED.summary").
		Set("payload = EXCLUDED.payload").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx); err != nil {
		return core.Score{}, err
	}
	return s.GetScore(ctx, score.SessionID)
}

func (s *ScoreStore) GetScore(ctx context.Context, sessionID string) (core.Score, error) {
	if s == nil || s.repo == nil {
		return core.Score{}, fmt.Errorf("sqlstore: score store is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("session_id", "=", sessionID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Score{}, err
	}
	if len(records) == 0 {
		return core.Score{}, fmt.Errorf("%w: session %q", core.ErrScoreNotFound, sessionID)
	}
	return records[0].toDomain(), nil
}

var _ core.ScoreStore = (*ScoreStore)(nil)
