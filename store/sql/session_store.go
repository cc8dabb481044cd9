package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// transitionAttempts bounds the compare-and-set loop in TransitionSession.
const transitionAttempts = 3

type SessionStore struct {
	db   *bun.DB
	repo repository.Repository[*sessionRecord]
	now  func() time.Time
}

func NewSessionStore(db *bun.DB) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sessionRecord](db, sessionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session repository wiring: %w", err)
		}
	}
	return &SessionStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *SessionStore) CreateSession(ctx context.Context, in core.CreateSessionInput) (core.Session, error) {
	if s == nil || s.db == nil {
		return core.Session{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	record := newSessionRecord(in, s.now())
	if record.ID == "" {
		return core.Session{}, fmt.Errorf("sqlstore: session id is required")
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Session{}, core.NewConflictError(
				fmt.Sprintf("sqlstore: session %q already exists", record.ID),
				map[string]any{"session_id": record.ID},
			)
		}
		return core.Session{}, err
	}
	return record.toDomain(), nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (core.Session, error) {
	if s == nil || s.repo == nil {
		return core.Session{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	id = strings.TrimSpace(id)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Session{}, err
	}
	if len(records) == 0 {
		return core.Session{}, core.NewSessionNotFoundError(id)
	}
	return records[0].toDomain(), nil
}

// TransitionSession validates against the row as stored and writes with a
// status guard, so a concurrent writer forces a re-read instead of being
// overwritten blindly.
func (s *SessionStore) TransitionSession(ctx context.Context, in core.SessionTransition) (core.Session, error) {
	if s == nil || s.db == nil {
		return core.Session{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return core.Session{}, fmt.Errorf("sqlstore: session id is required")
	}
	if in.At.IsZero() {
		in.At = s.now()
	}

	for attempt := 1; attempt <= transitionAttempts; attempt++ {
		var (
			updated core.Session
			applied bool
		)
		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			stored, err := s.lockSession(ctx, tx, in.SessionID)
			if err != nil {
				return err
			}
			next, err := core.ApplyTransition(stored.toDomain(), in)
			if err != nil {
				return err
			}
			record := *stored
			record.Status = string(next.Status)
			record.StatusUpdatedAt = next.StatusUpdatedAt
			record.StatusError = next.StatusError
			record.CallStatus = next.CallStatus
			record.TerminationReason = next.TerminationReason
			record.UpdatedAt = next.UpdatedAt

			res, err := tx.NewUpdate().
				Model(&record).
				Column("status", "status_updated_at", "status_error", "call_status", "termination_reason", "updated_at").
				WherePK().
				Where("status = ?", stored.Status).
				Exec(ctx)
			if err != nil {
				return err
			}
			if affected, _ := res.RowsAffected(); affected == 0 {
				return nil
			}
			applied = true
			updated = record.toDomain()
			return nil
		})
		if err != nil {
			return core.Session{}, err
		}
		if applied {
			return updated, nil
		}
	}
	return core.Session{}, fmt.Errorf("sqlstore: session %q changed concurrently during transition", in.SessionID)
}

// MarkResultsEmailSent flips the flag only when it is still false and
// reports whether this call did the flip.
func (s *SessionStore) MarkResultsEmailSent(ctx context.Context, in core.MarkEmailSentInput) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: session store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	at := in.At.UTC()
	if in.At.IsZero() {
		at = s.now()
	}
	res, err := s.db.NewUpdate().
		Model((*sessionRecord)(nil)).
		Set("results_email_sent = ?", true).
		Set("updated_at = ?", at).
		Where("id = ?", in.SessionID).
		Where("results_email_sent = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := s.GetSession(ctx, in.SessionID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SessionStore) AppendEmailAudit(ctx context.Context, in core.EmailAuditInput) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	at := in.At.UTC()
	if in.At.IsZero() {
		at = s.now()
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.lockSession(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		record.EmailedResultsTo = append(append([]core.EmailAuditEntry{}, record.EmailedResultsTo...), core.EmailAuditEntry{
			Email:  strings.TrimSpace(in.Email),
			SentAt: at,
		})
		record.UpdatedAt = at
		_, err = tx.NewUpdate().
			Model(record).
			Column("emailed_results_to", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
}

// lockSession reads the session row inside tx, taking a row lock where the
// dialect supports it.
func (s *SessionStore) lockSession(ctx context.Context, tx bun.Tx, id string) (*sessionRecord, error) {
	record := &sessionRecord{}
	query := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1)
	if tx.Dialect().Name() == dialect.PG {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, core.NewSessionNotFoundError(id)
		}
		return nil, err
	}
	return record, nil
}

var _ core.SessionStore = (*SessionStore)(nil)
