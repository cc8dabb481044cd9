package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-interview-scoring/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const sessionCacheKeyPrefix = "go-interview-scoring::session::v1"

// CachedSessionStore serves GetSession through a read-through cache. Every
// write goes to the base store first and then evicts the session key, so a
// failed write never leaves a stale entry behind a successful one.
type CachedSessionStore struct {
	base  core.SessionStore
	cache repositorycache.CacheService
}

func NewCachedSessionStore(base core.SessionStore, cacheService repositorycache.CacheService) (*CachedSessionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base session store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: session cache service is required")
	}
	return &CachedSessionStore{base: base, cache: cacheService}, nil
}

// SessionCacheKey returns go-interview-scoring::session::v1::<session_id>
// with the id URL-path escaped.
func SessionCacheKey(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("sqlstore: session id is required")
	}
	return sessionCacheKeyPrefix + "::" + url.PathEscape(sessionID), nil
}

func (s *CachedSessionStore) CreateSession(ctx context.Context, in core.CreateSessionInput) (core.Session, error) {
	if err := s.ready(); err != nil {
		return core.Session{}, err
	}
	session, err := s.base.CreateSession(ctx, in)
	if err != nil {
		return core.Session{}, err
	}
	return session, s.evict(ctx, session.ID)
}

func (s *CachedSessionStore) GetSession(ctx context.Context, id string) (core.Session, error) {
	if err := s.ready(); err != nil {
		return core.Session{}, err
	}
	cacheKey, err := SessionCacheKey(id)
	if err != nil {
		return core.Session{}, err
	}
	session, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Session, error) {
		return s.base.GetSession(ctx, strings.TrimSpace(id))
	})
	if err != nil {
		return core.Session{}, err
	}
	return cloneSession(session), nil
}

func (s *CachedSessionStore) TransitionSession(ctx context.Context, in core.SessionTransition) (core.Session, error) {
	if err := s.ready(); err != nil {
		return core.Session{}, err
	}
	session, err := s.base.TransitionSession(ctx, in)
	if evictErr := s.evict(ctx, in.SessionID); err == nil && evictErr != nil {
		return session, evictErr
	}
	return session, err
}

func (s *CachedSessionStore) MarkResultsEmailSent(ctx context.Context, in core.MarkEmailSentInput) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	flipped, err := s.base.MarkResultsEmailSent(ctx, in)
	if evictErr := s.evict(ctx, in.SessionID); err == nil && evictErr != nil {
		return flipped, evictErr
	}
	return flipped, err
}

func (s *CachedSessionStore) AppendEmailAudit(ctx context.Context, in core.EmailAuditInput) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.base.AppendEmailAudit(ctx, in)
	if evictErr := s.evict(ctx, in.SessionID); err == nil && evictErr != nil {
		return evictErr
	}
	return err
}

func (s *CachedSessionStore) ready() error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached session store is not configured")
	}
	return nil
}

func (s *CachedSessionStore) evict(ctx context.Context, sessionID string) error {
	cacheKey, err := SessionCacheKey(sessionID)
	if err != nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneSession(session core.Session) core.Session {
	cloned := session
	cloned.EmailedResultsTo = append([]core.EmailAuditEntry{}, session.EmailedResultsTo...)
	cloned.Metadata = copyAnyMap(session.Metadata)
	return cloned
}

var _ core.SessionStore = (*CachedSessionStore)(nil)
