package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-interview-scoring/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db           *bun.DB
	sessionCache repositorycache.CacheService

	sessionStore       *SessionStore
	cachedSessionStore *CachedSessionStore
	scoringJobStore    *ScoringJobStore
	scoreStore         *ScoreStore
}

type FactoryOption func(*RepositoryFactory)

// WithSessionCache puts a read-through cache in front of session reads.
func WithSessionCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.sessionCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.sessionStore != nil && f.scoringJobStore != nil && f.scoreStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) SessionStore() core.SessionStore {
	if f == nil {
		return nil
	}
	if f.cachedSessionStore != nil {
		return f.cachedSessionStore
	}
	if f.sessionStore == nil {
		return nil
	}
	return f.sessionStore
}

func (f *RepositoryFactory) JobQueue() core.JobQueue {
	if f == nil || f.scoringJobStore == nil {
		return nil
	}
	return f.scoringJobStore
}

func (f *RepositoryFactory) ScoreStore() core.ScoreStore {
	if f == nil || f.scoreStore == nil {
		return nil
	}
	return f.scoreStore
}

func (f *RepositoryFactory) ScoringJobStore() *ScoringJobStore {
	if f == nil {
		return nil
	}
	return f.scoringJobStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	sessionStore, err := NewSessionStore(f.db)
	if err != nil {
		return err
	}
	f.sessionStore = sessionStore
	if f.sessionCache != nil {
		cached, err := NewCachedSessionStore(sessionStore, f.sessionCache)
		if err != nil {
			return err
		}
		f.cachedSessionStore = cached
	}

	scoringJobStore, err := NewScoringJobStore(f.db)
	if err != nil {
		return err
	}
	f.scoringJobStore = scoringJobStore

	scoreStore, err := NewScoreStore(f.db)
	if err != nil {
		return err
	}
	f.scoreStore = scoreStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is required")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
