package sqlstore

import "github.com/goliatone/go-interview-scoring/core"

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
