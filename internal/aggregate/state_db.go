package aggregate

import "context"

// ProgressStore is the subset of the Postgres store used for progress tracking.
type ProgressStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// DBStateStore stores progress in the indexer_state table.
type DBStateStore struct {
	Store ProgressStore
	Name  string
}

func (s *DBStateStore) name() string {
	if s.Name == "" {
		return defaultStateName
	}
	return s.Name
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.name())
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.name(), ts)
}
