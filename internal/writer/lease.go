package writer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"raillake/internal/domain"
)

var _ domain.TableLease = (*TableLock)(nil)

// TableLock serializes commits per table inside one process: at most one
// holder per table name at a time. Cross-process races are caught by the
// metastore's version uniqueness instead.
type TableLock struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewTableLock creates an empty TableLock.
func NewTableLock() *TableLock {
	return &TableLock{sems: make(map[string]*semaphore.Weighted)}
}

// Acquire blocks until the table's lease is free or ctx is done. The
// returned release is safe to call more than once; only the first call
// releases.
func (l *TableLock) Acquire(ctx context.Context, table string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[table]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[table] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}
