// Package lock provides per-document mutual exclusion for pipeline runs.
//
// The status tracker's compare-and-set already makes runs single-flight
// against one store. A Locker adds a guard in front of it so that several
// processes sharing a store contend on a cheap lock rather than on the store.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked indicates the key is held by another owner.
var ErrLocked = errors.New("lock is held")

// Release gives up a held lock. Releasing twice is a no-op.
type Release func(ctx context.Context) error

// Locker acquires exclusive, non-blocking locks by key.
type Locker interface {
	// TryAcquire takes the lock for key or returns ErrLocked immediately.
	TryAcquire(ctx context.Context, key string) (Release, error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*Local)(nil)

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for key.
func (l *Local) TryAcquire(ctx context.Context, key string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
