package repository

import (
	"context"
	"sync"
	"time"

	"github.com/soochol/chatflow/internal/chatflow/ports"
)

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker serialises work per key within one process. Entries are
// reference counted and dropped once no goroutine holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*lockEntry)}
}

func (l *LocalLocker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.locks[key]; ok {
		e.refs--
		if e.refs <= 0 {
			delete(l.locks, key)
		}
	}
}

// Lock blocks until key is free or ctx is done. The ttl is ignored; a
// local lock lives until unlocked.
func (l *LocalLocker) Lock(ctx context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	e := l.acquire(key)
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-e.sem
			l.release(key)
		})
		return nil
	}, nil
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
