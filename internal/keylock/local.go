package keylock

import (
	"context"
	"fmt"
	"sync"
)

type localEntry struct {
	slot chan struct{}
	refs int
}

// Local is an in-process Locker.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			l.release(key, entry)
		})
	}, nil
}

func (l *Local) release(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Held reports how many keys currently have holders or waiters.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close implements Locker.
func (l *Local) Close() error { return nil }
