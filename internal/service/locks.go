package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// sessionLocks hands out one exclusive, context-aware lock per session id.
// Entries are dropped when the last holder or waiter releases.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the session lock is held or ctx is done.
func (l *sessionLocks) acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[sessionID]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.drop(sessionID, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.drop(sessionID, entry)
		})
	}, nil
}

// tryAcquire takes the lock only if it is free.
func (l *sessionLocks) tryAcquire(sessionID string) (func(), bool) {
	l.mu.Lock()
	entry, ok := l.entries[sessionID]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[sessionID] = entry
	}
	if !entry.sem.TryAcquire(1) {
		if !ok {
			delete(l.entries, sessionID)
		}
		l.mu.Unlock()
		return nil, false
	}
	entry.refs++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.drop(sessionID, entry)
		})
	}, true
}

func (l *sessionLocks) drop(sessionID string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, sessionID)
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
