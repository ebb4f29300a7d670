package local

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker serializes runs per document inside one process. Waiters block
// until the holder releases or their context ends.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewLocker() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

func (l *Locker) Lock(ctx context.Context, documentID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[documentID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[documentID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(documentID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(documentID, e)
		})
	}, nil
}

func (l *Locker) release(documentID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, documentID)
	}
}

func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
