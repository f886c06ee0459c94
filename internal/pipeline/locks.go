package pipeline

import (
	"context"
	"sync"
)

// outputLocks serializes builds that write the same files: cargo's output for
// a crate and triple, and the staged artifact, headers and manifest in the
// cache directory. Builds of one crate that differ only in features, kind or
// header config share those paths.
type outputLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// lock blocks until key is free or ctx is done
func (l *outputLocks) lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]chan struct{})
	}

	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
