package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLock hands out one weight-1 semaphore per key. Waiters are served in
// FIFO order and give up when their context is done.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*semaphore.Weighted)}
}

func (k *keyedLock) get(key string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()

	sem, ok := k.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		k.locks[key] = sem
	}
	return sem
}

// acquire blocks until key is free and returns an idempotent release func.
func (k *keyedLock) acquire(ctx context.Context, key string) (func(), error) {
	sem := k.get(key)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}
