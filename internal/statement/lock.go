package statement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrStatementBusy is returned by TryLock when another run holds the key.
var ErrStatementBusy = errors.New("statement is already being processed")

// KeyedLocker is an advisory mutex per statement id. Entries are dropped
// once nobody holds or waits for them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock)}
}

func (l *KeyedLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyedLocker) releaseRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock waits for key. The returned func releases it and is safe to call
// more than once.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	kl := l.acquireRef(key)
	if err := kl.sem.Acquire(ctx, 1); err != nil {
		l.releaseRef(key, kl)
		return nil, fmt.Errorf("KeyedLocker.Lock %s: %w", key, err)
	}
	return l.unlocker(key, kl), nil
}

// TryLock fails with ErrStatementBusy instead of waiting.
func (l *KeyedLocker) TryLock(key string) (func(), error) {
	kl := l.acquireRef(key)
	if !kl.sem.TryAcquire(1) {
		l.releaseRef(key, kl)
		return nil, ErrStatementBusy
	}
	return l.unlocker(key, kl), nil
}

func (l *KeyedLocker) unlocker(key string, kl *keyLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			kl.sem.Release(1)
			l.releaseRef(key, kl)
		})
	}
}

// Len reports how many keys are currently tracked.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
