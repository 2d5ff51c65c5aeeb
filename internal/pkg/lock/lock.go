// Package lock provides per-key locking, used to serialise one user's
// market commands so sessions are never replaced mid-operation.
package lock

import (
	"context"
	"errors"
	"sync"
)

// entry is a one-slot semaphore shared by everyone waiting on a key.
type entry struct {
	sem  chan struct{}
	refs int
}

// KeyedLock holds an independent mutex per key. Idle keys are released.
type KeyedLock[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// New creates an empty KeyedLock.
func New[K comparable]() *KeyedLock[K] {
	return &KeyedLock[K]{entries: make(map[K]*entry)}
}

func (l *KeyedLock[K]) acquire(key K) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyedLock[K]) release(key K, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the key is held.
func (l *KeyedLock[K]) Lock(key K) {
	e := l.acquire(key)
	e.sem <- struct{}{}
}

// LockContext waits for the key until ctx is done.
func (l *KeyedLock[K]) LockContext(ctx context.Context, key K) error {
	e := l.acquire(key)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, e)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// TryLock takes the key only if it is free.
func (l *KeyedLock[K]) TryLock(key K) bool {
	e := l.acquire(key)
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		l.release(key, e)
		return false
	}
}

// Unlock releases a key held by Lock, LockContext or a successful TryLock.
func (l *KeyedLock[K]) Unlock(key K) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked key")
	}

	<-e.sem
	l.release(key, e)
}

// WithLock runs fn while holding key.
func (l *KeyedLock[K]) WithLock(key K, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// WithLockContext runs fn while holding key, giving up if ctx ends first.
func (l *KeyedLock[K]) WithLockContext(ctx context.Context, key K, fn func() error) error {
	if err := l.LockContext(ctx, key); err != nil {
		return err
	}
	defer l.Unlock(key)
	return fn()
}

// IsLocked reports whether key is currently held. Point-in-time only.
func (l *KeyedLock[K]) IsLocked(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return ok && len(e.sem) == 1
}

// Len returns the number of keys currently held or waited on.
func (l *KeyedLock[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
