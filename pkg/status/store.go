// Package status provides a keyed status store whose readers can block
// until a status appears, with an explicit deadline.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds waits that do not specify a timeout.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when a wait reaches its deadline.
var ErrTimeout = errors.New("status: wait timed out")

// Store maps handle keys to statuses. The zero value is not usable; call
// NewStore.
type Store[K comparable, V any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items map[K]V
}

// NewStore creates an empty store.
func NewStore[K comparable, V any]() *Store[K, V] {
	s := &Store[K, V]{items: make(map[K]V)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Set stores a status and wakes every waiter.
func (s *Store[K, V]) Set(key K, v V) {
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Get returns the current status of key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// Delete removes the status of key.
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Clear removes every status.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	clear(s.items)
	s.mu.Unlock()
}

// Wait blocks until key has a status, the timeout elapses or ctx is
// done. A timeout <= 0 uses DefaultTimeout.
func (s *Store[K, V]) Wait(ctx context.Context, key K, timeout time.Duration) (V, error) {
	return s.WaitFor(ctx, key, nil, timeout)
}

// WaitFor blocks until key has a status accepted by match. A nil match
// accepts any status.
func (s *Store[K, V]) WaitFor(ctx context.Context, key K, match func(V) bool, timeout time.Duration) (V, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Wake the waiter below once the deadline passes.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if v, ok := s.items[key]; ok && (match == nil || match(v)) {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			var zero V
			if errors.Is(err, context.DeadlineExceeded) {
				return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return zero, err
		}
		s.cond.Wait()
	}
}
