// Package lock serializes saves of the same profile.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
)

// KeyedMutex is a process-local Locker. Each key owns a one-slot channel
// so waiters can give up when their context ends.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns a Locker that waits at most wait for a busy key.
// A zero wait means wait until the context ends.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot), wait: wait}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	if m.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, s)
		return nil, domain.ErrProfileBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(key, s)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, s *slot) {
	m.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
	m.mu.Unlock()
}
