package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process keyed lock. Each key is a one-slot semaphore that is
// dropped from the table once nobody holds or waits for it.
type Local struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates a local locker. wait bounds how long Obtain blocks; zero waits
// until the context is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{
		wait:  wait,
		slots: make(map[string]*slot),
	}
}

// Obtain implements Locker. ttl is ignored: local locks live until released.
func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (Lock, error) {
	s := l.acquireSlot(key)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
		return &localLock{owner: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.releaseSlot(key, s)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrNotObtained
		}
		return nil, ctx.Err()
	}
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localLock struct {
	owner *Local
	key   string
	slot  *slot
	once  sync.Once
}

func (l *localLock) Release(_ context.Context) error {
	l.once.Do(func() {
		<-l.slot.ch
		l.owner.releaseSlot(l.key, l.slot)
	})
	return nil
}
