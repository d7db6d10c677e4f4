package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotObtained is returned when a lock could not be obtained within the wait budget.
var ErrNotObtained = errors.New("lock not obtained")

// Lock is a held lock.
type Lock interface {
	// Release gives the lock back. Releasing twice is a no-op.
	Release(ctx context.Context) error
}

// Locker hands out exclusive locks by key.
type Locker interface {
	// Obtain blocks until the lock for key is held, the wait budget is spent
	// (ErrNotObtained) or ctx is done. ttl bounds how long a lock may be held
	// when the implementation supports expiry.
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
