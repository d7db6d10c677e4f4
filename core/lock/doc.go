// Package lock provides keyed exclusive locks.
//
// Two implementations share the Locker interface:
//   - Local: an in-process semaphore per key. The memory ledger store uses it to
//     serialize transactions touching the same receipt.
//   - Redis: a distributed lock built on redislock. When configured, the reconcile
//     engine takes it per receipt so that several service instances writing the same
//     database queue up in redis instead of inside the database.
//
// Both respect a wait budget: when the lock cannot be obtained in time Obtain returns
// ErrNotObtained, which callers translate into a retryable conflict.
//
// # Usage
//
//	l := lock.NewLocal(2 * time.Second)
//	held, err := l.Obtain(ctx, "receipt:REC001", 30*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer held.Release(ctx)
package lock
