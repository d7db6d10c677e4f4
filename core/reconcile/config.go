package reconcile

import "time"

// Config holds configuration for the reconciliation engine.
type Config struct {
	// MaxRetries bounds how often a conflicting record is retried before it is failed.
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// Workers is the number of goroutines normalizing rows.
	Workers int `mapstructure:"workers" default:"4"`
	// LockWaitMillis bounds how long the in-memory store waits for a receipt lock.
	LockWaitMillis int `mapstructure:"lock_wait_ms" default:"2000"`
}

// LockWait returns the lock wait budget, defaulting to 2 seconds.
func (c Config) LockWait() time.Duration {
	if c.LockWaitMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.LockWaitMillis) * time.Millisecond
}

func (c Config) retries() int {
	if c.MaxRetries < 0 {
		return 0
	}
	return c.MaxRetries
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}
