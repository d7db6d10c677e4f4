package lock

import "time"

// Config holds configuration for the distributed receipt lock.
type Config struct {
	// RedisAddr is the redis host:port. Empty disables the distributed lock.
	RedisAddr string `mapstructure:"redis_addr" default:""`
	// RedisPassword is the redis password.
	RedisPassword string `mapstructure:"redis_password" default:""`
	// RedisDB is the redis database number.
	RedisDB int `mapstructure:"redis_db" default:"0"`
	// TTLSeconds bounds how long a receipt lock is held.
	TTLSeconds int `mapstructure:"ttl_seconds" default:"30"`
	// WaitMillis bounds how long Obtain waits for a held lock.
	WaitMillis int `mapstructure:"wait_ms" default:"2000"`
}

// TTL returns the lock TTL, defaulting to 30 seconds.
func (c Config) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// Wait returns the lock wait budget, defaulting to 2 seconds.
func (c Config) Wait() time.Duration {
	if c.WaitMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.WaitMillis) * time.Millisecond
}
