package requester

import (
	"time"
)

type Config struct {
	MaxAttempts   uint64        // attempts per missing blocks request before it is dropped
	RetryInitial  time.Duration // delay before the first retry, doubled on every further retry
	RetryMaximum  time.Duration // upper bound of the retry delay
	Workers       uint          // number of concurrent fetches
	EventCapacity int           // buffered request events

	BreakerFailures uint32        // consecutive failed requests before a peer is skipped
	BreakerTimeout  time.Duration // how long a failing peer is skipped
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		RetryInitial:  500 * time.Millisecond,
		RetryMaximum:  5 * time.Second,
		Workers:       4,
		EventCapacity: 128,

		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

type OptionFunc func(*Config)

// WithMaxAttempts sets the number of attempts per missing blocks request.
func WithMaxAttempts(attempts uint64) OptionFunc {
	return func(cfg *Config) {
		if attempts > 0 {
			cfg.MaxAttempts = attempts
		}
	}
}

// WithRetryInitial sets the delay before the first retry.
func WithRetryInitial(interval time.Duration) OptionFunc {
	return func(cfg *Config) {
		cfg.RetryInitial = interval
	}
}

// WithWorkers sets the number of concurrent fetches.
func WithWorkers(workers uint) OptionFunc {
	return func(cfg *Config) {
		if workers > 0 {
			cfg.Workers = workers
		}
	}
}

// WithBreaker sets after how many consecutive failures a peer is skipped for
// targeted requests, and for how long.
func WithBreaker(failures uint32, timeout time.Duration) OptionFunc {
	return func(cfg *Config) {
		if failures > 0 {
			cfg.BreakerFailures = failures
		}
		cfg.BreakerTimeout = timeout
	}
}
