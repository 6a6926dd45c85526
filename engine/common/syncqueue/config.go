package syncqueue

import (
	"github.com/onflow/pos-sync/model/flow"
)

type Config struct {
	BufferMax     int    // maximum number of buffered blocks
	WindowMax     uint32 // blocks further than this above the head are not buffered
	RelayWorkers  uint   // concurrent relay verdict submissions
	EventCapacity int    // buffered sync queue events
}

func DefaultConfig() Config {
	return Config{
		BufferMax:     int(4 * flow.BatchLength),
		WindowMax:     2 * flow.BatchLength,
		RelayWorkers:  4,
		EventCapacity: 256,
	}
}

type OptionFunc func(*Config)

// WithBufferMax sets the maximum number of buffered blocks.
func WithBufferMax(max int) OptionFunc {
	return func(cfg *Config) {
		cfg.BufferMax = max
	}
}

// WithWindowMax sets how far above the head blocks are buffered.
func WithWindowMax(max uint32) OptionFunc {
	return func(cfg *Config) {
		cfg.WindowMax = max
	}
}
