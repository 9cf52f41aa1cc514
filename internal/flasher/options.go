package flasher

import (
	"time"

	"github.com/bigbag/gdflash/internal/protocol"
)

// ProgressCallback is called to report write progress in bytes.
type ProgressCallback func(current, total int)

// config holds the driver settings.
type config struct {
	bankSize        uint32
	blockBufferSize uint32
	execTimeout     time.Duration
	progress        ProgressCallback
}

func defaultConfig() config {
	return config{
		blockBufferSize: protocol.BlockBufferSize,
		execTimeout:     protocol.AgentTimeoutMs * time.Millisecond,
	}
}

// Option configures a Flasher.
type Option func(*config)

// WithBankSize overrides the probed flash size. Zero keeps probing.
func WithBankSize(size uint32) Option {
	return func(c *config) {
		c.bankSize = size
	}
}

// WithProgressCallback sets the callback invoked after each programmed chunk.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *config) {
		c.progress = cb
	}
}

// WithBlockBufferSize sets the preferred size of the write agent buffer.
func WithBlockBufferSize(size uint32) Option {
	return func(c *config) {
		c.blockBufferSize = size &^ 3
	}
}

// WithExecTimeout bounds each run of the write agent.
func WithExecTimeout(d time.Duration) Option {
	return func(c *config) {
		c.execTimeout = d
	}
}
