package vidmem

import (
	"github.com/perbu/vidmem/pkg/chunker"
	"github.com/perbu/vidmem/pkg/frame"
)

// Default pipeline settings.
const (
	DefaultBatchSize    = 32
	DefaultFrameWorkers = 8
)

type options struct {
	chunkSize    int
	batchSize    int
	concurrency  int
	frameWorkers int
	payload      frame.EncodeOptions
	logger       *Logger
}

func defaultOptions() options {
	return options{
		chunkSize:    chunker.DefaultMaxSize,
		batchSize:    DefaultBatchSize,
		concurrency:  1,
		frameWorkers: DefaultFrameWorkers,
		payload:      frame.DefaultEncodeOptions(),
		logger:       NoopLogger(),
	}
}

// Option configures a Memory.
type Option func(*options)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithBatchSize sets how many chunks are embedded before they are committed.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithEmbedConcurrency allows up to n embedding calls of one batch to run at
// once. The default of 1 embeds sequentially, which is safe for providers
// with unknown concurrency limits.
func WithEmbedConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithFrameWorkers sets the number of frames rendered or read in parallel.
func WithFrameWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.frameWorkers = n
		}
	}
}

// WithPayloadEncoding sets the frame payload compression.
func WithPayloadEncoding(opts frame.EncodeOptions) Option {
	return func(o *options) {
		o.payload = opts
	}
}

// WithLogger sets the logger. A nil logger keeps the default no-op logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
