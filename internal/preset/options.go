package preset

import (
	"log/slog"
	"time"

	"github.com/roach88/blendkit/internal/retry"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	ids    IDGenerator
	clock  Clock
	logger *slog.Logger
	write  retry.Policy
}

func defaultOptions() options {
	return options{
		ids:    UUIDv7Generator{},
		clock:  systemClock{},
		logger: slog.Default(),
		write:  retry.PersistentWrite(time.Second, 8*time.Second),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.write.Logger == nil {
		o.write.Logger = o.logger
	}
	return o
}

// WithIDGenerator sets the generator for new item IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the source of creation timestamps.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWritePolicy replaces the retry policy applied to writes. The default
// retries forever with waits of 1s, 2s, 4s then 8s.
func WithWritePolicy(p retry.Policy) Option {
	return func(o *options) { o.write = p }
}
