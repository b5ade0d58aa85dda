package ledger

import (
	"time"

	"github.com/google/uuid"

	"gofinances/internal/cache"
	"gofinances/internal/core"
)

const (
	DefaultParallelism = 4
	DefaultFlushSize   = 100
)

type options struct {
	newID       func() string
	now         func() time.Time
	parallelism int
	flushSize   int
	cache       cache.Cache[core.Category]
}

// Option configures the ledger components. Options that do not apply to a
// component are ignored by it.
type Option func(*options)

func defaultOptions() options {
	return options{
		newID:       uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
		parallelism: DefaultParallelism,
		flushSize:   DefaultFlushSize,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithIDGenerator replaces the UUID generator used for new records.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithClock replaces the time source for CreatedAt/UpdatedAt.
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithParallelism bounds concurrent category creations.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithFlushSize sets how many admitted rows are buffered before a bulk write.
func WithFlushSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.flushSize = n
		}
	}
}

// WithCategoryCache memoises resolved categories. Categories are never
// updated, so entries only leave the cache by eviction.
func WithCategoryCache(c cache.Cache[core.Category]) Option {
	return func(o *options) {
		o.cache = c
	}
}
