package xsort

import (
	"go.uber.org/zap"

	"github.com/davidvella/xsort/merge"
	"github.com/davidvella/xsort/metrics"
	"github.com/davidvella/xsort/run"
)

// DefaultChunkSize is the number of records sorted in memory per run.
const DefaultChunkSize = 100_000

// options defines all configuration options for the sorter.
type options struct {
	chunkSize int
	store     run.Store
	storeSet  bool
	frontier  merge.FrontierKind
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option is a function that configures the sorter options.
type Option func(*options)

// WithChunkSize sets the maximum number of records sorted in memory at once.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithStore sets where runs are spilled. The default is a directory under
// the OS temp dir.
func WithStore(s run.Store) Option {
	return func(o *options) {
		o.store = s
		o.storeSet = true
	}
}

// WithFrontier selects the merge frontier implementation.
func WithFrontier(k merge.FrontierKind) Option {
	return func(o *options) {
		o.frontier = k
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics to report to. The default is an unregistered
// set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		chunkSize: DefaultChunkSize,
		frontier:  merge.FrontierHeap,
	}
}
