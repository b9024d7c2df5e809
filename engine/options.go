package engine

import (
	"time"

	"github.com/dshills/flowrun/bus"
)

// Option configures an Engine, following the teacher's functional
// options pattern (graph.Option) for the same reasons: chainable,
// self-documenting, and additive without breaking existing callers.
type Option func(*Options) error

// Options holds an Engine's tunables. RetryAttempts/RetryBaseDelay are
// accepted and stored here but never read by the walk (spec.md §1
// Non-goals, §9 "retryConfig is declared and plumbed but never
// actuated").
type Options struct {
	// MaxSteps bounds the number of entry evaluations within a single
	// walk, and the number of iterations of each loop entry, guarding
	// against unbounded do-while/do-until loops (spec.md
	// §4.5 "Infinite loops are the caller's responsibility" — this is
	// an opt-in backstop, not a default limit).
	MaxSteps int

	// QueueDepth sizes the primary frontier's buffered channel (spec.md
	// §4.5 "Scheduling primitive").
	QueueDepth int

	// ParallelQueueDepth is stored but not read by the walk: foreach
	// always uses its own opts.Concurrency and parallel always uses
	// len(children) as its errgroup limit.
	ParallelQueueDepth int

	// BackpressureTimeout is stored but not read by the walk; Enqueue on
	// the primary frontier does not time out.
	BackpressureTimeout time.Duration

	// RetryAttempts / RetryBaseDelay mirror flow.RetryConfig; reserved,
	// never actuated.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	Emitter bus.Emitter
	Metrics *bus.PrometheusMetrics
}

// defaultOptions mirrors the teacher's conservative engine defaults.
func defaultOptions() Options {
	return Options{
		MaxSteps:            0,
		QueueDepth:          1024,
		ParallelQueueDepth:  64,
		BackpressureTimeout: 30 * time.Second,
		Emitter:             bus.NewNullEmitter(),
	}
}

// WithMaxSteps bounds the number of entry evaluations in one walk, and
// the iterations of each loop entry; 0 (the default) means unbounded.
func WithMaxSteps(n int) Option {
	return func(o *Options) error { o.MaxSteps = n; return nil }
}

// WithQueueDepth sets the primary frontier's buffered capacity.
func WithQueueDepth(n int) Option {
	return func(o *Options) error { o.QueueDepth = n; return nil }
}

// WithParallelQueueDepth sets Options.ParallelQueueDepth, which the walk
// does not read.
func WithParallelQueueDepth(n int) Option {
	return func(o *Options) error { o.ParallelQueueDepth = n; return nil }
}

// WithBackpressureTimeout sets Options.BackpressureTimeout, which the
// walk does not read.
func WithBackpressureTimeout(d time.Duration) Option {
	return func(o *Options) error { o.BackpressureTimeout = d; return nil }
}

// WithRetryConfig carries reserved retry knobs through to the engine
// without actuating them (spec.md §9 Open Questions).
func WithRetryConfig(attempts int, baseDelay time.Duration) Option {
	return func(o *Options) error { o.RetryAttempts, o.RetryBaseDelay = attempts, baseDelay; return nil }
}

// WithEmitter sets the bus.Emitter every step/run transition is reported
// through (spec.md's logging layer; see SPEC_FULL.md §1.1).
func WithEmitter(e bus.Emitter) Option {
	return func(o *Options) error { o.Emitter = e; return nil }
}

// WithMetrics attaches a Prometheus metrics collector.
func WithMetrics(m *bus.PrometheusMetrics) Option {
	return func(o *Options) error { o.Metrics = m; return nil }
}
