package registry

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/featurekit/errors"
)

// BuildFunc constructs the value for key after a cache miss.
type BuildFunc[T any] func(ctx context.Context, key string) (*T, error)

// Stats is a snapshot of registry counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Builds   uint64
	Failures uint64
	Reclaims uint64
}

type counters struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	builds   atomic.Uint64
	failures atomic.Uint64
	reclaims atomic.Uint64
}

// Registry maps keys to weakly held values.
// It is safe for concurrent use.
type Registry[T any] struct {
	build     BuildFunc[T]
	entries   map[string]weak.Pointer[T]
	pinned    map[string]*T
	metrics   *Metrics
	logger    *zap.Logger
	onReclaim func(key string)
	group     singleflight.Group
	stats     counters
	mu        sync.Mutex
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	metrics   *Metrics
	logger    *zap.Logger
	onReclaim func(key string)
}

// WithMetrics reports lookups, builds and reclaims to m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger overrides the package logger for this registry.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReclaimHook is called with the key after a collected entry is
// dropped. It runs on the runtime's cleanup goroutine and must not block.
func WithReclaimHook(fn func(key string)) Option {
	return func(o *options) { o.onReclaim = fn }
}

// New creates a registry that builds missing values with build.
func New[T any](build BuildFunc[T], opts ...Option) *Registry[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	return &Registry[T]{
		build:     build,
		entries:   make(map[string]weak.Pointer[T]),
		pinned:    make(map[string]*T),
		metrics:   o.metrics,
		logger:    o.logger,
		onReclaim: o.onReclaim,
	}
}

// Resolve returns the live value for key, building it on a miss.
// Concurrent misses for the same key share a single build.
func (r *Registry[T]) Resolve(ctx context.Context, key string) (*T, error) {
	if key == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "registry key cannot be empty")
	}

	if v := r.peek(key); v != nil {
		r.stats.hits.Add(1)
		r.observeLookup("hit")
		return v, nil
	}
	r.stats.misses.Add(1)
	r.observeLookup("miss")

	// The build runs detached from any one caller: a caller whose ctx ends
	// stops waiting, but the shared build finishes for the others.
	bctx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		// A flight that finished between our peek and Do has already
		// published a value.
		if v := r.peek(key); v != nil {
			return v, nil
		}

		v, err := r.build(bctx, key)
		if err != nil {
			r.stats.failures.Add(1)
			if r.metrics != nil {
				r.metrics.BuildErrors.Inc()
			}
			return nil, err
		}
		if v == nil {
			return nil, errors.InvalidInput(errors.PhaseLoad, "build returned nil for "+key)
		}

		r.publish(key, v)
		r.stats.builds.Add(1)
		if r.metrics != nil {
			r.metrics.Builds.Inc()
		}
		r.logger.Debug("registry entry built", zap.String("key", key))
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns the live value for key without building one.
func (r *Registry[T]) Peek(key string) (*T, bool) {
	v := r.peek(key)
	return v, v != nil
}

// Retain resolves key and pins the value so it is not reclaimed until
// Release is called.
func (r *Registry[T]) Retain(ctx context.Context, key string) (*T, error) {
	v, err := r.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.pinned[key]; !ok && r.metrics != nil {
		r.metrics.Retained.Inc()
	}
	r.pinned[key] = v
	r.mu.Unlock()
	return v, nil
}

// Release drops the pin taken by Retain. The value stays cached while other
// references exist.
func (r *Registry[T]) Release(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pinned[key]
	if ok {
		delete(r.pinned, key)
		if r.metrics != nil {
			r.metrics.Retained.Dec()
		}
	}
	return ok
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, wp := range r.entries {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

// Prune removes entries whose values have been collected and returns how
// many were removed. Collected entries are also removed asynchronously by
// runtime cleanups; Prune makes that deterministic.
func (r *Registry[T]) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, wp := range r.entries {
		if wp.Value() == nil {
			delete(r.entries, key)
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the registry counters.
func (r *Registry[T]) Stats() Stats {
	return Stats{
		Hits:     r.stats.hits.Load(),
		Misses:   r.stats.misses.Load(),
		Builds:   r.stats.builds.Load(),
		Failures: r.stats.failures.Load(),
		Reclaims: r.stats.reclaims.Load(),
	}
}

func (r *Registry[T]) peek(key string) *T {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.entries[key]
	if !ok {
		return nil
	}
	return wp.Value()
}

type reclaimArg[T any] struct {
	wp  weak.Pointer[T]
	key string
}

func (r *Registry[T]) publish(key string, v *T) {
	wp := weak.Make(v)

	r.mu.Lock()
	r.entries[key] = wp
	r.mu.Unlock()

	runtime.AddCleanup(v, r.reclaim, reclaimArg[T]{wp: wp, key: key})
}

func (r *Registry[T]) reclaim(arg reclaimArg[T]) {
	r.mu.Lock()
	current, ok := r.entries[arg.key]
	if ok && current == arg.wp {
		delete(r.entries, arg.key)
	}
	r.mu.Unlock()

	r.stats.reclaims.Add(1)
	if r.metrics != nil {
		r.metrics.Reclaims.Inc()
	}
	r.logger.Debug("registry entry reclaimed", zap.String("key", arg.key))
	if r.onReclaim != nil {
		r.onReclaim(arg.key)
	}
}

func (r *Registry[T]) observeLookup(result string) {
	if r.metrics != nil {
		r.metrics.Lookups.WithLabelValues(result).Inc()
	}
}
