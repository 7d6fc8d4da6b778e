package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sentinel errors returned by Acquire/AcquireNow (spec §4.1). Callers
// in this module (vfs.Filesystem) translate these into *fs.Error with
// the appropriate Kind (KindPoolShutdown, KindTimeout, KindInterrupted).
var (
	ErrShutdown = fmt.Errorf("pool: shut down")
	ErrTimeout  = fmt.Errorf("pool: acquire timed out")
)

// Config is the immutable pool configuration record of spec §3. A nil
// duration (or a negative one) means unbounded, matching spec §4.1's
// "A null timeout means wait indefinitely. ... A negative maxWaitTime
// ... also means indefinite."
type Config struct {
	MaxWaitTime *time.Duration
	MaxIdleTime *time.Duration
	InitialSize int
	MaxSize     int
}

func (c Config) waitUnbounded() bool {
	return c.MaxWaitTime == nil || *c.MaxWaitTime < 0
}

func (c Config) idleUnbounded() bool {
	return c.MaxIdleTime == nil || *c.MaxIdleTime < 0
}

// Factory creates a new pooled value. It is invoked outside the pool's
// lock (spec §4.1: "the pool reserves a slot ... before invoking the
// factory outside the lock").
type Factory[T any] func(ctx context.Context) (T, error)

var nextObjectID uint64

func allocID() uint64 {
	return atomic.AddUint64(&nextObjectID, 1)
}

// Pool is the generic, thread-safe, size-bounded object pool of spec
// §4.1 (component A). It hands out *Object[T] handles carrying their
// own reference-count machinery (see object.go) so a caller can extend
// an acquired object's lifetime with derived closeables.
type Pool[T any] struct {
	name    string
	config  Config
	factory Factory[T]

	mu     sync.Mutex
	cond   *sync.Cond
	idle   []*Object[T]
	size   int
	active bool

	metrics poolMetrics
}

// New creates a pool, pre-creating config.InitialSize idle objects. If
// pre-creation fails partway through, the objects already created are
// released and the error is returned.
func New[T any](name string, config Config, factory Factory[T]) (*Pool[T], error) {
	if config.MaxSize < 1 {
		config.MaxSize = 1
	}
	if config.InitialSize < 0 {
		config.InitialSize = 0
	}
	if config.InitialSize > config.MaxSize {
		config.InitialSize = config.MaxSize
	}

	p := &Pool[T]{
		name:    name,
		config:  config,
		factory: factory,
		active:  true,
	}
	p.cond = sync.NewCond(&p.mu)
	p.metrics = newPoolMetrics(name)
	p.metrics.maxSize.Set(float64(config.MaxSize))

	ctx := context.Background()
	for i := 0; i < config.InitialSize; i++ {
		val, err := factory(ctx)
		if err != nil {
			for _, o := range p.idle {
				releaseResourcesOf(o)
			}
			return nil, fmt.Errorf("pool %q: initial object %d/%d: %w", name, i+1, config.InitialSize, err)
		}
		obj := &Object[T]{id: allocID(), Value: val, refs: make(map[*RefToken]struct{}), pool: p, idleSince: time.Now()}
		p.idle = append(p.idle, obj)
		p.size++
	}
	p.metrics.size.Set(float64(p.size))
	p.metrics.idleGauge.Set(float64(len(p.idle)))
	return p, nil
}

// IsActive reports whether the pool still accepts acquisitions.
func (p *Pool[T]) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Size returns the current count of objects owned by the pool
// (idle + in-use).
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Idle returns the current count of idle objects.
func (p *Pool[T]) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// effectiveWait resolves the per-call timeout override (nil = use the
// pool's configured maxWaitTime) into (deadline, hasDeadline).
func (p *Pool[T]) effectiveWait(override *time.Duration) (time.Time, bool) {
	d := p.config.MaxWaitTime
	unbounded := p.config.waitUnbounded()
	if override != nil {
		d = override
		unbounded = *override < 0
	}
	if unbounded {
		return time.Time{}, false
	}
	return time.Now().Add(*d), true
}

// Acquire blocks until an object is available, the timeout override (or
// the pool's configured maxWaitTime) elapses, the pool is shut down, or
// ctx is cancelled. A nil override with an unbounded pool configuration
// waits indefinitely.
func (p *Pool[T]) Acquire(ctx context.Context, override *time.Duration) (*Object[T], *RefToken, error) {
	deadline, hasDeadline := p.effectiveWait(override)

	// Wake the wait below when ctx is cancelled, so the loop observes
	// ctx.Err() instead of sleeping on until the next release.
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if !p.active {
			return nil, nil, ErrShutdown
		}
		if obj, ok := p.takeValidIdleLocked(); ok {
			tok := NewRefToken()
			obj.AddReference(tok)
			p.metrics.acquireTotal.Inc()
			p.metrics.idleGauge.Set(float64(len(p.idle)))
			return obj, tok, nil
		}
		if p.size < p.config.MaxSize {
			p.size++ // reserve the slot before releasing the lock
			p.metrics.size.Set(float64(p.size))
			p.mu.Unlock()
			val, err := p.factory(ctx)
			p.mu.Lock()
			if err != nil {
				p.size--
				p.metrics.size.Set(float64(p.size))
				p.cond.Broadcast()
				return nil, nil, err
			}
			obj := &Object[T]{id: allocID(), Value: val, refs: make(map[*RefToken]struct{}), pool: p, idleSince: time.Now()}
			tok := NewRefToken()
			obj.AddReference(tok)
			p.metrics.acquireTotal.Inc()
			return obj, tok, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		if !p.waitLocked(deadline, hasDeadline) {
			p.metrics.timeoutTotal.Inc()
			return nil, nil, ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
}

// AcquireNow never waits: it returns a valid idle object, or a newly
// created one when the pool is below MaxSize, or (nil, nil, nil) when
// the pool is saturated.
func (p *Pool[T]) AcquireNow(ctx context.Context) (*Object[T], *RefToken, error) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil, nil, ErrShutdown
	}
	if obj, ok := p.takeValidIdleLocked(); ok {
		p.mu.Unlock()
		tok := NewRefToken()
		obj.AddReference(tok)
		p.metrics.acquireTotal.Inc()
		return obj, tok, nil
	}
	if p.size < p.config.MaxSize {
		p.size++
		p.mu.Unlock()
		val, err := p.factory(ctx)
		p.mu.Lock()
		if err != nil {
			p.size--
			p.cond.Broadcast()
			p.mu.Unlock()
			return nil, nil, err
		}
		obj := &Object[T]{id: allocID(), Value: val, refs: make(map[*RefToken]struct{}), pool: p, idleSince: time.Now()}
		tok := NewRefToken()
		obj.AddReference(tok)
		p.mu.Unlock()
		p.metrics.acquireTotal.Inc()
		return obj, tok, nil
	}
	p.mu.Unlock()
	return nil, nil, nil
}

// AcquireOrCreate returns an idle or newly created pooled object when
// capacity allows, or an unpooled object when the pool is saturated.
// An unpooled object releases its own resources on its final reference
// removal instead of returning to the idle queue (spec §4.1).
func (p *Pool[T]) AcquireOrCreate(ctx context.Context) (*Object[T], *RefToken, error) {
	obj, tok, err := p.AcquireNow(ctx)
	if err != nil {
		return nil, nil, err
	}
	if obj != nil {
		return obj, tok, nil
	}
	val, err := p.factory(ctx)
	if err != nil {
		return nil, nil, err
	}
	unpooled := &Object[T]{id: allocID(), Value: val, refs: make(map[*RefToken]struct{}), pool: nil, idleSince: time.Now()}
	tok = NewRefToken()
	unpooled.AddReference(tok)
	return unpooled, tok, nil
}

// takeValidIdleLocked pops idle objects until it finds one that passes
// validation and is within maxIdleTime, discarding invalid/expired ones
// along the way (spec §4.1). Must be called with p.mu held.
func (p *Pool[T]) takeValidIdleLocked() (*Object[T], bool) {
	now := time.Now()
	for len(p.idle) > 0 {
		obj := p.idle[0]
		p.idle = p.idle[1:]

		valid := true
		if v, ok := any(obj.Value).(Validatable); ok {
			valid = v.Validate()
		}
		if valid && !p.config.idleUnbounded() {
			if obj.idleFor(now) > *p.config.MaxIdleTime {
				valid = false
			}
		}
		if valid {
			return obj, true
		}

		p.size--
		p.metrics.size.Set(float64(p.size))
		p.mu.Unlock()
		releaseResourcesOf(obj)
		p.mu.Lock()
		p.cond.Broadcast()
	}
	return nil, false
}

// waitLocked blocks on the pool's condition variable until woken, the
// deadline elapses, or (if hasDeadline is false) forever. Must be
// called with p.mu held; returns with p.mu held. Returns false if the
// deadline was reached without a wake-up.
func (p *Pool[T]) waitLocked(deadline time.Time, hasDeadline bool) bool {
	if !hasDeadline {
		p.cond.Wait()
		return true
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	timer := time.AfterFunc(remaining, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()
	p.cond.Wait()
	return time.Now().Before(deadline)
}

// release is invoked by Object.RemoveReference when an object's last
// reference drops. It either re-queues the object as idle and signals
// waiters, or (if the pool has been shut down) releases its resources
// and propagates any error to the releaser, per spec §4.1.
func (p *Pool[T]) release(o *Object[T]) error {
	o.touchIdle(time.Now())

	p.mu.Lock()
	if !p.active {
		p.size--
		p.metrics.size.Set(float64(p.size))
		p.cond.Broadcast()
		p.mu.Unlock()
		return releaseResourcesOf(o)
	}
	p.idle = append(p.idle, o)
	p.metrics.idleGauge.Set(float64(len(p.idle)))
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// MultiError collects the first error from a batch operation
// (ForAllIdleObjects, Shutdown) plus the remaining errors as suppressed
// causes, per spec §7's "collect per-object errors, surface the first,
// attach the remainder as suppressed".
type MultiError struct {
	First      error
	Suppressed []error
}

func (m *MultiError) Error() string {
	return m.First.Error()
}

func (m *MultiError) Unwrap() error { return m.First }

// ForAllIdleObjects atomically drains every currently-valid idle
// object, runs fn on each sequentially outside the pool's lock, and
// returns every one of them to the pool whether fn succeeded or not.
func (p *Pool[T]) ForAllIdleObjects(fn func(T) error) error {
	p.mu.Lock()
	var objs []*Object[T]
	for {
		obj, ok := p.takeValidIdleLocked()
		if !ok {
			break
		}
		objs = append(objs, obj)
	}
	p.mu.Unlock()

	var firstErr error
	var suppressed []error
	for _, o := range objs {
		if err := fn(o.Value); err != nil {
			if firstErr == nil {
				firstErr = err
			} else {
				suppressed = append(suppressed, err)
			}
		}
	}

	p.mu.Lock()
	p.idle = append(p.idle, objs...)
	p.metrics.idleGauge.Set(float64(len(p.idle)))
	p.cond.Broadcast()
	p.mu.Unlock()

	if firstErr != nil {
		return &MultiError{First: firstErr, Suppressed: suppressed}
	}
	return nil
}

// Shutdown atomically flips the pool inactive (idempotent), releases
// every currently idle object (collecting errors), and wakes every
// waiter so blocked Acquire calls unblock with ErrShutdown. Objects
// already acquired and not yet returned remain valid; their eventual
// last-reference release is handled by release() above.
func (p *Pool[T]) Shutdown() error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil
	}
	p.active = false
	objs := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	var suppressed []error
	for _, o := range objs {
		if err := releaseResourcesOf(o); err != nil {
			if firstErr == nil {
				firstErr = err
			} else {
				suppressed = append(suppressed, err)
			}
		}
	}

	p.mu.Lock()
	p.size -= len(objs)
	p.metrics.size.Set(float64(p.size))
	p.metrics.idleGauge.Set(0)
	p.cond.Broadcast()
	p.mu.Unlock()

	if firstErr != nil {
		return &MultiError{First: firstErr, Suppressed: suppressed}
	}
	return nil
}

func releaseResourcesOf[T any](o *Object[T]) error {
	if rel, ok := any(o.Value).(Releasable); ok {
		return rel.ReleaseResources()
	}
	return nil
}

type poolMetrics struct {
	size         prometheus.Gauge
	maxSize      prometheus.Gauge
	idleGauge    prometheus.Gauge
	acquireTotal prometheus.Counter
	timeoutTotal prometheus.Counter
}

// newPoolMetrics registers a fresh set of gauges/counters for a named
// pool against the default Prometheus registry. Registration failures
// (duplicate pool name) are tolerated by falling back to unregistered,
// uncollected metrics rather than failing pool construction.
func newPoolMetrics(name string) poolMetrics {
	labels := prometheus.Labels{"pool": name}
	m := poolMetrics{
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vfscore", Subsystem: "pool", Name: "size",
			Help: "Total objects currently owned by the pool (idle + in-use).", ConstLabels: labels,
		}),
		maxSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vfscore", Subsystem: "pool", Name: "max_size",
			Help: "Configured maximum pool size.", ConstLabels: labels,
		}),
		idleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vfscore", Subsystem: "pool", Name: "idle",
			Help: "Objects currently idle in the pool.", ConstLabels: labels,
		}),
		acquireTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vfscore", Subsystem: "pool", Name: "acquire_total",
			Help: "Total successful acquisitions.", ConstLabels: labels,
		}),
		timeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vfscore", Subsystem: "pool", Name: "acquire_timeout_total",
			Help: "Total acquisitions that timed out.", ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{m.size, m.maxSize, m.idleGauge, m.acquireTotal, m.timeoutTotal} {
		_ = prometheus.Register(c) // best-effort; duplicate registration from repeated tests is harmless to ignore
	}
	return m
}
