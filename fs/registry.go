package fs

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handle is the minimal contract a registered filesystem must satisfy.
// vfs.Filesystem implements it; Registry itself never looks any deeper
// than this, keeping the registry independent of the dispatcher.
type Handle interface {
	Close() error
	String() string
}

// Factory builds a Handle for a newly-registered URI. It runs outside
// the registry's global lock (spec §4.2).
type Factory func(ctx context.Context, env *Environment) (Handle, error)

// registration is the registry's per-URI record: either pending (a
// writer is still building it) or ready (built).
type registration struct {
	gen   string // uuid tagging this creation attempt, for the remove-vs-add race
	lock  *sync.RWMutex
	ready bool
	fs    Handle
}

// Registry maps normalized URIs to live filesystem instances with the
// two-phase add/get/remove protocol of spec §4.2: concurrent lookups
// for a filesystem still under construction block precisely on that
// one registration, never on the registry as a whole.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registration)}
}

// Add creates and registers the filesystem for uri using factory.
// Fails with KindAlreadyExists if uri is already registered.
func (r *Registry) Add(ctx context.Context, uri string, env *Environment, factory Factory) (Handle, error) {
	r.mu.Lock()
	if _, exists := r.entries[uri]; exists {
		r.mu.Unlock()
		return nil, NewPath(KindAlreadyExists, uri, "filesystem already registered")
	}
	reg := &registration{gen: uuid.NewString(), lock: &sync.RWMutex{}}
	reg.lock.Lock() // the writer (this goroutine) owns the write half throughout creation
	r.entries[uri] = reg
	r.mu.Unlock()

	Debugf(uri, "registry: creating filesystem")
	handle, err := factory(ctx, env)

	r.mu.Lock()
	current, stillPresent := r.entries[uri]
	sameAttempt := stillPresent && current.gen == reg.gen
	if err != nil {
		if sameAttempt {
			delete(r.entries, uri)
		}
		r.mu.Unlock()
		reg.lock.Unlock() // wake any late lookups so they observe the absence
		Errorf(uri, "registry: creation failed: %v", err)
		return nil, Wrap(KindNotFound, uri, err)
	}
	if sameAttempt {
		reg.ready = true
		reg.fs = handle
	}
	r.mu.Unlock()
	reg.lock.Unlock()
	Debugf(uri, "registry: filesystem ready")
	return handle, nil
}

// Get returns the filesystem registered for uri, blocking until any
// in-flight Add for the same uri completes.
func (r *Registry) Get(uri string) (Handle, error) {
	r.mu.Lock()
	reg, ok := r.entries[uri]
	if !ok {
		r.mu.Unlock()
		return nil, NewPath(KindNotFound, uri, "no such filesystem")
	}
	if reg.ready {
		h := reg.fs
		r.mu.Unlock()
		return h, nil
	}
	lock := reg.lock
	r.mu.Unlock()

	// Block until the writer releases the write half, then re-read.
	lock.RLock()
	//nolint:staticcheck // intentionally released immediately; only used as a wait gate
	lock.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok = r.entries[uri]
	if !ok {
		return nil, NewPath(KindNotFound, uri, "filesystem creation failed")
	}
	if !reg.ready {
		// Creation is still pending under a newer generation; treat as
		// not-yet-available rather than spin — callers may retry.
		return nil, NewPath(KindNotFound, uri, "filesystem still initializing")
	}
	return reg.fs, nil
}

// Remove unregisters uri, waiting for any in-flight Add to finish
// first. Returns whether an entry existed.
func (r *Registry) Remove(uri string) (bool, error) {
	r.mu.Lock()
	reg, ok := r.entries[uri]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	if reg.ready {
		delete(r.entries, uri)
		r.mu.Unlock()
		return true, nil
	}
	// Still pending: the writer needs to find its registration when it
	// finishes, so leave it in place and wait for the write lock to free.
	lock := reg.lock
	r.mu.Unlock()

	lock.RLock()
	//nolint:staticcheck
	lock.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	_, stillThere := r.entries[uri]
	delete(r.entries, uri)
	return stillThere, nil
}

// URIs returns a snapshot of the currently registered keys.
func (r *Registry) URIs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for k, reg := range r.entries {
		if reg.ready {
			out = append(out, k)
		}
	}
	return out
}

// CloseAll closes every ready filesystem currently registered,
// collecting the first error and returning it (spec §9: "lifecycle is
// created at provider construction, drained at provider close").
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.entries))
	for uri, reg := range r.entries {
		if reg.ready {
			handles = append(handles, reg.fs)
		}
		delete(r.entries, uri)
	}
	r.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
