package notifsync

import (
	"sync"

	"logistics-admin-be/internal/pkg/logger"
)

const moduleRegistry = "NotificationRegistry"

// Registry shares one Engine per recipient between all of that recipient's
// open views. The engine is started by the first Acquire and closed by the
// last release.
type Registry struct {
	store  Store
	opts   []Option
	logger logger.Logger

	mu      sync.Mutex
	engines map[string]*registryEntry
	closed  bool
}

type registryEntry struct {
	engine *Engine
	refs   int
}

func NewRegistry(store Store, log logger.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		store:   store,
		opts:    append([]Option{WithLogger(log)}, opts...),
		logger:  log,
		engines: make(map[string]*registryEntry),
	}
}

// Acquire returns the running engine for recipientID and a release func. The
// release func may be called more than once; only the first call counts.
func (r *Registry) Acquire(recipientID string) (*Engine, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		// Closed engine: empty view, MarkRead is a no-op
		e := NewEngine(r.store, recipientID, r.opts...)
		e.Close()
		return e, func() {}
	}

	entry, ok := r.engines[recipientID]
	if !ok {
		entry = &registryEntry{engine: NewEngine(r.store, recipientID, r.opts...)}
		r.engines[recipientID] = entry
		entry.engine.Start()
	}
	entry.refs++

	var once sync.Once
	return entry.engine, func() {
		once.Do(func() { r.release(recipientID, entry) })
	}
}

// Lookup returns the engine of a recipient with at least one open view.
func (r *Registry) Lookup(recipientID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.engines[recipientID]
	if !ok {
		return nil, false
	}
	return entry.engine, true
}

// Active is the number of recipients with a running engine.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close shuts every engine down. Later Acquire calls get closed engines.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	engines := r.engines
	r.engines = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range engines {
		entry.engine.Close()
	}
	r.logger.Info(moduleRegistry, "Notification registry closed", map[string]interface{}{"engines": len(engines)})
}

func (r *Registry) release(recipientID string, entry *registryEntry) {
	r.mu.Lock()
	entry.refs--
	last := entry.refs <= 0
	if last && r.engines[recipientID] == entry {
		delete(r.engines, recipientID)
	}
	r.mu.Unlock()

	if last {
		entry.engine.Close()
	}
}
