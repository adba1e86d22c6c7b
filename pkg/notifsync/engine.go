package notifsync

import (
	"context"
	"sync"
	"time"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const moduleEngine = "NotificationEngine"

// Engine owns the live notification state of one recipient: a Subscription
// feeding a State, plus the read-state updates issued against the Store.
type Engine struct {
	recipientID string
	store       Store
	state       *State
	logger      logger.Logger
	limit       int
	now         func() time.Time
	tracer      trace.Tracer

	mu           sync.Mutex
	sub          *Subscription
	started      bool
	closed       bool
	pending      map[string]struct{}
	listeners    map[uint64]func(View)
	nextListener uint64

	// serializes listener calls so the last emitted view is the latest state
	emitMu sync.Mutex
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSnapshotLimit caps how many notifications a snapshot carries.
func WithSnapshotLimit(n int) Option {
	return func(e *Engine) {
		e.limit = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func NewEngine(store Store, recipientID string, opts ...Option) *Engine {
	e := &Engine{
		recipientID: recipientID,
		store:       store,
		state:       NewState(),
		logger:      logger.NewNop(),
		now:         time.Now,
		tracer:      otel.Tracer("logistics-admin-be/notifsync"),
		pending:     make(map[string]struct{}),
		listeners:   make(map[uint64]func(View)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) RecipientID() string {
	return e.recipientID
}

// Start opens the live subscription. Calling it again is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	// Subscribe may deliver synchronously on a setup error, so e.mu is not held
	sub := Subscribe(e.store, Query{RecipientID: e.recipientID, Limit: e.limit}, e.applySnapshot, e.logger)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		sub.Dispose()
		return
	}
	e.sub = sub
	e.mu.Unlock()

	e.logger.Info(moduleEngine, "Notification engine started", map[string]interface{}{"recipient_id": e.recipientID})
}

// Close releases the subscription. Listeners are not called once Close has
// returned; a listener call already running is waited for.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sub := e.sub
	e.sub = nil
	e.listeners = make(map[uint64]func(View))
	e.mu.Unlock()

	// emit re-checks closed under emitMu, so this drains the last delivery
	e.emitMu.Lock()
	e.emitMu.Unlock()

	if sub != nil {
		sub.Dispose()
	}
	e.logger.Info(moduleEngine, "Notification engine closed", map[string]interface{}{"recipient_id": e.recipientID})
}

// Degraded reports whether the subscription is running on the fallback query.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	sub := e.sub
	e.mu.Unlock()
	return sub != nil && sub.Fallback()
}

func (e *Engine) View() View {
	return e.state.View()
}

func (e *Engine) UnreadCount() int {
	return e.state.View().UnreadCount
}

// OnChange registers fn for every state change. fn must not block and must not
// call Close.
func (e *Engine) OnChange(fn func(View)) (remove func()) {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Follow calls fn with the current view and then with every change, like
// OnChange. The first call happens before Follow returns and cannot be
// overtaken by a concurrent change. A closed engine still reports its last
// view once.
func (e *Engine) Follow(fn func(View)) (remove func()) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	remove = e.OnChange(fn)
	fn(e.state.View())
	return remove
}

func (e *Engine) applySnapshot(notifications []model.Notification) {
	e.state.Apply(notifications)
	e.emit()
}

// MarkRead marks one notification read remotely and then patches the local
// copy without waiting for the next snapshot. It reports true only when a
// remote update was issued and succeeded.
func (e *Engine) MarkRead(ctx context.Context, notificationID string) bool {
	ctx, span := e.tracer.Start(ctx, "notifsync.MarkRead", trace.WithAttributes(
		attribute.String("recipient.id", e.recipientID),
		attribute.String("notification.id", notificationID),
	))
	defer span.End()

	item, ok := e.state.Lookup(notificationID)
	if !ok || item.IsRead {
		span.SetAttributes(attribute.Bool("notification.skipped", true))
		return false
	}
	if !e.begin(notificationID) {
		span.SetAttributes(attribute.Bool("notification.in_flight", true))
		return false
	}
	defer e.finish(notificationID)

	if err := e.store.MarkRead(ctx, e.recipientID, notificationID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		e.logger.Warn(moduleEngine, "Failed to mark notification read", map[string]interface{}{
			"recipient_id":    e.recipientID,
			"notification_id": notificationID,
			"error":           err.Error(),
		})
		return false
	}

	if _, patched := e.state.MarkRead(notificationID, e.now()); patched {
		e.emit()
	}
	return true
}

// MarkAllRead issues one bulk update and then patches every unread item.
func (e *Engine) MarkAllRead(ctx context.Context) bool {
	ctx, span := e.tracer.Start(ctx, "notifsync.MarkAllRead", trace.WithAttributes(
		attribute.String("recipient.id", e.recipientID),
	))
	defer span.End()

	if e.isClosed() || len(e.state.Unread()) == 0 {
		return false
	}

	if err := e.store.MarkAllRead(ctx, e.recipientID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark all read failed")
		e.logger.Warn(moduleEngine, "Failed to mark all notifications read", map[string]interface{}{
			"recipient_id": e.recipientID,
			"error":        err.Error(),
		})
		return false
	}

	if _, changed := e.state.MarkAllRead(e.now()); changed > 0 {
		e.emit()
	}
	return true
}

func (e *Engine) begin(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	if _, inFlight := e.pending[id]; inFlight {
		return false
	}
	e.pending[id] = struct{}{}
	return true
}

func (e *Engine) finish(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) emit() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fns := make([]func(View), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	view := e.state.View()
	for _, fn := range fns {
		fn(view)
	}
}
