package notifsync

import (
	"sort"
	"sync"
	"sync/atomic"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"
)

const moduleSubscription = "NotificationSubscription"

// Subscription is a live query for one recipient. It starts on the ordered
// (indexed) query and degrades to the filter-only query when the store reports
// a missing index. Every delivery reaches onSnapshot newest first.
type Subscription struct {
	store      Store
	query      Query
	onSnapshot func([]model.Notification)
	logger     logger.Logger

	// fallback is written under mu; readers outside the lock use Load
	fallback atomic.Bool

	mu         sync.Mutex
	cancel     func()
	generation uint64
	disposed   bool
}

// Subscribe opens the primary query. onSnapshot is invoked serially and must
// not call Dispose on the same subscription.
func Subscribe(store Store, q Query, onSnapshot func([]model.Notification), log logger.Logger) *Subscription {
	if log == nil {
		log = logger.NewNop()
	}
	q.Ordered = true

	s := &Subscription{
		store:      store,
		query:      q,
		onSnapshot: onSnapshot,
		logger:     log,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.open(q)
	return s
}

// Fallback reports whether the subscription runs on the degraded query.
func (s *Subscription) Fallback() bool {
	return s.fallback.Load()
}

// Dispose cancels whichever listener is active. Safe to call more than once
// and after a failed setup. No callback runs after Dispose returns.
func (s *Subscription) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.release()
}

// open must be called with s.mu held.
func (s *Subscription) open(q Query) {
	s.generation++
	gen := s.generation

	cancel, err := s.store.Watch(q, func(r Result) { s.handle(gen, r) })
	if err != nil {
		s.cancel = nil
		s.handleLocked(gen, ResultFromError(err))
		return
	}
	s.cancel = cancel
}

func (s *Subscription) release() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Subscription) handle(gen uint64, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleLocked(gen, r)
}

func (s *Subscription) handleLocked(gen uint64, r Result) {
	// Late results from a released primary or a disposed subscription
	if s.disposed || gen != s.generation {
		return
	}

	switch r.Kind {
	case ResultOK:
		s.deliver(r.Notifications)
		return

	case ResultIndexMissing:
		if !s.fallback.Load() {
			s.logger.Warn(moduleSubscription, "Ordered query unavailable, switching to fallback query", map[string]interface{}{
				"recipient_id": s.query.RecipientID,
				"error":        errString(r.Err),
			})
			s.release()
			s.fallback.Store(true)
			s.open(s.query.Fallback())
			return
		}
	}

	s.logger.Error(moduleSubscription, "Notification query failed, delivering empty snapshot", map[string]interface{}{
		"recipient_id": s.query.RecipientID,
		"fallback":     s.fallback.Load(),
		"kind":         r.Kind.String(),
		"error":        errString(r.Err),
	})
	s.onSnapshot([]model.Notification{})
}

func (s *Subscription) deliver(notifications []model.Notification) {
	out := make([]model.Notification, len(notifications))
	copy(out, notifications)

	if s.fallback.Load() {
		SortNewestFirst(out)
		if s.query.Limit > 0 && len(out) > s.query.Limit {
			out = out[:s.query.Limit]
		}
	}
	s.onSnapshot(out)
}

// SortNewestFirst orders by CreatedAt descending, ties broken by ID, the same
// order the indexed query returns.
func SortNewestFirst(notifications []model.Notification) {
	sort.SliceStable(notifications, func(i, j int) bool {
		a, b := notifications[i], notifications[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
