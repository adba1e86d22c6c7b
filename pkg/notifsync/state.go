package notifsync

import (
	"sync"
	"time"

	"logistics-admin-be/internal/model"
)

// View is a consistent copy of the local state. Notifications is a fresh slice
// per view; ReadAt and Metadata still point into the state and must not be
// written through.
type View struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

// State holds the reconciled notification list of one recipient. The list and
// its unread count are only ever written together under mu.
type State struct {
	mu     sync.RWMutex
	items  []model.Notification
	unread int
}

func NewState() *State {
	return &State{items: []model.Notification{}}
}

// Apply replaces the whole list with snapshot. The store is the source of
// truth, so any optimistic patch not yet reflected in it is dropped.
func (s *State) Apply(snapshot []model.Notification) View {
	items := make([]model.Notification, len(snapshot))
	copy(items, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = items
	s.unread = countUnread(items)
	return s.viewLocked()
}

// Lookup returns the local copy of one notification.
func (s *State) Lookup(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.items {
		if n.ID == id {
			return n, true
		}
	}
	return model.Notification{}, false
}

// MarkRead flips the read flag of one item in place. It reports false when the
// item is gone or already read, e.g. because a snapshot landed in between.
func (s *State) MarkRead(id string, at time.Time) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].IsRead {
			return s.viewLocked(), false
		}
		s.patchLocked(i, at)
		s.unread = countUnread(s.items)
		return s.viewLocked(), true
	}
	return s.viewLocked(), false
}

// MarkAllRead flips every unread item and returns how many changed.
func (s *State) MarkAllRead(at time.Time) (View, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.Notification, len(s.items))
	copy(items, s.items)

	changed := 0
	for i := range items {
		if !items[i].IsRead {
			readAt := at
			items[i].IsRead = true
			items[i].ReadAt = &readAt
			changed++
		}
	}
	s.items = items
	s.unread = countUnread(items)
	return s.viewLocked(), changed
}

// Unread lists the ids of unread items in list order.
func (s *State) Unread() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, s.unread)
	for _, n := range s.items {
		if !n.IsRead {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

// patchLocked writes a fresh slice so views handed out earlier stay untouched.
func (s *State) patchLocked(i int, at time.Time) {
	items := make([]model.Notification, len(s.items))
	copy(items, s.items)

	readAt := at
	items[i].IsRead = true
	items[i].ReadAt = &readAt
	s.items = items
}

func (s *State) viewLocked() View {
	items := make([]model.Notification, len(s.items))
	copy(items, s.items)
	return View{Notifications: items, UnreadCount: s.unread}
}

func countUnread(items []model.Notification) int {
	n := 0
	for _, item := range items {
		if !item.IsRead {
			n++
		}
	}
	return n
}
