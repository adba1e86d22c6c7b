package notifsync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"logistics-admin-be/internal/model"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore records every Watch and lets the test drive deliveries by hand.
type fakeStore struct {
	mu           sync.Mutex
	watches      []*fakeWatch
	watchErr     map[bool]error // keyed by Query.Ordered
	markErr      error
	markGate     chan struct{} // when set, MarkRead blocks until it is closed
	markCalls    []string
	markAllCalls int
}

type fakeWatch struct {
	query     Query
	fn        func(Result)
	cancelled atomic.Bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{watchErr: make(map[bool]error)}
}

func (f *fakeStore) Watch(q Query, fn func(Result)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.watchErr[q.Ordered]; err != nil {
		return nil, err
	}
	w := &fakeWatch{query: q, fn: fn}
	f.watches = append(f.watches, w)
	return func() { w.cancelled.Store(true) }, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	f.mu.Lock()
	f.markCalls = append(f.markCalls, notificationID)
	gate := f.markGate
	err := f.markErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeStore) MarkAllRead(ctx context.Context, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllCalls++
	return f.markErr
}

func (f *fakeStore) watch(t *testing.T, i int) *fakeWatch {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.watches) {
		t.Fatalf("watch %d not opened, have %d", i, len(f.watches))
	}
	return f.watches[i]
}

func (f *fakeStore) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

func (f *fakeStore) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markCalls...)
}

// emit delivers even after cancel so tests can prove late results are dropped.
func (w *fakeWatch) emit(r Result) {
	w.fn(r)
}

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func notif(id string, read bool, ts int) model.Notification {
	return model.Notification{
		ID:        id,
		UserID:    "dispatcher-7",
		Title:     "Trip " + id,
		Message:   "Trip " + id + " was assigned",
		IsRead:    read,
		CreatedAt: baseTime.Add(time.Duration(ts) * time.Second),
	}
}

func ids(ns []model.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.ID)
	}
	return out
}
