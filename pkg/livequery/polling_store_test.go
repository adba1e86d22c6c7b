package livequery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"
	"logistics-admin-be/internal/repository"
	"logistics-admin-be/pkg/changefeed"
	"logistics-admin-be/pkg/notifsync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu        sync.Mutex
	items     []model.Notification
	err       map[bool]error // keyed by ordered
	queries   map[bool]int
	markErr   error
	marked    []string
	markedAll int
}

func newFakeFetcher(items ...model.Notification) *fakeFetcher {
	return &fakeFetcher{items: items, err: make(map[bool]error), queries: make(map[bool]int)}
}

func (f *fakeFetcher) FindByRecipient(ctx context.Context, userID string, ordered bool, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[ordered]++
	if err := f.err[ordered]; err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(f.items))
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeFetcher) MarkAsRead(ctx context.Context, userID, notificationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return false, f.markErr
	}
	for i := range f.items {
		if f.items[i].ID == notificationID && f.items[i].UserID == userID {
			if f.items[i].IsRead {
				return false, nil
			}
			at := baseTime
			f.items[i].IsRead = true
			f.items[i].ReadAt = &at
			f.marked = append(f.marked, notificationID)
			return true, nil
		}
	}
	return false, repository.ErrNotificationNotFound
}

func (f *fakeFetcher) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedAll++
	var n int64
	for i := range f.items {
		if f.items[i].UserID == userID && !f.items[i].IsRead {
			f.items[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeFetcher) set(items ...model.Notification) {
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
}

func (f *fakeFetcher) setErr(ordered bool, err error) {
	f.mu.Lock()
	f.err[ordered] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) queryCount(ordered bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[ordered]
}

type resultLog struct {
	mu  sync.Mutex
	got []notifsync.Result
}

func (l *resultLog) add(r notifsync.Result) {
	l.mu.Lock()
	l.got = append(l.got, r)
	l.mu.Unlock()
}

func (l *resultLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.got)
}

func (l *resultLog) at(i int) notifsync.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.got[i]
}

func notif(id, user string, read bool, ts int) model.Notification {
	return model.Notification{
		ID:        id,
		UserID:    user,
		Title:     "Expense " + id,
		IsRead:    read,
		CreatedAt: baseTime.Add(time.Duration(ts) * time.Second),
	}
}

func TestWatchDeliversOnChangeOnly(t *testing.T) {
	fetcher := newFakeFetcher(notif("a", "finance-2", false, 1))
	store := NewPollingStore(fetcher, WithInterval(10*time.Millisecond))
	defer store.Close()

	log := &resultLog{}
	cancel, err := store.Watch(notifsync.Query{RecipientID: "finance-2", Ordered: true, Limit: 10}, log.add)
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool { return log.len() == 1 }, waitFor, tick)
	assert.Equal(t, notifsync.ResultOK, log.at(0).Kind)
	assert.Len(t, log.at(0).Notifications, 1)

	// Several polls of an unchanged list deliver nothing new
	require.Eventually(t, func() bool { return fetcher.queryCount(true) >= 4 }, waitFor, tick)
	assert.Equal(t, 1, log.len())

	fetcher.set(notif("b", "finance-2", false, 2), notif("a", "finance-2", false, 1))
	require.Eventually(t, func() bool { return log.len() == 2 }, waitFor, tick)
	assert.Len(t, log.at(1).Notifications, 2)
}

func TestWatchWakesOnFeed(t *testing.T) {
	feed := changefeed.NewWatermillFeed(nil, nil)
	defer feed.Close()

	fetcher := newFakeFetcher(notif("a", "dispatcher-7", false, 1))
	store := NewPollingStore(fetcher, WithInterval(time.Hour), WithFeed(feed))
	defer store.Close()

	log := &resultLog{}
	cancel, err := store.Watch(notifsync.Query{RecipientID: "dispatcher-7", Ordered: true}, log.add)
	require.NoError(t, err)
	defer cancel()
	require.Eventually(t, func() bool { return log.len() == 1 }, waitFor, tick)

	// MarkRead writes through and wakes the loop long before the next tick
	require.NoError(t, store.MarkRead(context.Background(), "dispatcher-7", "a"))
	require.Eventually(t, func() bool { return log.len() == 2 }, waitFor, tick)
	assert.True(t, log.at(1).Notifications[0].IsRead)
}

func TestWatchStopsOnIndexMissing(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setErr(true, fmt.Errorf("find: %w", repository.ErrIndexMissing))
	store := NewPollingStore(fetcher, WithInterval(5*time.Millisecond))
	defer store.Close()

	log := &resultLog{}
	cancel, err := store.Watch(notifsync.Query{RecipientID: "admin-1", Ordered: true}, log.add)
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool { return log.len() == 1 }, waitFor, tick)
	assert.Equal(t, notifsync.ResultIndexMissing, log.at(0).Kind)
	require.Eventually(t, func() bool { return store.Active() == 0 }, waitFor, tick)
	assert.Equal(t, 1, fetcher.queryCount(true))
}

func TestWatchReportsErrorTransitions(t *testing.T) {
	fetcher := newFakeFetcher(notif("a", "admin-1", false, 1))
	fetcher.setErr(true, errors.New("connection refused"))
	store := NewPollingStore(fetcher,
		WithInterval(5*time.Millisecond),
		WithLogger(logger.Wrap(zaptest.NewLogger(t))),
	)

	log := &resultLog{}
	cancel, err := store.Watch(notifsync.Query{RecipientID: "admin-1", Ordered: true}, log.add)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fetcher.queryCount(true) >= 3 }, waitFor, tick)
	assert.Equal(t, 1, log.len(), "repeated failures are reported once")
	assert.Equal(t, notifsync.ResultError, log.at(0).Kind)

	fetcher.setErr(true, nil)
	require.Eventually(t, func() bool { return log.len() == 2 }, waitFor, tick)
	assert.Equal(t, notifsync.ResultOK, log.at(1).Kind)

	cancel()
	store.Close()
}

func TestCancelAndClose(t *testing.T) {
	fetcher := newFakeFetcher()
	store := NewPollingStore(fetcher, WithInterval(5*time.Millisecond))

	log := &resultLog{}
	cancel, err := store.Watch(notifsync.Query{RecipientID: "admin-1", Ordered: true}, log.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return log.len() == 1 }, waitFor, tick)

	cancel()
	cancel()
	require.Eventually(t, func() bool { return store.Active() == 0 }, waitFor, tick)

	store.Close()
	store.Close()
	_, err = store.Watch(notifsync.Query{RecipientID: "admin-1"}, log.add)
	assert.ErrorIs(t, err, notifsync.ErrStoreClosed)
}

func TestMarkReadErrorsPassThrough(t *testing.T) {
	fetcher := newFakeFetcher(notif("a", "admin-1", false, 1))
	store := NewPollingStore(fetcher)
	defer store.Close()

	err := store.MarkRead(context.Background(), "someone-else", "a")
	assert.ErrorIs(t, err, repository.ErrNotificationNotFound)

	require.NoError(t, store.MarkAllRead(context.Background(), "admin-1"))
	assert.Equal(t, 1, fetcher.markedAll)
}

type countingFeed struct {
	changefeed.Nop
	mu        sync.Mutex
	published []string
}

func (f *countingFeed) Publish(ctx context.Context, recipientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, recipientID)
	return nil
}

func TestMarkReadOnReadItemDoesNotPublish(t *testing.T) {
	feed := &countingFeed{}
	fetcher := newFakeFetcher(notif("a", "admin-1", false, 1))
	store := NewPollingStore(fetcher, WithFeed(feed))
	defer store.Close()

	require.NoError(t, store.MarkRead(context.Background(), "admin-1", "a"))
	require.NoError(t, store.MarkRead(context.Background(), "admin-1", "a"))

	assert.Equal(t, []string{"a"}, fetcher.marked)
	assert.Equal(t, []string{"admin-1"}, feed.published)
}

func TestEngineOverPollingStoreFallsBack(t *testing.T) {
	fetcher := newFakeFetcher(
		notif("old", "dispatcher-7", true, 1),
		notif("new", "dispatcher-7", false, 9),
		notif("mid", "dispatcher-7", false, 5),
	)
	fetcher.setErr(true, repository.ErrIndexMissing)

	feed := changefeed.NewWatermillFeed(nil, nil)
	defer feed.Close()
	store := NewPollingStore(fetcher, WithInterval(10*time.Millisecond), WithFeed(feed))
	defer store.Close()

	e := notifsync.NewEngine(store, "dispatcher-7", notifsync.WithClock(func() time.Time { return baseTime }))
	e.Start()
	defer e.Close()

	require.Eventually(t, func() bool { return len(e.View().Notifications) == 3 }, waitFor, tick)
	assert.True(t, e.Degraded())
	assert.Equal(t, 2, e.UnreadCount())

	view := e.View()
	assert.Equal(t, "new", view.Notifications[0].ID)
	assert.Equal(t, "mid", view.Notifications[1].ID)
	assert.Equal(t, "old", view.Notifications[2].ID)

	require.True(t, e.MarkRead(context.Background(), "new"))
	assert.Equal(t, 1, e.UnreadCount())
	assert.Equal(t, []string{"new"}, fetcher.marked)
}
