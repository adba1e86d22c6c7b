package notifsync

import (
	"errors"
	"fmt"
	"testing"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotRecorder struct {
	got [][]model.Notification
}

func (r *snapshotRecorder) record(ns []model.Notification) {
	r.got = append(r.got, ns)
}

func (r *snapshotRecorder) last(t *testing.T) []model.Notification {
	t.Helper()
	require.NotEmpty(t, r.got, "no snapshot delivered")
	return r.got[len(r.got)-1]
}

func TestSubscribeDeliversPrimarySnapshots(t *testing.T) {
	store := newFakeStore()
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "dispatcher-7", Limit: 20}, rec.record, nil)
	defer sub.Dispose()

	primary := store.watch(t, 0)
	assert.True(t, primary.query.Ordered)
	assert.Equal(t, "dispatcher-7", primary.query.RecipientID)
	assert.Equal(t, 20, primary.query.Limit)

	primary.emit(Snapshot([]model.Notification{notif("a", false, 5), notif("b", true, 3)}))
	primary.emit(Snapshot([]model.Notification{notif("c", false, 7), notif("a", false, 5)}))

	require.Len(t, rec.got, 2)
	assert.Equal(t, []string{"a", "b"}, ids(rec.got[0]))
	assert.Equal(t, []string{"c", "a"}, ids(rec.got[1]))
	assert.False(t, sub.Fallback())
}

func TestSubscribeFallsBackOnIndexMissing(t *testing.T) {
	store := newFakeStore()
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "dispatcher-7", Limit: 2}, rec.record, nil)
	defer sub.Dispose()

	primary := store.watch(t, 0)
	primary.emit(ResultFromError(fmt.Errorf("listing notifications: %w", repository.ErrIndexMissing)))

	assert.True(t, primary.cancelled.Load(), "primary listener must be released")
	assert.True(t, sub.Fallback())
	assert.Empty(t, rec.got, "index errors are not surfaced as snapshots")

	fallback := store.watch(t, 1)
	assert.False(t, fallback.query.Ordered)
	assert.Equal(t, "dispatcher-7", fallback.query.RecipientID)

	// Unordered delivery is sorted newest first and cut to the limit
	fallback.emit(Snapshot([]model.Notification{notif("old", false, 1), notif("new", false, 9), notif("mid", true, 5)}))
	assert.Equal(t, []string{"new", "mid"}, ids(rec.last(t)))

	// A late primary result is ignored
	primary.emit(Snapshot([]model.Notification{notif("stale", false, 99)}))
	assert.Len(t, rec.got, 1)
}

func TestSubscribeFallsBackOnSetupIndexError(t *testing.T) {
	store := newFakeStore()
	store.watchErr[true] = repository.ErrIndexMissing
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "finance-2"}, rec.record, nil)
	defer sub.Dispose()

	require.Equal(t, 1, store.watchCount())
	fallback := store.watch(t, 0)
	assert.False(t, fallback.query.Ordered)

	fallback.emit(Snapshot([]model.Notification{notif("x", false, 1)}))
	assert.Equal(t, []string{"x"}, ids(rec.last(t)), "availability is preserved on the fallback query")
}

func TestSubscribeFailsOpenOnOtherErrors(t *testing.T) {
	store := newFakeStore()
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "admin-1"}, rec.record, nil)
	defer sub.Dispose()

	primary := store.watch(t, 0)
	primary.emit(Snapshot([]model.Notification{notif("a", false, 1)}))
	primary.emit(ResultFromError(errors.New("connection reset")))

	require.Len(t, rec.got, 2)
	assert.NotNil(t, rec.got[1])
	assert.Empty(t, rec.got[1])
	assert.False(t, sub.Fallback())

	// The listener keeps going once the store recovers
	primary.emit(Snapshot([]model.Notification{notif("a", false, 1)}))
	assert.Len(t, rec.last(t), 1)
}

func TestSubscribeFallbackIndexErrorFailsOpen(t *testing.T) {
	store := newFakeStore()
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "admin-1"}, rec.record, nil)
	defer sub.Dispose()

	store.watch(t, 0).emit(ResultFromError(repository.ErrIndexMissing))
	store.watch(t, 1).emit(ResultFromError(repository.ErrIndexMissing))

	assert.Equal(t, 2, store.watchCount(), "no third query is opened")
	require.Len(t, rec.got, 1)
	assert.Empty(t, rec.got[0])
}

func TestSubscribeSetupErrorFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.watchErr[true] = ErrStoreClosed
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "admin-1"}, rec.record, nil)

	require.Len(t, rec.got, 1)
	assert.Empty(t, rec.got[0])

	assert.NotPanics(t, func() {
		sub.Dispose()
		sub.Dispose()
	})
}

func TestDisposeStopsDelivery(t *testing.T) {
	store := newFakeStore()
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "dispatcher-7"}, rec.record, nil)
	primary := store.watch(t, 0)
	primary.emit(Snapshot([]model.Notification{notif("a", false, 1)}))

	sub.Dispose()
	assert.True(t, primary.cancelled.Load())

	primary.emit(Snapshot([]model.Notification{notif("b", false, 2)}))
	assert.Len(t, rec.got, 1)
}

func TestDisposeReleasesFallback(t *testing.T) {
	store := newFakeStore()
	rec := &snapshotRecorder{}

	sub := Subscribe(store, Query{RecipientID: "dispatcher-7"}, rec.record, nil)
	store.watch(t, 0).emit(ResultFromError(repository.ErrIndexMissing))
	fallback := store.watch(t, 1)

	sub.Dispose()
	assert.True(t, fallback.cancelled.Load())

	fallback.emit(Snapshot([]model.Notification{notif("a", false, 1)}))
	assert.Empty(t, rec.got)
}

func TestSortNewestFirstBreaksTiesByID(t *testing.T) {
	ns := []model.Notification{notif("b", false, 1), notif("a", false, 1), notif("c", false, 2)}
	SortNewestFirst(ns)
	assert.Equal(t, []string{"c", "a", "b"}, ids(ns))
}
