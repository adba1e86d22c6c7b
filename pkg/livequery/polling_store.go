// Package livequery turns the notification repository into a notifsync.Store.
// Each Watch runs a poll loop that re-queries on a fixed interval and whenever
// the change feed reports a write for the recipient.
package livequery

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/pkg/logger"
	"logistics-admin-be/pkg/changefeed"
	"logistics-admin-be/pkg/notifsync"
)

const modulePolling = "LiveQuery"

// Fetcher is the slice of repository.NotificationRepository the store needs.
type Fetcher interface {
	FindByRecipient(ctx context.Context, userID string, ordered bool, limit int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) (bool, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
}

type PollingStore struct {
	fetcher      Fetcher
	feed         changefeed.Feed
	logger       logger.Logger
	interval     time.Duration
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	active atomic.Int64
}

type Option func(*PollingStore)

func WithInterval(d time.Duration) Option {
	return func(s *PollingStore) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(s *PollingStore) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func WithFeed(f changefeed.Feed) Option {
	return func(s *PollingStore) {
		if f != nil {
			s.feed = f
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *PollingStore) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewPollingStore(fetcher Fetcher, opts ...Option) *PollingStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &PollingStore{
		fetcher:      fetcher,
		feed:         changefeed.Nop{},
		logger:       logger.NewNop(),
		interval:     15 * time.Second,
		fetchTimeout: 10 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Watch starts a poll loop for q. The first result is delivered right away;
// after that fn only sees changed lists and error transitions. An index
// error ends the loop since the caller is expected to switch queries.
func (s *PollingStore) Watch(q notifsync.Query, fn func(notifsync.Result)) (func(), error) {
	if s.closed.Load() {
		return nil, notifsync.ErrStoreClosed
	}

	ctx, cancel := context.WithCancel(s.ctx)
	wakeups, err := s.feed.Subscribe(ctx, q.RecipientID)
	if err != nil {
		// Interval polling still works without the feed
		s.logger.Warn(modulePolling, "Change feed subscribe failed", map[string]interface{}{
			"recipient_id": q.RecipientID,
			"error":        err.Error(),
		})
		wakeups = nil
	}

	s.wg.Add(1)
	s.active.Add(1)
	go s.poll(ctx, q, wakeups, fn)

	return cancel, nil
}

func (s *PollingStore) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	changed, err := s.fetcher.MarkAsRead(ctx, recipientID, notificationID)
	if err != nil {
		return err
	}
	if changed {
		s.publish(ctx, recipientID)
	}
	return nil
}

func (s *PollingStore) MarkAllRead(ctx context.Context, recipientID string) error {
	n, err := s.fetcher.MarkAllAsRead(ctx, recipientID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.publish(ctx, recipientID)
	}
	return nil
}

// Active is the number of running poll loops.
func (s *PollingStore) Active() int {
	return int(s.active.Load())
}

// Close stops every poll loop and waits for them to return.
func (s *PollingStore) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info(modulePolling, "Polling store closed", nil)
}

func (s *PollingStore) publish(ctx context.Context, recipientID string) {
	if err := s.feed.Publish(ctx, recipientID); err != nil {
		s.logger.Warn(modulePolling, "Change feed publish failed", map[string]interface{}{
			"recipient_id": recipientID,
			"error":        err.Error(),
		})
	}
}

func (s *PollingStore) poll(ctx context.Context, q notifsync.Query, wakeups <-chan struct{}, fn func(notifsync.Result)) {
	defer s.wg.Done()
	defer s.active.Add(-1)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		last      []model.Notification
		delivered bool
		failing   bool
	)

	for {
		ns, err := s.fetch(ctx, q)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			result := notifsync.ResultFromError(err)
			if result.Kind == notifsync.ResultIndexMissing {
				fn(result)
				return
			}
			if !failing {
				s.logger.Warn(modulePolling, "Notification query failed", map[string]interface{}{
					"recipient_id": q.RecipientID,
					"ordered":      q.Ordered,
					"error":        err.Error(),
				})
				fn(result)
			}
			failing = true
			delivered = false
		case !delivered || !sameSnapshot(last, ns):
			last, delivered, failing = ns, true, false
			fn(notifsync.Snapshot(ns))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-wakeups:
			if !ok {
				wakeups = nil
			}
		}
	}
}

func (s *PollingStore) fetch(ctx context.Context, q notifsync.Query) ([]model.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return s.fetcher.FindByRecipient(ctx, q.RecipientID, q.Ordered, q.Limit)
}

func sameSnapshot(a, b []model.Notification) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameNotification(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameNotification(a, b model.Notification) bool {
	if a.ID != b.ID || a.IsRead != b.IsRead || !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if a.Title != b.Title || a.Message != b.Message || a.TypeCode != b.TypeCode {
		return false
	}
	if (a.ReadAt == nil) != (b.ReadAt == nil) || (a.ReadAt != nil && !a.ReadAt.Equal(*b.ReadAt)) {
		return false
	}
	return bytes.Equal([]byte(a.Metadata), []byte(b.Metadata))
}
