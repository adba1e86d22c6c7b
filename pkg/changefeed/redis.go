package changefeed

import (
	"context"
	"sync/atomic"

	"logistics-admin-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	moduleRedis   = "RedisChangeFeed"
	channelPrefix = "notifications:changed:"
)

// RedisFeed spreads wakeups across instances with redis pub/sub.
type RedisFeed struct {
	rdb    *redis.Client
	logger logger.Logger
	closed atomic.Bool
}

// NewRedisFeed does not own rdb; Close leaves the client open.
func NewRedisFeed(rdb *redis.Client, log logger.Logger) *RedisFeed {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisFeed{rdb: rdb, logger: log}
}

func (f *RedisFeed) Publish(ctx context.Context, recipientID string) error {
	if f.closed.Load() {
		return ErrClosed
	}
	return f.rdb.Publish(ctx, channelPrefix+recipientID, recipientID).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, recipientID string) (<-chan struct{}, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	pubsub := f.rdb.Subscribe(ctx, channelPrefix+recipientID)
	// Wait for the subscription confirmation so early publishes are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				if f.closed.Load() {
					return
				}
				notify(out)
			}
		}
	}()
	return out, nil
}

func (f *RedisFeed) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		f.logger.Info(moduleRedis, "Redis change feed closed", nil)
	}
	return nil
}
