package changefeed

import (
	"context"
	"sync/atomic"

	"logistics-admin-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	moduleWatermill = "ChangeFeed"
	topicPrefix     = "notifications.changed."
)

// WatermillFeed is the single-instance feed built on watermill's go channel
// pub/sub.
type WatermillFeed struct {
	pubSub *gochannel.GoChannel
	logger logger.Logger
	closed atomic.Bool
}

// NewWatermillFeed owns its go channel; wmLogger may be nil.
func NewWatermillFeed(wmLogger watermill.LoggerAdapter, log logger.Logger) *WatermillFeed {
	if wmLogger == nil {
		wmLogger = watermill.NopLogger{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WatermillFeed{
		pubSub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, wmLogger),
		logger: log,
	}
}

func (f *WatermillFeed) Publish(ctx context.Context, recipientID string) error {
	if f.closed.Load() {
		return ErrClosed
	}
	msg := message.NewMessage(watermill.NewUUID(), []byte(recipientID))
	msg.SetContext(ctx)
	return f.pubSub.Publish(topicPrefix+recipientID, msg)
}

func (f *WatermillFeed) Subscribe(ctx context.Context, recipientID string) (<-chan struct{}, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	messages, err := f.pubSub.Subscribe(ctx, topicPrefix+recipientID)
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()
			notify(out)
		}
	}()
	return out, nil
}

func (f *WatermillFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.logger.Info(moduleWatermill, "Watermill change feed closed", nil)
	return f.pubSub.Close()
}
