// Package changefeed carries "this recipient's notifications changed" wakeups
// between writers and live queries. Payloads are only recipient ids; readers
// re-query the store for the actual data.
package changefeed

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("change feed closed")

// Feed is implemented by the in-process watermill feed and the redis feed.
type Feed interface {
	// Publish wakes every subscriber of recipientID.
	Publish(ctx context.Context, recipientID string) error
	// Subscribe returns a channel that receives a value after each change.
	// Bursts are coalesced. The channel is closed once ctx is done or the
	// feed is closed.
	Subscribe(ctx context.Context, recipientID string) (<-chan struct{}, error)
	Close() error
}

// Nop never wakes anybody. Live queries then rely on their poll interval.
type Nop struct{}

func (Nop) Publish(context.Context, string) error { return nil }

func (Nop) Subscribe(ctx context.Context, _ string) (<-chan struct{}, error) {
	ch := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (Nop) Close() error { return nil }

// notify is a non-blocking send into a buffer of one.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
