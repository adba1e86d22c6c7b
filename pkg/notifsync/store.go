package notifsync

import (
	"context"
	"errors"

	"logistics-admin-be/internal/model"
	"logistics-admin-be/internal/repository"
)

// ErrStoreClosed is returned by Watch once a store has been shut down.
var ErrStoreClosed = errors.New("notification store closed")

// Query selects one recipient's notifications. Ordered asks for created_at
// descending, which needs the composite index; the fallback query clears it.
type Query struct {
	RecipientID string
	Ordered     bool
	Limit       int
}

// Fallback is the filter-only variant of q.
func (q Query) Fallback() Query {
	q.Ordered = false
	return q
}

type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultIndexMissing
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultIndexMissing:
		return "index_missing"
	default:
		return "error"
	}
}

// Result is one delivery from a live query.
type Result struct {
	Kind          ResultKind
	Notifications []model.Notification
	Err           error
}

// Snapshot wraps a successful delivery.
func Snapshot(notifications []model.Notification) Result {
	return Result{Kind: ResultOK, Notifications: notifications}
}

// ResultFromError classifies a store error. Stores wrap their driver errors
// with repository.ErrIndexMissing when the ordered query cannot be served.
func ResultFromError(err error) Result {
	if errors.Is(err, repository.ErrIndexMissing) {
		return Result{Kind: ResultIndexMissing, Err: err}
	}
	return Result{Kind: ResultError, Err: err}
}

// Store is the remote document store behind the engine.
//
// Watch must deliver results from its own goroutine, never from inside the
// Watch call, and the returned cancel func must not block waiting for an
// in-flight delivery.
type Store interface {
	Watch(q Query, fn func(Result)) (cancel func(), err error)
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
}
