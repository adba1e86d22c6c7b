package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"logistics-admin-be/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &model.NotificationType{Code: code, DisplayName: "Trip assigned", IsActive: true}, nil
}

func TestTypeCacheServesRepeatLookups(t *testing.T) {
	src := &countingSource{}
	c := NewTypeCache(src, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := c.GetNotificationTypeByCode(context.Background(), "TRIP_ASSIGNED")
		require.NoError(t, err)
		assert.Equal(t, "TRIP_ASSIGNED", got.Code)
	}
	assert.Equal(t, 1, src.calls)

	c.Invalidate("TRIP_ASSIGNED")
	_, err := c.GetNotificationTypeByCode(context.Background(), "TRIP_ASSIGNED")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	c.Invalidate("")
	_, _ = c.GetNotificationTypeByCode(context.Background(), "TRIP_ASSIGNED")
	assert.Equal(t, 3, src.calls)
}

func TestTypeCacheDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("record not found")}
	c := NewTypeCache(src, 0)

	_, err := c.GetNotificationTypeByCode(context.Background(), "UNKNOWN")
	assert.Error(t, err)

	src.err = nil
	got, err := c.GetNotificationTypeByCode(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", got.Code)
	assert.Equal(t, 2, src.calls)
}
