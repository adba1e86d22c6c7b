package memory

import (
	"context"
	"time"

	"logistics-admin-be/internal/model"

	"github.com/patrickmn/go-cache"
)

// TypeSource loads notification types from the database.
type TypeSource interface {
	GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error)
}

// TypeCache keeps the notification type registry in memory. Every event
// looks up its type, and the registry changes only when seeded or edited.
type TypeCache struct {
	cache  *cache.Cache
	source TypeSource
}

func NewTypeCache(source TypeSource, ttl time.Duration) *TypeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TypeCache{
		cache:  cache.New(ttl, 2*ttl),
		source: source,
	}
}

// GetNotificationTypeByCode serves from cache and falls through to the source.
// Lookup errors are not cached.
func (c *TypeCache) GetNotificationTypeByCode(ctx context.Context, code string) (*model.NotificationType, error) {
	if x, found := c.cache.Get(code); found {
		return x.(*model.NotificationType), nil
	}

	t, err := c.source.GetNotificationTypeByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.cache.Set(code, t, cache.DefaultExpiration)
	return t, nil
}

// Invalidate drops one code, or everything when code is empty.
func (c *TypeCache) Invalidate(code string) {
	if code == "" {
		c.cache.Flush()
		return
	}
	c.cache.Delete(code)
}
