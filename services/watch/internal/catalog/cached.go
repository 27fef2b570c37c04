package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// InvalidateSubject carries cache invalidations. The payload is a movie id
// or slug; an empty payload or "ALL" flushes everything.
const InvalidateSubject = "catalog.movie.invalidate"

type cacheItem struct {
	movie     Movie
	expiresAt time.Time
}

// Cached is a Source with per-entry expiry in front of another Source.
// Misses, including ErrNotFound, are not cached.
type Cached struct {
	next Source
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cacheItem
	sub   *nats.Subscription
}

// NewCached wraps next. When nc is non-nil the cache subscribes to
// InvalidateSubject for key-level invalidation.
func NewCached(next Source, ttl time.Duration, nc *nats.Conn) (*Cached, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &Cached{next: next, ttl: ttl, now: time.Now, items: make(map[string]cacheItem)}
	if nc != nil {
		sub, err := nc.Subscribe(InvalidateSubject, func(m *nats.Msg) {
			c.Invalidate(string(m.Data))
		})
		if err != nil {
			return nil, err
		}
		c.sub = sub
	}
	return c, nil
}

// Invalidate drops key, or everything for "" and "ALL".
func (c *Cached) Invalidate(key string) {
	key = strings.TrimSpace(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" || strings.EqualFold(key, "ALL") {
		c.items = make(map[string]cacheItem)
		return
	}
	delete(c.items, "id:"+key)
	delete(c.items, "slug:"+strings.ToLower(key))
}

func (c *Cached) MovieBySlug(ctx context.Context, slug string) (Movie, error) {
	return c.get(ctx, "slug:"+strings.ToLower(strings.TrimSpace(slug)), func() (Movie, error) {
		return c.next.MovieBySlug(ctx, slug)
	})
}

func (c *Cached) MovieByID(ctx context.Context, id string) (Movie, error) {
	return c.get(ctx, "id:"+strings.TrimSpace(id), func() (Movie, error) {
		return c.next.MovieByID(ctx, id)
	})
}

func (c *Cached) get(_ context.Context, key string, load func() (Movie, error)) (Movie, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if ok && c.now().Before(it.expiresAt) {
		return it.movie, nil
	}

	m, err := load()
	if err != nil {
		return Movie{}, err
	}
	exp := c.now().Add(c.ttl)
	c.mu.Lock()
	c.items["id:"+m.ID] = cacheItem{movie: m, expiresAt: exp}
	if m.Slug != "" {
		c.items["slug:"+strings.ToLower(m.Slug)] = cacheItem{movie: m, expiresAt: exp}
	}
	c.mu.Unlock()
	return m, nil
}

// Close stops listening for invalidations.
func (c *Cached) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}
