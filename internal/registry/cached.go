package registry

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/cache"
)

// Cached is a read-through cache in front of a Registry, keyed by package name.
// Entries live at most ttl, so a package removed by an import cycle converges
// to ErrUnknownPackage once its entry expires or the cache is purged.
type Cached struct {
	next     Registry
	versions *cache.Cache[[]Version]
}

// NewCached wraps next. A ttl <= 0 disables caching.
func NewCached(next Registry, ttl time.Duration, maxEntries int) *Cached {
	return &Cached{
		next:     next,
		versions: cache.New[[]Version]("versions", ttl, maxEntries),
	}
}

// Versions implements Registry.
func (c *Cached) Versions(ctx context.Context, pkg string) ([]Version, error) {
	vs, err := c.versions.Get(ctx, pkg, c.next.Versions)
	if err != nil {
		return nil, err
	}
	return slices.Clone(vs), nil
}

// Exists implements Registry and shares the Versions cache.
func (c *Cached) Exists(ctx context.Context, pkg string) (bool, error) {
	_, err := c.Versions(ctx, pkg)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, archerr.ErrUnknownPackage):
		return false, nil
	default:
		return false, err
	}
}

// Purge drops all cached version sets.
func (c *Cached) Purge() int {
	return c.versions.Purge()
}
