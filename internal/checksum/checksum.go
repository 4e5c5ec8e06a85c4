// Package checksum answers "where in the archive does this content appear?"
// by mapping a SHA-256 digest to every (package, version, path) sharing it.
//
// The mapping is built by the archive import and is read-only here: the index
// validates queries and normalizes the answer.
package checksum

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/cache"
	"github.com/debsources/debsources/internal/metrics"
)

// Occurrence is one archive location whose content hashes to a given key.
type Occurrence struct {
	Package string `json:"package"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// Store is the externally maintained key -> occurrences mapping.
type Store interface {
	// Occurrences returns every location stored under key, which is always a
	// validated checksum. An unknown key yields an empty result, not an error.
	Occurrences(ctx context.Context, key string) ([]Occurrence, error)
}

// Validate checks that key is exactly 64 lowercase hex characters.
func Validate(key string) error {
	if err := digest.SHA256.Validate(key); err != nil {
		return fmt.Errorf("%q: %w: %w", key, archerr.ErrInvalidChecksum, err)
	}
	return nil
}

// Index queries a Store, optionally through a read-through cache.
type Index struct {
	store Store
	cache *cache.Cache[[]Occurrence]
}

// Option configures an Index.
type Option func(*Index)

// WithCache caches lookups by key for at most ttl. A ttl <= 0 disables caching.
func WithCache(ttl time.Duration, maxEntries int) Option {
	return func(i *Index) {
		i.cache = cache.New[[]Occurrence]("checksums", ttl, maxEntries)
	}
}

// NewIndex creates an index over store.
func NewIndex(store Store, opts ...Option) *Index {
	i := &Index{store: store}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Lookup returns the set of locations sharing key, ordered by package,
// version, then path. Malformed keys fail with archerr.ErrInvalidChecksum
// before the store is consulted.
func (i *Index) Lookup(ctx context.Context, key string) ([]Occurrence, error) {
	if err := Validate(key); err != nil {
		metrics.RecordChecksumLookup("invalid")
		return nil, err
	}

	var (
		occ []Occurrence
		err error
	)
	if i.cache != nil {
		occ, err = i.cache.Get(ctx, key, i.load)
		occ = slices.Clone(occ)
	} else {
		occ, err = i.load(ctx, key)
	}
	if err != nil {
		metrics.RecordChecksumLookup("error")
		return nil, err
	}

	if len(occ) == 0 {
		metrics.RecordChecksumLookup("empty")
		return []Occurrence{}, nil
	}
	metrics.RecordChecksumLookup("found")
	return occ, nil
}

func (i *Index) load(ctx context.Context, key string) ([]Occurrence, error) {
	occ, err := i.store.Occurrences(ctx, key)
	if err != nil {
		return nil, err
	}
	return normalize(occ), nil
}

// Purge drops cached lookups. It is a no-op without a cache.
func (i *Index) Purge() int {
	if i.cache == nil {
		return 0
	}
	return i.cache.Purge()
}

// normalize sorts occurrences and drops duplicates so the result is a set.
func normalize(occ []Occurrence) []Occurrence {
	out := slices.Clone(occ)
	slices.SortFunc(out, func(a, b Occurrence) int {
		return cmp.Or(
			cmp.Compare(a.Package, b.Package),
			cmp.Compare(a.Version, b.Version),
			cmp.Compare(a.Path, b.Path),
		)
	})
	return slices.Compact(out)
}

// MemoryStore is an in-memory Store. The zero value is empty and ready to use.
type MemoryStore struct {
	mu   sync.RWMutex
	sums map[string][]Occurrence
}

// Add records occurrences under key.
func (m *MemoryStore) Add(key string, occ ...Occurrence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sums == nil {
		m.sums = make(map[string][]Occurrence)
	}
	m.sums[key] = append(m.sums[key], occ...)
}

// Occurrences implements Store.
func (m *MemoryStore) Occurrences(_ context.Context, key string) ([]Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sums[key]), nil
}
