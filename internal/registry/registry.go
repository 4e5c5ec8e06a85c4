// Package registry defines the package registry consulted by the resolver:
// which packages exist and which versions each one has.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/debsources/debsources/internal/archerr"
)

// VCS describes where a package version is maintained.
type VCS struct {
	Type    string `json:"type"`
	Browser string `json:"browser"`
}

// Version is one known version of a package.
type Version struct {
	Number string `json:"version"`
	VCS    *VCS   `json:"vcs,omitempty"`
}

// Registry is read-only from the resolver's point of view.
type Registry interface {
	// Versions returns every known version of pkg in no particular order.
	// It fails with archerr.ErrUnknownPackage when pkg has no versions and
	// with archerr.ErrRegistryUnavailable when the backing store cannot answer.
	Versions(ctx context.Context, pkg string) ([]Version, error)

	// Exists reports whether pkg has at least one version.
	Exists(ctx context.Context, pkg string) (bool, error)
}

// Find returns the entry for number in vs.
func Find(vs []Version, number string) (Version, bool) {
	i := slices.IndexFunc(vs, func(v Version) bool { return v.Number == number })
	if i < 0 {
		return Version{}, false
	}
	return vs[i], true
}

// Numbers returns the version strings of vs.
func Numbers(vs []Version) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Number
	}
	return out
}

// Memory is an in-memory Registry. The zero value is empty and ready to use.
type Memory struct {
	mu       sync.RWMutex
	packages map[string][]Version
}

// NewMemory creates a registry holding the given package versions.
func NewMemory(packages map[string][]Version) *Memory {
	m := &Memory{}
	for name, vs := range packages {
		m.Set(name, vs...)
	}
	return m
}

// Set replaces the versions of a package.
func (m *Memory) Set(pkg string, vs ...Version) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.packages == nil {
		m.packages = make(map[string][]Version)
	}
	m.packages[pkg] = slices.Clone(vs)
}

// Versions implements Registry.
func (m *Memory) Versions(_ context.Context, pkg string) ([]Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.packages[pkg]
	if len(vs) == 0 {
		return nil, fmt.Errorf("%s: %w", pkg, archerr.ErrUnknownPackage)
	}
	return slices.Clone(vs), nil
}

// Exists implements Registry.
func (m *Memory) Exists(_ context.Context, pkg string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.packages[pkg]) > 0, nil
}
