package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/debsources/debsources/internal/archerr"
)

// DefaultInternalDirs are the bookkeeping directories hidden at package roots.
// ".pc" holds quilt patch state and is not part of the upstream tree.
var DefaultInternalDirs = []string{".pc"}

// Entry is one immediate child of a listed directory. Symbolic links are
// reported as files; resolving one yields archerr.ErrSymlinkDenied.
type Entry struct {
	Name string `json:"name"`
	Kind Kind   `json:"type"`
}

// Lister enumerates directory locations.
type Lister struct {
	internal map[string]struct{}
}

// NewLister creates a lister hiding internalDirs at package roots. A nil
// slice selects DefaultInternalDirs.
func NewLister(internalDirs []string) *Lister {
	if internalDirs == nil {
		internalDirs = DefaultInternalDirs
	}
	l := &Lister{internal: make(map[string]struct{}, len(internalDirs))}
	for _, d := range internalDirs {
		l.internal[d] = struct{}{}
	}
	return l
}

// ListLocation lists loc, hiding internal directories only at a package root.
func (l *Lister) ListLocation(loc *Location) ([]Entry, error) {
	return l.List(loc, loc.Kind == KindPackage)
}

// List returns the immediate children of loc sorted bytewise by name. The
// listing is not recursive.
func (l *Lister) List(loc *Location, excludeInternal bool) ([]Entry, error) {
	if loc.Kind == KindFile {
		return nil, fmt.Errorf("%s: not a directory: %w", loc.Address(), archerr.ErrNotFound)
	}

	rel, info, err := loc.revalidate()
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory: %w", loc.Address(), archerr.ErrNotFound)
	}

	// Opening through the root keeps a link swapped in after the check
	// from leading outside the archive.
	dir, err := loc.root.Open(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", loc.Address(), archerr.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", loc.Address(), err)
	}
	defer dir.Close()

	dirents, err := dir.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", loc.Address(), err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if excludeInternal {
			if _, hidden := l.internal[d.Name()]; hidden {
				continue
			}
		}
		kind := KindFile
		if d.IsDir() {
			kind = KindDirectory
		}
		entries = append(entries, Entry{Name: d.Name(), Kind: kind})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}
