// Package archive maps logical source addresses (package, version, sub-path)
// onto the on-disk archive tree.
//
// Every component of a resolved path is checked with Lstat relative to the
// archive root, so a symbolic link anywhere between the root and the target
// is refused rather than followed. Packages are untrusted input: a symlink
// shipped inside a source tree must never expose files outside of it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/metrics"
	"github.com/debsources/debsources/internal/registry"
	"github.com/debsources/debsources/internal/version"
)

// Resolver turns addresses into locations under a fixed archive root.
type Resolver struct {
	root     string
	fsroot   *os.Root
	registry registry.Registry
	versions version.Comparator
}

// NewResolver opens the archive rooted at root.
func NewResolver(root string, reg registry.Registry, versions version.Comparator) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("archive root: %w", err)
	}
	fsroot, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open archive root: %w", err)
	}
	if versions == nil {
		versions = version.Debian{}
	}
	return &Resolver{
		root:     abs,
		fsroot:   fsroot,
		registry: reg,
		versions: versions,
	}, nil
}

// Root returns the absolute archive root.
func (r *Resolver) Root() string { return r.root }

// Close releases the archive root handle.
func (r *Resolver) Close() error { return r.fsroot.Close() }

// Resolve maps addr to a location, or to a redirect when addr uses the Latest
// alias. Resolution never follows symbolic links and never escapes the root.
func (r *Resolver) Resolve(ctx context.Context, addr Address) (Resolution, error) {
	start := time.Now()
	res, err := r.resolve(ctx, addr)

	outcome := archerr.Kind(err)
	if err == nil {
		outcome = "redirect"
		if res.Location != nil {
			outcome = res.Location.Kind.String()
		}
	}
	metrics.RecordResolution(outcome, time.Since(start))

	if errors.Is(err, archerr.ErrSymlinkDenied) {
		logging.WithContext(ctx).Warn("symlink in archive path refused",
			zap.String("address", addr.String()),
			zap.Error(err))
	}
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, addr Address) (Resolution, error) {
	if err := addr.Validate(); err != nil {
		return Resolution{}, err
	}

	vs, err := r.registry.Versions(ctx, addr.Package)
	if err != nil {
		return Resolution{}, err
	}

	if addr.IsLatest() {
		latest, ok := version.Latest(r.versions, registry.Numbers(vs))
		if !ok {
			return Resolution{}, fmt.Errorf("%s: %w", addr.Package, archerr.ErrUnknownPackage)
		}
		target := addr.WithVersion(latest)
		return Resolution{Redirect: &target}, nil
	}

	v, ok := registry.Find(vs, addr.Version)
	if !ok {
		return Resolution{}, fmt.Errorf("%s/%s: %w", addr.Package, addr.Version, archerr.ErrUnknownVersion)
	}

	kind, err := r.walk(ctx, addr)
	if err != nil {
		return Resolution{}, err
	}

	components := append([]string{r.root, addr.Package, addr.Version}, addr.Path...)
	loc := &Location{
		Package:      addr.Package,
		Version:      addr.Version,
		Path:         append([]string(nil), addr.Path...),
		PhysicalPath: filepath.Join(components...),
		Kind:         kind,
		VCS:          v.VCS,
		root:         r.fsroot,
	}
	return Resolution{Location: loc}, nil
}

// walk checks each component from the package directory down to the target.
func (r *Resolver) walk(ctx context.Context, addr Address) (Kind, error) {
	rel, info, err := lstatChain(ctx, r.fsroot, append([]string{addr.Package, addr.Version}, addr.Path...))
	if err != nil {
		return 0, err
	}

	switch {
	case len(addr.Path) == 0:
		if !info.IsDir() {
			return 0, fmt.Errorf("%s: not a directory: %w", rel, archerr.ErrNotFound)
		}
		return KindPackage, nil
	case info.IsDir():
		return KindDirectory, nil
	case info.Mode().IsRegular():
		return KindFile, nil
	default:
		// Devices, sockets and pipes are not source content.
		return 0, fmt.Errorf("%s: unsupported file type %s: %w", rel, info.Mode().Type(), archerr.ErrNotFound)
	}
}

// lstatChain lstats each component below root in turn and returns the
// slash-separated relative path and info of the last one. Errors never carry
// the absolute archive path.
func lstatChain(ctx context.Context, root *os.Root, components []string) (string, fs.FileInfo, error) {
	var (
		rel  string
		info fs.FileInfo
		err  error
	)
	for i, c := range components {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		rel = filepath.Join(rel, c)
		info, err = root.Lstat(rel)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", nil, fmt.Errorf("%s: %w", filepath.ToSlash(rel), archerr.ErrNotFound)
			}
			return "", nil, fmt.Errorf("lstat %s: %w", filepath.ToSlash(rel), err)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", nil, fmt.Errorf("%s: %w", filepath.ToSlash(rel), archerr.ErrSymlinkDenied)
		}
		if i < len(components)-1 && !info.IsDir() {
			return "", nil, fmt.Errorf("%s: not a directory: %w", filepath.ToSlash(rel), archerr.ErrNotFound)
		}
	}
	return filepath.ToSlash(rel), info, nil
}

// revalidate repeats the symlink-free walk to l, since the tree may have
// changed after resolution.
func (l *Location) revalidate() (string, fs.FileInfo, error) {
	if l.root == nil {
		return "", nil, fmt.Errorf("%s: location was not resolved", l.Address())
	}
	return lstatChain(context.Background(), l.root, append([]string{l.Package, l.Version}, l.Path...))
}

// Versions returns the known versions of pkg, oldest first.
func (r *Resolver) Versions(ctx context.Context, pkg string) ([]registry.Version, error) {
	if err := ValidateSegment(pkg); err != nil {
		return nil, fmt.Errorf("package: %w", err)
	}
	vs, err := r.registry.Versions(ctx, pkg)
	if err != nil {
		return nil, err
	}
	// vs may be shared with a cache.
	vs = slices.Clone(vs)
	slices.SortStableFunc(vs, func(a, b registry.Version) int {
		return version.Compare(r.versions, a.Number, b.Number)
	})
	return vs, nil
}
