package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/registry"
)

// Latest is the version alias that resolves to a package's greatest version.
const Latest = "latest"

// Address is a logical archive address: package, version (or Latest), and a
// sub-path of plain segments. Use NewAddress or ParseAddress to build one.
type Address struct {
	Package string
	Version string
	Path    []string
}

// NewAddress builds a validated address.
func NewAddress(pkg, version string, path ...string) (Address, error) {
	a := Address{Package: pkg, Version: version, Path: path}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

// ParseAddress parses "package/version[/sub/path]". Empty segments produced by
// repeated or trailing slashes are ignored.
func ParseAddress(s string) (Address, error) {
	var parts []string
	for _, p := range strings.Split(s, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return Address{}, fmt.Errorf("%q: need package and version: %w", s, archerr.ErrInvalidAddress)
	}
	return NewAddress(parts[0], parts[1], parts[2:]...)
}

// Validate checks that every segment is a plain name: non-empty, not "." or
// "..", and free of path separators and NUL bytes.
func (a Address) Validate() error {
	if err := ValidateSegment(a.Package); err != nil {
		return fmt.Errorf("package: %w", err)
	}
	if err := ValidateSegment(a.Version); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	for _, seg := range a.Path {
		if err := ValidateSegment(seg); err != nil {
			return fmt.Errorf("path: %w", err)
		}
	}
	return nil
}

// ValidateSegment checks a single address segment.
func ValidateSegment(seg string) error {
	switch {
	case seg == "":
		return fmt.Errorf("empty segment: %w", archerr.ErrInvalidAddress)
	case seg == "." || seg == "..":
		return fmt.Errorf("%q: %w", seg, archerr.ErrInvalidAddress)
	case strings.ContainsRune(seg, '/'),
		strings.ContainsRune(seg, filepath.Separator),
		strings.ContainsRune(seg, 0):
		return fmt.Errorf("%q: separator in segment: %w", seg, archerr.ErrInvalidAddress)
	}
	return nil
}

// IsLatest reports whether the version is the Latest alias.
func (a Address) IsLatest() bool { return a.Version == Latest }

// SubPath returns the slash-joined sub-path, empty at a package root.
func (a Address) SubPath() string { return strings.Join(a.Path, "/") }

// WithVersion returns a copy of a addressing another version.
func (a Address) WithVersion(v string) Address {
	return Address{Package: a.Package, Version: v, Path: append([]string(nil), a.Path...)}
}

// String returns the canonical "package/version[/sub/path]" form.
func (a Address) String() string {
	s := a.Package + "/" + a.Version
	if len(a.Path) > 0 {
		s += "/" + a.SubPath()
	}
	return s
}

// Kind classifies a resolved location.
type Kind int

const (
	// KindPackage is a package/version root (empty sub-path).
	KindPackage Kind = iota + 1
	KindDirectory
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Location is a resolved address. PhysicalPath is absolute and always inside
// the archive root, reached without traversing any symbolic link.
type Location struct {
	Package      string
	Version      string
	Path         []string
	PhysicalPath string
	Kind         Kind
	VCS          *registry.VCS

	root *os.Root
}

// Address returns the concrete address of the location.
func (l *Location) Address() Address {
	return Address{Package: l.Package, Version: l.Version, Path: append([]string(nil), l.Path...)}
}

// SubPath returns the slash-joined sub-path, empty at a package root.
func (l *Location) SubPath() string { return strings.Join(l.Path, "/") }

// Name returns the deepest element of the location: the last path segment,
// or the version at a package root.
func (l *Location) Name() string {
	if len(l.Path) == 0 {
		return l.Version
	}
	return l.Path[len(l.Path)-1]
}

// Resolution is the outcome of resolving an address: either a final Location
// or, for the Latest alias, the concrete address the caller should re-issue.
type Resolution struct {
	Location *Location
	Redirect *Address
}

// IsRedirect reports whether the caller must re-issue Redirect.
func (r Resolution) IsRedirect() bool { return r.Redirect != nil }
