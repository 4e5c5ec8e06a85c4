//go:build !unix

package archive

import (
	"errors"
	"io/fs"
	"os"

	"github.com/debsources/debsources/internal/archerr"
)

// openNoFollow opens name read-only, failing with archerr.ErrSymlinkDenied if
// the final component is a symbolic link. Errors omit name; callers add the
// archive address.
func openNoFollow(name string) (*os.File, error) {
	info, err := os.Lstat(name)
	if err != nil {
		return nil, errors.Unwrap(err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, archerr.ErrSymlinkDenied
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Unwrap(err)
	}
	return f, nil
}
