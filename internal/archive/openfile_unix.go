//go:build unix

package archive

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/debsources/debsources/internal/archerr"
)

// openNoFollow opens name read-only, failing with archerr.ErrSymlinkDenied if
// the final component is a symbolic link. Errors omit name; callers add the
// archive address. O_NONBLOCK keeps a FIFO swapped in after resolution from
// blocking the reader.
func openNoFollow(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ELOOP) {
			return nil, archerr.ErrSymlinkDenied
		}
		return nil, errors.Unwrap(err)
	}
	return f, nil
}
