// Package archerr defines the error taxonomy shared by the archive core.
//
// Callers match kinds with errors.Is and pick a response class with ClassOf.
package archerr

import "errors"

// Sentinel errors. Every error returned by the core wraps exactly one of these.
var (
	ErrUnknownPackage      = errors.New("unknown package")
	ErrUnknownVersion      = errors.New("unknown version")
	ErrNotFound            = errors.New("not found")
	ErrSymlinkDenied       = errors.New("symbolic link denied")
	ErrInvalidChecksum     = errors.New("invalid checksum")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrRegistryUnavailable = errors.New("registry unavailable")
)

// Class is a presentation-neutral response class for an error.
type Class int

const (
	ClassInternal Class = iota
	ClassNotFound
	ClassForbidden
	ClassBadRequest
	ClassUnavailable
)

func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassForbidden:
		return "forbidden"
	case ClassBadRequest:
		return "bad_request"
	case ClassUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// ClassOf maps an error to its response class.
// SymlinkDenied is checked first so it is never reported as a plain miss.
func ClassOf(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrSymlinkDenied):
		return ClassForbidden
	case errors.Is(err, ErrUnknownPackage),
		errors.Is(err, ErrUnknownVersion),
		errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrInvalidChecksum), errors.Is(err, ErrInvalidAddress):
		return ClassBadRequest
	case errors.Is(err, ErrRegistryUnavailable):
		return ClassUnavailable
	default:
		return ClassInternal
	}
}

// Kind returns a short label for the sentinel wrapped by err, for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSymlinkDenied):
		return "symlink_denied"
	case errors.Is(err, ErrUnknownPackage):
		return "unknown_package"
	case errors.Is(err, ErrUnknownVersion):
		return "unknown_version"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidChecksum):
		return "invalid_checksum"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrRegistryUnavailable):
		return "registry_unavailable"
	default:
		return "error"
	}
}

// Retryable reports whether a caller may retry the failed operation.
// Resolution errors are deterministic in archive state; only registry outages qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrRegistryUnavailable)
}
