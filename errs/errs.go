// Package errs defines the error taxonomy shared by every layer of the
// FAT32 driver: the page cache, the FAT table, the directory codec, and the
// VFS glue. Each layer constructs these where it detects a failure; callers
// usually propagate them unchanged, and aggregated failures are wrapped in
// ErrGeneral.
package errs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// FsError is a closed set of error codes. Unlike POSIX errno, these codes
// are specific to the page-cache / FAT / VFS boundary described by the
// driver and have no universal system-level equivalent.
type FsError string

const (
	// Page cache errors.
	ErrOutOfBounds   = FsError("page cache: address out of bounds")
	ErrInvalid       = FsError("page cache: handle closed or invalid")
	ErrFinfoNotFound = FsError("page cache: file info not found")
	ErrDeplete       = FsError("page cache: buffer pool depleted")
	ErrBadPages      = FsError("page cache: corrupt page list")
	ErrPageNotFound  = FsError("page cache: page not buffered")

	// VFS / FAT errors.
	ErrBadArguments           = FsError("vfs: bad arguments")
	ErrInvalidNodeStructure   = FsError("vfs: invalid node structure")
	ErrCacheFull              = FsError("vfs: page cache full")
	ErrGeneral                = FsError("vfs: general error")
	ErrNoSpace                = FsError("vfs: no space left on volume")
	ErrNotFound               = FsError("vfs: no such file or directory")
	ErrExists                 = FsError("vfs: file exists")
	ErrNotADirectory          = FsError("vfs: not a directory")
	ErrDirectoryNotEmpty      = FsError("vfs: directory not empty")
	ErrNotImplemented         = FsError("vfs: not implemented")
	ErrCrossDevice            = FsError("vfs: cross-device move not supported")
)

// DriverError is the error type returned by every public operation in this
// module. It wraps an FsError code with an optional contextual message and
// an optional cause, chainable without losing the original code.
type DriverError interface {
	error
	Code() FsError
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
	Unwrap() error
}

type driverError struct {
	code    FsError
	message string
	cause   error
}

func (e FsError) Error() string { return string(e) }

// Code lets callers recover the closed error code from this FsError acting
// as a DriverError (the zero-value/default case with no extra context).
func (e FsError) Code() FsError { return e }

func (e FsError) WithMessage(message string) DriverError {
	return driverError{code: e, message: fmt.Sprintf("%s: %s", string(e), message)}
}

func (e FsError) WrapError(err error) DriverError {
	return driverError{code: e, message: fmt.Sprintf("%s: %s", string(e), err.Error()), cause: err}
}

func (e FsError) Unwrap() error { return nil }

func (e driverError) Error() string {
	if e.message != "" {
		return e.message
	}
	return string(e.code)
}

func (e driverError) Code() FsError { return e.code }

func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		code:    e.code,
		message: fmt.Sprintf("%s: %s", e.Error(), message),
		cause:   e.cause,
	}
}

func (e driverError) WrapError(err error) DriverError {
	return driverError{
		code:    e.code,
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		cause:   err,
	}
}

func (e driverError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, SomeFsError) succeed even after WithMessage/WrapError
// have wrapped the original code in a driverError.
func (e driverError) Is(target error) bool {
	code, ok := target.(FsError)
	return ok && e.code == code
}

// New constructs a DriverError from a code with no extra context.
func New(code FsError) DriverError {
	return driverError{code: code, message: string(code)}
}

// NewWithMessage constructs a DriverError from a code with an added message.
func NewWithMessage(code FsError, message string) DriverError {
	return code.WithMessage(message)
}

// Combine folds zero or more errors (nil entries ignored) into a single
// error using hashicorp/go-multierror, for operations that must keep going
// after a partial failure: a ranged Sync that can't flush every dirty
// page, or a directory walk that hits one corrupted cluster among several.
// Returns nil if every argument was nil.
func Combine(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result == nil {
		return nil
	}
	return result
}
