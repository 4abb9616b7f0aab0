// Package fs exposes an ISO9660 session as a read-only FUSE filesystem.
//
// This file contains error types and error handling utilities.
package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"umdfs/internal/blockdev"
	"umdfs/internal/iso"
	"umdfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")
)

// FSError (renamed to Error because of linter) wraps filesystem
// errors with context about the FUSE operation and affected path.
type Error struct {
	Op   string // Operation that failed (e.g., "lookup", "readdir")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// errnoTable lists session errors in match order. ErrNotADirectory also
// matches ErrNotFound so it has to come first.
var errnoTable = []struct {
	err   error
	errno syscall.Errno
}{
	{iso.ErrNotADirectory, syscall.ENOTDIR},
	{iso.ErrNotFound, syscall.ENOENT},
	{iso.ErrIsADirectory, syscall.EISDIR},
	{iso.ErrInvalidHandle, syscall.EBADF},
	{iso.ErrReadOnly, syscall.EROFS},
	{iso.ErrInvalidSeek, syscall.EINVAL},
	{iso.ErrHandlesExhausted, syscall.EMFILE},
	{iso.ErrClosed, syscall.EIO},
	{blockdev.ErrBlockOutOfRange, syscall.EIO},
	{os.ErrNotExist, syscall.ENOENT},
	{os.ErrPermission, syscall.EACCES},
}

// ToFuseError converts an error to the errno FUSE reports to the caller.
// Unknown errors become EIO.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	for _, e := range errnoTable {
		if errors.Is(err, e.err) {
			errLogger.Trace("Mapped %v to %v", err, e.errno)
			return e.errno
		}
	}

	errLogger.Debug("Unknown error type, returning EIO: %v", err)
	return syscall.EIO
}

// NewFSError creates a new FSError with the given operation, path, and underlying error
func NewFSError(op string, path string, err error) *Error {
	fsErr := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Debug("Created new FSError: %v", fsErr)
	return fsErr
}

// Common operation names for consistent logging and error reporting
const (
	OpLookup  = "lookup"  // Looking up a path
	OpReadDir = "readdir" // Reading directory contents
	OpOpen    = "open"    // Opening a file
	OpRead    = "read"    // Reading from a file
	OpMkdir   = "mkdir"   // Creating a new directory
	OpRemove  = "remove"  // Removing a file or directory
	OpRename  = "rename"  // Renaming/moving a file or directory
)
