// Package iso reads ISO9660 volumes from a block device.
//
// This file contains error types and error handling utilities.
package iso

import (
	"errors"
	"fmt"

	"umdfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("iso.error")

	// ErrNotAVolume indicates block 16 does not hold a volume descriptor
	ErrNotAVolume = errors.New("not an ISO9660 volume")

	// ErrNotFound indicates a path does not resolve to an entry
	ErrNotFound = errors.New("path not found")

	// ErrIsADirectory indicates a file operation on a directory
	ErrIsADirectory = errors.New("is a directory")

	// ErrNotADirectory indicates a path traverses a regular file. It also
	// matches ErrNotFound.
	ErrNotADirectory error = &kindError{msg: "not a directory", also: ErrNotFound}

	// ErrInvalidHandle indicates a handle that is not open
	ErrInvalidHandle = errors.New("invalid file handle")

	// ErrReadOnly indicates an attempt to open a file for writing
	ErrReadOnly = errors.New("filesystem is read-only")

	// ErrInvalidSeek indicates a seek to a negative offset
	ErrInvalidSeek = errors.New("invalid seek")

	// ErrHandlesExhausted indicates the handle table cannot allocate more ids
	ErrHandlesExhausted = errors.New("no file handles available")

	// ErrClosed indicates an operation on a session after Close
	ErrClosed = errors.New("filesystem is closed")
)

// kindError is a sentinel that also matches a broader sentinel
type kindError struct {
	msg  string
	also error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.also }

// Error wraps errors with the operation and path that failed
type Error struct {
	Op   string // Operation that failed (e.g., "open", "read")
	Path string // Affected path, if any
	Err  error  // Underlying error
}

// Error implements the error interface
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

// newError creates an Error for op on path
func newError(op, path string, err error) *Error {
	e := &Error{Op: op, Path: path, Err: err}
	errLogger.Trace("%v", e)
	return e
}

// Operation names used in errors and log messages
const (
	OpParse   = "parse"   // Reading the volume descriptor
	OpResolve = "resolve" // Walking a path
	OpReadDir = "readdir" // Listing a directory
	OpOpen    = "open"    // Opening a file
	OpRead    = "read"    // Reading from a handle
	OpSeek    = "seek"    // Moving a handle's cursor
	OpClose   = "close"   // Closing a handle
)
