package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"umdfs/internal/iso"
)

func TestToFuseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"not found", &iso.Error{Op: iso.OpResolve, Path: "/X", Err: iso.ErrNotFound}, syscall.ENOENT},
		{"not a directory", &iso.Error{Op: iso.OpResolve, Path: "/X/Y", Err: iso.ErrNotADirectory}, syscall.ENOTDIR},
		{"is a directory", iso.ErrIsADirectory, syscall.EISDIR},
		{"invalid handle", iso.ErrInvalidHandle, syscall.EBADF},
		{"read only", NewFSError(OpMkdir, "/X", iso.ErrReadOnly), syscall.EROFS},
		{"invalid seek", iso.ErrInvalidSeek, syscall.EINVAL},
		{"handles exhausted", iso.ErrHandlesExhausted, syscall.EMFILE},
		{"closed", NewFSError(OpOpen, "/X", iso.ErrClosed), syscall.EIO},
		{"wrapped twice", NewFSError(OpLookup, "/X", fmt.Errorf("resolve: %w", iso.ErrNotFound)), syscall.ENOENT},
		{"os not exist", os.ErrNotExist, syscall.ENOENT},
		{"os permission", os.ErrPermission, syscall.EACCES},
		{"errno passes through", syscall.ENOSPC, syscall.ENOSPC},
		{"unknown", errors.New("boom"), syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToFuseError(tt.err); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFSErrorMessage(t *testing.T) {
	err := NewFSError(OpLookup, "/PSP_GAME", iso.ErrNotFound)
	if got := err.Error(); got != "operation lookup on /PSP_GAME failed: path not found" {
		t.Errorf("Unexpected message %q", got)
	}
	if !errors.Is(err, iso.ErrNotFound) {
		t.Error("Expected FSError to unwrap to its cause")
	}

	bare := NewFSError(OpRead, "", iso.ErrInvalidHandle)
	if got := bare.Error(); got != "operation read failed: invalid file handle" {
		t.Errorf("Unexpected message %q", got)
	}
}
