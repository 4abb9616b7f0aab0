package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.iso")
	require.NoError(t, os.WriteFile(path, []byte("0123456789abcdef"), 0644))

	l := NewLocalFileLoader(path)
	defer l.Close()

	assert.True(t, l.Exists())
	assert.Equal(t, int64(16), l.FileSize())
	assert.Equal(t, path, l.Path())

	buf := make([]byte, 4)
	n := ReadElements(l, 10, 1, 4, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(buf))

	// Short read at the end of the file is not an error
	buf = make([]byte, 8)
	n = ReadElements(l, 12, 2, 4, buf)
	assert.Equal(t, 4, n)
	assert.Equal(t, "cdef", string(buf[:n]))
}

func TestLocalFileLoaderMissing(t *testing.T) {
	l := NewLocalFileLoader(filepath.Join(t.TempDir(), "missing.iso"))

	assert.False(t, l.Exists())
	assert.Equal(t, int64(0), l.FileSize())

	_, err := l.ReadAt(make([]byte, 1), 0)
	assert.True(t, errors.Is(err, ErrSourceNotFound))
	assert.Equal(t, 0, ReadElements(l, 0, 1, 1, make([]byte, 1)))
}

func TestLocalFileLoaderDirectory(t *testing.T) {
	l := NewLocalFileLoader(t.TempDir())
	assert.False(t, l.Exists())
}

func TestReadElementsBounds(t *testing.T) {
	m := NewMemoryLoader("mem", []byte("hello world"))

	tests := []struct {
		name        string
		offset      int64
		elementSize int
		count       int
		bufSize     int
		expected    int
	}{
		{"whole", 0, 1, 11, 11, 11},
		{"elements", 0, 4, 2, 8, 8},
		{"buffer smaller than request", 0, 4, 4, 5, 5},
		{"past end", 20, 1, 4, 4, 0},
		{"zero element size", 0, 0, 4, 4, 0},
		{"negative offset", -1, 1, 4, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ReadElements(m, tt.offset, tt.elementSize, tt.count, make([]byte, tt.bufSize))
			assert.Equal(t, tt.expected, n)
		})
	}
}
