// Package loader provides the byte sources disc images are read from.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"umdfs/internal/logging"
)

var (
	loaderLogger = logging.GetLogger().WithPrefix("loader")

	// ErrSourceNotFound indicates the byte source is absent or unreadable
	ErrSourceNotFound = errors.New("source not found")
)

// Loader is a random-access byte source.
type Loader interface {
	io.ReaderAt

	// Exists reports whether the source is present and readable
	Exists() bool
	// FileSize returns the total size of the source in bytes
	FileSize() int64
	// Path identifies the source in messages
	Path() string
	// Close releases the source
	Close() error
}

// ReadElements reads up to count elements of elementSize bytes starting at
// offset into buf and returns the number of bytes read. A short read at the
// end of the source is not an error; failures are logged and reported as
// the bytes read before them.
func ReadElements(l Loader, offset int64, elementSize, count int, buf []byte) int {
	if elementSize <= 0 || count <= 0 || offset < 0 {
		return 0
	}
	want := elementSize * count
	if want > len(buf) {
		want = len(buf)
	}

	n, err := l.ReadAt(buf[:want], offset)
	if err != nil && err != io.EOF {
		loaderLogger.Warn("Read of %d bytes at %d from %s failed: %v", want, offset, l.Path(), err)
	}
	return n
}

// LocalFileLoader reads from a file on the host filesystem.
type LocalFileLoader struct {
	path string
	file *os.File
	size int64
	mu   sync.Mutex
}

// NewLocalFileLoader opens path for reading. A missing or unreadable file
// does not fail here; the returned loader reports Exists() == false.
func NewLocalFileLoader(path string) *LocalFileLoader {
	l := &LocalFileLoader{path: path}

	f, err := os.Open(path)
	if err != nil {
		loaderLogger.Debug("Cannot open %s: %v", path, err)
		return l
	}

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		loaderLogger.Debug("Cannot use %s as a byte source (err=%v)", path, err)
		f.Close()
		return l
	}

	l.file = f
	l.size = info.Size()
	loaderLogger.Debug("Opened %s (%d bytes)", path, l.size)
	return l
}

// Exists reports whether the file was opened successfully
func (l *LocalFileLoader) Exists() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// FileSize returns the file size captured when it was opened
func (l *LocalFileLoader) FileSize() int64 {
	return l.size
}

// Path returns the host path of the file
func (l *LocalFileLoader) Path() string {
	return l.path
}

// ReadAt implements io.ReaderAt
func (l *LocalFileLoader) ReadAt(p []byte, off int64) (int, error) {
	l.mu.Lock()
	f := l.file
	l.mu.Unlock()

	if f == nil {
		return 0, fmt.Errorf("%s: %w", l.path, ErrSourceNotFound)
	}
	return f.ReadAt(p, off)
}

// Close closes the underlying file
func (l *LocalFileLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// MemoryLoader serves an in-memory image.
type MemoryLoader struct {
	name string
	data []byte
}

// NewMemoryLoader wraps data. The slice is not copied.
func NewMemoryLoader(name string, data []byte) *MemoryLoader {
	return &MemoryLoader{name: name, data: data}
}

// Exists always returns true
func (m *MemoryLoader) Exists() bool { return true }

// FileSize returns len(data)
func (m *MemoryLoader) FileSize() int64 { return int64(len(m.data)) }

// Path returns the name given at construction
func (m *MemoryLoader) Path() string { return m.name }

// Close is a no-op
func (m *MemoryLoader) Close() error { return nil }

// ReadAt implements io.ReaderAt
func (m *MemoryLoader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
