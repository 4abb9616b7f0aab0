package iso

import (
	"math"
	"sync"
)

// Handle identifies an open file. Valid handles are positive.
type Handle int32

// InvalidHandle is returned alongside an error when no handle was opened
const InvalidHandle Handle = -1

// AccessMode describes how a file is opened
type AccessMode int

const (
	AccessRead AccessMode = 1 << iota
	AccessWrite
	AccessAppend
	AccessCreate
	AccessTruncate
)

// Writable reports whether the mode asks for any modification
func (m AccessMode) Writable() bool {
	return m&(AccessWrite|AccessAppend|AccessCreate|AccessTruncate) != 0
}

// openFile is the state behind a handle
type openFile struct {
	path  string
	start uint32 // first sector
	size  int64

	mu  sync.Mutex // guards pos
	pos int64
}

// HandleTable maps handles to open files. Ids increase monotonically
// from 1 and are never reused within a session.
type HandleTable struct {
	mu    sync.Mutex
	next  Handle
	max   int
	files map[Handle]*openFile
}

func newHandleTable(limit int) *HandleTable {
	return &HandleTable{
		next:  1,
		max:   limit,
		files: make(map[Handle]*openFile),
	}
}

// add registers f and returns its handle
func (t *HandleTable) add(f *openFile) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.next == math.MaxInt32 || (t.max > 0 && len(t.files) >= t.max) {
		return InvalidHandle, ErrHandlesExhausted
	}
	h := t.next
	t.next++
	t.files[h] = f
	return h, nil
}

func (t *HandleTable) get(h Handle) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[h]
	return f, ok
}

func (t *HandleTable) remove(h Handle) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[h]
	if ok {
		delete(t.files, h)
	}
	return f, ok
}

// Len returns the number of open handles
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// closeAll drops every open handle and returns how many there were
func (t *HandleTable) closeAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.files)
	t.files = make(map[Handle]*openFile)
	return n
}
