package iso

import (
	"errors"
	"io"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"umdfs/internal/blockdev"
	"umdfs/internal/loader"
	"umdfs/internal/logging"
)

var fsLogger = logging.GetLogger().WithPrefix("iso")

// FileType distinguishes regular files from directories
type FileType int

const (
	FileTypeFile FileType = iota
	FileTypeDirectory
)

func (t FileType) String() string {
	if t == FileTypeDirectory {
		return "directory"
	}
	return "file"
}

// FileInfo describes an entry. A zero FileInfo (Exists == false) reports
// a path that did not resolve.
type FileInfo struct {
	Exists      bool
	Name        string
	Path        string
	Type        FileType
	Size        int64
	StartSector uint32
	NumSectors  uint32
	ModTime     time.Time
	Hidden      bool
}

// IsDir reports whether the entry is a directory
func (fi FileInfo) IsDir() bool { return fi.Exists && fi.Type == FileTypeDirectory }

func infoFor(e *Entry) FileInfo {
	fi := FileInfo{
		Exists:      true,
		Name:        e.Name,
		Path:        e.Path(),
		Type:        FileTypeFile,
		Size:        int64(e.Extent.Size),
		StartSector: e.Extent.Extent,
		NumSectors:  e.Extent.Sectors(),
		ModTime:     e.ModTime,
		Hidden:      e.Hidden,
	}
	if e.Dir {
		fi.Type = FileTypeDirectory
	}
	return fi
}

// FileSystem is a session over one mounted volume. All methods are safe
// for concurrent use.
type FileSystem struct {
	dev     blockdev.BlockDevice
	volume  *VolumeDescriptor
	tree    *Tree
	handles *HandleTable

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New parses the volume on dev. The session takes ownership of dev.
func New(dev blockdev.BlockDevice, opts Options) (*FileSystem, error) {
	vd, err := ParseVolume(dev)
	if err != nil {
		return nil, err
	}

	fsLogger.Info("Loaded volume %q (%s, %d blocks)", vd.Label, dev.Format(), dev.NumBlocks())
	return &FileSystem{
		dev:     dev,
		volume:  vd,
		tree:    NewTree(dev, vd.Root, vd.RootTime, opts.CaseSensitive),
		handles: newHandleTable(opts.MaxHandles),
	}, nil
}

// Load opens the image at path, detects its format and parses the volume.
func Load(p string, opts Options) (*FileSystem, error) {
	l := loader.NewLocalFileLoader(p)
	dev, err := blockdev.Construct(l, opts.deviceOptions()...)
	if err != nil {
		l.Close()
		return nil, err
	}

	fsys, err := New(dev, opts)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return fsys, nil
}

// Volume returns the parsed primary volume descriptor
func (fs *FileSystem) Volume() *VolumeDescriptor { return fs.volume }

// Device returns the underlying block device
func (fs *FileSystem) Device() blockdev.BlockDevice { return fs.dev }

// Tree returns the directory tree
func (fs *FileSystem) Tree() *Tree { return fs.tree }

// Stat resolves p and describes it. Raw sector paths are accepted.
func (fs *FileSystem) Stat(p string) (FileInfo, error) {
	if fs.closed.Load() {
		return FileInfo{}, newError(OpResolve, p, ErrClosed)
	}
	if start, size, ok := parseRawSectorPath(p); ok {
		return fs.rawSectorInfo(p, start, size)
	}

	e, err := fs.tree.Resolve(p)
	if err != nil {
		return FileInfo{}, err
	}
	return infoFor(e), nil
}

// GetFileInfo is Stat without an error: a missing path yields a FileInfo
// with Exists == false.
func (fs *FileSystem) GetFileInfo(p string) FileInfo {
	fi, err := fs.Stat(p)
	if err != nil {
		fsLogger.Trace("GetFileInfo(%s): %v", p, err)
		return FileInfo{}
	}
	return fi
}

// ReadDir lists directory p in on-disk order
func (fs *FileSystem) ReadDir(p string) ([]FileInfo, error) {
	if fs.closed.Load() {
		return nil, newError(OpReadDir, p, ErrClosed)
	}
	e, err := fs.tree.Resolve(p)
	if err != nil {
		return nil, err
	}
	if !e.Dir {
		return nil, newError(OpReadDir, p, ErrNotADirectory)
	}

	children := fs.tree.Children(e)
	out := make([]FileInfo, 0, len(children))
	for _, c := range children {
		out = append(out, infoFor(c))
	}
	return out, nil
}

// GetDirListing is ReadDir reporting failure as false
func (fs *FileSystem) GetDirListing(p string) ([]FileInfo, bool) {
	list, err := fs.ReadDir(p)
	if err != nil {
		fsLogger.Trace("GetDirListing(%s): %v", p, err)
		return nil, false
	}
	return list, true
}

// rawSectorInfo describes a synthetic file covering sectors directly,
// clamped to the device.
func (fs *FileSystem) rawSectorInfo(p string, start, size uint32) (FileInfo, error) {
	total := fs.dev.NumBlocks()
	if start >= total {
		return FileInfo{}, newError(OpResolve, p, ErrNotFound)
	}
	if avail := uint64(total-start) * sectorSize; uint64(size) > avail {
		size = uint32(avail)
	}
	loc := Locator{Extent: start, Size: size}
	return FileInfo{
		Exists:      true,
		Name:        path.Base(cleanPath(p)),
		Path:        cleanPath(p),
		Type:        FileTypeFile,
		Size:        int64(size),
		StartSector: start,
		NumSectors:  loc.Sectors(),
	}, nil
}

// OpenFile opens the file at p for reading and returns its handle. On
// failure the handle is InvalidHandle.
func (fs *FileSystem) OpenFile(p string, mode AccessMode) (Handle, error) {
	if mode.Writable() {
		return InvalidHandle, newError(OpOpen, p, ErrReadOnly)
	}

	fi, err := fs.Stat(p)
	if err != nil {
		return InvalidHandle, err
	}
	if fi.IsDir() {
		return InvalidHandle, newError(OpOpen, p, ErrIsADirectory)
	}

	h, err := fs.handles.add(&openFile{
		path:  fi.Path,
		start: fi.StartSector,
		size:  fi.Size,
	})
	if err != nil {
		return InvalidHandle, newError(OpOpen, p, err)
	}
	if fs.closed.Load() {
		// Lost a race with Close
		fs.handles.remove(h)
		return InvalidHandle, newError(OpOpen, p, ErrClosed)
	}

	fsLogger.Debug("Opened %s as handle %d (%d bytes at sector %d)", fi.Path, h, fi.Size, fi.StartSector)
	return h, nil
}

// ReadFile reads from the handle's cursor into p and advances the cursor
// by the bytes read. At end of file it returns 0 and no error.
func (fs *FileSystem) ReadFile(h Handle, p []byte) (int, error) {
	f, ok := fs.handles.get(h)
	if !ok {
		return 0, newError(OpRead, "", ErrInvalidHandle)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := fs.readAt(f, p, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadFileAt reads from offset off without moving the cursor
func (fs *FileSystem) ReadFileAt(h Handle, p []byte, off int64) (int, error) {
	f, ok := fs.handles.get(h)
	if !ok {
		return 0, newError(OpRead, "", ErrInvalidHandle)
	}
	if off < 0 {
		return 0, newError(OpRead, f.path, ErrInvalidSeek)
	}
	return fs.readAt(f, p, off)
}

// SeekFile moves the cursor as io.Seeker does. The result is clamped to
// the file size; a negative result fails with ErrInvalidSeek.
func (fs *FileSystem) SeekFile(h Handle, offset int64, whence int) (int64, error) {
	f, ok := fs.handles.get(h)
	if !ok {
		return 0, newError(OpSeek, "", ErrInvalidHandle)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = f.size + offset
	default:
		return f.pos, newError(OpSeek, f.path, ErrInvalidSeek)
	}

	if pos < 0 {
		return f.pos, newError(OpSeek, f.path, ErrInvalidSeek)
	}
	if pos > f.size {
		pos = f.size
	}
	f.pos = pos
	return pos, nil
}

// CloseFile releases h. Closing a handle twice fails with ErrInvalidHandle.
func (fs *FileSystem) CloseFile(h Handle) error {
	f, ok := fs.handles.remove(h)
	if !ok {
		return newError(OpClose, "", ErrInvalidHandle)
	}
	fsLogger.Debug("Closed handle %d (%s)", h, f.path)
	return nil
}

// OpenHandles returns the number of handles currently open
func (fs *FileSystem) OpenHandles() int { return fs.handles.Len() }

// Close drops all open handles and closes the device. Later lookups and
// opens fail with ErrClosed.
func (fs *FileSystem) Close() error {
	fs.closeOnce.Do(func() {
		fs.closed.Store(true)
		if n := fs.handles.closeAll(); n > 0 {
			fsLogger.Debug("Closing %d open handles", n)
		}
		fs.closeErr = fs.dev.Close()
	})
	return fs.closeErr
}

// IsNotFound reports whether err means a path did not resolve
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
