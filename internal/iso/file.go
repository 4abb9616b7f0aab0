package iso

import "io"

// File is an open file with the standard io interfaces
type File struct {
	fs   *FileSystem
	h    Handle
	info FileInfo
}

var (
	_ io.Reader   = (*File)(nil)
	_ io.ReaderAt = (*File)(nil)
	_ io.Seeker   = (*File)(nil)
	_ io.Closer   = (*File)(nil)
)

// Open opens p for reading
func (fs *FileSystem) Open(p string) (*File, error) {
	h, err := fs.OpenFile(p, AccessRead)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, h: h, info: fs.GetFileInfo(p)}, nil
}

// Handle returns the underlying handle
func (f *File) Handle() Handle { return f.h }

// Stat returns the description captured at open time
func (f *File) Stat() FileInfo { return f.info }

// Read implements io.Reader
func (f *File) Read(p []byte) (int, error) {
	n, err := f.fs.ReadFile(f.h, p)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

// ReadAt implements io.ReaderAt
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.fs.ReadFileAt(f.h, p, off)
	if err == nil && n < len(p) {
		return n, io.EOF
	}
	return n, err
}

// Seek implements io.Seeker
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.fs.SeekFile(f.h, offset, whence)
}

// Close implements io.Closer
func (f *File) Close() error {
	return f.fs.CloseFile(f.h)
}
