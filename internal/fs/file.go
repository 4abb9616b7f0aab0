package fs

import (
	"context"
	"os"
	"strconv"

	"umdfs/internal/iso"
	"umdfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// Extended attributes published for every file
const (
	XattrStartSector = "user.iso.start_sector"
	XattrNumSectors  = "user.iso.num_sectors"
	XattrFormat      = "user.iso.format"
)

// File represents a regular file of the mounted volume.
type File struct {
	fs   *ISOFS
	path *VirtualPath
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	fileLogger.Trace("Getting attributes for file: %q", f.path.String())

	info, err := f.fs.fsys.Stat(f.path.String())
	if err != nil {
		fileLogger.Warn("File disappeared: %q: %v", f.path.String(), err)
		return ToFuseError(err)
	}

	a.Inode = inodeFor(info)
	a.Mode = 0444
	a.Size = safeInt64ToUint64(info.Size)
	a.Mtime = info.ModTime
	a.Atime = info.ModTime // Volumes carry one timestamp per record
	a.Ctime = info.ModTime
	a.Uid = f.fs.uid
	a.Gid = f.fs.gid
	a.BlockSize = 2048
	a.Blocks = statBlocks(info.Size)
	a.Nlink = 1

	fileLogger.Trace("File attributes: mode=%v, size=%d, mtime=%v",
		a.Mode, a.Size, a.Mtime)
	return nil
}

// Open implements the NodeOpener interface, allocating a session handle.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	flags := int(req.Flags)
	fileLogger.Debug("Opening file %q with flags %v", f.path.String(), flags)

	mode := iso.AccessRead
	if flags&(os.O_WRONLY|os.O_RDWR) != 0 {
		mode |= iso.AccessWrite
	}
	if flags&os.O_TRUNC != 0 {
		mode |= iso.AccessTruncate
	}
	if flags&os.O_APPEND != 0 {
		mode |= iso.AccessAppend
	}

	h, err := f.fs.fsys.OpenFile(f.path.String(), mode)
	if err != nil {
		fileLogger.Warn("Failed to open %q: %v", f.path.String(), err)
		return nil, ToFuseError(err)
	}

	if f.fs.DirectIO {
		resp.Flags |= fuse.OpenDirectIO
	} else {
		resp.Flags |= fuse.OpenKeepCache
	}

	fileLogger.Debug("Successfully opened file %q as handle %d", f.path.String(), h)
	return &FileHandle{
		fs:     f.fs,
		handle: h,
		path:   f.path.String(),
	}, nil
}

// xattrs returns the read-only extended attributes describing the file
func (f *File) xattrs() (map[string][]byte, error) {
	info, err := f.fs.fsys.Stat(f.path.String())
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		XattrStartSector: []byte(strconv.FormatUint(uint64(info.StartSector), 10)),
		XattrNumSectors:  []byte(strconv.FormatUint(uint64(info.NumSectors), 10)),
		XattrFormat:      []byte(f.fs.fsys.Device().Format().String()),
	}, nil
}

// Getxattr implements the NodeGetxattrer interface, retrieving an extended attribute.
func (f *File) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	fileLogger.Debug("Getting xattr %q for file %q", req.Name, f.path.String())

	attrs, err := f.xattrs()
	if err != nil {
		return ToFuseError(err)
	}

	value, exists := attrs[req.Name]
	if !exists {
		fileLogger.Trace("Xattr %q not found for %q", req.Name, f.path.String())
		return fuse.ErrNoXattr
	}

	resp.Xattr = value
	fileLogger.Trace("Retrieved xattr %q: %d bytes", req.Name, len(value))
	return nil
}

// Listxattr implements the NodeListxattrer interface, listing all extended attributes.
func (f *File) Listxattr(_ context.Context, _ *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	fileLogger.Debug("Listing xattrs for file %q", f.path.String())
	resp.Append(XattrStartSector, XattrNumSectors, XattrFormat)
	return nil
}

// FileHandle is an open session handle.
type FileHandle struct {
	fs     *ISOFS
	handle iso.Handle
	path   string // For logging purposes
}

// Read implements the HandleReader interface, reading data from the file.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fileLogger.Trace("Reading %d bytes from file %q at offset %d",
		req.Size, fh.path, req.Offset)

	buf := make([]byte, req.Size)
	n, err := fh.fs.fsys.ReadFileAt(fh.handle, buf, req.Offset)
	if err != nil {
		fileLogger.Error("Failed to read from file: %v", err)
		return ToFuseError(err)
	}

	resp.Data = buf[:n]
	fileLogger.Trace("Successfully read %d bytes", n)
	return nil
}

// Release implements the HandleReleaser interface, closing the session handle.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fileLogger.Debug("Closing file %q (handle %d)", fh.path, fh.handle)
	return ToFuseError(fh.fs.fsys.CloseFile(fh.handle))
}
