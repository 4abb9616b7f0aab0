package fs

import (
	"context"
	"os"

	"umdfs/internal/iso"
	"umdfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory of the mounted volume.
type Dir struct {
	fs   *ISOFS
	path *VirtualPath
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory: %q", d.path.String())

	info, err := d.fs.fsys.Stat(d.path.String())
	if err != nil {
		dirLogger.Debug("Stat failed for %q: %v", d.path.String(), err)
		return ToFuseError(err)
	}

	if !d.path.IsRoot() {
		a.Inode = inodeFor(info)
	}
	a.Mode = os.ModeDir | 0555
	a.Uid = d.fs.uid
	a.Gid = d.fs.gid
	a.Size = safeInt64ToUint64(info.Size)
	a.Mtime = info.ModTime
	a.Atime = info.ModTime
	a.Ctime = info.ModTime
	a.BlockSize = 2048
	a.Nlink = 2
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	dirLogger.Debug("Looking up %q in directory %q", name, d.path.String())
	childPath := d.path.Join(name)

	info, err := d.fs.fsys.Stat(childPath.String())
	if err != nil {
		dirLogger.Debug("Path not found: %q", childPath.String())
		return nil, ToFuseError(NewFSError(OpLookup, childPath.String(), err))
	}

	// Use the on-disk spelling so case-folded lookups report one path
	childPath = NewVirtualPath(info.Path)
	if info.IsDir() {
		return &Dir{fs: d.fs, path: childPath}, nil
	}
	return &File{fs: d.fs, path: childPath}, nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents: %q", d.path.String())

	list, err := d.fs.fsys.ReadDir(d.path.String())
	if err != nil {
		dirLogger.Warn("Cannot list %q: %v", d.path.String(), err)
		return nil, ToFuseError(NewFSError(OpReadDir, d.path.String(), err))
	}

	entries := make([]fuse.Dirent, 0, len(list)+2)
	entries = append(entries, fuse.Dirent{Name: ".", Type: fuse.DT_Dir})
	entries = append(entries, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})

	for _, fi := range list {
		dirent := fuse.Dirent{
			Inode: inodeFor(fi),
			Name:  fi.Name,
			Type:  fuse.DT_File,
		}
		if fi.IsDir() {
			dirent.Type = fuse.DT_Dir
		}
		dirLogger.Trace("Found entry: %q (%v)", fi.Name, fi.Type)
		entries = append(entries, dirent)
	}

	dirLogger.Debug("Directory %q contains %d entries", d.path.String(), len(entries))
	return entries, nil
}

// Mkdir implements the NodeMkdirer interface. The volume is read-only.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	dirLogger.Warn("Rejecting mkdir of %q in %q", req.Name, d.path.String())
	return nil, ToFuseError(NewFSError(OpMkdir, d.path.Join(req.Name).String(), iso.ErrReadOnly))
}

// Remove implements the NodeRemover interface. The volume is read-only.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	dirLogger.Warn("Rejecting remove of %q in %q", req.Name, d.path.String())
	return ToFuseError(NewFSError(OpRemove, d.path.Join(req.Name).String(), iso.ErrReadOnly))
}

// Rename implements the NodeRenamer interface. The volume is read-only.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, _ fusefs.Node) error {
	dirLogger.Warn("Rejecting rename of %q to %q", req.OldName, req.NewName)
	return ToFuseError(NewFSError(OpRename, d.path.Join(req.OldName).String(), iso.ErrReadOnly))
}
