package fs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"umdfs/internal/iso"
	"umdfs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// ISOFS exposes an iso.FileSystem session through FUSE. The mount is
// read-only; every node resolves its path through the session.
type ISOFS struct {
	fsys *iso.FileSystem
	conn *fuse.Conn
	uid  uint32 // User ID reported for every node
	gid  uint32 // Group ID reported for every node

	// DirectIO disables the kernel page cache for opened files
	DirectIO bool
}

// NewISOFS creates a FUSE filesystem over fsys. The session stays owned
// by the caller.
func NewISOFS(fsys *iso.FileSystem) *ISOFS {
	vfsLogger.Info("Creating filesystem for volume %q", fsys.Volume().Label)

	// Get UID/GID from environment if set
	uid := safeIntToUint32(os.Getuid())
	gid := safeIntToUint32(os.Getgid())

	if puidStr := os.Getenv("PUID"); puidStr != "" {
		if puid, err := strconv.ParseUint(puidStr, 10, 32); err == nil {
			uid = uint32(puid)
			vfsLogger.Debug("Using PUID from environment: %d", uid)
		}
	}
	if pgidStr := os.Getenv("PGID"); pgidStr != "" {
		if pgid, err := strconv.ParseUint(pgidStr, 10, 32); err == nil {
			gid = uint32(pgid)
			vfsLogger.Debug("Using PGID from environment: %d", gid)
		}
	}

	return &ISOFS{
		fsys: fsys,
		uid:  uid,
		gid:  gid,
	}
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (ifs *ISOFS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return &Dir{
		fs:   ifs,
		path: NewVirtualPath("/"),
	}, nil
}

// Statfs implements fusefs.FSStatfser with the volume geometry
func (ifs *ISOFS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	// The descriptor's block size field may be zero or wrong; reads always use the device's
	dev := ifs.fsys.Device()
	resp.Blocks = uint64(dev.NumBlocks())
	resp.Bfree = 0
	resp.Bavail = 0
	resp.Bsize = dev.BlockSize()
	resp.Frsize = dev.BlockSize()
	resp.Namelen = 255
	vfsLogger.Trace("Statfs: %d blocks of %d bytes", resp.Blocks, resp.Bsize)
	return nil
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount serves the filesystem at mountPoint until Unmount is called.
func (ifs *ISOFS) Mount(mountPoint string) error {
	vfsLogger.Info("Mounting volume %q", ifs.fsys.Volume().Label)
	vfsLogger.Debug("Mount point: %s", mountPoint)
	vfsLogger.Debug("UID: %d, GID: %d", ifs.uid, ifs.gid)

	mountOpts := []fuse.MountOption{
		fuse.FSName("umdfs"),
		fuse.Subtype("umdfs"),
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
		fuse.AllowNonEmptyMount(),
	}
	if os.Getenv("UMDFS_ALLOW_OTHER") != "" {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	vfsLogger.Debug("Mounting with options: %+v", mountOpts)

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	ifs.conn = c

	go func() {
		if err := fusefs.Serve(c, ifs); err != nil {
			vfsLogger.Error("FUSE server error: %v", err)
		}
	}()

	// Wait for mount to be ready
	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		vfsLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	vfsLogger.Info("Filesystem mounted successfully")
	return nil
}

// Unmount cleanly unmounts the filesystem.
func (ifs *ISOFS) Unmount(mountPoint string) error {
	vfsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if ifs.conn == nil {
		return nil
	}

	err := fuse.Unmount(mountPoint)
	if err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
		return err
	}
	vfsLogger.Info("Unmount completed successfully")
	return ifs.conn.Close()
}
