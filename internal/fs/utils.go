package fs

import (
	"umdfs/internal/iso"

	fusefs "bazil.org/fuse/fs"
)

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}

// statBlocks returns size in the 512-byte units stat(2) reports
func statBlocks(size int64) uint64 {
	return safeInt64ToUint64((size + 511) / 512)
}

// inodeFor derives a stable inode number from the entry's full path
func inodeFor(fi iso.FileInfo) uint64 {
	return fusefs.GenerateDynamicInode(1, fi.Path)
}
