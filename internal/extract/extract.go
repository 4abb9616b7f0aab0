// Package extract copies a subtree of a volume to the host filesystem.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"umdfs/internal/iso"
	"umdfs/internal/logging"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	logger = logging.GetLogger().WithPrefix("extract")
)

// Result counts what an extraction wrote
type Result struct {
	Files int
	Dirs  int
	Bytes int64
}

// copyBufferSize is a whole number of sectors
const copyBufferSize = 64 * 2048

// job is one file to copy
type job struct {
	src  iso.FileInfo
	dest string
}

// Extract mirrors src from fsys into the host directory dst. Directories
// are created while walking; files are copied by up to workers goroutines.
// If src is a regular file, dst names the output file.
func Extract(ctx context.Context, fsys *iso.FileSystem, src, dst string, workers int) (Result, error) {
	var res Result
	if workers < 1 {
		workers = 1
	}

	root, err := fsys.Stat(src)
	if err != nil {
		return res, err
	}

	logger.Info("Extracting %s to %s with %d workers", root.Path, dst, workers)

	var jobs []job
	if root.IsDir() {
		jobs, err = plan(ctx, fsys, root, dst, &res)
		if err != nil {
			return res, err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return res, fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
		}
		jobs = []job{{src: root, dest: dst}}
	}

	var bytes int64
	var files int64
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			n, err := copyFile(gctx, fsys, j)
			if err != nil {
				return err
			}
			atomic.AddInt64(&bytes, n)
			atomic.AddInt64(&files, 1)
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	res.Files = int(files)
	res.Bytes = bytes

	if err != nil {
		logger.Error("Extraction of %s failed: %v", root.Path, err)
		return res, err
	}
	logger.Info("Extracted %d files, %d directories, %d bytes", res.Files, res.Dirs, res.Bytes)
	return res, nil
}

// plan creates the directory skeleton below dst and returns the files to copy
func plan(ctx context.Context, fsys *iso.FileSystem, dir iso.FileInfo, dst string, res *Result) ([]job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	res.Dirs++

	list, err := fsys.ReadDir(dir.Path)
	if err != nil {
		return nil, err
	}

	var jobs []job
	for _, fi := range list {
		if !safeName(fi.Name) {
			logger.Warn("Skipping entry with unsafe name %q in %s", fi.Name, dir.Path)
			continue
		}
		target := filepath.Join(dst, fi.Name)
		if fi.IsDir() {
			sub, err := plan(ctx, fsys, fi, target, res)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, sub...)
			continue
		}
		jobs = append(jobs, job{src: fi, dest: target})
	}
	return jobs, nil
}

// safeName rejects names that would leave the destination directory
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func copyFile(ctx context.Context, fsys *iso.FileSystem, j job) (int64, error) {
	f, err := fsys.Open(j.src.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	out, err := os.Create(j.dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", j.dest, err)
	}

	n, err := io.CopyBuffer(out, &ctxReader{ctx: ctx, r: f}, make([]byte, copyBufferSize))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", j.src.Path, err)
	}

	setModTime(j.dest, j.src)
	logger.Trace("Copied %s (%d bytes)", j.src.Path, n)
	return n, nil
}

func setModTime(p string, fi iso.FileInfo) {
	if fi.ModTime.IsZero() {
		return
	}
	if err := os.Chtimes(p, fi.ModTime, fi.ModTime); err != nil {
		logger.Debug("Cannot set times on %s: %v", p, err)
	}
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
