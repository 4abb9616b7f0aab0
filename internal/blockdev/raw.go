package blockdev

import (
	"io"

	"github.com/pkg/errors"

	"umdfs/internal/loader"
)

// RawDevice reads an uncompressed image directly from its source.
type RawDevice struct {
	truncationCounter

	src       loader.Loader
	size      int64
	numBlocks uint32
}

// NewRawDevice wraps an uncompressed image. The source must at least hold
// a detection prefix; anything smaller cannot be a disc image.
func NewRawDevice(l loader.Loader) (*RawDevice, error) {
	size := l.FileSize()
	if size < PrefixSize {
		return nil, errors.Wrapf(ErrUnknownFormat, "%s: %d bytes is too small for a disc image", l.Path(), size)
	}

	return &RawDevice{
		src:       l,
		size:      size,
		numBlocks: blocksForSize(size),
	}, nil
}

// BlockSize implements BlockDevice
func (d *RawDevice) BlockSize() uint32 { return BlockSize }

// NumBlocks implements BlockDevice
func (d *RawDevice) NumBlocks() uint32 { return d.numBlocks }

// UncompressedSize implements BlockDevice
func (d *RawDevice) UncompressedSize() int64 { return d.size }

// Format implements BlockDevice
func (d *RawDevice) Format() Format { return FormatRaw }

// ReadBlock implements BlockDevice. A source shorter than expected is
// zero-filled rather than reported.
func (d *RawDevice) ReadBlock(index uint32, buf []byte) error {
	return d.ReadBlocks(index, 1, buf)
}

// ReadBlocks implements BlockDevice with a single source read
func (d *RawDevice) ReadBlocks(first, count uint32, buf []byte) error {
	if err := checkRead(d.numBlocks, first, count, buf); err != nil {
		return err
	}

	want := int(count) * BlockSize
	off := int64(first) * BlockSize
	n, err := d.src.ReadAt(buf[:want], off)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "reading blocks [%d,%d)", first, first+count)
	}
	if n < want {
		// The tail of the last block is padding; anything short of the
		// declared size means the source shrank underneath us.
		if expected := d.size - off; int64(n) < expected {
			blockLogger.Warn("%v: blocks [%d,%d) got %d of %d bytes", ErrTruncatedRead, first, first+count, n, expected)
			d.recordTruncation()
		}
		zeroFill(buf[n:want])
	}
	return nil
}

// Close closes the source
func (d *RawDevice) Close() error {
	return d.src.Close()
}
