// Package blockdev presents disc images as arrays of fixed-size blocks.
//
// A BlockDevice hides how the image is stored: a plain dump, a CSO
// compressed container, or an encrypted PBP package all expose the same
// ReadBlock contract. Construct inspects the image header once and selects
// the variant.
package blockdev

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"umdfs/internal/logging"
)

// BlockSize is the logical block size of the disc filesystem family.
const BlockSize = 2048

var (
	blockLogger = logging.GetLogger().WithPrefix("blockdev")

	// ErrUnknownFormat indicates no signature matched and the raw fallback
	// failed its size sanity check
	ErrUnknownFormat = errors.New("unknown image format")

	// ErrUnsupportedContainer indicates a recognised container this package
	// cannot read block-wise
	ErrUnsupportedContainer = errors.New("unsupported container")

	// ErrCorruptHeader indicates a container header failed validation
	ErrCorruptHeader = errors.New("corrupt container header")

	// ErrNoDecrypter indicates an encrypted image was opened without a Decrypter
	ErrNoDecrypter = errors.New("encrypted image requires a decrypter")

	// ErrBlockOutOfRange indicates a block index at or past NumBlocks
	ErrBlockOutOfRange = errors.New("block index out of range")

	// ErrShortBuffer indicates a destination buffer smaller than the request
	ErrShortBuffer = errors.New("buffer too small")

	// ErrTruncatedRead marks reads that ran past the end of the source.
	// Devices zero-fill instead of failing and count these events; the
	// error itself only appears in log messages.
	ErrTruncatedRead = errors.New("truncated read")
)

// BlockDevice is a read-only array of BlockSize-byte blocks.
type BlockDevice interface {
	// BlockSize returns the logical block size, always BlockSize
	BlockSize() uint32
	// NumBlocks returns the number of readable blocks
	NumBlocks() uint32
	// UncompressedSize returns the logical image size in bytes
	UncompressedSize() int64
	// ReadBlock reads block index into buf, which must hold BlockSize bytes
	ReadBlock(index uint32, buf []byte) error
	// ReadBlocks reads count consecutive blocks starting at first
	ReadBlocks(first, count uint32, buf []byte) error
	// Format reports which container the device reads
	Format() Format
	// Close releases the underlying source
	Close() error
}

// TruncationReporter is implemented by devices that zero-fill reads past
// the end of a short source.
type TruncationReporter interface {
	// TruncatedReads returns the number of zero-filled short reads so far
	TruncatedReads() uint64
}

// truncationCounter is embedded by the device variants.
type truncationCounter struct {
	n uint64
}

func (c *truncationCounter) recordTruncation() {
	atomic.AddUint64(&c.n, 1)
}

// TruncatedReads implements TruncationReporter
func (c *truncationCounter) TruncatedReads() uint64 {
	return atomic.LoadUint64(&c.n)
}

// checkRead validates the common ReadBlocks preconditions.
func checkRead(numBlocks, first, count uint32, buf []byte) error {
	if uint64(first)+uint64(count) > uint64(numBlocks) {
		return errors.Wrapf(ErrBlockOutOfRange, "blocks [%d,%d) of %d", first, uint64(first)+uint64(count), numBlocks)
	}
	if uint64(len(buf)) < uint64(count)*BlockSize {
		return errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", uint64(count)*BlockSize, len(buf))
	}
	return nil
}

// readBlocksOneByOne implements ReadBlocks in terms of ReadBlock.
func readBlocksOneByOne(dev BlockDevice, first, count uint32, buf []byte) error {
	if err := checkRead(dev.NumBlocks(), first, count, buf); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if err := dev.ReadBlock(first+i, buf[int(i)*BlockSize:int(i+1)*BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

func blocksForSize(size int64) uint32 {
	return uint32((size + BlockSize - 1) / BlockSize)
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
