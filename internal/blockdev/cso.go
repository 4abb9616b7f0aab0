package blockdev

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"umdfs/internal/loader"
)

var csoLogger = blockLogger.WithPrefix("blockdev.cso")

// CSO header layout
const (
	csoHeaderSize   = 0x18
	csoMaxVersion   = 2
	csoIndexPlain   = 0x80000000
	csoIndexOffMask = 0x7FFFFFFF
)

// CSOHeader is the fixed header at the start of a CSO container
type CSOHeader struct {
	Magic      [4]byte
	HeaderSize uint32
	TotalBytes uint64
	FrameSize  uint32
	Version    uint8
	IndexShift uint8
	Reserved   [2]byte
}

// CSODevice reads a CISO container. Each frame of FrameSize bytes is
// stored either verbatim or compressed; an index of frame offsets maps
// frames to their position in the source.
type CSODevice struct {
	truncationCounter

	src            loader.Loader
	header         CSOHeader
	index          []uint32
	blocksPerFrame uint32
	numBlocks      uint32
	decoders       map[Codec]Decoder
	cache          *frameCache
}

// NewCSODevice parses and validates the container header and index.
func NewCSODevice(l loader.Loader, o *options) (*CSODevice, error) {
	raw := make([]byte, csoHeaderSize)
	if n := loader.ReadElements(l, 0, 1, csoHeaderSize, raw); n < csoHeaderSize {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: CSO header truncated at %d bytes", l.Path(), n)
	}

	var h CSOHeader
	copy(h.Magic[:], raw[0:4])
	h.HeaderSize = binary.LittleEndian.Uint32(raw[4:8])
	h.TotalBytes = binary.LittleEndian.Uint64(raw[8:16])
	h.FrameSize = binary.LittleEndian.Uint32(raw[16:20])
	h.Version = raw[20]
	h.IndexShift = raw[21]
	copy(h.Reserved[:], raw[22:24])

	switch {
	case h.FrameSize == 0:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: CSO frame size is zero", l.Path())
	case h.FrameSize%BlockSize != 0:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: CSO frame size %d is not a multiple of %d", l.Path(), h.FrameSize, BlockSize)
	case h.Version > csoMaxVersion:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: unsupported CSO version %d", l.Path(), h.Version)
	case h.TotalBytes == 0:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: CSO declares an empty image", l.Path())
	case h.IndexShift > 31:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: CSO index alignment %d out of range", l.Path(), h.IndexShift)
	case h.TotalBytes/BlockSize >= 1<<32:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: CSO declares %d bytes", l.Path(), h.TotalBytes)
	}

	numFrames := (h.TotalBytes + uint64(h.FrameSize) - 1) / uint64(h.FrameSize)
	indexBytes := (numFrames + 1) * 4
	if csoHeaderSize+indexBytes > uint64(l.FileSize()) {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: index of %d frames does not fit in %d bytes", l.Path(), numFrames, l.FileSize())
	}

	table := make([]byte, indexBytes)
	if n := loader.ReadElements(l, csoHeaderSize, 4, int(numFrames+1), table); uint64(n) < indexBytes {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: CSO index truncated", l.Path())
	}
	index := make([]uint32, numFrames+1)
	for i := range index {
		index[i] = binary.LittleEndian.Uint32(table[i*4:])
	}

	last := uint64(index[numFrames]&csoIndexOffMask) << h.IndexShift
	if last > uint64(l.FileSize()) {
		csoLogger.Warn("%s: index ends at %d but the file has %d bytes; image is likely truncated", l.Path(), last, l.FileSize())
	}

	d := &CSODevice{
		src:            l,
		header:         h,
		index:          index,
		blocksPerFrame: h.FrameSize / BlockSize,
		numBlocks:      blocksForSize(int64(h.TotalBytes)),
		decoders:       o.decoders,
		cache:          newFrameCache(o.cacheSize),
	}
	csoLogger.Debug("CSO v%d: %d frames of %d bytes, index shift %d", h.Version, numFrames, h.FrameSize, h.IndexShift)
	return d, nil
}

// Header returns the parsed container header
func (d *CSODevice) Header() CSOHeader { return d.header }

// BlockSize implements BlockDevice
func (d *CSODevice) BlockSize() uint32 { return BlockSize }

// NumBlocks implements BlockDevice
func (d *CSODevice) NumBlocks() uint32 { return d.numBlocks }

// UncompressedSize implements BlockDevice
func (d *CSODevice) UncompressedSize() int64 { return int64(d.header.TotalBytes) }

// Format implements BlockDevice
func (d *CSODevice) Format() Format { return FormatCSO }

// ReadBlock implements BlockDevice
func (d *CSODevice) ReadBlock(index uint32, buf []byte) error {
	if err := checkRead(d.numBlocks, index, 1, buf); err != nil {
		return err
	}

	frame, err := d.frame(index / d.blocksPerFrame)
	if err != nil {
		return err
	}
	within := int(index%d.blocksPerFrame) * BlockSize
	copy(buf[:BlockSize], frame[within:within+BlockSize])
	return nil
}

// ReadBlocks implements BlockDevice
func (d *CSODevice) ReadBlocks(first, count uint32, buf []byte) error {
	return readBlocksOneByOne(d, first, count, buf)
}

// frame returns the decoded contents of frame f, FrameSize bytes long.
func (d *CSODevice) frame(f uint32) ([]byte, error) {
	if data, ok := d.cache.get(f); ok {
		return data, nil
	}

	entry := d.index[f]
	start := uint64(entry&csoIndexOffMask) << d.header.IndexShift
	end := uint64(d.index[f+1]&csoIndexOffMask) << d.header.IndexShift
	if end < start {
		return nil, errors.Wrapf(ErrCorruptHeader, "frame %d: index runs backwards (%d > %d)", f, start, end)
	}
	if limit := 2*uint64(d.header.FrameSize) + 1<<d.header.IndexShift; end-start > limit {
		return nil, errors.Wrapf(ErrCorruptHeader, "frame %d: %d stored bytes for a %d byte frame", f, end-start, d.header.FrameSize)
	}

	stored := make([]byte, end-start)
	n, err := d.src.ReadAt(stored, int64(start))
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "reading frame %d", f)
	}
	if n < len(stored) {
		csoLogger.Warn("%v: frame %d got %d of %d bytes", ErrTruncatedRead, f, n, len(stored))
		zeroFill(stored[n:])
		d.recordTruncation()
	}

	frameSize := d.header.FrameSize
	plain := entry&csoIndexPlain != 0
	codec := CodecDeflate
	if d.header.Version >= 2 {
		// v2 stores a frame verbatim whenever compression does not pay off;
		// the high bit selects LZ4 instead.
		plain = uint64(len(stored)) >= uint64(frameSize)
		if entry&csoIndexPlain != 0 {
			codec = CodecLZ4
		}
	}

	out := make([]byte, frameSize)
	if plain {
		copy(out, stored)
	} else {
		dec, ok := d.decoders[codec]
		if !ok || dec == nil {
			return nil, errors.Errorf("frame %d: no decoder for %s", f, codec)
		}
		if _, err := dec.Decode(out, stored); err != nil {
			return nil, errors.Wrapf(err, "decoding frame %d", f)
		}
	}

	d.cache.add(f, out)
	return out, nil
}

// Close closes the source
func (d *CSODevice) Close() error {
	return d.src.Close()
}
