package blockdev

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"umdfs/internal/loader"
)

var npdrmLogger = blockLogger.WithPrefix("blockdev.npdrm")

// PBP and NPUMDIMG layout
const (
	PBPHeaderSize     = 0x28
	PBPPSAROffset     = 0x24
	NPUMDHeaderSize   = 0x100
	NPUMDTableEntry   = 0x20
	npumdBlockLBAsOff = 0x0c
	npumdLBAStartOff  = 0x54
	npumdLBAEndOff    = 0x64
	npumdTableOff     = 0x6c
)

// NPUMDMagic opens the DATA.PSAR section of an encrypted disc package
var NPUMDMagic = []byte("NPUMDIMG")

// FrameEntry is one unscrambled entry of the NPUMDIMG frame table.
type FrameEntry struct {
	Index  uint32
	Offset uint32 // relative to the DATA.PSAR section
	Size   uint32
	Flag   uint32
}

// Encrypted reports whether the frame payload is encrypted
func (e FrameEntry) Encrypted() bool { return e.Flag&4 == 0 }

// Compressed reports whether the payload is smaller than a full frame
func (e FrameEntry) Compressed(frameSize uint32) bool { return e.Size < frameSize }

// Decrypter performs the key-dependent parts of reading an encrypted
// package. Both methods are black boxes to this package.
type Decrypter interface {
	// DecryptHeader decrypts the NPUMDIMG header in place
	DecryptHeader(hdr []byte) error
	// DecodeFrame decrypts and decompresses one frame payload into dst,
	// which holds exactly one frame, and returns the bytes produced
	DecodeFrame(entry FrameEntry, src, dst []byte) (int, error)
}

// NPDRMDevice reads the NPUMDIMG disc image embedded in a PBP package.
type NPDRMDevice struct {
	truncationCounter

	src        loader.Loader
	decrypter  Decrypter
	psarOffset int64
	blockLBAs  uint32
	frameSize  uint32
	numBlocks  uint32
	table      []FrameEntry
	cache      *frameCache
}

// NewNPDRMDevice parses the PBP header, the NPUMDIMG header and the frame
// table. A Decrypter must be supplied through WithDecrypter.
func NewNPDRMDevice(l loader.Loader, o *options) (*NPDRMDevice, error) {
	if o.decrypter == nil {
		return nil, errors.Wrap(ErrNoDecrypter, l.Path())
	}

	pbp := make([]byte, PBPHeaderSize)
	if n := loader.ReadElements(l, 0, 1, PBPHeaderSize, pbp); n < PBPHeaderSize {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: PBP header truncated at %d bytes", l.Path(), n)
	}
	psar := int64(binary.LittleEndian.Uint32(pbp[PBPPSAROffset:]))
	if psar < PBPHeaderSize || psar+NPUMDHeaderSize > l.FileSize() {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: DATA.PSAR offset %#x out of range", l.Path(), psar)
	}

	hdr := make([]byte, NPUMDHeaderSize)
	if n := loader.ReadElements(l, psar, 1, NPUMDHeaderSize, hdr); n < NPUMDHeaderSize {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: NPUMDIMG header truncated", l.Path())
	}
	if !bytes.HasPrefix(hdr, NPUMDMagic) {
		return nil, errors.Wrapf(ErrUnsupportedContainer, "%s: PBP does not carry an NPUMDIMG disc image", l.Path())
	}
	if err := o.decrypter.DecryptHeader(hdr); err != nil {
		return nil, errors.Wrapf(err, "%s: decrypting NPUMDIMG header", l.Path())
	}

	blockLBAs := binary.LittleEndian.Uint32(hdr[npumdBlockLBAsOff:])
	lbaStart := binary.LittleEndian.Uint32(hdr[npumdLBAStartOff:])
	lbaEnd := binary.LittleEndian.Uint32(hdr[npumdLBAEndOff:])
	tableOff := int64(binary.LittleEndian.Uint32(hdr[npumdTableOff:]))

	switch {
	case blockLBAs == 0 || blockLBAs > 1<<16:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: %d blocks per frame", l.Path(), blockLBAs)
	case lbaEnd < lbaStart:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: LBA range [%d,%d] is inverted", l.Path(), lbaStart, lbaEnd)
	case uint64(lbaEnd)-uint64(lbaStart)+1 >= 1<<32:
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: LBA range [%d,%d] too large", l.Path(), lbaStart, lbaEnd)
	}

	numBlocks := lbaEnd - lbaStart + 1
	numFrames := (uint64(numBlocks) + uint64(blockLBAs) - 1) / uint64(blockLBAs)
	tableBytes := numFrames * NPUMDTableEntry
	if uint64(psar+tableOff)+tableBytes > uint64(l.FileSize()) {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: frame table of %d entries does not fit", l.Path(), numFrames)
	}

	raw := make([]byte, tableBytes)
	if n := loader.ReadElements(l, psar+tableOff, NPUMDTableEntry, int(numFrames), raw); uint64(n) < tableBytes {
		return nil, errors.Wrapf(ErrCorruptHeader, "%s: frame table truncated", l.Path())
	}

	d := &NPDRMDevice{
		src:        l,
		decrypter:  o.decrypter,
		psarOffset: psar,
		blockLBAs:  blockLBAs,
		frameSize:  blockLBAs * BlockSize,
		numBlocks:  numBlocks,
		table:      unscrambleTable(raw),
		cache:      newFrameCache(o.cacheSize),
	}
	npdrmLogger.Debug("NPUMDIMG: %d blocks in %d frames of %d blocks", numBlocks, numFrames, blockLBAs)
	return d, nil
}

// unscrambleTable undoes the XOR obfuscation applied to each table entry.
// Words 0-3 are the key material; word 7 carries nothing we use.
func unscrambleTable(raw []byte) []FrameEntry {
	entries := make([]FrameEntry, len(raw)/NPUMDTableEntry)
	for i := range entries {
		var p [8]uint32
		for j := range p {
			p[j] = binary.LittleEndian.Uint32(raw[i*NPUMDTableEntry+j*4:])
		}
		k1 := p[1] ^ p[2]
		k2 := p[0] ^ p[3]
		k3 := p[2] ^ p[3]
		entries[i] = FrameEntry{
			Index:  uint32(i),
			Offset: p[4] ^ k3,
			Size:   p[5] ^ k1,
			Flag:   p[6] ^ k2,
		}
	}
	return entries
}

// Frames returns the unscrambled frame table
func (d *NPDRMDevice) Frames() []FrameEntry { return d.table }

// BlockSize implements BlockDevice
func (d *NPDRMDevice) BlockSize() uint32 { return BlockSize }

// NumBlocks implements BlockDevice
func (d *NPDRMDevice) NumBlocks() uint32 { return d.numBlocks }

// UncompressedSize implements BlockDevice
func (d *NPDRMDevice) UncompressedSize() int64 { return int64(d.numBlocks) * BlockSize }

// Format implements BlockDevice
func (d *NPDRMDevice) Format() Format { return FormatPBP }

// ReadBlock implements BlockDevice
func (d *NPDRMDevice) ReadBlock(index uint32, buf []byte) error {
	if err := checkRead(d.numBlocks, index, 1, buf); err != nil {
		return err
	}

	frame, err := d.frame(index / d.blockLBAs)
	if err != nil {
		return err
	}
	within := int(index%d.blockLBAs) * BlockSize
	copy(buf[:BlockSize], frame[within:within+BlockSize])
	return nil
}

// ReadBlocks implements BlockDevice
func (d *NPDRMDevice) ReadBlocks(first, count uint32, buf []byte) error {
	return readBlocksOneByOne(d, first, count, buf)
}

func (d *NPDRMDevice) frame(f uint32) ([]byte, error) {
	if data, ok := d.cache.get(f); ok {
		return data, nil
	}

	entry := d.table[f]
	if int64(entry.Size) > d.src.FileSize() {
		return nil, errors.Wrapf(ErrCorruptHeader, "frame %d: size %d exceeds the source", f, entry.Size)
	}
	payload := make([]byte, entry.Size)
	n, err := d.src.ReadAt(payload, d.psarOffset+int64(entry.Offset))
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "reading frame %d", f)
	}
	if n < len(payload) {
		npdrmLogger.Warn("%v: frame %d got %d of %d bytes", ErrTruncatedRead, f, n, len(payload))
		zeroFill(payload[n:])
		d.recordTruncation()
	}

	out := make([]byte, d.frameSize)
	if _, err := d.decrypter.DecodeFrame(entry, payload, out); err != nil {
		return nil, errors.Wrapf(err, "decoding frame %d", f)
	}

	d.cache.add(f, out)
	return out, nil
}

// Close closes the source
func (d *NPDRMDevice) Close() error {
	return d.src.Close()
}
