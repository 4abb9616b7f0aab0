package isotest

import (
	"bytes"
	"compress/flate"
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
)

// CSOOptions controls EncodeCSO
type CSOOptions struct {
	Version    uint8  // 0, 1 or 2
	FrameSize  uint32 // defaults to SectorSize
	IndexShift uint8
	LZ4        bool // v2 only: compress with LZ4 instead of deflate
	Store      bool // store every frame verbatim
}

// EncodeCSO packs img into a CISO container.
func EncodeCSO(img []byte, opts CSOOptions) ([]byte, error) {
	if opts.FrameSize == 0 {
		opts.FrameSize = SectorSize
	}
	frameSize := int(opts.FrameSize)
	numFrames := (len(img) + frameSize - 1) / frameSize

	var out bytes.Buffer
	hdr := make([]byte, 0x18)
	copy(hdr, "CISO")
	binary.LittleEndian.PutUint32(hdr[4:], 0x18)
	binary.LittleEndian.PutUint64(hdr[8:], uint64(len(img)))
	binary.LittleEndian.PutUint32(hdr[16:], opts.FrameSize)
	hdr[20] = opts.Version
	hdr[21] = opts.IndexShift
	out.Write(hdr)
	out.Write(make([]byte, (numFrames+1)*4))

	index := make([]uint32, numFrames+1)
	align := 1 << opts.IndexShift
	for f := 0; f < numFrames; f++ {
		for out.Len()%align != 0 {
			out.WriteByte(0)
		}
		index[f] = uint32(out.Len() >> opts.IndexShift)

		frame := make([]byte, frameSize)
		copy(frame, img[f*frameSize:])

		payload, flag, err := encodeFrame(frame, opts)
		if err != nil {
			return nil, err
		}
		index[f] |= flag
		out.Write(payload)
	}
	for out.Len()%align != 0 {
		out.WriteByte(0)
	}
	index[numFrames] = uint32(out.Len() >> opts.IndexShift)

	data := out.Bytes()
	for i, v := range index {
		binary.LittleEndian.PutUint32(data[0x18+i*4:], v)
	}
	return data, nil
}

func encodeFrame(frame []byte, opts CSOOptions) ([]byte, uint32, error) {
	if opts.Store {
		if opts.Version >= 2 {
			return frame, 0, nil
		}
		return frame, 0x80000000, nil
	}

	if opts.Version >= 2 && opts.LZ4 {
		dst := make([]byte, lz4.CompressBlockBound(len(frame)))
		n, err := lz4.CompressBlock(frame, dst, nil)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 || n >= len(frame) {
			return frame, 0, nil
		}
		return dst[:n], 0x80000000, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, 0, err
	}
	if _, err := w.Write(frame); err != nil {
		return nil, 0, err
	}
	if err := w.Close(); err != nil {
		return nil, 0, err
	}
	if buf.Len() >= len(frame) {
		if opts.Version >= 2 {
			return frame, 0, nil
		}
		return frame, 0x80000000, nil
	}
	return buf.Bytes(), 0, nil
}
