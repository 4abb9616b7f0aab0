package isotest

import (
	"bytes"
	"compress/flate"
	"encoding/binary"

	"umdfs/internal/blockdev"
)

// PBPOptions controls EncodePBP
type PBPOptions struct {
	BlockLBAs uint32 // sectors per frame, defaults to 16
	Key       byte   // non-zero encrypts the header and frames with XOR
	Compress  bool   // deflate frames that shrink
}

const psarOffset = 0x400

// EncodePBP wraps img in a PBP package carrying an NPUMDIMG section. The
// "encryption" is a single-byte XOR undone by XORDecrypter.
func EncodePBP(img []byte, opts PBPOptions) []byte {
	if opts.BlockLBAs == 0 {
		opts.BlockLBAs = 16
	}
	numBlocks := uint32((len(img) + SectorSize - 1) / SectorSize)
	frameSize := int(opts.BlockLBAs) * SectorSize
	numFrames := (int(numBlocks) + int(opts.BlockLBAs) - 1) / int(opts.BlockLBAs)

	head := make([]byte, psarOffset+blockdev.NPUMDHeaderSize+numFrames*blockdev.NPUMDTableEntry)
	copy(head[1:4], "PBP")
	binary.LittleEndian.PutUint32(head[4:], 0x00010000)
	for off := 0x08; off < blockdev.PBPPSAROffset; off += 4 {
		binary.LittleEndian.PutUint32(head[off:], blockdev.PBPHeaderSize)
	}
	binary.LittleEndian.PutUint32(head[blockdev.PBPPSAROffset:], psarOffset)

	hdr := head[psarOffset : psarOffset+blockdev.NPUMDHeaderSize]
	copy(hdr, blockdev.NPUMDMagic)
	binary.LittleEndian.PutUint32(hdr[0x0c:], opts.BlockLBAs)
	binary.LittleEndian.PutUint32(hdr[0x54:], 0)
	binary.LittleEndian.PutUint32(hdr[0x64:], numBlocks-1)
	binary.LittleEndian.PutUint32(hdr[0x6c:], blockdev.NPUMDHeaderSize)
	if opts.Key != 0 {
		copy(hdr[0x40:0xa0], xor(hdr[0x40:0xa0], opts.Key))
	}

	table := head[psarOffset+blockdev.NPUMDHeaderSize:]
	var body bytes.Buffer
	for f := 0; f < numFrames; f++ {
		frame := make([]byte, frameSize)
		copy(frame, img[f*frameSize:])

		payload := frame
		if opts.Compress {
			if packed := deflate(frame); len(packed) < len(frame) {
				payload = packed
			}
		}
		flag := uint32(4)
		if opts.Key != 0 {
			flag = 0
			payload = xor(payload, opts.Key)
		}

		entry := blockdev.FrameEntry{
			Offset: uint32(len(head) - psarOffset + body.Len()),
			Size:   uint32(len(payload)),
			Flag:   flag,
		}
		scramble(table[f*blockdev.NPUMDTableEntry:], entry, uint32(f))
		body.Write(payload)
	}

	return append(head, body.Bytes()...)
}

// scramble writes entry in the obfuscated table format
func scramble(dst []byte, e blockdev.FrameEntry, seed uint32) {
	var p [8]uint32
	for j := 0; j < 4; j++ {
		p[j] = (seed+1)*0x9e3779b9 ^ uint32(j)*0x85ebca6b
	}
	k0 := p[0] ^ p[1]
	k1 := p[1] ^ p[2]
	k2 := p[0] ^ p[3]
	k3 := p[2] ^ p[3]
	p[4] = e.Offset ^ k3
	p[5] = e.Size ^ k1
	p[6] = e.Flag ^ k2
	p[7] = k0
	for j, v := range p {
		binary.LittleEndian.PutUint32(dst[j*4:], v)
	}
}

func deflate(b []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestCompression)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

func xor(b []byte, key byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ key
	}
	return out
}

// XORDecrypter undoes EncodePBP's encryption and compression.
type XORDecrypter struct {
	Key byte
}

// DecryptHeader implements blockdev.Decrypter
func (x XORDecrypter) DecryptHeader(hdr []byte) error {
	if x.Key != 0 {
		copy(hdr[0x40:0xa0], xor(hdr[0x40:0xa0], x.Key))
	}
	return nil
}

// DecodeFrame implements blockdev.Decrypter
func (x XORDecrypter) DecodeFrame(entry blockdev.FrameEntry, src, dst []byte) (int, error) {
	if entry.Encrypted() {
		src = xor(src, x.Key)
	}
	if entry.Compressed(uint32(len(dst))) {
		return blockdev.DeflateDecoder{}.Decode(dst, src)
	}
	return copy(dst, src), nil
}
