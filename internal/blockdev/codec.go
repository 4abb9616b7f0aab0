package blockdev

import (
	"bytes"
	"compress/flate"
	"io"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Codec names a frame compression algorithm
type Codec int

const (
	CodecDeflate Codec = iota // raw deflate stream, no zlib header
	CodecLZ4                  // raw LZ4 block
)

func (c Codec) String() string {
	switch c {
	case CodecDeflate:
		return "deflate"
	case CodecLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Decoder decompresses one frame. dst has exactly the frame's decoded size;
// Decode returns how many bytes it produced.
type Decoder interface {
	Decode(dst, src []byte) (int, error)
}

// DeflateDecoder inflates raw deflate frames
type DeflateDecoder struct{}

// Decode implements Decoder
func (DeflateDecoder) Decode(dst, src []byte) (int, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()

	n, err := io.ReadFull(r, dst)
	if err == io.ErrUnexpectedEOF {
		// Streams may legitimately end early; the caller zero-fills
		return n, nil
	}
	if err != nil {
		return n, errors.Wrap(err, "inflate")
	}
	return n, nil
}

// LZ4Decoder decodes raw LZ4 blocks
type LZ4Decoder struct{}

// Decode implements Decoder
func (LZ4Decoder) Decode(dst, src []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return n, errors.Wrap(err, "lz4")
	}
	return n, nil
}

// frameCache keeps recently decoded frames. A nil cache stores nothing.
type frameCache struct {
	frames *lru.Cache
}

func newFrameCache(size int) *frameCache {
	if size <= 0 {
		return &frameCache{}
	}
	c, err := lru.New(size)
	if err != nil {
		blockLogger.Warn("Frame cache disabled: %v", err)
		return &frameCache{}
	}
	return &frameCache{frames: c}
}

func (c *frameCache) get(frame uint32) ([]byte, bool) {
	if c.frames == nil {
		return nil, false
	}
	v, ok := c.frames.Get(frame)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *frameCache) add(frame uint32, data []byte) {
	if c.frames != nil {
		c.frames.Add(frame, data)
	}
}
