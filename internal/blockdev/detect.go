package blockdev

import (
	"bytes"

	"github.com/pkg/errors"

	"umdfs/internal/loader"
)

// Format identifies the storage container of a disc image
type Format int

const (
	FormatRaw Format = iota
	FormatCSO        // CISO compressed container
	FormatPBP        // PBP package carrying an encrypted NPUMDIMG
	FormatZip        // zip archive
)

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatCSO:
		return "CSO"
	case FormatPBP:
		return "PBP"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

// PrefixSize is the number of header bytes Detect inspects
const PrefixSize = 16

var (
	csoMagic = []byte("CISO")
	pbpMagic = []byte("PBP")
	zipMagic = []byte("PK")
)

// signature is one entry of the ordered detection list
type signature struct {
	format Format
	match  func(prefix []byte) bool
}

var signatures = []signature{
	{FormatCSO, func(p []byte) bool { return bytes.HasPrefix(p, csoMagic) }},
	{FormatPBP, func(p []byte) bool {
		// The file magic is "\0PBP"; a bare "PBP" prefix is accepted as well
		return bytes.HasPrefix(p, pbpMagic) || (len(p) >= 4 && p[0] == 0 && bytes.Equal(p[1:4], pbpMagic))
	}},
	{FormatZip, func(p []byte) bool { return bytes.HasPrefix(p, zipMagic) }},
}

// DetectPrefix matches a header prefix against the known signatures in
// order. Anything unrecognised is a raw image.
func DetectPrefix(prefix []byte) Format {
	for _, sig := range signatures {
		if sig.match(prefix) {
			return sig.format
		}
	}
	return FormatRaw
}

// Detect reads the first PrefixSize bytes of l and identifies the format.
// It does not modify l.
func Detect(l loader.Loader) (Format, error) {
	if !l.Exists() {
		return FormatRaw, errors.Wrap(loader.ErrSourceNotFound, l.Path())
	}

	prefix := make([]byte, PrefixSize)
	n := loader.ReadElements(l, 0, 1, PrefixSize, prefix)
	format := DetectPrefix(prefix[:n])
	blockLogger.Debug("Detected %s (%d header bytes) for %s", format, n, l.Path())
	return format, nil
}

// Option configures Construct
type Option func(*options)

type options struct {
	decrypter Decrypter
	cacheSize int
	decoders  map[Codec]Decoder
}

// WithDecrypter supplies the decrypter used for encrypted PBP images
func WithDecrypter(d Decrypter) Option {
	return func(o *options) { o.decrypter = d }
}

// WithFrameCache sets the number of decoded frames kept per device.
// Zero disables the cache.
func WithFrameCache(frames int) Option {
	return func(o *options) { o.cacheSize = frames }
}

// WithDecoder overrides the decoder used for a codec
func WithDecoder(c Codec, d Decoder) Option {
	return func(o *options) { o.decoders[c] = d }
}

// DefaultFrameCache is the number of decoded frames cached by default
const DefaultFrameCache = 64

func newOptions(opts []Option) *options {
	o := &options{
		cacheSize: DefaultFrameCache,
		decoders: map[Codec]Decoder{
			CodecDeflate: DeflateDecoder{},
			CodecLZ4:     LZ4Decoder{},
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Construct detects the format of l and builds the matching BlockDevice.
// The device takes ownership of l and closes it on Close.
func Construct(l loader.Loader, opts ...Option) (BlockDevice, error) {
	format, err := Detect(l)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)

	var dev BlockDevice
	switch format {
	case FormatCSO:
		dev, err = NewCSODevice(l, o)
	case FormatPBP:
		dev, err = NewNPDRMDevice(l, o)
	case FormatZip:
		err = errors.Wrapf(ErrUnsupportedContainer, "%s is a zip archive; extract the disc image first", l.Path())
	default:
		dev, err = NewRawDevice(l)
	}
	if err != nil {
		return nil, err
	}

	blockLogger.Info("Opened %s as %s: %d blocks, %d bytes", l.Path(), dev.Format(), dev.NumBlocks(), dev.UncompressedSize())
	return dev, nil
}
