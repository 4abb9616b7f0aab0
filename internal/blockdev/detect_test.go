package blockdev_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umdfs/internal/blockdev"
	"umdfs/internal/isotest"
	"umdfs/internal/loader"
)

func TestDetectPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix []byte
		want   blockdev.Format
	}{
		{"cso", []byte("CISO\x18\x00\x00\x00"), blockdev.FormatCSO},
		{"pbp magic", []byte("\x00PBP\x00\x00\x01\x00"), blockdev.FormatPBP},
		{"bare pbp", []byte("PBP"), blockdev.FormatPBP},
		{"zip", []byte("PK\x03\x04"), blockdev.FormatZip},
		{"iso", make([]byte, 16), blockdev.FormatRaw},
		{"lowercase cso", []byte("ciso"), blockdev.FormatRaw},
		{"empty", nil, blockdev.FormatRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blockdev.DetectPrefix(tt.prefix))
		})
	}
}

func TestDetectMissingSource(t *testing.T) {
	l := loader.NewLocalFileLoader(filepath.Join(t.TempDir(), "nope.iso"))

	_, err := blockdev.Detect(l)
	assert.True(t, errors.Is(err, loader.ErrSourceNotFound))

	_, err = blockdev.Construct(l)
	assert.True(t, errors.Is(err, loader.ErrSourceNotFound))
}

func TestConstructSelectsVariant(t *testing.T) {
	img := isotest.NewBuilder("DETECT").Bytes()
	cso, err := isotest.EncodeCSO(img, isotest.CSOOptions{Version: 1})
	require.NoError(t, err)
	pbp := isotest.EncodePBP(img, isotest.PBPOptions{})

	tests := []struct {
		name string
		data []byte
		opts []blockdev.Option
		want blockdev.Format
	}{
		{"raw", img, nil, blockdev.FormatRaw},
		{"cso", cso, nil, blockdev.FormatCSO},
		{"pbp", pbp, []blockdev.Option{blockdev.WithDecrypter(isotest.XORDecrypter{})}, blockdev.FormatPBP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := blockdev.Construct(loader.NewMemoryLoader(tt.name, tt.data), tt.opts...)
			require.NoError(t, err)
			defer dev.Close()

			assert.Equal(t, tt.want, dev.Format())
			assert.Equal(t, uint32(blockdev.BlockSize), dev.BlockSize())
			requireSameBlocks(t, dev, img)
		})
	}
}

func TestConstructErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"zip archive", []byte("PK\x03\x04 some archive bytes"), blockdev.ErrUnsupportedContainer},
		{"tiny raw", []byte("hello"), blockdev.ErrUnknownFormat},
		{"pbp without decrypter", isotest.EncodePBP(make([]byte, 4096), isotest.PBPOptions{}), blockdev.ErrNoDecrypter},
		{"truncated cso", []byte("CISO\x18\x00"), blockdev.ErrCorruptHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := blockdev.Construct(loader.NewMemoryLoader(tt.name, tt.data))
			assert.Nil(t, dev)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
