package blockdev_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umdfs/internal/blockdev"
	"umdfs/internal/isotest"
	"umdfs/internal/loader"
)

func TestNPDRMMatchesRaw(t *testing.T) {
	img := sampleImage(40)

	tests := []struct {
		name string
		opts isotest.PBPOptions
	}{
		{"plain", isotest.PBPOptions{}},
		{"encrypted", isotest.PBPOptions{Key: 0x5a}},
		{"compressed", isotest.PBPOptions{Compress: true}},
		{"encrypted and compressed", isotest.PBPOptions{Key: 0xa7, Compress: true, BlockLBAs: 4}},
		{"single block frames", isotest.PBPOptions{BlockLBAs: 1, Key: 0x11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := isotest.EncodePBP(img, tt.opts)
			dev, err := blockdev.Construct(loader.NewMemoryLoader(tt.name, data),
				blockdev.WithDecrypter(isotest.XORDecrypter{Key: tt.opts.Key}))
			require.NoError(t, err)
			defer dev.Close()

			npdrm, ok := dev.(*blockdev.NPDRMDevice)
			require.True(t, ok)
			requireSameBlocks(t, dev, img)

			for _, f := range npdrm.Frames() {
				assert.Equal(t, tt.opts.Key != 0, f.Encrypted(), "frame %d", f.Index)
			}
		})
	}
}

func TestNPDRMWrongKey(t *testing.T) {
	data := isotest.EncodePBP(sampleImage(8), isotest.PBPOptions{Key: 0x33})

	// The header decrypts to garbage, which fails validation
	_, err := blockdev.Construct(loader.NewMemoryLoader("wrong", data),
		blockdev.WithDecrypter(isotest.XORDecrypter{Key: 0x44}))
	assert.Error(t, err)
}

func TestNPDRMCorrupt(t *testing.T) {
	img := sampleImage(8)
	dec := blockdev.WithDecrypter(isotest.XORDecrypter{})

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
		want   error
	}{
		{"psar offset past end", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[blockdev.PBPPSAROffset:], uint32(len(b)))
			return b
		}, blockdev.ErrCorruptHeader},
		{"not an npumdimg", func(b []byte) []byte {
			psar := binary.LittleEndian.Uint32(b[blockdev.PBPPSAROffset:])
			copy(b[psar:], "NPUMDXXX")
			return b
		}, blockdev.ErrUnsupportedContainer},
		{"inverted lba range", func(b []byte) []byte {
			psar := binary.LittleEndian.Uint32(b[blockdev.PBPPSAROffset:])
			binary.LittleEndian.PutUint32(b[psar+0x54:], 100)
			binary.LittleEndian.PutUint32(b[psar+0x64:], 10)
			return b
		}, blockdev.ErrCorruptHeader},
		{"zero frame size", func(b []byte) []byte {
			psar := binary.LittleEndian.Uint32(b[blockdev.PBPPSAROffset:])
			binary.LittleEndian.PutUint32(b[psar+0x0c:], 0)
			return b
		}, blockdev.ErrCorruptHeader},
		{"table cut off", func(b []byte) []byte {
			psar := binary.LittleEndian.Uint32(b[blockdev.PBPPSAROffset:])
			return b[:psar+blockdev.NPUMDHeaderSize+8]
		}, blockdev.ErrCorruptHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(isotest.EncodePBP(img, isotest.PBPOptions{}))
			_, err := blockdev.Construct(loader.NewMemoryLoader(tt.name, data), dec)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
