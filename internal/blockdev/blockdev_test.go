package blockdev_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"umdfs/internal/blockdev"
	"umdfs/internal/loader"
)

// sampleImage returns blocks of mixed compressible and random content,
// ending in a partial block.
func sampleImage(blocks int) []byte {
	rng := rand.New(rand.NewSource(42))
	img := make([]byte, blocks*blockdev.BlockSize-100)
	for i := 0; i < len(img); i += blockdev.BlockSize {
		end := i + blockdev.BlockSize
		if end > len(img) {
			end = len(img)
		}
		switch (i / blockdev.BlockSize) % 3 {
		case 0:
			copy(img[i:end], bytes.Repeat([]byte("UMD DATA "), blockdev.BlockSize/9+1))
		case 1:
			rng.Read(img[i:end])
		}
	}
	return img
}

// expectedBlock returns block n of img, zero-padded
func expectedBlock(img []byte, n uint32) []byte {
	out := make([]byte, blockdev.BlockSize)
	start := int(n) * blockdev.BlockSize
	if start < len(img) {
		copy(out, img[start:])
	}
	return out
}

// requireSameBlocks checks every block of dev against img
func requireSameBlocks(t *testing.T, dev blockdev.BlockDevice, img []byte) {
	t.Helper()
	require.Equal(t, uint32((len(img)+blockdev.BlockSize-1)/blockdev.BlockSize), dev.NumBlocks())

	buf := make([]byte, blockdev.BlockSize)
	for n := uint32(0); n < dev.NumBlocks(); n++ {
		require.NoError(t, dev.ReadBlock(n, buf), "block %d", n)
		require.True(t, bytes.Equal(expectedBlock(img, n), buf), "block %d differs", n)
	}

	all := make([]byte, int(dev.NumBlocks())*blockdev.BlockSize)
	require.NoError(t, dev.ReadBlocks(0, dev.NumBlocks(), all))
	require.True(t, bytes.Equal(img, all[:len(img)]))
}

// shrunkLoader reports a larger size than the data it can serve
type shrunkLoader struct {
	*loader.MemoryLoader
	size int64
}

func (s shrunkLoader) FileSize() int64 { return s.size }
