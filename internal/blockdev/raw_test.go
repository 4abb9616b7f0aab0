package blockdev_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umdfs/internal/blockdev"
	"umdfs/internal/loader"
)

func TestRawDevice(t *testing.T) {
	img := sampleImage(7)
	dev, err := blockdev.NewRawDevice(loader.NewMemoryLoader("raw", img))
	require.NoError(t, err)

	assert.Equal(t, int64(len(img)), dev.UncompressedSize())
	requireSameBlocks(t, dev, img)

	// Padding of the final partial block is not a truncation
	assert.Equal(t, uint64(0), dev.TruncatedReads())
}

func TestRawDeviceBounds(t *testing.T) {
	dev, err := blockdev.NewRawDevice(loader.NewMemoryLoader("raw", sampleImage(3)))
	require.NoError(t, err)

	buf := make([]byte, blockdev.BlockSize)
	err = dev.ReadBlock(3, buf)
	assert.True(t, errors.Is(err, blockdev.ErrBlockOutOfRange))

	err = dev.ReadBlocks(2, 2, make([]byte, 2*blockdev.BlockSize))
	assert.True(t, errors.Is(err, blockdev.ErrBlockOutOfRange))

	err = dev.ReadBlock(0, make([]byte, 100))
	assert.True(t, errors.Is(err, blockdev.ErrShortBuffer))
}

func TestRawDeviceTruncatedSource(t *testing.T) {
	img := sampleImage(4)
	src := shrunkLoader{loader.NewMemoryLoader("short", img[:blockdev.BlockSize+10]), int64(len(img))}

	dev, err := blockdev.NewRawDevice(src)
	require.NoError(t, err)
	require.Equal(t, uint32(4), dev.NumBlocks())

	buf := make([]byte, blockdev.BlockSize)
	require.NoError(t, dev.ReadBlock(1, buf))
	assert.Equal(t, img[blockdev.BlockSize:blockdev.BlockSize+10], buf[:10])
	assert.Equal(t, make([]byte, blockdev.BlockSize-10), buf[10:])

	require.NoError(t, dev.ReadBlock(3, buf))
	assert.Equal(t, make([]byte, blockdev.BlockSize), buf)
	assert.Equal(t, uint64(2), dev.TruncatedReads())
}
