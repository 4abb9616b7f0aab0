package iso

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"

	"umdfs/internal/blockdev"
	"umdfs/internal/logging"
)

var volumeLogger = logging.GetLogger().WithPrefix("iso.volume")

const (
	sectorSize = blockdev.BlockSize

	// PrimaryVolumeBlock is the block holding the primary volume descriptor
	PrimaryVolumeBlock = 16
)

// volumeSignature identifies a volume descriptor at byte 1
var volumeSignature = []byte("CD001")

// Locator gives the position of an extent on the device
type Locator struct {
	Extent uint32 // first block
	Size   uint32 // length in bytes
}

// Sectors returns the number of blocks the extent covers
func (l Locator) Sectors() uint32 {
	return uint32((uint64(l.Size) + sectorSize - 1) / sectorSize)
}

// VolumeDescriptor holds the fields of the primary volume descriptor
type VolumeDescriptor struct {
	SystemID     string
	Label        string
	Publisher    string
	DataPreparer string
	Application  string
	SpaceSize    uint32 // volume size in logical blocks
	BlockSize    uint16
	Root         Locator
	RootTime     time.Time
	Created      time.Time
}

// ParseVolume reads the primary volume descriptor from block 16 of dev.
// Any failure, including an unreadable block, yields ErrNotAVolume.
func ParseVolume(dev blockdev.BlockDevice) (*VolumeDescriptor, error) {
	if dev.NumBlocks() <= PrimaryVolumeBlock {
		return nil, newError(OpParse, "", ErrNotAVolume)
	}

	block := make([]byte, sectorSize)
	if err := dev.ReadBlock(PrimaryVolumeBlock, block); err != nil {
		volumeLogger.Debug("Cannot read volume descriptor: %v", err)
		return nil, newError(OpParse, "", ErrNotAVolume)
	}
	if !bytes.Equal(block[1:6], volumeSignature) {
		volumeLogger.Debug("Block %d has signature %q", PrimaryVolumeBlock, block[1:6])
		return nil, newError(OpParse, "", ErrNotAVolume)
	}

	root, ok := parseRecord(block[156:190])
	if !ok {
		volumeLogger.Warn("Root directory record is malformed")
	}

	vd := &VolumeDescriptor{
		SystemID:     descriptorString(block[8:40]),
		Label:        descriptorString(block[40:72]),
		SpaceSize:    binary.LittleEndian.Uint32(block[80:84]),
		BlockSize:    binary.LittleEndian.Uint16(block[128:130]),
		Root:         Locator{Extent: root.extent, Size: root.size},
		RootTime:     root.modTime,
		Publisher:    descriptorString(block[318:446]),
		DataPreparer: descriptorString(block[446:574]),
		Application:  descriptorString(block[574:702]),
		Created:      volumeTime(block[813:830]),
	}
	if vd.BlockSize != 0 && vd.BlockSize != sectorSize {
		volumeLogger.Warn("Volume declares %d byte blocks; reading as %d", vd.BlockSize, sectorSize)
	}

	volumeLogger.Debug("Volume %q: root at %d (%d bytes), %d blocks", vd.Label, vd.Root.Extent, vd.Root.Size, vd.SpaceSize)
	return vd, nil
}

// descriptorString decodes a space padded ISO-8859-1 field
func descriptorString(b []byte) string {
	return strings.TrimRight(latin1(b), " ")
}
