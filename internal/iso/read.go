package iso

// readAt copies up to len(p) bytes of f starting at off. Partial head and
// tail blocks go through a scratch block; whole blocks in between are read
// straight into p.
func (fs *FileSystem) readAt(f *openFile, p []byte, off int64) (int, error) {
	if off >= f.size || len(p) == 0 {
		return 0, nil
	}
	n := len(p)
	if rem := f.size - off; int64(n) > rem {
		n = int(rem)
	}

	pos := uint64(f.start)*sectorSize + uint64(off)
	block := pos / sectorSize
	skip := int(pos % sectorSize)
	copied := 0

	var scratch []byte
	if skip != 0 || n < sectorSize {
		scratch = make([]byte, sectorSize)
		if err := fs.readBlocks(block, 1, scratch); err != nil {
			return 0, newError(OpRead, f.path, err)
		}
		copied = copy(p[:n], scratch[skip:])
		block++
	}

	if whole := (n - copied) / sectorSize; whole > 0 {
		span := p[copied : copied+whole*sectorSize]
		if err := fs.readBlocks(block, uint64(whole), span); err != nil {
			return copied, newError(OpRead, f.path, err)
		}
		copied += len(span)
		block += uint64(whole)
	}

	if copied < n {
		if scratch == nil {
			scratch = make([]byte, sectorSize)
		}
		if err := fs.readBlocks(block, 1, scratch); err != nil {
			return copied, newError(OpRead, f.path, err)
		}
		copied += copy(p[copied:n], scratch)
	}

	fsLogger.Trace("Read %d bytes of %s at %d", copied, f.path, off)
	return copied, nil
}

// readBlocks reads count blocks from first. Blocks past the end of the
// device, which only a corrupt record can reference, read as zeros.
func (fs *FileSystem) readBlocks(first, count uint64, buf []byte) error {
	total := uint64(fs.dev.NumBlocks())
	avail := count
	switch {
	case first >= total:
		avail = 0
	case total-first < count:
		avail = total - first
	}

	if avail > 0 {
		if err := fs.dev.ReadBlocks(uint32(first), uint32(avail), buf[:avail*sectorSize]); err != nil {
			return err
		}
	}
	if avail < count {
		fsLogger.Warn("Blocks [%d,%d) lie past the end of the device (%d blocks); reading zeros", first+avail, first+count, total)
		tail := buf[avail*sectorSize : count*sectorSize]
		for i := range tail {
			tail[i] = 0
		}
	}
	return nil
}
