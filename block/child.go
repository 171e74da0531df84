// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"fmt"
)

// Child is a Device view of a contiguous LBA range of a parent Device.
//
// It is what a partition looks like to code probing for nested partition
// tables (e.g. an extended MBR container).
type Child struct {
	parent Device

	startOffset uint64 // bytes from the start of the parent
	size        uint64 // bytes
	blockSize   uint32
}

// NewChild creates a Device covering parent blocks [startLBA, endLBA]
// (inclusive, in parent block units).
//
// If blockSize is zero, the child inherits the parent block size;
// otherwise the child re-addresses the same byte range with its own
// block size, the way a boot image carved out of a 2048-byte/sector
// optical disk is addressed with 512-byte sectors.
func NewChild(parent Device, startLBA, endLBA uint64, blockSize uint32) (*Child, error) {
	if endLBA < startLBA {
		return nil, fmt.Errorf("child end LBA %d before start LBA %d", endLBA, startLBA)
	}

	if endLBA > parent.GetLastLBA() {
		return nil, fmt.Errorf("child end LBA %d beyond parent last LBA %d", endLBA, parent.GetLastLBA())
	}

	if blockSize == 0 {
		blockSize = parent.GetBlockSize()
	}

	if !isPowerOfTwo(blockSize) {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}

	parentBlockSize := uint64(parent.GetBlockSize())

	return &Child{
		parent:      parent,
		startOffset: startLBA * parentBlockSize,
		size:        (endLBA - startLBA + 1) * parentBlockSize,
		blockSize:   blockSize,
	}, nil
}

func (c *Child) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off)+uint64(len(p)) > c.size {
		return 0, ErrOutOfBounds
	}

	return c.parent.ReadAt(p, off+int64(c.startOffset))
}

// GetBlockSize implements Device.
func (c *Child) GetBlockSize() uint32 {
	return c.blockSize
}

// GetLastLBA implements Device.
func (c *Child) GetLastLBA() uint64 {
	return c.size/uint64(c.blockSize) - 1
}

// GetMediaID implements Device.
func (c *Child) GetMediaID() uint32 {
	return c.parent.GetMediaID()
}

// IsReadOnly implements Device.
func (c *Child) IsReadOnly() bool {
	return c.parent.IsReadOnly()
}
