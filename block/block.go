// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides the block-device view consumed by partition
// detection, plus wipe operations destroying on-disk metadata.
//
// A Device couples byte-addressed reads of the current media with the media
// geometry. Implementations are provided for io.ReaderAt-backed images
// (NewImage), partition windows of another device (NewChild) and, on Linux,
// real block devices opened by path (OpenPath and OpenPathRW).
package block

import "io"

// DefaultBlockSize is assumed for disk images when no block size is given.
const DefaultBlockSize = 512

// Device is a read-only view of one block device's current media.
//
// ReadAt addresses bytes of the media observed when the device was opened;
// if removable media was swapped since, reads fail with ErrMediaChanged, and
// with ErrNoMedia when no media is present at all.
type Device interface {
	io.ReaderAt

	// GetBlockSize returns the logical block size in bytes.
	GetBlockSize() uint32

	// GetLastLBA returns the last addressable logical block.
	GetLastLBA() uint64

	// GetMediaID identifies the media generation this view was opened
	// against.
	GetMediaID() uint32

	// IsReadOnly reports whether the media is write-protected.
	IsReadOnly() bool
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}
