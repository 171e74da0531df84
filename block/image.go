// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Image is a Device backed by an io.ReaderAt, typically an in-memory disk
// image or an opened image file.
type Image struct {
	r         io.ReaderAt
	size      uint64
	blockSize uint32
	mediaID   uint32
	changed   atomic.Bool
}

// ImageOption configures NewImage.
type ImageOption func(*Image)

// WithBlockSize sets the logical block size of the image device. The
// default is DefaultBlockSize; ISO-9660 images want 2048.
func WithBlockSize(size uint32) ImageOption {
	return func(i *Image) {
		i.blockSize = size
	}
}

// WithMediaID sets the media generation the view is opened against.
func WithMediaID(id uint32) ImageOption {
	return func(i *Image) {
		i.mediaID = id
	}
}

// NewImage wraps an io.ReaderAt of the given size as a Device.
func NewImage(r io.ReaderAt, size uint64, opts ...ImageOption) (*Image, error) {
	img := &Image{
		r:         r,
		size:      size,
		blockSize: DefaultBlockSize,
	}

	for _, opt := range opts {
		opt(img)
	}

	if !isPowerOfTwo(img.blockSize) || img.blockSize < DefaultBlockSize {
		return nil, fmt.Errorf("invalid block size %d", img.blockSize)
	}

	if size < uint64(img.blockSize) {
		return nil, fmt.Errorf("image size %d is smaller than one block", size)
	}

	return img, nil
}

// ChangeMedia simulates swapping removable media: the media id is bumped
// and every subsequent read through this view fails with ErrMediaChanged.
func (i *Image) ChangeMedia() {
	i.changed.Store(true)
}

func (i *Image) ReadAt(p []byte, off int64) (int, error) {
	if i.changed.Load() {
		return 0, ErrMediaChanged
	}

	if off < 0 || uint64(off)+uint64(len(p)) > i.size {
		return 0, ErrOutOfBounds
	}

	return i.r.ReadAt(p, off)
}

// GetBlockSize implements Device.
func (i *Image) GetBlockSize() uint32 {
	return i.blockSize
}

// GetLastLBA implements Device.
func (i *Image) GetLastLBA() uint64 {
	return i.size/uint64(i.blockSize) - 1
}

// GetMediaID implements Device.
func (i *Image) GetMediaID() uint32 {
	if i.changed.Load() {
		return i.mediaID + 1
	}

	return i.mediaID
}

// IsReadOnly implements Device.
func (i *Image) IsReadOnly() bool {
	return false
}
