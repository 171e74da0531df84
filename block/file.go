// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package block

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"golang.org/x/sys/unix"
)

// FileDevice is a Device backed by an open file: a raw block device node
// or a regular disk image.
type FileDevice struct {
	f *os.File

	size      uint64
	blockSize uint32
	readOnly  bool
}

// OpenPath opens the path read-only as a Device.
//
// Device nodes can appear a moment after the kernel announces them, so
// ENOENT is retried for a short window before giving up.
//
// fileBlockSize is only consulted when path refers to a regular file
// (an image); pass zero for the default of DefaultBlockSize. Block
// device geometry always comes from the kernel.
func OpenPath(path string, fileBlockSize uint32) (*FileDevice, error) {
	return openPath(path, os.O_RDONLY, fileBlockSize)
}

// OpenPathRW opens the path read-write, which the wipe operations
// require. The same ENOENT retry window as OpenPath applies.
func OpenPathRW(path string) (*FileDevice, error) {
	return openPath(path, os.O_RDWR, 0)
}

func openPath(path string, flag int, fileBlockSize uint32) (*FileDevice, error) {
	var f *os.File

	err := retry.Constant(5*time.Second, retry.WithUnits(50*time.Millisecond)).Retry(func() error {
		var err error

		f, err = os.OpenFile(path, flag|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
		if err != nil {
			if os.IsNotExist(err) {
				return retry.ExpectedError(err)
			}

			return err
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}

	dev, err := NewFileDevice(f, fileBlockSize)
	if err != nil {
		f.Close() //nolint:errcheck

		return nil, err
	}

	return dev, nil
}

// NewFileDevice wraps an already opened file as a Device.
//
// The device takes ownership of the file: Close closes it.
func NewFileDevice(f *os.File, fileBlockSize uint32) (*FileDevice, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat: %w", err)
	}

	dev := &FileDevice{
		f:         f,
		blockSize: fileBlockSize,
	}

	if dev.blockSize == 0 {
		dev.blockSize = DefaultBlockSize
	}

	sysStat := st.Sys().(*syscall.Stat_t) //nolint:errcheck,forcetypeassert // we know it's a syscall.Stat_t

	switch sysStat.Mode & unix.S_IFMT {
	case unix.S_IFBLK:
		if err := dev.fillGeometry(); err != nil {
			return nil, fmt.Errorf("failed to query device geometry: %w", err)
		}
	case unix.S_IFREG:
		// regular file (an image?), geometry comes from the file size
		dev.size = uint64(st.Size())
	default:
		return nil, fmt.Errorf("unsupported file type: %s", st.Mode().Type())
	}

	if !isPowerOfTwo(dev.blockSize) || dev.blockSize < DefaultBlockSize {
		return nil, fmt.Errorf("invalid block size %d", dev.blockSize)
	}

	if dev.size < uint64(dev.blockSize) {
		return nil, fmt.Errorf("device size %d is smaller than a single block", dev.size)
	}

	return dev, nil
}

// Close releases the underlying file.
func (d *FileDevice) Close() error {
	return d.f.Close()
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off)+uint64(len(p)) > d.size {
		return 0, ErrOutOfBounds
	}

	return d.f.ReadAt(p, off)
}

// GetBlockSize implements Device.
func (d *FileDevice) GetBlockSize() uint32 {
	return d.blockSize
}

// GetLastLBA implements Device.
func (d *FileDevice) GetLastLBA() uint64 {
	return d.size/uint64(d.blockSize) - 1
}

// GetMediaID implements Device.
func (d *FileDevice) GetMediaID() uint32 {
	return 0
}

// IsReadOnly implements Device.
func (d *FileDevice) IsReadOnly() bool {
	return d.readOnly
}
