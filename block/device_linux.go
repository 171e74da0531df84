// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fillGeometry queries the kernel for the size, logical sector size and
// read-only state of the block device.
func (d *FileDevice) fillGeometry() error {
	fd := d.f.Fd()

	var size uint64

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))); errno != 0 {
		return fmt.Errorf("BLKGETSIZE64 failed: %w", errno)
	}

	var ssize int

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKSSZGET, uintptr(unsafe.Pointer(&ssize))); errno != 0 {
		return fmt.Errorf("BLKSSZGET failed: %w", errno)
	}

	var ro int

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKROGET, uintptr(unsafe.Pointer(&ro))); errno != 0 {
		return fmt.Errorf("BLKROGET failed: %w", errno)
	}

	d.size = size
	d.blockSize = uint32(ssize)
	d.readOnly = ro != 0

	return nil
}
