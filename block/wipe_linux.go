// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"io"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// TableWipeRange is how many bytes FastWipe clears at each end of the
// device. 1 MiB covers every structure detection looks at: the MBR, the
// primary GPT header with its entry array, the El Torito descriptor
// area at the front, and the backup GPT header with its entry array at
// the back.
const TableWipeRange = 1024 * 1024

// Range is a byte range of the device.
type Range struct {
	Offset uint64
	Size   uint64
}

// Wipe zeroes the whole device.
//
// In order of availability this tries to perform the following:
//   - secure discard (secure erase)
//   - discard with zeros
//   - zero out via ioctl
//   - zero out from userland
func (d *FileDevice) Wipe() (string, error) {
	if d.readOnly {
		return "", ErrWriteProtected
	}

	return d.WipeRange(0, d.size)
}

// FastWipe destroys the partition-table metadata of the device.
//
// This method is much faster than Wipe(), but it doesn't guarantee that
// the device is zeroed out completely.
//
// If ranges are given, only those ranges are wiped. Otherwise the first
// and the last TableWipeRange bytes are, which takes out all the table
// structures a probe would find.
func (d *FileDevice) FastWipe(ranges ...Range) error {
	if d.readOnly {
		return ErrWriteProtected
	}

	// BLKDISCARD is implemented via TRIM on SSDs, it might or might not zero out device contents.
	r := [2]uint64{0, d.size}

	// ignoring the error here as DISCARD might be not supported by the device
	unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&r[0]))) //nolint:errcheck

	if len(ranges) == 0 {
		wipeLength := min(d.size, uint64(TableWipeRange))

		if _, err := d.WipeRange(0, wipeLength); err != nil {
			return err
		}

		if d.size >= TableWipeRange*2 {
			if _, err := d.WipeRange(d.size-TableWipeRange, TableWipeRange); err != nil {
				return err
			}
		}

		return nil
	}

	for _, r := range ranges {
		if _, err := d.WipeRange(r.Offset, r.Size); err != nil {
			return err
		}
	}

	return nil
}

// WipeRange zeroes the device range [start, start+length) and reports
// the mechanism used.
func (d *FileDevice) WipeRange(start, length uint64) (string, error) {
	if d.readOnly {
		return "", ErrWriteProtected
	}

	// verify alignment before starting to use ioctl ways
	if start&0x7ff == 0 && length&0x7ff == 0 {
		r := [2]uint64{start, length}

		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKSECDISCARD, uintptr(unsafe.Pointer(&r[0]))); errno == 0 {
			runtime.KeepAlive(d)

			return "blksecdiscard", nil
		}

		var zeroes int

		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKDISCARDZEROES, uintptr(unsafe.Pointer(&zeroes))); errno == 0 && zeroes != 0 {
			if _, _, errno = unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKDISCARD, uintptr(unsafe.Pointer(&r[0]))); errno == 0 {
				runtime.KeepAlive(d)

				return "blkdiscardzeros", nil
			}
		}

		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKZEROOUT, uintptr(unsafe.Pointer(&r[0]))); errno == 0 {
			runtime.KeepAlive(d)

			return "blkzeroout", nil
		}
	}

	if length >= 65536 { // arbitrary threshold to use /dev/zero instead of allocating a zero slice
		zero, err := os.Open("/dev/zero")
		if err != nil {
			return "", err
		}

		defer zero.Close() //nolint:errcheck

		if _, err = d.f.Seek(int64(start), io.SeekStart); err != nil {
			return "", err
		}

		_, err = io.CopyN(d.f, zero, int64(length))

		return "writezeroes", err
	}

	zeroes := make([]byte, length)

	_, err := d.f.WriteAt(zeroes, int64(start))

	return "writezero", err
}
