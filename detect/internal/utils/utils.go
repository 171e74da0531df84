// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package utils provides small helpers shared by the detectors.
package utils

import (
	"encoding/binary"
	"hash/crc32"
)

// DiskCRC32 computes the checksum protecting GPT headers and entry
// arrays: reflected polynomial 0xEDB88320, initial value 0xFFFFFFFF,
// final XOR 0xFFFFFFFF. This is the standard IEEE CRC32.
func DiskCRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Checksum16 sums data as little-endian 16-bit words, truncating to 16
// bits. An El Torito validation entry is laid out so the sum over all of
// its words is zero.
func Checksum16(data []byte) uint16 {
	var sum uint16

	for i := 0; i+1 < len(data); i += 2 {
		sum += binary.LittleEndian.Uint16(data[i:])
	}

	return sum
}
