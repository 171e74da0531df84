// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mbrstructs provides the exact on-disk layout of the Master Boot
// Record and its four partition entries.
//
// The same 512-byte layout describes the extended boot records chained from
// an extended partition. LBA fields are little endian.
package mbrstructs

import (
	"bytes"
	"encoding/binary"
)

// Signature is the trailing boot signature (bytes 0x55 0xAA on disk).
const Signature = 0xaa55

// RecordSize is the size of a boot record, independent of the device block
// size.
const RecordSize = 512

// Well-known partition type indicators.
const (
	TypeUnused      = 0x00
	TypeExtended    = 0x05
	TypeExtendedLBA = 0x0f
	TypeProtective  = 0xee
	TypeEFISystem   = 0xef
)

// Record is the boot record layout at LBA 0 (and at each link of an
// extended chain).
type Record struct {
	BootCode        [440]byte
	UniqueSignature uint32
	Unknown         uint16
	Partitions      [4]Entry
	Signature       uint16
}

// ReadRecord unpacks a boot record from the start of buf.
func ReadRecord(buf []byte) (*Record, error) {
	var r Record

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &r); err != nil {
		return nil, err
	}

	return &r, nil
}

// SignatureMatches checks the trailing 0xAA55 boot signature.
func (r *Record) SignatureMatches() bool {
	return r.Signature == Signature
}

// Entry is one of the four partition entries of a boot record.
type Entry struct {
	BootIndicator uint8
	StartCHS      [3]byte
	OSType        uint8
	EndCHS        [3]byte
	StartingLBA   uint32
	SizeInLBA     uint32
}

// IsUsed reports whether the entry holds a partition: both the type
// indicator and the size must be non-zero.
func (e *Entry) IsUsed() bool {
	return e.OSType != TypeUnused && e.SizeInLBA != 0
}

// IsExtended reports whether the entry links an extended partition chain.
func (e *Entry) IsExtended() bool {
	return e.OSType == TypeExtended || e.OSType == TypeExtendedLBA
}
