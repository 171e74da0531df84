// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gptstructs provides the exact on-disk layouts of the GUID
// Partition Table header and partition entries.
//
// All multi-byte fields are little endian, per the UEFI specification.
package gptstructs

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// HeaderSignature is the fixed 8-byte magic opening a GPT header.
const HeaderSignature = "EFI PART"

const (
	// HeaderSize is the defined size of the GPT header structure. The
	// on-disk header-size field may be larger, up to one block.
	HeaderSize = 92

	// HeaderCRCOffset is the byte offset of the header CRC32 field,
	// zeroed while checksumming the header.
	HeaderCRCOffset = 16

	// EntrySize is the minimum (and ubiquitous) partition entry size.
	EntrySize = 128

	// PrimaryHeaderLBA is where the primary header lives; the backup
	// header lives at the last LBA of the disk.
	PrimaryHeaderLBA = 1
)

// ESPType is the well-known EFI System Partition type GUID.
var ESPType = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")

// Header is the GPT header layout.
type Header struct {
	Signature                [8]byte
	Revision                 [4]byte
	HeaderSize               uint32
	HeaderCRC32              uint32
	Reserved                 uint32
	MyLBA                    uint64
	AlternateLBA             uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 [16]byte
	PartitionEntryLBA        uint64
	NumberOfPartitionEntries uint32
	SizeOfPartitionEntry     uint32
	PartitionEntryArrayCRC32 uint32
}

// ReadHeader unpacks a header from the start of buf.
func ReadHeader(buf []byte) (*Header, error) {
	var h Header

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
		return nil, err
	}

	return &h, nil
}

// SignatureMatches checks the fixed "EFI PART" magic.
func (h *Header) SignatureMatches() bool {
	return string(h.Signature[:]) == HeaderSignature
}

// Entry is the GPT partition entry layout. EndingLBA is inclusive.
type Entry struct {
	PartitionTypeGUID   [16]byte
	UniquePartitionGUID [16]byte
	StartingLBA         uint64
	EndingLBA           uint64
	Attributes          uint64
	PartitionName       [72]byte
}

// EntryAttributeOSSpecific is attribute bit 1: the partition is meant for
// OS-specific handling and is not exposed as a child device.
const EntryAttributeOSSpecific = 1 << 1

// ReadEntry unpacks one entry from the start of buf. Entries larger than
// EntrySize only carry reserved space beyond the defined fields.
func ReadEntry(buf []byte) (*Entry, error) {
	var e Entry

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &e); err != nil {
		return nil, err
	}

	return &e, nil
}

// IsUnused checks for the all-zero "unused entry" type GUID.
func (e *Entry) IsUnused() bool {
	return e.PartitionTypeGUID == [16]byte{}
}

// Name decodes the UTF-16LE partition name, trimming trailing NULs.
func (e *Entry) Name() string {
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(e.PartitionName[:])
	if err != nil {
		return ""
	}

	return string(bytes.TrimRight(decoded, "\x00"))
}
