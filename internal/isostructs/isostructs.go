// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package isostructs provides the exact on-disk layouts of the ISO-9660
// volume descriptors and the El Torito boot catalog.
package isostructs

import (
	"bytes"
	"encoding/binary"
)

const (
	// BlockSize is the fixed ISO-9660 logical block size.
	BlockSize = 2048

	// DescriptorLBA is where the volume descriptor sequence starts.
	DescriptorLBA = 16

	// StandardID is the 5-byte magic of every volume descriptor.
	StandardID = "CD001"

	// ElToritoSystemID is the boot system identifier of an El Torito boot
	// record: the marker string zero-padded to the compared 31 bytes.
	ElToritoSystemID = "EL TORITO SPECIFICATION\x00\x00\x00\x00\x00\x00\x00\x00"
)

// Volume descriptor type values.
const (
	TypeBootRecord = 0
	TypePrimary    = 1
	TypeTerminator = 255
)

// Boot catalog entry indicators and geometry.
const (
	ValidationIndicator    = 0x01
	BootableIndicator      = 0x88
	SectionHeaderIndicator = 0x90
	FinalSectionIndicator  = 0x91

	// CatalogSignature is the 0xAA55 trailer of the validation entry.
	CatalogSignature = 0xaa55

	// CatalogEntrySize is the size of every boot catalog entry.
	CatalogEntrySize = 32
)

// Boot media types of a catalog boot entry.
const (
	MediaNoEmulation = 0
	Media12MBFloppy  = 1
	Media144MBFloppy = 2
	Media288MBFloppy = 3
	MediaHardDisk    = 4
)

// DescriptorHeader is the 7-byte prefix common to all volume descriptors.
type DescriptorHeader struct {
	Type    uint8
	ID      [5]byte
	Version uint8
}

// ReadDescriptorHeader unpacks the descriptor prefix from buf.
func ReadDescriptorHeader(buf []byte) (*DescriptorHeader, error) {
	var h DescriptorHeader

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
		return nil, err
	}

	return &h, nil
}

// StandardIDMatches checks the "CD001" magic.
func (h *DescriptorHeader) StandardIDMatches() bool {
	return string(h.ID[:]) == StandardID
}

// BootRecord is the El Torito boot record volume descriptor prefix. The
// catalog LBA points at the boot catalog block.
type BootRecord struct {
	Type       uint8
	ID         [5]byte
	Version    uint8
	SystemID   [32]byte
	Unused     [32]byte
	CatalogLBA uint32
}

// ReadBootRecord unpacks a boot record volume descriptor from buf.
func ReadBootRecord(buf []byte) (*BootRecord, error) {
	var r BootRecord

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &r); err != nil {
		return nil, err
	}

	return &r, nil
}

// IsElTorito compares the boot system id prefix against the El Torito
// marker.
func (r *BootRecord) IsElTorito() bool {
	return string(r.SystemID[:len(ElToritoSystemID)]) == ElToritoSystemID
}

// PrimaryVolume is the primary volume descriptor prefix, up to the
// both-byte-order volume space size field.
type PrimaryVolume struct {
	Type          uint8
	ID            [5]byte
	Version       uint8
	Unused1       uint8
	SystemID      [32]byte
	VolumeID      [32]byte
	Unused2       [8]byte
	VolumeSpaceLE uint32
	VolumeSpaceBE uint32
}

// ReadPrimaryVolume unpacks a primary volume descriptor from buf.
func ReadPrimaryVolume(buf []byte) (*PrimaryVolume, error) {
	var v PrimaryVolume

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v); err != nil {
		return nil, err
	}

	return &v, nil
}

// Label returns the volume identifier with the space padding trimmed.
func (v *PrimaryVolume) Label() string {
	return string(bytes.TrimRight(v.VolumeID[:], " \x00"))
}

// ValidationEntry is the first entry of the boot catalog.
type ValidationEntry struct {
	Indicator      uint8
	PlatformID     uint8
	Reserved       uint16
	ManufacturerID [24]byte
	Checksum       uint16
	Signature      uint16
}

// ReadValidationEntry unpacks the catalog validation entry from buf.
func ReadValidationEntry(buf []byte) (*ValidationEntry, error) {
	var v ValidationEntry

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v); err != nil {
		return nil, err
	}

	return &v, nil
}

// IsValid checks the validation indicator and the 0xAA55 trailer.
func (v *ValidationEntry) IsValid() bool {
	return v.Indicator == ValidationIndicator && v.Signature == CatalogSignature
}

// BootEntry is an initial/default or section boot entry of the catalog.
type BootEntry struct {
	Indicator   uint8
	MediaType   uint8
	LoadSegment uint16
	SystemType  uint8
	Unused      uint8
	SectorCount uint16
	LBA         uint32
	Reserved    [20]byte
}

// ReadBootEntry unpacks one boot entry from buf.
func ReadBootEntry(buf []byte) (*BootEntry, error) {
	var e BootEntry

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &e); err != nil {
		return nil, err
	}

	return &e, nil
}

// IsBootable reports whether the entry is a bootable boot entry.
func (e *BootEntry) IsBootable() bool {
	return e.Indicator == BootableIndicator
}
