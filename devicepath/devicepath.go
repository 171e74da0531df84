// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package devicepath implements the UEFI media device-path nodes which
// identify detected partitions to the surrounding firmware.
//
// Only the node kinds produced by partition detection are modeled: the
// hard-drive node (GPT and MBR partitions) and the CD-ROM node (El Torito
// boot entries). Nodes render in the UEFI shell text form and encode in the
// binary wire form.
package devicepath

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/siderolabs/go-parttable/internal/gptstructs"
)

// Device path node type and subtype values, per the UEFI specification.
const (
	TypeMedia byte = 0x04
	TypeEnd   byte = 0x7f

	SubTypeHardDrive byte = 0x01
	SubTypeCDROM     byte = 0x02
	SubTypeEndEntire byte = 0xff
)

// MBRType tells which partitioning scheme a hard-drive node refers to.
type MBRType uint8

// Hard-drive node scheme values.
const (
	LegacyMBR MBRType = 1
	GPT       MBRType = 2
)

// Signature type values carried in the binary hard-drive node.
const (
	signatureTypeNone uint8 = 0
	signatureTypeMBR  uint8 = 1
	signatureTypeGUID uint8 = 2
)

// Node is a single device-path element.
type Node interface {
	fmt.Stringer

	// Write encodes the node in UEFI binary form.
	Write(w io.Writer) error
}

// Path is a device path: a sequence of nodes from root to leaf.
type Path []Node

// Last returns the leaf node of the path, or nil for an empty path.
func (p Path) Last() Node {
	if len(p) == 0 {
		return nil
	}

	return p[len(p)-1]
}

// Append returns a new path with node appended, leaving p untouched.
func (p Path) Append(node Node) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)

	return append(out, node)
}

// String renders the path in UEFI shell form, nodes separated by '/'.
func (p Path) String() string {
	var b bytes.Buffer

	for i, node := range p {
		if i > 0 {
			b.WriteByte('/')
		}

		b.WriteString(node.String())
	}

	return b.String()
}

// Write encodes each node followed by the end-of-path terminator node.
func (p Path) Write(w io.Writer) error {
	for _, node := range p {
		if err := node.Write(w); err != nil {
			return err
		}
	}

	end := struct {
		Type    uint8
		SubType uint8
		Length  uint16
	}{
		Type:    TypeEnd,
		SubType: SubTypeEndEntire,
		Length:  4,
	}

	return binary.Write(w, binary.LittleEndian, &end)
}

// HardDriveNode identifies one partition of a GPT- or MBR-partitioned disk.
//
// Signature is nil (no signature), a uint32 (MBR disk signature) or a
// uuid.UUID (GPT unique partition GUID).
type HardDriveNode struct {
	Signature       any
	PartitionStart  uint64
	PartitionSize   uint64
	PartitionNumber uint32
	MBRType         MBRType
}

func (d *HardDriveNode) String() string {
	var b bytes.Buffer

	switch sig := d.Signature.(type) {
	case nil:
		fmt.Fprintf(&b, "HD(%d,%d,0", d.PartitionNumber, d.MBRType)
	case uint32:
		fmt.Fprintf(&b, "HD(%d,MBR,0x%08x", d.PartitionNumber, sig)
	case uuid.UUID:
		fmt.Fprintf(&b, "HD(%d,GPT,%s", d.PartitionNumber, sig)
	default:
		return fmt.Sprintf("HD(%d,<invalid signature type %T>)", d.PartitionNumber, sig)
	}

	fmt.Fprintf(&b, ",0x%x,0x%x)", d.PartitionStart, d.PartitionSize)

	return b.String()
}

// Write encodes the node as a 42-byte UEFI hard-drive media node.
func (d *HardDriveNode) Write(w io.Writer) error {
	data := struct {
		Type            uint8
		SubType         uint8
		Length          uint16
		PartitionNumber uint32
		PartitionStart  uint64
		PartitionSize   uint64
		Signature       [16]byte
		MBRType         uint8
		SignatureType   uint8
	}{
		Type:            TypeMedia,
		SubType:         SubTypeHardDrive,
		Length:          42,
		PartitionNumber: d.PartitionNumber,
		PartitionStart:  d.PartitionStart,
		PartitionSize:   d.PartitionSize,
		MBRType:         uint8(d.MBRType),
	}

	switch sig := d.Signature.(type) {
	case nil:
		data.SignatureType = signatureTypeNone
	case uint32:
		data.SignatureType = signatureTypeMBR
		binary.LittleEndian.PutUint32(data.Signature[:], sig)
	case uuid.UUID:
		data.SignatureType = signatureTypeGUID
		copy(data.Signature[:], gptstructs.UUIDToGUID(sig[:]))
	default:
		return fmt.Errorf("invalid hard-drive node signature type %T", sig)
	}

	return binary.Write(w, binary.LittleEndian, &data)
}

// CDROMNode identifies one El Torito boot entry of an optical disc.
type CDROMNode struct {
	BootEntry      uint32
	PartitionStart uint64
	PartitionSize  uint64
}

func (d *CDROMNode) String() string {
	return fmt.Sprintf("CDROM(0x%x,0x%x,0x%x)", d.BootEntry, d.PartitionStart, d.PartitionSize)
}

// Write encodes the node as a 24-byte UEFI CD-ROM media node.
func (d *CDROMNode) Write(w io.Writer) error {
	data := struct {
		Type           uint8
		SubType        uint8
		Length         uint16
		BootEntry      uint32
		PartitionStart uint64
		PartitionSize  uint64
	}{
		Type:           TypeMedia,
		SubType:        SubTypeCDROM,
		Length:         24,
		BootEntry:      d.BootEntry,
		PartitionStart: d.PartitionStart,
		PartitionSize:  d.PartitionSize,
	}

	return binary.Write(w, binary.LittleEndian, &data)
}
