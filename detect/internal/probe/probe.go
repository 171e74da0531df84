// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package probe defines the contract between the partition-table
// dispatcher and the per-scheme detectors.
package probe

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/devicepath"
)

// ErrOutOfResources is returned when an on-disk structure claims a
// metadata region too large to buffer in scratch memory.
var ErrOutOfResources = errors.New("out of resources")

// Options control a single probe pass.
type Options struct {
	// Logger receives diagnostics about recoverable table corruption.
	Logger *zap.Logger

	// ParentPath is the device path of the device being probed, empty for
	// a whole disk.
	ParentPath devicepath.Path
}

// Detector probes a block device for one partitioning scheme.
type Detector interface {
	// Name returns the name of the partitioning scheme.
	Name() string

	// Probe inspects the device and returns the discovered partitions.
	//
	// A nil result with a nil error means the scheme is not present on
	// the device; a non-nil error means probing could not complete
	// (I/O failure, media gone or swapped).
	Probe(dev block.Device, opts Options) (*Result, error)
}

// Result is a successful probe of one partitioning scheme.
type Result struct {
	// DiskGUID is the GPT disk GUID.
	DiskGUID *uuid.UUID

	// DiskSignature is the 32-bit MBR disk signature.
	DiskSignature *uint32

	// VolumeLabel is the ISO-9660 primary volume label.
	VolumeLabel *string

	Partitions []Partition
}

// Partition is a single discovered partition or boot image.
type Partition struct {
	// Node identifies the partition in its parent's device path.
	Node devicepath.Node

	// GPT, MBR and ElTorito carry scheme-specific detail; exactly one
	// is set.
	GPT      *GPTDetail
	MBR      *MBRDetail
	ElTorito *ElToritoDetail

	// StartLBA and EndLBA bound the partition in parent device blocks,
	// both inclusive.
	StartLBA uint64
	EndLBA   uint64

	// Number is the 1-based partition number for GPT and MBR, or the
	// 0-based boot entry index for El Torito.
	Number uint32

	// BlockSize is the logical block size of the partition's own view of
	// the device.
	BlockSize uint32

	// ESP is true for the EFI system partition.
	ESP bool
}

// GPTDetail is what a GPT partition entry says beyond its location.
type GPTDetail struct {
	Name       string
	TypeGUID   uuid.UUID
	UniqueGUID uuid.UUID
	Attributes uint64
}

// MBRDetail is what an MBR partition record says beyond its location.
type MBRDetail struct {
	OSType        uint8
	BootIndicator uint8

	// Logical is true for partitions found inside an extended container.
	Logical bool
}

// ElToritoDetail is what an El Torito boot catalog entry says beyond its
// location.
type ElToritoDetail struct {
	PlatformID  uint8
	MediaType   uint8
	SystemType  uint8
	LoadSegment uint16
}
