// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package detect discovers partition tables on block devices.
//
// A device is probed for the supported partitioning schemes in firmware
// order: GPT first, then El Torito boot catalogs, then the classic MBR.
// The first scheme found claims the device. A device where no scheme is
// found yields an Info with SchemeNone and no partitions; that is not an
// error, errors are reserved for probes that could not complete.
package detect

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/siderolabs/gen/xslices"
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/detect/internal/eltorito"
	"github.com/siderolabs/go-parttable/detect/internal/gpt"
	"github.com/siderolabs/go-parttable/detect/internal/mbr"
	"github.com/siderolabs/go-parttable/detect/internal/probe"
	"github.com/siderolabs/go-parttable/devicepath"
)

// ErrOutOfResources is returned when on-disk metadata claims a region too
// large to buffer in memory.
var ErrOutOfResources = probe.ErrOutOfResources

// Scheme is a partitioning scheme.
type Scheme int

// Schemes, in detection order.
const (
	SchemeNone Scheme = iota
	SchemeGPT
	SchemeElTorito
	SchemeMBR
)

func (s Scheme) String() string {
	switch s {
	case SchemeGPT:
		return "gpt"
	case SchemeElTorito:
		return "el-torito"
	case SchemeMBR:
		return "mbr"
	case SchemeNone:
		fallthrough
	default:
		return "none"
	}
}

// Info describes the partition table detected on one device.
type Info struct {
	// DiskGUID is the GPT disk GUID.
	DiskGUID *uuid.UUID

	// DiskSignature is the 32-bit MBR disk signature.
	DiskSignature *uint32

	// VolumeLabel is the ISO-9660 primary volume label.
	VolumeLabel *string

	// Partitions are the detected partitions, in on-disk order.
	Partitions []Partition

	// Size is the device size in bytes, SectorSize its logical block
	// size.
	Size       uint64
	SectorSize uint32

	// Scheme is the detected partitioning scheme, SchemeNone when the
	// device carries none of them.
	Scheme Scheme
}

// Partition is one detected partition or El Torito boot image.
type Partition struct {
	// Path is the parent device path extended with this partition's
	// node.
	Path devicepath.Path

	// GPT, MBR and ElTorito carry scheme-specific detail; the one
	// matching the detected scheme is set.
	GPT      *GPTDetail
	MBR      *MBRDetail
	ElTorito *ElToritoDetail

	// StartLBA and EndLBA bound the partition on the probed device, both
	// inclusive, in the device's own blocks.
	StartLBA uint64
	EndLBA   uint64

	// Number is the 1-based partition number for GPT and MBR, or the
	// 0-based boot entry index for El Torito.
	Number uint32

	// BlockSize is the logical block size of the partition's own view of
	// the device. It only differs from the device block size for El
	// Torito boot images with emulated geometry.
	BlockSize uint32

	// ESP marks the EFI system partition.
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

// Installer receives each detected partition as a standalone block
// device, the way firmware hands every partition to the next driver in
// line.
//
// An installer that probes its argument again (with the partition's path
// as the parent path) descends into nested tables such as extended
// containers.
type Installer interface {
	Install(child block.Device, part Partition) error
}

var detectors = []struct {
	probe.Detector
	scheme Scheme
}{
	{&gpt.Probe{}, SchemeGPT},
	{&eltorito.Probe{}, SchemeElTorito},
	{&mbr.Probe{}, SchemeMBR},
}

// ProbeDevice returns the partition-table information of the device.
func ProbeDevice(dev block.Device, opts ...ProbeOption) (*Info, error) {
	return probeDevice(dev, applyProbeOptions(opts...))
}

func probeDevice(dev block.Device, options Options) (*Info, error) {
	info := &Info{
		Scheme:     SchemeNone,
		Size:       (dev.GetLastLBA() + 1) * uint64(dev.GetBlockSize()),
		SectorSize: dev.GetBlockSize(),
	}

	probeOpts := probe.Options{
		Logger:     options.Logger,
		ParentPath: options.ParentPath,
	}

	for _, detector := range detectors {
		result, err := detector.Probe(dev, probeOpts)
		if err != nil {
			return nil, fmt.Errorf("%s probe failed: %w", detector.Name(), err)
		}

		if result == nil {
			continue
		}

		info.Scheme = detector.scheme
		info.DiskGUID = result.DiskGUID
		info.DiskSignature = result.DiskSignature
		info.VolumeLabel = result.VolumeLabel
		info.Partitions = xslices.Map(result.Partitions, func(part probe.Partition) Partition {
			return convertPartition(part, options.ParentPath)
		})

		break
	}

	if options.Installer != nil {
		installPartitions(dev, info, options)
	}

	return info, nil
}

func convertPartition(part probe.Partition, parentPath devicepath.Path) Partition {
	out := Partition{
		Path:      parentPath.Append(part.Node),
		StartLBA:  part.StartLBA,
		EndLBA:    part.EndLBA,
		Number:    part.Number,
		BlockSize: part.BlockSize,
		ESP:       part.ESP,
	}

	if part.GPT != nil {
		out.GPT = &GPTDetail{
			Name:       part.GPT.Name,
			TypeGUID:   part.GPT.TypeGUID,
			UniqueGUID: part.GPT.UniqueGUID,
			Attributes: part.GPT.Attributes,
		}
	}

	if part.MBR != nil {
		out.MBR = &MBRDetail{
			OSType:        part.MBR.OSType,
			BootIndicator: part.MBR.BootIndicator,
			Logical:       part.MBR.Logical,
		}
	}

	if part.ElTorito != nil {
		out.ElTorito = &ElToritoDetail{
			PlatformID:  part.ElTorito.PlatformID,
			MediaType:   part.ElTorito.MediaType,
			SystemType:  part.ElTorito.SystemType,
			LoadSegment: part.ElTorito.LoadSegment,
		}
	}

	return out
}

// installPartitions hands each partition to the installer as its own
// block device. Failures are logged and skipped: detection already
// succeeded, and one bad partition must not hide its siblings.
func installPartitions(dev block.Device, info *Info, options Options) {
	for _, part := range info.Partitions {
		child, err := block.NewChild(dev, part.StartLBA, part.EndLBA, part.BlockSize)
		if err != nil {
			options.Logger.Warn("failed to open partition window",
				zap.String("path", part.Path.String()),
				zap.Error(err),
			)

			continue
		}

		if err := options.Installer.Install(child, part); err != nil {
			options.Logger.Warn("partition installer failed",
				zap.String("path", part.Path.String()),
				zap.Error(err),
			)
		}
	}
}
