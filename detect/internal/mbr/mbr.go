// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mbr detects classic Master Boot Record partition tables,
// including chained extended/logical partitions.
package mbr

import (
	"fmt"

	"github.com/siderolabs/go-pointer"
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/detect/internal/probe"
	"github.com/siderolabs/go-parttable/devicepath"
	"github.com/siderolabs/go-parttable/internal/mbrstructs"
)

// maxChainRecords caps the extended-chain walk. The parent-size bound
// alone admits cursor cycles on crafted tables, and no sane tool writes
// anywhere near this many logical drives.
const maxChainRecords = 128

// Probe detects an MBR partition table.
//
// On a whole disk the four primary entries become partitions; on a device
// that is itself a partition (the parent device path ends in a hard-drive
// node) the table is an extended container and the chain of extended boot
// records is walked instead.
type Probe struct{}

// Name implements probe.Detector.
func (p *Probe) Name() string {
	return "mbr"
}

// Probe implements probe.Detector.
func (p *Probe) Probe(dev block.Device, opts probe.Options) (*probe.Result, error) {
	buf := make([]byte, mbrstructs.RecordSize)

	if _, err := dev.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read MBR: %w", err)
	}

	record, err := mbrstructs.ReadRecord(buf)
	if err != nil {
		return nil, err
	}

	if !validRecord(record, dev.GetLastLBA()) {
		return nil, nil //nolint:nilnil
	}

	if parent, ok := opts.ParentPath.Last().(*devicepath.HardDriveNode); ok {
		return p.probeExtended(dev, parent, opts)
	}

	return p.probePrimary(dev, record), nil
}

// probePrimary expands the four top-level entries.
func (p *Probe) probePrimary(dev block.Device, record *mbrstructs.Record) *probe.Result {
	result := &probe.Result{
		DiskSignature: pointer.To(record.UniqueSignature),
	}

	number := uint32(1)

	for _, entry := range record.Partitions {
		if !entry.IsUsed() {
			continue
		}

		// the protective entry of a GPT disk whose headers did not
		// validate: never expose the guard as a partition
		if entry.OSType == mbrstructs.TypeProtective {
			continue
		}

		start := uint64(entry.StartingLBA)
		size := uint64(entry.SizeInLBA)

		result.Partitions = append(result.Partitions, probe.Partition{
			Node: &devicepath.HardDriveNode{
				Signature:       record.UniqueSignature,
				PartitionStart:  start,
				PartitionSize:   size,
				PartitionNumber: number,
				MBRType:         devicepath.LegacyMBR,
			},
			MBR: &probe.MBRDetail{
				OSType:        entry.OSType,
				BootIndicator: entry.BootIndicator,
			},
			StartLBA:  start,
			EndLBA:    start + size - 1,
			Number:    number,
			BlockSize: dev.GetBlockSize(),
			ESP:       entry.OSType == mbrstructs.TypeEFISystem,
		})

		number++
	}

	if len(result.Partitions) == 0 {
		return nil
	}

	return result
}

// probeExtended walks the chain of extended boot records inside one
// extended container.
//
// Positions inside an EBR are relative: the first entry to the record
// holding it, the link entry to the container. The emitted partitions are
// container-relative, while their device-path nodes carry whole-disk
// positions derived from the parent hard-drive node.
func (p *Probe) probeExtended(dev block.Device, parent *devicepath.HardDriveNode, opts probe.Options) (*probe.Result, error) {
	blockSize := uint64(dev.GetBlockSize())

	var result probe.Result

	number := uint32(1)
	cursor := uint64(0)
	buf := make([]byte, mbrstructs.RecordSize)

	for hops := 0; ; hops++ {
		if hops == maxChainRecords {
			opts.Logger.Warn("extended partition chain is too long, stopping the walk",
				zap.Int("records", maxChainRecords),
			)

			break
		}

		if _, err := dev.ReadAt(buf, int64(cursor*blockSize)); err != nil {
			return nil, fmt.Errorf("failed to read extended boot record: %w", err)
		}

		record, err := mbrstructs.ReadRecord(buf)
		if err != nil {
			return nil, err
		}

		if !record.SignatureMatches() || !record.Partitions[0].IsUsed() {
			break
		}

		if record.Partitions[0].IsExtended() {
			cursor = uint64(record.Partitions[0].StartingLBA)
		} else {
			start := uint64(record.Partitions[0].StartingLBA) + cursor + parent.PartitionStart
			size := uint64(record.Partitions[0].SizeInLBA)

			// logical partitions live strictly between the container's
			// first record and its last block
			if start+size-1 >= parent.PartitionStart+parent.PartitionSize || start <= parent.PartitionStart {
				break
			}

			result.Partitions = append(result.Partitions, probe.Partition{
				Node: &devicepath.HardDriveNode{
					// an EBR carries no disk signature
					Signature:       uint32(0),
					PartitionStart:  start,
					PartitionSize:   size,
					PartitionNumber: number,
					MBRType:         devicepath.LegacyMBR,
				},
				MBR: &probe.MBRDetail{
					OSType:        record.Partitions[0].OSType,
					BootIndicator: record.Partitions[0].BootIndicator,
					Logical:       true,
				},
				StartLBA:  start - parent.PartitionStart,
				EndLBA:    start - parent.PartitionStart + size - 1,
				Number:    number,
				BlockSize: dev.GetBlockSize(),
			})

			number++

			if !record.Partitions[1].IsExtended() {
				break
			}

			cursor = uint64(record.Partitions[1].StartingLBA)

			// a self-referencing link would walk in place
			if cursor == 0 {
				break
			}
		}

		if cursor >= parent.PartitionSize-1 {
			break
		}
	}

	if len(result.Partitions) == 0 {
		return nil, nil //nolint:nilnil
	}

	return &result, nil
}

// validRecord is the classic MBR sanity gate: the boot signature plus at
// least one used entry, every used entry inside the disk, no pairwise
// overlap. The 0xaa55 signature alone is shared with FAT boot sectors and
// can never be trusted by itself.
func validRecord(record *mbrstructs.Record, lastLBA uint64) bool {
	if !record.SignatureMatches() {
		return false
	}

	anyUsed := false

	for i1, e1 := range record.Partitions {
		if !e1.IsUsed() {
			continue
		}

		anyUsed = true

		start1 := uint64(e1.StartingLBA)
		end1 := start1 + uint64(e1.SizeInLBA) - 1

		if end1 > lastLBA {
			return false
		}

		for _, e2 := range record.Partitions[i1+1:] {
			if !e2.IsUsed() {
				continue
			}

			start2 := uint64(e2.StartingLBA)
			end2 := start2 + uint64(e2.SizeInLBA) - 1

			if end2 >= start1 && start2 <= end1 {
				return false
			}
		}
	}

	return anyUsed
}
