// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gpt detects GUID Partition Tables.
package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/siderolabs/go-pointer"
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/detect/internal/probe"
	"github.com/siderolabs/go-parttable/detect/internal/utils"
	"github.com/siderolabs/go-parttable/devicepath"
	"github.com/siderolabs/go-parttable/internal/gptstructs"
	"github.com/siderolabs/go-parttable/internal/mbrstructs"
)

// maxEntryArraySize bounds the partition entry array scratch buffer; a
// header asking for more than this is treated as an allocation failure.
// The UEFI specification only requires 16 KiB of entry space.
const maxEntryArraySize = 16 * 1024 * 1024

// Probe detects a GUID Partition Table.
//
// The protective MBR is required, the primary and backup headers recover
// each other, and the partition entry array is trusted only when its
// CRC32 matches. Emitted partitions are the entries that are used,
// in-range, non-overlapping and not reserved for OS-specific handling.
type Probe struct{}

// Name implements probe.Detector.
func (p *Probe) Name() string {
	return "gpt"
}

// Probe implements probe.Detector.
func (p *Probe) Probe(dev block.Device, opts probe.Options) (*probe.Result, error) {
	blockSize := dev.GetBlockSize()
	lastLBA := dev.GetLastLBA()

	// a GPT disk opens with a protective MBR: exactly one entry covering
	// the disk with the protective type, boot indicator clear, starting
	// at LBA 1
	buf := make([]byte, mbrstructs.RecordSize)

	if _, err := dev.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read protective MBR: %w", err)
	}

	record, err := mbrstructs.ReadRecord(buf)
	if err != nil {
		return nil, err
	}

	protective := 0

	for _, entry := range record.Partitions {
		if entry.BootIndicator == 0 && entry.OSType == mbrstructs.TypeProtective && entry.StartingLBA == 1 {
			protective++
		}
	}

	if protective != 1 {
		return nil, nil //nolint:nilnil
	}

	// primary header, then the backup: either alone is enough, and a
	// valid mirror stands in for a corrupt one
	hdr, err := validHeader(dev, gptstructs.PrimaryHeaderLBA, opts.Logger)
	if err != nil {
		return nil, err
	}

	if hdr == nil {
		backup, err := validHeader(dev, lastLBA, opts.Logger)
		if err != nil {
			return nil, err
		}

		if backup == nil {
			return nil, nil //nolint:nilnil
		}

		opts.Logger.Warn("primary GPT header is invalid, using the backup header",
			zap.Uint64("backup_lba", lastLBA),
		)

		hdr = backup
	} else {
		backup, err := validHeader(dev, hdr.AlternateLBA, opts.Logger)
		if err != nil {
			return nil, err
		}

		if backup == nil {
			opts.Logger.Warn("backup GPT header is invalid, using the primary header",
				zap.Uint64("backup_lba", hdr.AlternateLBA),
			)
		}
	}

	// the entry array has no mirror of its own: a CRC mismatch here is
	// fatal for the whole table
	arraySize := uint64(hdr.NumberOfPartitionEntries) * uint64(hdr.SizeOfPartitionEntry)
	if arraySize > maxEntryArraySize {
		return nil, fmt.Errorf("%w: GPT entry array of %d bytes", probe.ErrOutOfResources, arraySize)
	}

	array := make([]byte, arraySize)

	if _, err := dev.ReadAt(array, int64(hdr.PartitionEntryLBA)*int64(blockSize)); err != nil {
		return nil, fmt.Errorf("failed to read GPT entry array: %w", err)
	}

	if utils.DiskCRC32(array) != hdr.PartitionEntryArrayCRC32 {
		opts.Logger.Debug("GPT entry array CRC32 mismatch")

		return nil, nil //nolint:nilnil
	}

	entries := make([]gptstructs.Entry, 0, hdr.NumberOfPartitionEntries)

	for i := range uint64(hdr.NumberOfPartitionEntries) {
		entry, err := gptstructs.ReadEntry(array[i*uint64(hdr.SizeOfPartitionEntry):][:gptstructs.EntrySize])
		if err != nil {
			return nil, err
		}

		entries = append(entries, *entry)
	}

	status := checkEntries(entries, hdr)

	result := &probe.Result{
		DiskGUID: pointer.To(hdr.DiskUUID()),
	}

	for i, entry := range entries {
		if entry.IsUnused() || status[i].outOfRange || status[i].overlap || status[i].osSpecific {
			continue
		}

		number := uint32(i) + 1

		result.Partitions = append(result.Partitions, probe.Partition{
			Node: &devicepath.HardDriveNode{
				Signature:       entry.UniqueUUID(),
				PartitionStart:  entry.StartingLBA,
				PartitionSize:   entry.EndingLBA - entry.StartingLBA + 1,
				PartitionNumber: number,
				MBRType:         devicepath.GPT,
			},
			GPT: &probe.GPTDetail{
				Name:       entry.Name(),
				TypeGUID:   entry.TypeUUID(),
				UniqueGUID: entry.UniqueUUID(),
				Attributes: entry.Attributes,
			},
			StartLBA:  entry.StartingLBA,
			EndLBA:    entry.EndingLBA,
			Number:    number,
			BlockSize: blockSize,
			ESP:       entry.TypeUUID() == gptstructs.ESPType,
		})
	}

	return result, nil
}

// validHeader reads the GPT header at lba and validates it.
//
// A nil header with a nil error means the header is missing or corrupt;
// the caller decides whether the mirror can stand in. A failed read
// aborts validation outright.
func validHeader(dev block.Device, lba uint64, logger *zap.Logger) (*gptstructs.Header, error) {
	blockSize := dev.GetBlockSize()

	if lba > dev.GetLastLBA() {
		logger.Debug("GPT header LBA is out of bounds", zap.Uint64("lba", lba))

		return nil, nil //nolint:nilnil
	}

	buf := make([]byte, blockSize)

	if _, err := dev.ReadAt(buf, int64(lba)*int64(blockSize)); err != nil {
		return nil, fmt.Errorf("failed to read GPT header: %w", err)
	}

	hdr, err := gptstructs.ReadHeader(buf)
	if err != nil {
		return nil, err
	}

	if !hdr.SignatureMatches() {
		logger.Debug("GPT header signature mismatch", zap.Uint64("lba", lba))

		return nil, nil //nolint:nilnil
	}

	if hdr.HeaderSize < gptstructs.HeaderSize || hdr.HeaderSize > blockSize {
		logger.Debug("GPT header size out of bounds", zap.Uint64("lba", lba), zap.Uint32("header_size", hdr.HeaderSize))

		return nil, nil //nolint:nilnil
	}

	// the stored CRC32 covers the header with its CRC32 field zeroed
	scratch := bytes.Clone(buf[:hdr.HeaderSize])
	binary.LittleEndian.PutUint32(scratch[gptstructs.HeaderCRCOffset:], 0)

	if utils.DiskCRC32(scratch) != hdr.HeaderCRC32 {
		logger.Debug("GPT header CRC32 mismatch", zap.Uint64("lba", lba))

		return nil, nil //nolint:nilnil
	}

	if hdr.MyLBA != lba {
		logger.Debug("GPT header self-LBA mismatch", zap.Uint64("lba", lba), zap.Uint64("my_lba", hdr.MyLBA))

		return nil, nil //nolint:nilnil
	}

	if hdr.SizeOfPartitionEntry < gptstructs.EntrySize {
		logger.Debug("GPT entry size too small", zap.Uint64("lba", lba), zap.Uint32("entry_size", hdr.SizeOfPartitionEntry))

		return nil, nil //nolint:nilnil
	}

	return hdr, nil
}

type entryStatus struct {
	outOfRange bool
	overlap    bool
	osSpecific bool
}

// checkEntries computes per-entry validity in a single pass.
//
// Overlap is symmetric: both participants are disqualified, and even an
// out-of-range entry disqualifies any used entry whose range it touches.
func checkEntries(entries []gptstructs.Entry, hdr *gptstructs.Header) []entryStatus {
	status := make([]entryStatus, len(entries))

	for i1 := range entries {
		e1 := &entries[i1]

		if e1.IsUnused() {
			continue
		}

		if e1.StartingLBA > e1.EndingLBA ||
			e1.StartingLBA < hdr.FirstUsableLBA ||
			e1.StartingLBA > hdr.LastUsableLBA ||
			e1.EndingLBA > hdr.LastUsableLBA {
			status[i1].outOfRange = true

			continue
		}

		if e1.Attributes&gptstructs.EntryAttributeOSSpecific != 0 {
			status[i1].osSpecific = true
		}

		for i2 := i1 + 1; i2 < len(entries); i2++ {
			e2 := &entries[i2]

			if e2.IsUnused() {
				continue
			}

			if e2.EndingLBA >= e1.StartingLBA && e2.StartingLBA <= e1.EndingLBA {
				status[i1].overlap = true
				status[i2].overlap = true
			}
		}
	}

	return status
}
