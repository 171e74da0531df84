// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package eltorito detects El Torito boot catalogs on ISO-9660 media and
// exposes bootable entries as pseudo-partitions.
package eltorito

import (
	"fmt"

	"github.com/siderolabs/go-pointer"
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/detect/internal/probe"
	"github.com/siderolabs/go-parttable/detect/internal/utils"
	"github.com/siderolabs/go-parttable/devicepath"
	"github.com/siderolabs/go-parttable/internal/isostructs"
)

// Probe detects an El Torito boot catalog.
//
// The volume descriptor sequence is scanned for a boot record carrying
// the El Torito system id; its catalog's bootable entries become
// pseudo-partitions sized by the boot media type.
type Probe struct{}

// Name implements probe.Detector.
func (p *Probe) Name() string {
	return "el-torito"
}

// Probe implements probe.Detector.
func (p *Probe) Probe(dev block.Device, opts probe.Options) (*probe.Result, error) {
	// optical media has a fixed 2048-byte block size; anything else
	// cannot be an ISO
	if dev.GetBlockSize() != isostructs.BlockSize {
		return nil, nil //nolint:nilnil
	}

	lastLBA := dev.GetLastLBA()

	var (
		result probe.Result

		// accumulated volume space, in device blocks
		volSpaceSize uint64
	)

	buf := make([]byte, isostructs.BlockSize)

	for lba := uint64(isostructs.DescriptorLBA); lba <= lastLBA; lba++ {
		if _, err := dev.ReadAt(buf, int64(lba)*isostructs.BlockSize); err != nil {
			return nil, fmt.Errorf("failed to read volume descriptor: %w", err)
		}

		hdr, err := isostructs.ReadDescriptorHeader(buf)
		if err != nil {
			return nil, err
		}

		if hdr.Type == isostructs.TypeTerminator || !hdr.StandardIDMatches() {
			break
		}

		if hdr.Type == isostructs.TypePrimary {
			pvd, err := isostructs.ReadPrimaryVolume(buf)
			if err != nil {
				return nil, err
			}

			volSpaceSize = uint64(pvd.VolumeSpaceLE)
			result.VolumeLabel = pointer.To(pvd.Label())
		}

		record, err := isostructs.ReadBootRecord(buf)
		if err != nil {
			return nil, err
		}

		if !record.IsElTorito() {
			continue
		}

		if err := p.probeCatalog(dev, record, volSpaceSize, &result, opts); err != nil {
			return nil, err
		}
	}

	if len(result.Partitions) == 0 {
		return nil, nil //nolint:nilnil
	}

	return &result, nil
}

// probeCatalog reads one boot catalog and appends its bootable entries.
//
// A catalog that cannot be read or does not validate is logged and
// skipped; the descriptor scan goes on.
func (p *Probe) probeCatalog(dev block.Device, record *isostructs.BootRecord, volSpaceSize uint64, result *probe.Result, opts probe.Options) error {
	lastLBA := dev.GetLastLBA()

	catalogLBA := uint64(record.CatalogLBA)
	if catalogLBA > lastLBA {
		opts.Logger.Debug("El Torito boot catalog is out of bounds", zap.Uint64("lba", catalogLBA))

		return nil
	}

	catalog := make([]byte, isostructs.BlockSize)

	if _, err := dev.ReadAt(catalog, int64(catalogLBA)*isostructs.BlockSize); err != nil {
		opts.Logger.Warn("failed to read El Torito boot catalog", zap.Uint64("lba", catalogLBA), zap.Error(err))

		return nil
	}

	validation, err := isostructs.ReadValidationEntry(catalog[:isostructs.CatalogEntrySize])
	if err != nil {
		return err
	}

	if !validation.IsValid() {
		opts.Logger.Debug("El Torito boot catalog validation entry mismatch", zap.Uint64("lba", catalogLBA))

		return nil
	}

	// mastering tools get this sum wrong often enough that a mismatch
	// never blocks detection
	if utils.Checksum16(catalog[:isostructs.CatalogEntrySize]) != 0 {
		opts.Logger.Warn("El Torito boot catalog checksum mismatch", zap.Uint64("lba", catalogLBA))
	}

	bootIndex := uint32(0)

	for i := 1; i < isostructs.BlockSize/isostructs.CatalogEntrySize; i++ {
		entry, err := isostructs.ReadBootEntry(catalog[i*isostructs.CatalogEntrySize:][:isostructs.CatalogEntrySize])
		if err != nil {
			return err
		}

		if !entry.IsBootable() || entry.LBA == 0 {
			continue
		}

		sectorSize := uint32(512)
		sectorCount := uint32(entry.SectorCount)

		switch entry.MediaType {
		case isostructs.MediaNoEmulation:
			sectorSize = isostructs.BlockSize
		case isostructs.MediaHardDisk:
			// raw sector count as written
		case isostructs.Media12MBFloppy:
			sectorCount = 80 * 15 * 2
		case isostructs.Media144MBFloppy:
			sectorCount = 80 * 18 * 2
		case isostructs.Media288MBFloppy:
			sectorCount = 80 * 36 * 2
		default:
			opts.Logger.Warn("unsupported El Torito boot media type", zap.Uint8("media_type", entry.MediaType))

			sectorCount = 0
			sectorSize = isostructs.BlockSize
		}

		lba := uint64(entry.LBA)

		var size uint64

		if sectorCount < 2 {
			// the entry boots the rest of the disc: span to the end of
			// the volume space or the media, whichever comes first
			volEnd := min(volSpaceSize, lastLBA+1)

			if lba >= volEnd {
				opts.Logger.Debug("El Torito boot entry is beyond the volume", zap.Uint64("lba", lba))

				continue
			}

			size = volEnd - lba
		} else {
			// bytes of the boot image, rounded up to device blocks
			size = (uint64(sectorCount)*uint64(sectorSize) + isostructs.BlockSize - 1) / isostructs.BlockSize
		}

		result.Partitions = append(result.Partitions, probe.Partition{
			Node: &devicepath.CDROMNode{
				BootEntry:      bootIndex,
				PartitionStart: lba,
				PartitionSize:  size,
			},
			ElTorito: &probe.ElToritoDetail{
				PlatformID:  validation.PlatformID,
				MediaType:   entry.MediaType,
				SystemType:  entry.SystemType,
				LoadSegment: entry.LoadSegment,
			},
			StartLBA:  lba,
			EndLBA:    lba + size - 1,
			Number:    bootIndex,
			BlockSize: sectorSize,
		})

		bootIndex++
	}

	return nil
}
