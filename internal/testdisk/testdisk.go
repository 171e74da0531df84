// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package testdisk builds synthetic disk images for tests: valid GPT and
// MBR disks and bootable ISO-9660 images, ready to be corrupted.
package testdisk

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math/bits"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/siderolabs/go-parttable/internal/gptstructs"
	"github.com/siderolabs/go-parttable/internal/isostructs"
	"github.com/siderolabs/go-parttable/internal/mbrstructs"
)

// GPTDiskGUID is the disk GUID of every image built by NewGPT.
var GPTDiskGUID = uuid.MustParse("ECE44B7C-7E26-4A92-A30B-04BDA38E4F5F")

// entryCount is the ubiquitous GPT entry array geometry: 128 slots of 128
// bytes, 16 KiB total.
const entryCount = 128

// PutStruct serializes v little-endian into img at off.
func PutStruct(img []byte, off uint64, v any) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}

	copy(img[off:], buf.Bytes())
}

// GPTEntry returns a used partition entry covering [start, end].
func GPTEntry(typeGUID, uniqueGUID uuid.UUID, start, end uint64) gptstructs.Entry {
	var e gptstructs.Entry

	copy(e.PartitionTypeGUID[:], gptstructs.UUIDToGUID(typeGUID[:]))
	copy(e.UniquePartitionGUID[:], gptstructs.UUIDToGUID(uniqueGUID[:]))

	e.StartingLBA = start
	e.EndingLBA = end

	return e
}

// SetGPTEntryName stores a UTF-16LE encoded partition name.
func SetGPTEntryName(e *gptstructs.Entry, name string) {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(name))
	if err != nil {
		panic(err)
	}

	copy(e.PartitionName[:], encoded)
}

// NewGPT builds a disk image with a protective MBR and a valid GPT laid
// out the ubiquitous way: the primary entry array right after the header
// at LBA 2, the backup array right before the backup header at the last
// LBA. The given entries fill the first array slots.
func NewGPT(diskSize uint64, blockSize uint32, entries ...gptstructs.Entry) []byte {
	img := make([]byte, diskSize)

	lastLBA := diskSize/uint64(blockSize) - 1

	// protective MBR
	record := mbrstructs.Record{
		Signature: mbrstructs.Signature,
	}
	record.Partitions[0] = mbrstructs.Entry{
		OSType:      mbrstructs.TypeProtective,
		StartingLBA: 1,
		SizeInLBA:   uint32(min(lastLBA, 0xffffffff)),
	}

	PutStruct(img, 0, &record)

	// entry array, primary and backup copies
	array := make([]byte, entryCount*gptstructs.EntrySize)

	for i := range entries {
		PutStruct(array, uint64(i)*gptstructs.EntrySize, &entries[i])
	}

	arrayBlocks := uint64(len(array)) / uint64(blockSize)

	copy(img[2*uint64(blockSize):], array)
	copy(img[(lastLBA-arrayBlocks)*uint64(blockSize):], array)

	// primary and backup headers referencing each other
	primary := gptstructs.Header{
		HeaderSize:               gptstructs.HeaderSize,
		MyLBA:                    gptstructs.PrimaryHeaderLBA,
		AlternateLBA:             lastLBA,
		FirstUsableLBA:           2 + arrayBlocks,
		LastUsableLBA:            lastLBA - arrayBlocks - 1,
		PartitionEntryLBA:        2,
		NumberOfPartitionEntries: entryCount,
		SizeOfPartitionEntry:     gptstructs.EntrySize,
		PartitionEntryArrayCRC32: crc32.ChecksumIEEE(array),
	}

	copy(primary.Signature[:], gptstructs.HeaderSignature)
	copy(primary.DiskGUID[:], gptstructs.UUIDToGUID(GPTDiskGUID[:]))
	primary.Revision = [4]byte{0x00, 0x00, 0x01, 0x00}

	backup := primary
	backup.MyLBA = lastLBA
	backup.AlternateLBA = gptstructs.PrimaryHeaderLBA
	backup.PartitionEntryLBA = lastLBA - arrayBlocks

	PutHeader(img, blockSize, primary)
	PutHeader(img, blockSize, backup)

	return img
}

// PutHeader checksums the header and writes it at its self-declared LBA.
func PutHeader(img []byte, blockSize uint32, hdr gptstructs.Header) {
	hdr.HeaderCRC32 = 0

	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		panic(err)
	}

	hdr.HeaderCRC32 = crc32.ChecksumIEEE(buf.Bytes())

	PutStruct(img, hdr.MyLBA*uint64(blockSize), &hdr)
}

// NewMBR builds a disk image with a classic MBR at LBA 0.
func NewMBR(diskSize uint64, blockSize uint32, signature uint32, entries ...mbrstructs.Entry) []byte {
	img := make([]byte, diskSize)

	PutMBR(img, blockSize, 0, signature, entries...)

	return img
}

// PutMBR writes an MBR (or extended boot record) at the given LBA.
func PutMBR(img []byte, blockSize uint32, lba uint64, signature uint32, entries ...mbrstructs.Entry) {
	record := mbrstructs.Record{
		UniqueSignature: signature,
		Signature:       mbrstructs.Signature,
	}

	copy(record.Partitions[:], entries)

	PutStruct(img, lba*uint64(blockSize), &record)
}

// NewISO builds an ISO-9660 image skeleton with an El Torito boot
// catalog: a primary volume descriptor at LBA 16, the boot record at 17,
// the set terminator at 18 and the catalog itself at 19.
func NewISO(diskSize uint64, label string, entries ...isostructs.BootEntry) []byte {
	img := make([]byte, diskSize)

	PutPrimaryVolume(img, 16, label, uint32(diskSize/isostructs.BlockSize))
	PutBootRecord(img, 17, 19)
	PutTerminator(img, 18)
	PutBootCatalog(img, 19, entries...)

	return img
}

// PutPrimaryVolume writes a primary volume descriptor.
func PutPrimaryVolume(img []byte, lba uint64, label string, volSpace uint32) {
	pvd := isostructs.PrimaryVolume{
		Type:          isostructs.TypePrimary,
		Version:       1,
		VolumeSpaceLE: volSpace,
		VolumeSpaceBE: bits.ReverseBytes32(volSpace),
	}

	copy(pvd.ID[:], isostructs.StandardID)

	for i := range pvd.VolumeID {
		pvd.VolumeID[i] = ' '
	}

	copy(pvd.VolumeID[:], label)

	PutStruct(img, lba*isostructs.BlockSize, &pvd)
}

// PutBootRecord writes an El Torito boot record volume descriptor
// pointing at the catalog.
func PutBootRecord(img []byte, lba uint64, catalogLBA uint32) {
	record := isostructs.BootRecord{
		Type:       isostructs.TypeBootRecord,
		Version:    1,
		CatalogLBA: catalogLBA,
	}

	copy(record.ID[:], isostructs.StandardID)
	copy(record.SystemID[:], isostructs.ElToritoSystemID)

	PutStruct(img, lba*isostructs.BlockSize, &record)
}

// PutTerminator writes a volume descriptor set terminator.
func PutTerminator(img []byte, lba uint64) {
	hdr := isostructs.DescriptorHeader{
		Type:    isostructs.TypeTerminator,
		Version: 1,
	}

	copy(hdr.ID[:], isostructs.StandardID)

	PutStruct(img, lba*isostructs.BlockSize, &hdr)
}

// PutBootCatalog writes a boot catalog: a correctly checksummed
// validation entry followed by the given boot entries.
func PutBootCatalog(img []byte, lba uint64, entries ...isostructs.BootEntry) {
	validation := isostructs.ValidationEntry{
		Indicator:  isostructs.ValidationIndicator,
		PlatformID: 0, // 80x86
		Signature:  isostructs.CatalogSignature,
	}

	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, &validation); err != nil {
		panic(err)
	}

	// patch the checksum field so the 16-bit word sum is zero
	var sum uint16

	for i := 0; i+1 < buf.Len(); i += 2 {
		sum += binary.LittleEndian.Uint16(buf.Bytes()[i:])
	}

	validation.Checksum = -sum

	off := lba * isostructs.BlockSize

	PutStruct(img, off, &validation)

	for i := range entries {
		PutStruct(img, off+uint64(i+1)*isostructs.CatalogEntrySize, &entries[i])
	}
}
