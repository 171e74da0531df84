// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mbr_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/detect/internal/mbr"
	"github.com/siderolabs/go-parttable/detect/internal/probe"
	"github.com/siderolabs/go-parttable/devicepath"
	"github.com/siderolabs/go-parttable/internal/mbrstructs"
	"github.com/siderolabs/go-parttable/internal/testdisk"
)

const MiB = 1024 * 1024

func probeImage(t *testing.T, raw []byte, logger *zap.Logger) (*probe.Result, error) {
	t.Helper()

	img, err := block.NewImage(bytes.NewReader(raw), uint64(len(raw)))
	require.NoError(t, err)

	return (&mbr.Probe{}).Probe(img, probe.Options{Logger: logger})
}

func TestProbePrimary(t *testing.T) {
	raw := testdisk.NewMBR(8*MiB, 512, 0x12345678,
		mbrstructs.Entry{BootIndicator: 0x80, OSType: 0x83, StartingLBA: 2048, SizeInLBA: 2048},
		mbrstructs.Entry{OSType: mbrstructs.TypeEFISystem, StartingLBA: 4096, SizeInLBA: 2048},
		mbrstructs.Entry{OSType: mbrstructs.TypeExtended, StartingLBA: 8192, SizeInLBA: 2048},
	)

	result, err := probeImage(t, raw, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, result)

	require.NotNil(t, result.DiskSignature)
	assert.Equal(t, uint32(0x12345678), *result.DiskSignature)

	require.Len(t, result.Partitions, 3)

	for i, expected := range []struct { //nolint:govet
		startLBA      uint64
		endLBA        uint64
		osType        uint8
		bootIndicator uint8
		esp           bool
		node          string
	}{
		{2048, 4095, 0x83, 0x80, false, "HD(1,MBR,0x12345678,0x800,0x800)"},
		{4096, 6143, mbrstructs.TypeEFISystem, 0, true, "HD(2,MBR,0x12345678,0x1000,0x800)"},
		{8192, 10239, mbrstructs.TypeExtended, 0, false, "HD(3,MBR,0x12345678,0x2000,0x800)"},
	} {
		part := result.Partitions[i]

		assert.Equal(t, expected.startLBA, part.StartLBA)
		assert.Equal(t, expected.endLBA, part.EndLBA)
		assert.Equal(t, uint32(i)+1, part.Number)
		assert.Equal(t, uint32(512), part.BlockSize)
		assert.Equal(t, expected.esp, part.ESP)

		require.NotNil(t, part.MBR)
		assert.Equal(t, expected.osType, part.MBR.OSType)
		assert.Equal(t, expected.bootIndicator, part.MBR.BootIndicator)
		assert.False(t, part.MBR.Logical)

		assert.Equal(t, expected.node, part.Node.String())
	}
}

func TestProbeRejects(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name    string
		corrupt func(raw []byte)
		entries []mbrstructs.Entry
	}{
		{
			name: "bad boot signature",
			corrupt: func(raw []byte) {
				raw[510] = 0
				raw[511] = 0
			},
			entries: []mbrstructs.Entry{{OSType: 0x83, StartingLBA: 2048, SizeInLBA: 2048}},
		},
		{
			name: "no used entries",
		},
		{
			name: "overlapping entries",
			entries: []mbrstructs.Entry{
				{OSType: 0x83, StartingLBA: 2048, SizeInLBA: 2048},
				{OSType: 0x83, StartingLBA: 3000, SizeInLBA: 2048},
			},
		},
		{
			name:    "entry beyond the disk",
			entries: []mbrstructs.Entry{{OSType: 0x83, StartingLBA: 16000, SizeInLBA: 2048}},
		},
		{
			// with 32-bit math the end would wrap around zero and pass
			name:    "entry end wraps 32 bits",
			entries: []mbrstructs.Entry{{OSType: 0x83, StartingLBA: 0xfffff000, SizeInLBA: 0x2000}},
		},
		{
			// a leftover protective entry is never exposed as a partition
			name:    "protective entry only",
			entries: []mbrstructs.Entry{{OSType: mbrstructs.TypeProtective, StartingLBA: 1, SizeInLBA: 16383}},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			raw := testdisk.NewMBR(8*MiB, 512, 0xdeadbeef, test.entries...)

			if test.corrupt != nil {
				test.corrupt(raw)
			}

			result, err := probeImage(t, raw, zaptest.NewLogger(t))
			require.NoError(t, err)
			assert.Nil(t, result)
		})
	}
}

// extendedContainer builds an 8 MiB disk with an extended container at
// LBA 2048 spanning 8192 blocks and returns the container as a child
// device plus the parent path pointing at it.
func extendedContainer(t *testing.T, ebrs func(raw []byte)) (block.Device, probe.Options, *observer.ObservedLogs) {
	t.Helper()

	raw := make([]byte, 8*MiB)

	ebrs(raw)

	img, err := block.NewImage(bytes.NewReader(raw), uint64(len(raw)))
	require.NoError(t, err)

	child, err := block.NewChild(img, 2048, 10239, 0)
	require.NoError(t, err)

	parent := &devicepath.HardDriveNode{
		Signature:       uint32(0xdeadbeef),
		PartitionStart:  2048,
		PartitionSize:   8192,
		PartitionNumber: 1,
		MBRType:         devicepath.LegacyMBR,
	}

	core, logs := observer.New(zap.WarnLevel)

	return child, probe.Options{
		Logger:     zap.New(core),
		ParentPath: devicepath.Path{parent},
	}, logs
}

func TestProbeExtendedChain(t *testing.T) {
	dev, opts, logs := extendedContainer(t, func(raw []byte) {
		// three logical drives linked through two further boot records
		testdisk.PutMBR(raw, 512, 2048, 0,
			mbrstructs.Entry{OSType: 0x83, StartingLBA: 1, SizeInLBA: 1023},
			mbrstructs.Entry{OSType: mbrstructs.TypeExtended, StartingLBA: 1024, SizeInLBA: 1024},
		)
		testdisk.PutMBR(raw, 512, 2048+1024, 0,
			mbrstructs.Entry{OSType: 0x83, StartingLBA: 1, SizeInLBA: 1023},
			mbrstructs.Entry{OSType: mbrstructs.TypeExtendedLBA, StartingLBA: 2048, SizeInLBA: 1024},
		)
		testdisk.PutMBR(raw, 512, 2048+2048, 0,
			mbrstructs.Entry{OSType: 0x82, StartingLBA: 1, SizeInLBA: 1023},
		)
	})

	result, err := (&mbr.Probe{}).Probe(dev, opts)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Nil(t, result.DiskSignature)
	require.Len(t, result.Partitions, 3)

	for i, expected := range []struct { //nolint:govet
		startLBA uint64
		endLBA   uint64
		osType   uint8
		node     string
	}{
		{1, 1023, 0x83, "HD(1,MBR,0x00000000,0x801,0x3ff)"},
		{1025, 2047, 0x83, "HD(2,MBR,0x00000000,0xc01,0x3ff)"},
		{2049, 3071, 0x82, "HD(3,MBR,0x00000000,0x1001,0x3ff)"},
	} {
		part := result.Partitions[i]

		// partition bounds are relative to the container, the node is
		// positioned on the whole disk
		assert.Equal(t, expected.startLBA, part.StartLBA)
		assert.Equal(t, expected.endLBA, part.EndLBA)
		assert.Equal(t, uint32(i)+1, part.Number)

		require.NotNil(t, part.MBR)
		assert.Equal(t, expected.osType, part.MBR.OSType)
		assert.True(t, part.MBR.Logical)

		assert.Equal(t, expected.node, part.Node.String())
	}

	assert.Equal(t, 0, logs.Len())
}

func TestProbeExtendedTermination(t *testing.T) {
	t.Run("logical drive outside the container", func(t *testing.T) {
		dev, opts, _ := extendedContainer(t, func(raw []byte) {
			testdisk.PutMBR(raw, 512, 2048, 0,
				mbrstructs.Entry{OSType: 0x83, StartingLBA: 1, SizeInLBA: 1023},
				mbrstructs.Entry{OSType: mbrstructs.TypeExtended, StartingLBA: 1024, SizeInLBA: 1024},
			)
			// the second logical drive overruns the container end
			testdisk.PutMBR(raw, 512, 2048+1024, 0,
				mbrstructs.Entry{OSType: 0x83, StartingLBA: 1, SizeInLBA: 16384},
			)
		})

		result, err := (&mbr.Probe{}).Probe(dev, opts)
		require.NoError(t, err)
		require.NotNil(t, result)

		require.Len(t, result.Partitions, 1)
		assert.Equal(t, uint64(1), result.Partitions[0].StartLBA)
	})

	t.Run("link at the container end", func(t *testing.T) {
		dev, opts, _ := extendedContainer(t, func(raw []byte) {
			testdisk.PutMBR(raw, 512, 2048, 0,
				mbrstructs.Entry{OSType: 0x83, StartingLBA: 1, SizeInLBA: 1023},
				mbrstructs.Entry{OSType: mbrstructs.TypeExtended, StartingLBA: 8191, SizeInLBA: 1},
			)
		})

		result, err := (&mbr.Probe{}).Probe(dev, opts)
		require.NoError(t, err)
		require.NotNil(t, result)

		require.Len(t, result.Partitions, 1)
	})

	t.Run("cycling links hit the record cap", func(t *testing.T) {
		dev, opts, logs := extendedContainer(t, func(raw []byte) {
			testdisk.PutMBR(raw, 512, 2048, 0,
				mbrstructs.Entry{OSType: mbrstructs.TypeExtended, StartingLBA: 32, SizeInLBA: 100},
			)
			// the linked record points back at itself
			testdisk.PutMBR(raw, 512, 2048+32, 0,
				mbrstructs.Entry{OSType: mbrstructs.TypeExtended, StartingLBA: 32, SizeInLBA: 100},
			)
		})

		result, err := (&mbr.Probe{}).Probe(dev, opts)
		require.NoError(t, err)
		assert.Nil(t, result)

		assert.Equal(t, 1, logs.FilterMessage("extended partition chain is too long, stopping the walk").Len())
	})
}
