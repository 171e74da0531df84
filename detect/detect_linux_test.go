// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package detect_test

import (
	"errors"
	randv2 "math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/freddierice/go-losetup/v2"
	"github.com/google/uuid"
	"github.com/siderolabs/go-cmd/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/siderolabs/go-parttable/detect"
	"github.com/siderolabs/go-parttable/internal/gptstructs"
	"github.com/siderolabs/go-parttable/internal/testdisk"
)

func losetupAttachHelper(t *testing.T, rawImage string, readonly bool) losetup.Device { //nolint:unparam
	t.Helper()

	for range 10 {
		loDev, err := losetup.Attach(rawImage, 0, readonly)
		if err != nil {
			if errors.Is(err, unix.EBUSY) {
				spraySleep := max(randv2.ExpFloat64(), 2.0)

				t.Logf("retrying after %v seconds", spraySleep)

				time.Sleep(time.Duration(spraySleep * float64(time.Second)))

				continue
			}
		}

		require.NoError(t, err)

		return loDev
	}

	t.Fatal("failed to attach loop device") //nolint:revive

	panic("unreachable")
}

func writeImage(t *testing.T, raw []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "image.raw")

	require.NoError(t, os.WriteFile(path, raw, 0o644))

	return path
}

func TestProbePathLoopDevice(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}

	entry := testdisk.GPTEntry(gptstructs.ESPType, uuid.MustParse("C266EA79-E13B-4C02-BB4E-3C3B257D9792"), 34, 2081)
	testdisk.SetGPTEntryName(&entry, "EFI system partition")

	rawImage := writeImage(t, testdisk.NewGPT(64*MiB, 512, entry))

	loDev := losetupAttachHelper(t, rawImage, false)

	t.Cleanup(func() {
		assert.NoError(t, loDev.Detach())
	})

	info, err := detect.ProbePath(loDev.Path(), detect.WithProbeLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, detect.SchemeGPT, info.Scheme)
	assert.Equal(t, uint64(64*MiB), info.Size)
	assert.Equal(t, uint32(512), info.SectorSize)

	require.NotNil(t, info.DiskGUID)
	assert.Equal(t, testdisk.GPTDiskGUID, *info.DiskGUID)

	require.Len(t, info.Partitions, 1)

	part := info.Partitions[0]

	assert.Equal(t, uint64(34), part.StartLBA)
	assert.Equal(t, uint64(2081), part.EndLBA)
	assert.True(t, part.ESP)

	require.NotNil(t, part.GPT)
	assert.Equal(t, "EFI system partition", part.GPT.Name)
}

func TestProbePathParted(t *testing.T) {
	if _, err := exec.LookPath("parted"); err != nil {
		t.Skipf("parted is not available: %s", err)
	}

	t.Run("gpt", func(t *testing.T) {
		rawImage := writeImage(t, make([]byte, 16*MiB))

		_, err := cmd.Run("parted", "-s", rawImage,
			"mklabel", "gpt",
			"mkpart", "boot", "fat32", "1MiB", "3MiB",
			"set", "1", "esp", "on",
		)
		require.NoError(t, err)

		info, err := detect.ProbePath(rawImage, detect.WithProbeLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)

		assert.Equal(t, detect.SchemeGPT, info.Scheme)
		assert.NotNil(t, info.DiskGUID)

		require.Len(t, info.Partitions, 1)

		part := info.Partitions[0]

		assert.Equal(t, uint64(2048), part.StartLBA)
		assert.Equal(t, uint64(6143), part.EndLBA)
		assert.True(t, part.ESP)

		require.NotNil(t, part.GPT)
		assert.Equal(t, "boot", part.GPT.Name)
	})

	t.Run("msdos", func(t *testing.T) {
		rawImage := writeImage(t, make([]byte, 16*MiB))

		_, err := cmd.Run("parted", "-s", rawImage,
			"mklabel", "msdos",
			"mkpart", "primary", "ext2", "1MiB", "3MiB",
		)
		require.NoError(t, err)

		info, err := detect.ProbePath(rawImage, detect.WithProbeLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)

		assert.Equal(t, detect.SchemeMBR, info.Scheme)
		assert.NotNil(t, info.DiskSignature)

		require.Len(t, info.Partitions, 1)

		part := info.Partitions[0]

		assert.Equal(t, uint64(2048), part.StartLBA)
		assert.Equal(t, uint64(6143), part.EndLBA)

		require.NotNil(t, part.MBR)
		assert.Equal(t, uint8(0x83), part.MBR.OSType)
	})
}
