// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/detect"
	"github.com/siderolabs/go-parttable/internal/mbrstructs"
)

// report is everything inspect learned about one device: the detected
// table plus the logical drives of each extended container, keyed by the
// container's partition number.
type report struct {
	info    *detect.Info
	logical map[uint32][]detect.Partition
}

func inspect(path string) (*report, error) {
	logger, err := buildLogger()
	if err != nil {
		return nil, err
	}

	defer logger.Sync() //nolint:errcheck

	walker := &extendedWalker{
		logger:  logger,
		logical: map[uint32][]detect.Partition{},
	}

	opts := []detect.ProbeOption{
		detect.WithProbeLogger(logger),
		detect.WithSectorSize(rootCmdFlags.sectorSize),
		detect.WithInstaller(walker),
	}

	var info *detect.Info

	switch {
	case strings.HasSuffix(path, ".zst"), strings.HasSuffix(path, ".zstd"):
		info, err = probeCompressedImage(path, opts)
	default:
		info, err = detect.ProbePath(path, opts...)
	}

	if err != nil {
		return nil, err
	}

	return &report{info: info, logical: walker.logical}, nil
}

// probeCompressedImage decompresses a zstd disk image snapshot into
// memory and probes it there.
func probeCompressedImage(path string, opts []detect.ProbeOption) (*detect.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	z, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}

	defer z.Close()

	data, err := io.ReadAll(z)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
	}

	dev, err := block.NewImage(bytes.NewReader(data), uint64(len(data)), block.WithBlockSize(rootCmdFlags.sectorSize))
	if err != nil {
		return nil, err
	}

	return detect.ProbeDevice(dev, opts...)
}

// extendedWalker is the installer which descends into MBR extended
// containers and collects the logical drives found inside them.
type extendedWalker struct {
	logger  *zap.Logger
	logical map[uint32][]detect.Partition
}

func (w *extendedWalker) Install(child block.Device, part detect.Partition) error {
	if part.MBR == nil || (part.MBR.OSType != mbrstructs.TypeExtended && part.MBR.OSType != mbrstructs.TypeExtendedLBA) {
		return nil
	}

	info, err := detect.ProbeDevice(child,
		detect.WithProbeLogger(w.logger),
		detect.WithParentPath(part.Path),
	)
	if err != nil {
		return err
	}

	// the nested probe reports LBAs relative to the container; print
	// whole-disk positions like the device paths do
	logical := info.Partitions
	for i := range logical {
		logical[i].StartLBA += part.StartLBA
		logical[i].EndLBA += part.StartLBA
	}

	w.logical[part.Number] = logical

	return nil
}
