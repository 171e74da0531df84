// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package detect

import (
	"os"

	"github.com/siderolabs/go-parttable/block"
)

// Probe returns the partition-table information for the specified file,
// which can be an open block device or a disk image.
func Probe(f *os.File, opts ...ProbeOption) (*Info, error) {
	options := applyProbeOptions(opts...)

	dev, err := block.NewFileDevice(f, options.SectorSize)
	if err != nil {
		return nil, err
	}

	return probeDevice(dev, options)
}

// ProbePath returns the partition-table information for the specified
// path.
func ProbePath(devpath string, opts ...ProbeOption) (*Info, error) {
	options := applyProbeOptions(opts...)

	dev, err := block.OpenPath(devpath, options.SectorSize)
	if err != nil {
		return nil, err
	}

	defer dev.Close() //nolint:errcheck

	return probeDevice(dev, options)
}
