// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package detect

import (
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
	"github.com/siderolabs/go-parttable/devicepath"
)

// Options is the set of configurable probe parameters.
type Options struct {
	// Logger receives diagnostics about recoverable table corruption.
	Logger *zap.Logger

	// Installer, when set, receives every detected partition as a
	// standalone block device.
	Installer Installer

	// ParentPath marks the probed device as a partition of another
	// device; MBR detection then treats it as an extended container.
	ParentPath devicepath.Path

	// SectorSize is the block size assumed for disk images; real block
	// devices report their own.
	SectorSize uint32
}

// ProbeOption customizes probing.
type ProbeOption func(*Options)

// WithProbeLogger sets the logger for probe diagnostics.
func WithProbeLogger(logger *zap.Logger) ProbeOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithSectorSize sets the block size assumed for disk images.
func WithSectorSize(size uint32) ProbeOption {
	return func(o *Options) {
		o.SectorSize = size
	}
}

// WithParentPath sets the device path of the probed device itself.
func WithParentPath(path devicepath.Path) ProbeOption {
	return func(o *Options) {
		o.ParentPath = path
	}
}

// WithInstaller registers an installer for the detected partitions.
func WithInstaller(installer Installer) ProbeOption {
	return func(o *Options) {
		o.Installer = installer
	}
}

func applyProbeOptions(opts ...ProbeOption) Options {
	options := Options{
		Logger:     zap.NewNop(),
		SectorSize: block.DefaultBlockSize,
	}

	for _, opt := range opts {
		opt(&options)
	}

	return options
}
