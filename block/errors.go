// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import "errors"

var (
	// ErrNoMedia is returned for reads of a device with no media present.
	ErrNoMedia = errors.New("no media present")

	// ErrMediaChanged is returned for reads through a device view whose
	// media was swapped after the view was opened.
	ErrMediaChanged = errors.New("media changed")

	// ErrOutOfBounds is returned for reads beyond the end of the device
	// or of a partition window.
	ErrOutOfBounds = errors.New("read out of device bounds")

	// ErrWriteProtected is returned for wipes of a device the kernel
	// reports as read-only.
	ErrWriteProtected = errors.New("device is write protected")
)
