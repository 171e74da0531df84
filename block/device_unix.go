// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix && !linux

package block

import "errors"

// fillGeometry is only implemented on Linux; other Unixes are limited to
// regular image files.
func (d *FileDevice) fillGeometry() error {
	return errors.New("probing block devices is only supported on linux")
}
