// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/go-parttable/block"
)

const MiB = 1024 * 1024

// testPattern fills each 512-byte block with its block number (mod 256).
func testPattern(size int) []byte {
	buf := make([]byte, size)

	for i := range buf {
		buf[i] = byte(i / 512)
	}

	return buf
}

func TestNewImage(t *testing.T) {
	for _, test := range []struct { //nolint:govet
		name string

		size uint64
		opts []block.ImageOption

		expectedError     string
		expectedBlockSize uint32
		expectedLastLBA   uint64
	}{
		{
			name: "defaults",
			size: 1 * MiB,

			expectedBlockSize: 512,
			expectedLastLBA:   2047,
		},
		{
			name: "2048 byte blocks",
			size: 1 * MiB,
			opts: []block.ImageOption{block.WithBlockSize(2048)},

			expectedBlockSize: 2048,
			expectedLastLBA:   511,
		},
		{
			name: "non power of two block size",
			size: 1 * MiB,
			opts: []block.ImageOption{block.WithBlockSize(1000)},

			expectedError: "invalid block size 1000",
		},
		{
			name: "block size too small",
			size: 1 * MiB,
			opts: []block.ImageOption{block.WithBlockSize(256)},

			expectedError: "invalid block size 256",
		},
		{
			name: "image smaller than a block",
			size: 100,

			expectedError: "image size 100 is smaller than one block",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			dev, err := block.NewImage(bytes.NewReader(make([]byte, test.size)), test.size, test.opts...)

			if test.expectedError != "" {
				assert.EqualError(t, err, test.expectedError)

				return
			}

			require.NoError(t, err)

			assert.Equal(t, test.expectedBlockSize, dev.GetBlockSize())
			assert.Equal(t, test.expectedLastLBA, dev.GetLastLBA())
			assert.False(t, dev.IsReadOnly())
		})
	}
}

func TestImageReadAt(t *testing.T) {
	raw := testPattern(1 * MiB)

	dev, err := block.NewImage(bytes.NewReader(raw), uint64(len(raw)))
	require.NoError(t, err)

	buf := make([]byte, 512)

	n, err := dev.ReadAt(buf, 3*512)
	require.NoError(t, err)

	assert.Equal(t, 512, n)
	assert.Equal(t, raw[3*512:4*512], buf)

	// reading the very last block is fine
	_, err = dev.ReadAt(buf, int64(len(raw)-512))
	require.NoError(t, err)

	// crossing the end of the image is not
	_, err = dev.ReadAt(buf, int64(len(raw)-256))
	assert.ErrorIs(t, err, block.ErrOutOfBounds)

	_, err = dev.ReadAt(buf, -1)
	assert.ErrorIs(t, err, block.ErrOutOfBounds)
}

func TestImageChangeMedia(t *testing.T) {
	raw := testPattern(1 * MiB)

	dev, err := block.NewImage(bytes.NewReader(raw), uint64(len(raw)), block.WithMediaID(7))
	require.NoError(t, err)

	assert.EqualValues(t, 7, dev.GetMediaID())

	buf := make([]byte, 512)

	_, err = dev.ReadAt(buf, 0)
	require.NoError(t, err)

	dev.ChangeMedia()

	_, err = dev.ReadAt(buf, 0)
	assert.ErrorIs(t, err, block.ErrMediaChanged)

	assert.EqualValues(t, 8, dev.GetMediaID())
}

func TestNewChild(t *testing.T) {
	raw := testPattern(1 * MiB)

	parent, err := block.NewImage(bytes.NewReader(raw), uint64(len(raw)))
	require.NoError(t, err)

	t.Run("inherited block size", func(t *testing.T) {
		child, err := block.NewChild(parent, 2, 5, 0)
		require.NoError(t, err)

		assert.EqualValues(t, 512, child.GetBlockSize())
		assert.EqualValues(t, 3, child.GetLastLBA())
		assert.Equal(t, parent.GetMediaID(), child.GetMediaID())

		buf := make([]byte, 512)

		// child block 0 is parent block 2
		_, err = child.ReadAt(buf, 0)
		require.NoError(t, err)

		assert.Equal(t, raw[2*512:3*512], buf)

		// child block 3 is parent block 5
		_, err = child.ReadAt(buf, 3*512)
		require.NoError(t, err)

		assert.Equal(t, raw[5*512:6*512], buf)

		// child block 4 is past the end of the window
		_, err = child.ReadAt(buf, 4*512)
		assert.ErrorIs(t, err, block.ErrOutOfBounds)
	})

	t.Run("re-addressed block size", func(t *testing.T) {
		// 8 parent blocks of 512 bytes re-addressed as 2048-byte blocks
		child, err := block.NewChild(parent, 2, 9, 2048)
		require.NoError(t, err)

		assert.EqualValues(t, 2048, child.GetBlockSize())
		assert.EqualValues(t, 1, child.GetLastLBA())

		buf := make([]byte, 2048)

		_, err = child.ReadAt(buf, 2048)
		require.NoError(t, err)

		assert.Equal(t, raw[6*512:10*512], buf)
	})

	t.Run("invalid windows", func(t *testing.T) {
		_, err := block.NewChild(parent, 5, 2, 0)
		assert.EqualError(t, err, "child end LBA 2 before start LBA 5")

		_, err = block.NewChild(parent, 2, parent.GetLastLBA()+1, 0)
		assert.EqualError(t, err, "child end LBA 2048 beyond parent last LBA 2047")

		_, err = block.NewChild(parent, 2, 5, 1000)
		assert.EqualError(t, err, "invalid block size 1000")
	})

	t.Run("media change propagates", func(t *testing.T) {
		img, err := block.NewImage(bytes.NewReader(raw), uint64(len(raw)))
		require.NoError(t, err)

		child, err := block.NewChild(img, 2, 5, 0)
		require.NoError(t, err)

		img.ChangeMedia()

		_, err = child.ReadAt(make([]byte, 512), 0)
		assert.ErrorIs(t, err, block.ErrMediaChanged)
	})
}
