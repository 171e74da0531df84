// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gptstructs

import "github.com/google/uuid"

// DiskUUID returns the disk GUID in RFC 4122 byte order.
func (h *Header) DiskUUID() uuid.UUID {
	return uuid.UUID(GUIDToUUID(h.DiskGUID[:]))
}

// TypeUUID returns the partition type GUID in RFC 4122 byte order.
func (e *Entry) TypeUUID() uuid.UUID {
	return uuid.UUID(GUIDToUUID(e.PartitionTypeGUID[:]))
}

// UniqueUUID returns the unique partition GUID in RFC 4122 byte order.
func (e *Entry) UniqueUUID() uuid.UUID {
	return uuid.UUID(GUIDToUUID(e.UniquePartitionGUID[:]))
}

// GUIDToUUID converts a mixed-endian on-disk GPT GUID to UUID byte order.
func GUIDToUUID(g []byte) []byte {
	return append(
		[]byte{
			g[3], g[2], g[1], g[0],
			g[5], g[4],
			g[7], g[6],
			g[8], g[9],
		},
		g[10:16]...,
	)
}

// UUIDToGUID converts UUID byte order to the mixed-endian on-disk GPT GUID.
func UUIDToGUID(u []byte) []byte {
	return append(
		[]byte{
			u[3], u[2], u[1], u[0],
			u[5], u[4],
			u[7], u[6],
			u[8], u[9],
		},
		u[10:16]...,
	)
}
