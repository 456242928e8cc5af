// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

// Checksum computes both trailer bytes for a frame body (header + data).
// The add byte covers the body and the xor byte.
func Checksum(body []byte) (xor, add byte) {
	for _, b := range body {
		xor ^= b
		add += b
	}
	add += xor
	return xor, add
}

// ValidChecksum reports whether the last two bytes of frame are the xor and
// add checksums of the bytes before them.
func ValidChecksum(frame []byte) bool {
	n := len(frame)
	if n < TrailerSize+1 {
		return false
	}
	xor, add := Checksum(frame[:n-TrailerSize])
	return frame[n-2] == xor && frame[n-1] == add
}
