// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import "time"

// Build assembles a complete wire frame:
//
//	F7 | deviceID | subID | commandID | len(payload) | payload | xor | add
//
// Callers keep payload within MaxDataLength.
func Build(deviceID, subID, commandID byte, payload []byte) []byte {
	frame := make([]byte, 0, MinFrameSize+len(payload))
	frame = append(frame, SyncByte, deviceID, subID, commandID, byte(len(payload)))
	frame = append(frame, payload...)

	xor, add := Checksum(frame)
	return append(frame, xor, add)
}

// NewFrame builds a Frame value from its fields
func NewFrame(deviceID, subID, commandID byte, payload []byte) Frame {
	return Frame{
		raw:       Build(deviceID, subID, commandID, payload),
		timestamp: time.Now(),
	}
}
