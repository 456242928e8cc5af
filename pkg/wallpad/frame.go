// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import (
	"errors"
	"fmt"
	"time"
)

// Frame is one checksum-validated bus message. A Frame owns a private copy of
// its bytes; it never aliases a reassembler buffer.
type Frame struct {
	raw       []byte
	timestamp time.Time
}

// Errors returned by ParseFrame
var (
	ErrShortFrame = errors.New("frame shorter than minimum length")
	ErrNoSync     = errors.New("frame does not start with sync byte")
)

// LengthError reports a frame whose size disagrees with its length byte
type LengthError struct {
	Declared int
	Actual   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("length mismatch: declared %d data bytes (frame %d), got frame of %d bytes",
		e.Declared, e.Declared+MinFrameSize, e.Actual)
}

// ChecksumError reports a checksum mismatch
type ChecksumError struct {
	ExpectedXor, ExpectedAdd byte
	GotXor, GotAdd           byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %02X %02X, got %02X %02X",
		e.ExpectedXor, e.ExpectedAdd, e.GotXor, e.GotAdd)
}

// newFrame copies b into a new Frame. b must already be validated.
func newFrame(b []byte, ts time.Time) Frame {
	raw := make([]byte, len(b))
	copy(raw, b)
	return Frame{raw: raw, timestamp: ts}
}

// ParseFrame validates a single complete frame
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < MinFrameSize {
		return Frame{}, ErrShortFrame
	}
	if b[offsetSync] != SyncByte {
		return Frame{}, ErrNoSync
	}
	declared := int(b[offsetLength])
	if declared+MinFrameSize != len(b) {
		return Frame{}, &LengthError{Declared: declared, Actual: len(b)}
	}
	if !ValidChecksum(b) {
		xor, add := Checksum(b[:len(b)-TrailerSize])
		return Frame{}, &ChecksumError{
			ExpectedXor: xor,
			ExpectedAdd: add,
			GotXor:      b[len(b)-2],
			GotAdd:      b[len(b)-1],
		}
	}
	return newFrame(b, time.Now()), nil
}

// DeviceID returns the device class id
func (f Frame) DeviceID() byte {
	return f.raw[offsetDevice]
}

// SubID returns the sub-address
func (f Frame) SubID() byte {
	return f.raw[offsetSub]
}

// CommandID returns the command id
func (f Frame) CommandID() byte {
	return f.raw[offsetCommand]
}

// Length returns the declared data length
func (f Frame) Length() int {
	return int(f.raw[offsetLength])
}

// Data returns the data region (excluding header and checksums)
func (f Frame) Data() []byte {
	return f.raw[HeaderSize : len(f.raw)-TrailerSize]
}

// Xor returns the xor checksum byte
func (f Frame) Xor() byte {
	return f.raw[len(f.raw)-2]
}

// Add returns the add checksum byte
func (f Frame) Add() byte {
	return f.raw[len(f.raw)-1]
}

// Bytes returns a copy of the complete wire frame
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.raw))
	copy(out, f.raw)
	return out
}

// Size returns the total frame length in bytes
func (f Frame) Size() int {
	return len(f.raw)
}

// Timestamp returns when the frame was extracted or built
func (f Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsZero reports whether f is the zero Frame
func (f Frame) IsZero() bool {
	return len(f.raw) == 0
}
