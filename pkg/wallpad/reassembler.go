// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import (
	"bytes"
	"iter"
	"time"
)

// Reassembler extracts checksum-valid frames from an unstructured byte stream.
//
// Incoming bytes are appended to a growable buffer with a read cursor;
// discarding from the front only moves the cursor. The backing array is
// compacted before a write once the cursor has passed half of its capacity.
//
// A Reassembler is not safe for concurrent use. Feed and Frames calls on one
// instance must be serialized.
type Reassembler struct {
	buf       []byte
	r         int    // read cursor into buf
	backlog   []byte // fed input not yet moved into buf
	maxBuffer int

	consumed  uint64
	discarded uint64
	frames    uint64

	now func() time.Time
}

// NewReassembler creates a reassembler bounded at MaxBufferSize
func NewReassembler() *Reassembler {
	return NewReassemblerSize(MaxBufferSize)
}

// NewReassemblerSize creates a reassembler with a custom buffer bound.
// Bounds smaller than two maximum frames are raised to that size.
func NewReassemblerSize(maxBuffer int) *Reassembler {
	if maxBuffer < 2*MaxFrameSize {
		maxBuffer = 2 * MaxFrameSize
	}
	return &Reassembler{
		buf:       make([]byte, 0, 2*MaxFrameSize),
		maxBuffer: maxBuffer,
		now:       time.Now,
	}
}

// Write appends raw bytes to the buffer. It never fails. If the unread region
// grows past the buffer bound, the oldest excess bytes are discarded.
func (r *Reassembler) Write(p []byte) (int, error) {
	r.compact()
	r.buf = append(r.buf, p...)
	if excess := len(r.buf) - r.r - r.maxBuffer; excess > 0 {
		r.discard(excess)
	}
	return len(p), nil
}

// Frames returns a lazy sequence of the frames currently extractable. Stopping
// the iteration early leaves the remaining bytes buffered for the next call.
func (r *Reassembler) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for {
			f, ok := r.next()
			if !ok {
				if !r.refill() {
					return
				}
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Feed queues p and returns the frames that become extractable. The bytes
// are queued immediately; they move into the bounded buffer in pieces as the
// sequence is consumed, so a large input is never truncated by the buffer
// bound.
func (r *Reassembler) Feed(p []byte) iter.Seq[Frame] {
	r.backlog = append(r.backlog, p...)
	return r.Frames()
}

// refill moves the next piece of queued input into the buffer
func (r *Reassembler) refill() bool {
	if len(r.backlog) == 0 {
		return false
	}
	n := min(r.maxBuffer/2, len(r.backlog))
	r.Write(r.backlog[:n])
	r.backlog = r.backlog[n:]
	if len(r.backlog) == 0 {
		r.backlog = nil
	}
	return true
}

// next extracts one frame, discarding noise on the way
func (r *Reassembler) next() (Frame, bool) {
	for {
		unread := r.buf[r.r:]

		idx := bytes.IndexByte(unread, SyncByte)
		if idx < 0 {
			r.discard(len(unread))
			return Frame{}, false
		}
		if idx > 0 {
			r.discard(idx)
			unread = unread[idx:]
		}

		if len(unread) < HeaderSize {
			return Frame{}, false
		}

		size := int(unread[offsetLength]) + MinFrameSize
		if len(unread) < size {
			return Frame{}, false
		}

		if ValidChecksum(unread[:size]) {
			f := newFrame(unread[:size], r.now())
			r.advance(size)
			r.frames++
			return f, true
		}

		// False sync or corrupted length byte. The declared length cannot
		// be trusted, so only the sync byte is dropped.
		r.discard(1)
	}
}

func (r *Reassembler) advance(n int) {
	r.r += n
	r.consumed += uint64(n)
	if r.r == len(r.buf) {
		r.buf = r.buf[:0]
		r.r = 0
	}
}

func (r *Reassembler) discard(n int) {
	if n <= 0 {
		return
	}
	r.discarded += uint64(n)
	r.advance(n)
}

func (r *Reassembler) compact() {
	if r.r == 0 || r.r < cap(r.buf)/2 {
		return
	}
	n := copy(r.buf, r.buf[r.r:])
	r.buf = r.buf[:n]
	r.r = 0
}

// Reset drops all buffered bytes. Used when the underlying connection is
// replaced; partial frames never survive a reconnect.
func (r *Reassembler) Reset() {
	n := uint64(r.Buffered())
	r.discarded += n
	r.consumed += n
	r.buf = r.buf[:0]
	r.r = 0
	r.backlog = nil
}

// Buffered returns the number of unconsumed bytes, including queued input
func (r *Reassembler) Buffered() int {
	return len(r.buf) - r.r + len(r.backlog)
}

// Pending returns a copy of the unconsumed bytes
func (r *Reassembler) Pending() []byte {
	out := make([]byte, 0, r.Buffered())
	out = append(out, r.buf[r.r:]...)
	return append(out, r.backlog...)
}

// Consumed returns the total number of bytes removed from the buffer, as
// frames or as noise
func (r *Reassembler) Consumed() uint64 {
	return r.consumed
}

// Discarded returns the number of bytes dropped as noise
func (r *Reassembler) Discarded() uint64 {
	return r.discarded
}

// FrameCount returns the number of frames extracted
func (r *Reassembler) FrameCount() uint64 {
	return r.frames
}
