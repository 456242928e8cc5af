// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture reads and writes recordings of raw bus traffic.
//
// A capture file is a CBOR sequence: one Header followed by any number of
// Records, each holding one chunk of bytes exactly as it was read from or
// written to the connection. Chunk boundaries are kept so a replay feeds the
// reassembler the same way the live link did.
package capture

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a capture stream
const Magic = "wallbus-capture"

// Version is the current capture format version
const Version = 1

// Direction of a recorded chunk
type Direction uint8

const (
	Inbound  Direction = 0 // read from the bus
	Outbound Direction = 1 // written to the bus
)

func (d Direction) String() string {
	if d == Outbound {
		return "TX"
	}
	return "RX"
}

// Header starts every capture
type Header struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
	Source  string `cbor:"3,keyasint,omitempty"`
	Started int64  `cbor:"4,keyasint"` // unix nanoseconds
}

// StartTime returns when the capture began
func (h Header) StartTime() time.Time {
	return time.Unix(0, h.Started)
}

// Record is one recorded chunk
type Record struct {
	Time      int64     `cbor:"1,keyasint"` // unix nanoseconds
	Direction Direction `cbor:"2,keyasint"`
	Data      []byte    `cbor:"3,keyasint"`
}

// Timestamp returns when the chunk was recorded
func (r Record) Timestamp() time.Time {
	return time.Unix(0, r.Time)
}

// ErrNotCapture is returned when a stream does not start with a capture
// header
var ErrNotCapture = errors.New("not a wallbus capture")

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to a capture stream
type Writer struct {
	enc     *cbor.Encoder
	records int
	bytes   int
	now     func() time.Time
}

// NewWriter writes the capture header and returns a writer for records
func NewWriter(w io.Writer, source string) (*Writer, error) {
	cw := &Writer{enc: encMode.NewEncoder(w), now: time.Now}
	h := Header{
		Magic:   Magic,
		Version: Version,
		Source:  source,
		Started: cw.now().UnixNano(),
	}
	if err := cw.enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return cw, nil
}

// Record appends one chunk stamped with the current time. Empty chunks are
// skipped.
func (w *Writer) Record(dir Direction, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	rec := Record{Time: w.now().UnixNano(), Direction: dir, Data: data}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write capture record: %w", err)
	}
	w.records++
	w.bytes += len(data)
	return nil
}

// Records returns the number of records written
func (w *Writer) Records() int {
	return w.records
}

// Bytes returns the number of payload bytes written
func (w *Writer) Bytes() int {
	return w.bytes
}

// Reader reads records from a capture stream
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the capture header
func NewReader(r io.Reader) (*Reader, error) {
	cr := &Reader{dec: cbor.NewDecoder(r)}
	if err := cr.dec.Decode(&cr.header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotCapture
		}
		return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
	}
	if cr.header.Magic != Magic {
		return nil, ErrNotCapture
	}
	if cr.header.Version != Version {
		return nil, fmt.Errorf("unsupported capture version %d (expected %d)", cr.header.Version, Version)
	}
	return cr, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the capture
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read capture record: %w", err)
	}
	return rec, nil
}

// All yields the remaining records. Iteration stops after the first error,
// which is yielded with a zero record; a clean end of stream yields no
// error.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}
