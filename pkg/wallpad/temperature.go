// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import "math"

// Temperature bytes carry whole degrees in the low 7 bits and a half degree
// in the high bit.
const halfDegreeBit = 0x80

// MaxTemperature is the largest encodable temperature (exclusive)
const MaxTemperature = 128.0

// ParseTemperature decodes a temperature byte
func ParseTemperature(b byte) float64 {
	t := float64(b & 0x7F)
	if b&halfDegreeBit != 0 {
		t += 0.5
	}
	return t
}

// EncodeTemperature encodes t as floor(t) with the half-degree bit set when
// the fractional part is at least 0.5. ok is false outside [0, 128).
func EncodeTemperature(t float64) (b byte, ok bool) {
	if math.IsNaN(t) || t < 0 || t >= MaxTemperature {
		return 0, false
	}
	whole := math.Floor(t)
	b = byte(whole)
	if t-whole >= 0.5 {
		b |= halfDegreeBit
	}
	return b, true
}

// TemperatureOrder selects which byte of a thermostat temperature pair is
// the current temperature
type TemperatureOrder int

// Temperature pair orders
const (
	CurrentFirst TemperatureOrder = iota
	TargetFirst
)

func (o TemperatureOrder) String() string {
	if o == TargetFirst {
		return "target_first"
	}
	return "current_first"
}

// ParseTemperatureOrder parses "current_first" or "target_first"
func ParseTemperatureOrder(s string) (TemperatureOrder, bool) {
	switch s {
	case "", "current_first":
		return CurrentFirst, true
	case "target_first":
		return TargetFirst, true
	}
	return CurrentFirst, false
}
