// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame statistics and error rates. It is safe for
// concurrent use; the gateway updates it from its reader goroutine while
// the UI reads snapshots.
type Statistics struct {
	mu sync.Mutex
	s  StatisticsSnapshot
}

// StatisticsSnapshot is a point-in-time copy of the counters
type StatisticsSnapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	UnknownFrames    uint64
	DecodedStates    uint64
	NoiseBytes       uint64
	MalformedFrames  uint64
	LengthMismatches uint64
	AnomalousValues  uint64
	InvalidTemp      uint64
	InvalidValues    uint64
	UnknownDevices   uint64
	CommandsSent     uint64
	CommandsDropped  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // anomalies/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{s: StatisticsSnapshot{StartTime: now, LastUpdateTime: now}}
}

// Update records one frame, the anomalies found in it and the number of
// states it decoded to
func (s *Statistics) Update(f Frame, validationErrors []ValidationError, states int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.s.TotalFrames++
	s.s.DecodedStates += uint64(states)
	if !Known(f.DeviceID(), f.CommandID()) {
		s.s.UnknownFrames++
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyLengthMismatch:
				s.s.LengthMismatches++
				s.s.MalformedFrames++
			case AnomalyInvalidTemp:
				s.s.InvalidTemp++
				s.s.AnomalousValues++
			case AnomalyInvalidValue:
				s.s.InvalidValues++
				s.s.AnomalousValues++
			case AnomalyUnknownDevice:
				s.s.UnknownDevices++
			}
		}
	} else {
		s.s.ValidFrames++
	}

	s.s.LastUpdateTime = time.Now()
}

// SetNoise records the running noise byte count reported by a reassembler
func (s *Statistics) SetNoise(discarded uint64) {
	s.mu.Lock()
	s.s.NoiseBytes = discarded
	s.mu.Unlock()
}

// AddNoise adds noise bytes, used when a reassembler is replaced
func (s *Statistics) AddNoise(n uint64) {
	s.mu.Lock()
	s.s.NoiseBytes += n
	s.mu.Unlock()
}

// CommandSent records an outbound frame
func (s *Statistics) CommandSent() {
	s.mu.Lock()
	s.s.CommandsSent++
	s.mu.Unlock()
}

// CommandDropped records an outbound frame dropped while disconnected
func (s *Statistics) CommandDropped() {
	s.mu.Lock()
	s.s.CommandsDropped++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.Lock()
	snap := s.s
	s.mu.Unlock()

	elapsed := time.Since(snap.StartTime).Seconds()
	if elapsed > 0 {
		snap.FrameRate = float64(snap.TotalFrames) / elapsed
		snap.ErrorRate = float64(snap.MalformedFrames+snap.AnomalousValues) / elapsed
	}
	return snap
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var validPercent, malformedPercent, anomalousPercent float64
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
		malformedPercent = float64(snap.MalformedFrames) * 100.0 / float64(snap.TotalFrames)
		anomalousPercent = float64(snap.AnomalousValues) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", snap.ValidFrames, validPercent)
	result += fmt.Sprintf("Decoded States:  %8d\n", snap.DecodedStates)

	if snap.UnknownFrames > 0 {
		result += fmt.Sprintf("Unknown Frames:  %8d\n", snap.UnknownFrames)
	}
	if snap.NoiseBytes > 0 {
		result += fmt.Sprintf("Noise Bytes:     %8d\n", snap.NoiseBytes)
	}
	if snap.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed Frames:%8d (%.1f%%)\n", snap.MalformedFrames, malformedPercent)
	}
	if snap.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", snap.AnomalousValues, anomalousPercent)
		if snap.InvalidTemp > 0 {
			result += fmt.Sprintf("  Invalid Temp:     %5d\n", snap.InvalidTemp)
		}
		if snap.InvalidValues > 0 {
			result += fmt.Sprintf("  Invalid Value:    %5d\n", snap.InvalidValues)
		}
	}
	if snap.UnknownDevices > 0 {
		result += fmt.Sprintf("Unknown Devices: %8d\n", snap.UnknownDevices)
	}
	if snap.CommandsSent > 0 || snap.CommandsDropped > 0 {
		result += fmt.Sprintf("Commands Sent:   %8d (dropped %d)\n", snap.CommandsSent, snap.CommandsDropped)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.mu.Lock()
	s.s = StatisticsSnapshot{StartTime: now, LastUpdateTime: now}
	s.mu.Unlock()
}
