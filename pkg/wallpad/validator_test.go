// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import (
	"strings"
	"testing"
)

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame_Valid(t *testing.T) {
	frames := []Frame{
		statusFrame(DeviceLight, 0x00, 0x01, 0x00),
		statusFrame(DeviceThermostat, 0x00, 0x01, 0x00, 0x00, 0x00, 0x95, 0x18),
		statusFrame(DeviceVentilation, 0x00, 0x01, 0x02),
		statusFrame(DeviceVentilation, 0x00, 0x00, 0x77), // off, code ignored
		statusFrame(DeviceGasValve, 0x00, 0x04),
		statusFrame(DeviceElevator, 0x00, 0x44),
		NewFrame(DeviceLight, 0x11, CmdSetState, []byte{0x01}),
	}
	for _, f := range frames {
		if errs := ValidateFrame(f); len(errs) != 0 {
			t.Errorf("%s: unexpected anomalies %v", FormatHex(f.Bytes()), errs)
		}
	}
}

func TestValidateFrame_Anomalies(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  []AnomalyType
	}{
		{"unknown device", NewFrame(0x99, 0x01, CmdStatusReport, nil),
			[]AnomalyType{AnomalyUnknownDevice}},
		{"short light", statusFrame(DeviceLight, 0x00),
			[]AnomalyType{AnomalyLengthMismatch}},
		{"short thermostat", statusFrame(DeviceThermostat, 0x00, 0x01),
			[]AnomalyType{AnomalyLengthMismatch}},
		{"odd temperature region", statusFrame(DeviceThermostat, 0x00, 0x01, 0x00, 0x00, 0x00, 0x95, 0x18, 0x17),
			[]AnomalyType{AnomalyLengthMismatch}},
		{"hot zone", statusFrame(DeviceThermostat, 0x00, 0x01, 0x00, 0x00, 0x00, 0x40, 0x18),
			[]AnomalyType{AnomalyInvalidTemp}},
		{"unknown mode", statusFrame(DeviceVentilation, 0x00, 0x01, 0x09),
			[]AnomalyType{AnomalyInvalidValue}},
		{"short ventilation", statusFrame(DeviceVentilation, 0x00, 0x01),
			[]AnomalyType{AnomalyLengthMismatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(tt.frame)
			if len(errs) != len(tt.want) {
				t.Fatalf("got %d anomalies %v, want %v", len(errs), errs, tt.want)
			}
			for i, err := range errs {
				if err.Type != tt.want[i] {
					t.Errorf("anomaly %d = %s, want %s", i, err.Type, tt.want[i])
				}
				if err.Error() == "" {
					t.Error("anomaly message should not be empty")
				}
			}
		})
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	stats := NewStatistics()

	stats.Update(statusFrame(DeviceLight, 0x00, 0x01, 0x01), nil, 2)
	stats.Update(NewFrame(DeviceLight, 0x11, CmdSetState, []byte{0x01, 0x01}), nil, 0)
	hot := statusFrame(DeviceThermostat, 0x00, 0x01, 0x00, 0x00, 0x00, 0x40, 0x18)
	stats.Update(hot, ValidateFrame(hot), 1)
	stats.SetNoise(12)
	stats.CommandSent()
	stats.CommandDropped()

	snap := stats.Snapshot()
	if snap.TotalFrames != 3 || snap.ValidFrames != 2 {
		t.Errorf("Total = %d Valid = %d, want 3 and 2", snap.TotalFrames, snap.ValidFrames)
	}
	if snap.DecodedStates != 3 {
		t.Errorf("DecodedStates = %d, want 3", snap.DecodedStates)
	}
	if snap.UnknownFrames != 1 {
		t.Errorf("UnknownFrames = %d, want 1", snap.UnknownFrames)
	}
	if snap.InvalidTemp != 1 || snap.AnomalousValues != 1 {
		t.Errorf("InvalidTemp = %d AnomalousValues = %d", snap.InvalidTemp, snap.AnomalousValues)
	}
	if snap.NoiseBytes != 12 || snap.CommandsSent != 1 || snap.CommandsDropped != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	out := stats.String()
	for _, want := range []string{"Total Frames", "Noise Bytes", "Invalid Temp", "Commands Sent"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	stats.Reset()
	if snap := stats.Snapshot(); snap.TotalFrames != 0 || snap.NoiseBytes != 0 {
		t.Errorf("Reset left %+v", snap)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	out := FormatFrame(statusFrame(DeviceThermostat, 0x00, 0x01))
	for _, want := range []string{"THERMOSTAT (0x36)", "cmd=STATUS (0x81)", "len=2", "Data: 00 01"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame missing %q:\n%s", want, out)
		}
	}
	if FormatDeviceID(0x99) != "UNKNOWN" || FormatCommandID(0x99) != "UNKNOWN" {
		t.Error("unknown ids should format as UNKNOWN")
	}
	if FormatHex(nil) != "(none)" {
		t.Errorf("FormatHex(nil) = %q", FormatHex(nil))
	}
}

func TestFormatState(t *testing.T) {
	tests := []struct {
		state DeviceState
		want  string
	}{
		{DeviceState{Key(ClassLight, 2), OnOff(true)}, "light_2: ON"},
		{DeviceState{Key(ClassGasValve, 1), OnOff(false)}, "gasvalve_1: OFF"},
		{DeviceState{Key(ClassVentilation, 1), VentilationValue{true, 66, PresetMedium}}, "ventilation_1: ON 66% (medium)"},
		{DeviceState{Key(ClassVentilation, 1), VentilationValue{}}, "ventilation_1: OFF"},
		{DeviceState{Key(ClassThermostat, 1), ThermostatValue{HVACHeat, PresetNone, 21.5, 24}},
			"thermostat_1: mode=heat preset=none current=21.5°C target=24.0°C"},
	}
	for _, tt := range tests {
		if got := FormatState(tt.state); got != tt.want {
			t.Errorf("FormatState = %q, want %q", got, tt.want)
		}
	}
}
