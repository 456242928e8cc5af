// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/wallbus/pkg/capture"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{61 * time.Second, "1 minute and 1 second"},
		{2 * time.Hour, "2 hours"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1 day, 2 hours, 3 minutes, and 4 seconds"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestEventLog(t *testing.T) {
	l := newEventLog(3)
	for i := range 5 {
		l.add(fmt.Sprintf("event %d", i), i%2 == 0)
	}

	if len(l.entries) != 3 {
		t.Fatalf("kept %d entries, want 3", len(l.entries))
	}
	if l.entries[0].message != "event 2" {
		t.Errorf("oldest kept = %q, want event 2", l.entries[0].message)
	}

	tail := l.tail(2)
	if len(tail) != 2 || tail[1].message != "event 4" || !tail[1].isError {
		t.Errorf("tail(2) = %+v", tail)
	}
	if got := l.tail(10); len(got) != 3 {
		t.Errorf("tail(10) returned %d entries, want 3", len(got))
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want wallpad.Command
	}{
		{
			[]string{"light", "2", "on"},
			wallpad.Command{Key: wallpad.Key(wallpad.ClassLight, 2), Action: wallpad.ActionOn},
		},
		{
			[]string{"heating", "1", "temp", "22.5"},
			wallpad.Command{Key: wallpad.Key(wallpad.ClassThermostat, 1), Action: wallpad.ActionTemp,
				Params: wallpad.Params{Temperature: 22.5}},
		},
		{
			[]string{"heating", "3", "hvac", "HEAT"},
			wallpad.Command{Key: wallpad.Key(wallpad.ClassThermostat, 3), Action: wallpad.ActionHVAC,
				Params: wallpad.Params{HVACMode: wallpad.HVACHeat}},
		},
		{
			[]string{"heating", "1", "away", "on"},
			wallpad.Command{Key: wallpad.Key(wallpad.ClassThermostat, 1), Action: wallpad.ActionAway,
				Params: wallpad.Params{Preset: wallpad.PresetAway}},
		},
		{
			[]string{"fan", "1", "set_speed", "66%"},
			wallpad.Command{Key: wallpad.Key(wallpad.ClassVentilation, 1), Action: wallpad.ActionSetSpeed,
				Params: wallpad.Params{Percentage: 66}},
		},
		{
			[]string{"fan", "1", "preset", "High"},
			wallpad.Command{Key: wallpad.Key(wallpad.ClassVentilation, 1), Action: wallpad.ActionPreset,
				Params: wallpad.Params{Preset: wallpad.PresetHigh}},
		},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			got, err := parseCommand(tt.args)
			if err != nil {
				t.Fatalf("parseCommand: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := [][]string{
		{"toaster", "1", "on"},
		{"light", "0", "on"},
		{"light", "x", "on"},
		{"heating", "1", "temp"},
		{"heating", "1", "temp", "warm"},
		{"heating", "1", "away", "maybe"},
		{"fan", "1", "set_speed", "fast"},
		{"light", "1", "on", "extra"},
	}
	for _, args := range tests {
		if _, err := parseCommand(args); err == nil {
			t.Errorf("parseCommand(%q) succeeded, want error", args)
		}
	}
}

func TestClassActions(t *testing.T) {
	for _, class := range wallpad.Classes {
		if len(classActions(class)) == 0 {
			t.Errorf("%s has no actions", class)
		}
	}
	if got := classActions(wallpad.ClassGasValve); len(got) != 1 || got[0] != wallpad.ActionOff {
		t.Errorf("gas valve actions = %v, want [off]", got)
	}
}

func TestSyncTracker(t *testing.T) {
	stats := wallpad.NewStatistics()
	var tr syncTracker

	stats.SetNoise(5)
	tr.reset(stats)
	stats.SetNoise(12)

	skipped, first := tr.frame(stats)
	if !first || skipped != 7 {
		t.Errorf("first frame: skipped=%d first=%v, want 7 true", skipped, first)
	}
	if _, first := tr.frame(stats); first {
		t.Error("second frame reported as first")
	}

	// A reconnect starts a new count
	tr.reset(stats)
	stats.SetNoise(15)
	if skipped, first := tr.frame(stats); !first || skipped != 3 {
		t.Errorf("after reset: skipped=%d first=%v, want 3 true", skipped, first)
	}
}

func TestSuggestDevices(t *testing.T) {
	seen := map[wallpad.DeviceKey]wallpad.DeviceState{}
	for _, k := range []wallpad.DeviceKey{
		wallpad.Key(wallpad.ClassLight, 2),
		wallpad.Key(wallpad.ClassLight, 1),
		wallpad.Key(wallpad.ClassVentilation, 1),
	} {
		seen[k] = wallpad.DeviceState{Key: k, Value: wallpad.OnOff(true)}
	}

	devices := suggestDevices(seen)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}

	light := devices[0]
	if light.Class != "light" || len(light.Rooms) != 2 {
		t.Fatalf("light entry = %+v", light)
	}
	if light.Rooms[0].Zone != 1 || light.Rooms[1].Zone != 2 {
		t.Errorf("rooms not in zone order: %+v", light.Rooms)
	}
	if devices[1].Class != "ventilation" || len(devices[1].Rooms) != 0 {
		t.Errorf("ventilation entry = %+v", devices[1])
	}
}

func TestReplayer_Capture(t *testing.T) {
	var file bytes.Buffer
	w, err := capture.NewWriter(&file, "test")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	report := wallpad.Build(wallpad.DeviceLight, 0x01, wallpad.CmdStatusReport, []byte{0x00, 0x01})
	// Noise followed by a report split across two reads
	if err := w.Record(capture.Inbound, append([]byte{0x00, 0x13}, report[:3]...)); err != nil {
		t.Fatal(err)
	}
	if err := w.Record(capture.Inbound, report[3:]); err != nil {
		t.Fatal(err)
	}
	codec := wallpad.NewCodec(wallpad.DefaultOptions())
	command, err := codec.Encode(wallpad.Key(wallpad.ClassLight, 1), wallpad.ActionOff, wallpad.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Record(capture.Outbound, command); err != nil {
		t.Fatal(err)
	}

	cr, err := capture.NewReader(&file)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	var out bytes.Buffer
	p := newReplayer(codec, &out)
	for rec, err := range cr.All() {
		if err != nil {
			t.Fatal(err)
		}
		if rec.Direction == capture.Outbound {
			p.outbound(rec)
			continue
		}
		p.inbound(rec.Data)
	}

	if !strings.Contains(out.String(), "light_1: ON") {
		t.Errorf("output missing decoded state:\n%s", out.String())
	}
	if !strings.Contains(out.String(), " TX ") {
		t.Errorf("output missing outbound record:\n%s", out.String())
	}

	snap := p.stats.Snapshot()
	if snap.TotalFrames != 1 || snap.DecodedStates != 1 {
		t.Errorf("frames=%d states=%d, want 1 1", snap.TotalFrames, snap.DecodedStates)
	}
	if snap.NoiseBytes != 2 {
		t.Errorf("NoiseBytes = %d, want 2", snap.NoiseBytes)
	}
	if snap.CommandsSent != 1 {
		t.Errorf("CommandsSent = %d, want 1", snap.CommandsSent)
	}
}

func TestExitError(t *testing.T) {
	inner := errors.New("no route")
	err := exitError(2, "connection error: %w", inner)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("errors.As failed for %v", err)
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error not reachable")
	}
	if err.Error() != "connection error: no route" {
		t.Errorf("Error() = %q", err.Error())
	}
}
