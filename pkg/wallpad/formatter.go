// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f Frame) string {
	if f.IsZero() {
		return "(empty frame)\n"
	}
	timestamp := f.Timestamp().Format("15:04:05.000")

	result := fmt.Sprintf("[%s] %s (0x%02X) sub=0x%02X cmd=%s (0x%02X) len=%d\n",
		timestamp, FormatDeviceID(f.DeviceID()), f.DeviceID(), f.SubID(),
		FormatCommandID(f.CommandID()), f.CommandID(), f.Length())
	result += fmt.Sprintf("  Data: %s\n", FormatHex(f.Data()))
	result += fmt.Sprintf("  Raw:  %s\n", FormatHex(f.raw))
	return result
}

// FormatDeviceID returns the human-readable name for a device id
func FormatDeviceID(id byte) string {
	if c, ok := ClassForDeviceID(id); ok {
		return strings.ToUpper(c.String())
	}
	return "UNKNOWN"
}

// FormatCommandID returns the human-readable name for a command id
func FormatCommandID(id byte) string {
	switch id {
	case CmdQuery:
		return "QUERY"
	case CmdSetState:
		return "SET_STATE"
	case CmdSetSpeed:
		return "SET_SPEED"
	case CmdSetMode:
		return "SET_MODE"
	case CmdSetTemp:
		return "SET_TEMP"
	case CmdSetAway:
		return "SET_AWAY"
	case CmdStatusReport:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

// FormatHex formats bytes as space-separated upper-case hex
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return "(none)"
	}
	s := strings.ToUpper(hex.EncodeToString(b))
	var sb strings.Builder
	sb.Grow(len(s) + len(b))
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s[i : i+2])
	}
	return sb.String()
}

// FormatValue formats a decoded value
func FormatValue(v Value) string {
	switch v := v.(type) {
	case OnOff:
		if v {
			return "ON"
		}
		return "OFF"
	case ThermostatValue:
		return fmt.Sprintf("mode=%s preset=%s current=%.1f°C target=%.1f°C",
			v.HVACMode, v.Preset, v.CurrentTemperature, v.TargetTemperature)
	case VentilationValue:
		if !v.On {
			return "OFF"
		}
		return fmt.Sprintf("ON %d%% (%s)", v.Percentage, v.Preset)
	case nil:
		return "(none)"
	}
	return fmt.Sprintf("%v", v)
}

// FormatState formats one decoded device state
func FormatState(s DeviceState) string {
	return fmt.Sprintf("%s: %s", s.Key.UniqueID(), FormatValue(s.Value))
}
