// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidTemp
	AnomalyInvalidValue
	AnomalyUnknownDevice
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "length_mismatch"
	case AnomalyInvalidTemp:
		return "invalid_temp"
	case AnomalyInvalidValue:
		return "invalid_value"
	case AnomalyUnknownDevice:
		return "unknown_device"
	}
	return fmt.Sprintf("anomaly(%d)", int(a))
}

// Plausible room temperature range for thermostat reports
const (
	MinPlausibleTemp = 0.0
	MaxPlausibleTemp = 50.0
)

// ValidationError represents a checksum-valid frame whose content looks wrong
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]any
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame detects anomalies in a status frame.
// Returns a slice of validation errors (empty if the frame looks sane).
func ValidateFrame(f Frame) []ValidationError {
	errors := []ValidationError{}
	if f.IsZero() {
		return errors
	}

	if _, ok := ClassForDeviceID(f.DeviceID()); !ok {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownDevice,
			Message: fmt.Sprintf("Unknown device id 0x%02X", f.DeviceID()),
			Details: map[string]any{"device_id": f.DeviceID()},
		})
	}
	if f.CommandID() != CmdStatusReport {
		return errors
	}

	switch f.DeviceID() {
	case DeviceLight, DeviceGasValve, DeviceElevator:
		errors = append(errors, validateMinLength(f, 2)...)
	case DeviceThermostat:
		errors = append(errors, validateThermostat(f)...)
	case DeviceVentilation:
		errors = append(errors, validateVentilation(f)...)
	}
	return errors
}

func validateMinLength(f Frame, minimum int) []ValidationError {
	if len(f.Data()) >= minimum {
		return nil
	}
	return []ValidationError{{
		Type: AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s status payload too short (expected at least %d bytes)",
			FormatDeviceID(f.DeviceID()), minimum),
		Details: map[string]any{"length": len(f.Data()), "minimum": minimum},
	}}
}

// validateThermostat checks the temperature pair region
func validateThermostat(f Frame) []ValidationError {
	if errs := validateMinLength(f, thermostatTempStart+2); len(errs) > 0 {
		return errs
	}

	errors := []ValidationError{}
	temps := f.Data()[thermostatTempStart:]
	if len(temps)%2 != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("Thermostat temperature region has odd length %d", len(temps)),
			Details: map[string]any{"length": len(temps)},
		})
	}

	for i := 0; 2*i+1 < len(temps); i++ {
		for _, b := range temps[2*i : 2*i+2] {
			t := ParseTemperature(b)
			if t < MinPlausibleTemp || t > MaxPlausibleTemp {
				errors = append(errors, ValidationError{
					Type:    AnomalyInvalidTemp,
					Message: fmt.Sprintf("Zone %d temperature %.1f outside %.0f-%.0f", i+1, t, MinPlausibleTemp, MaxPlausibleTemp),
					Details: map[string]any{"zone": i + 1, "temperature": t},
				})
			}
		}
	}
	return errors
}

// validateVentilation checks the mode code against every known table
func validateVentilation(f Frame) []ValidationError {
	if errs := validateMinLength(f, 3); len(errs) > 0 {
		return errs
	}

	data := f.Data()
	if data[1] == valueOff {
		return nil
	}
	if _, ok := ThreeLevelAuto.Lookup(data[2]); !ok {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Unknown ventilation mode code 0x%02X", data[2]),
			Details: map[string]any{"mode": data[2]},
		}}
	}
	return nil
}
