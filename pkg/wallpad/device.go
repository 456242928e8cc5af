// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceClass is one of the closed set of device classes on the bus
type DeviceClass int

// Device classes
const (
	ClassLight DeviceClass = iota + 1
	ClassThermostat
	ClassVentilation
	ClassGasValve
	ClassElevator
)

// Classes lists every device class in a stable order
var Classes = []DeviceClass{ClassLight, ClassThermostat, ClassVentilation, ClassGasValve, ClassElevator}

// DeviceID returns the fixed bus id of the class
func (c DeviceClass) DeviceID() byte {
	switch c {
	case ClassLight:
		return DeviceLight
	case ClassThermostat:
		return DeviceThermostat
	case ClassVentilation:
		return DeviceVentilation
	case ClassGasValve:
		return DeviceGasValve
	case ClassElevator:
		return DeviceElevator
	}
	return 0
}

// String returns the class name
func (c DeviceClass) String() string {
	switch c {
	case ClassLight:
		return "Light"
	case ClassThermostat:
		return "Thermostat"
	case ClassVentilation:
		return "Ventilation"
	case ClassGasValve:
		return "GasValve"
	case ClassElevator:
		return "Elevator"
	}
	return fmt.Sprintf("DeviceClass(%d)", int(c))
}

// Zoned reports whether the class addresses several zones
func (c DeviceClass) Zoned() bool {
	return c == ClassLight || c == ClassThermostat
}

// ClassForDeviceID maps a bus device id to its class
func ClassForDeviceID(id byte) (DeviceClass, bool) {
	for _, c := range Classes {
		if c.DeviceID() == id {
			return c, true
		}
	}
	return 0, false
}

// ParseDeviceClass parses a class name, case-insensitively. Common aliases
// ("gas", "fan", "heating", ...) are accepted.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light", "lights":
		return ClassLight, nil
	case "thermostat", "heating", "climate":
		return ClassThermostat, nil
	case "ventilation", "fan", "heat_exchanger":
		return ClassVentilation, nil
	case "gasvalve", "gas_valve", "gas":
		return ClassGasValve, nil
	case "elevator":
		return ClassElevator, nil
	}
	return 0, fmt.Errorf("unknown device class %q", s)
}

// DeviceKey identifies one controllable zone or unit
type DeviceKey struct {
	Class DeviceClass
	Index int
}

// Key is shorthand for building a DeviceKey
func Key(class DeviceClass, index int) DeviceKey {
	return DeviceKey{Class: class, Index: index}
}

// UniqueID returns the stable identifier lower(class)_index
func (k DeviceKey) UniqueID() string {
	return strings.ToLower(k.Class.String()) + "_" + strconv.Itoa(k.Index)
}

func (k DeviceKey) String() string {
	return k.UniqueID()
}

// HVAC modes
const (
	HVACOff  = "off"
	HVACHeat = "heat"
)

// Presets
const (
	PresetNone   = "none"
	PresetAway   = "away"
	PresetLow    = "low"
	PresetMedium = "medium"
	PresetHigh   = "high"
	PresetAuto   = "auto"
)

// Value is the decoded state of one device. The set of implementations is
// closed: OnOff, ThermostatValue and VentilationValue.
type Value interface {
	isValue()
}

// OnOff is the state of a light (on), gas valve (closed) or elevator (call
// active)
type OnOff bool

// ThermostatValue is the state of one heating zone
type ThermostatValue struct {
	HVACMode           string
	Preset             string
	CurrentTemperature float64
	TargetTemperature  float64
}

// VentilationValue is the state of the ventilation unit
type VentilationValue struct {
	On         bool
	Percentage int
	Preset     string // empty when off
}

func (OnOff) isValue()            {}
func (ThermostatValue) isValue()  {}
func (VentilationValue) isValue() {}

// DeviceState is one decoded device update. It replaces any previous state
// for the same key.
type DeviceState struct {
	Key   DeviceKey
	Value Value
}
