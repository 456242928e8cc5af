// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wallpad

import (
	"errors"
	"fmt"
	"strings"
)

// Encode errors
var (
	ErrUnsupportedAction = errors.New("action not supported by device class")
	ErrInvalidZone       = errors.New("invalid zone index")
	ErrInvalidParam      = errors.New("invalid command parameter")
)

// Action names a device command
type Action string

// Actions
const (
	ActionOn       Action = "on"
	ActionOff      Action = "off"
	ActionHVAC     Action = "hvac"
	ActionTemp     Action = "temp"
	ActionAway     Action = "away"
	ActionSetSpeed Action = "set_speed"
	ActionPreset   Action = "preset"
	ActionCall     Action = "call"
)

// ParseAction normalizes an action name
func ParseAction(s string) Action {
	return Action(strings.ToLower(strings.TrimSpace(s)))
}

// Params carries the named parameters of an action. Only the fields the
// action uses are read.
type Params struct {
	HVACMode    string  // hvac: heat or off
	Preset      string  // away: away or none; preset: a speed table preset
	Temperature float64 // temp
	Percentage  int     // set_speed
	On          bool    // away, when Preset is empty
}

// Command is one device action waiting to be encoded
type Command struct {
	Key    DeviceKey
	Action Action
	Params Params
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s %+v", c.Key, c.Action, c.Params)
}

// Options configures decode calibration and sub-addressing. Start from
// DefaultOptions; zero sub-addresses are taken literally.
type Options struct {
	TemperatureOrder TemperatureOrder
	SpeedTable       SpeedTable

	LightSubBase       byte
	ThermostatSubBase  byte
	VentilationSubAddr byte
	GasValveSubAddr    byte
	ElevatorSubAddr    byte
}

// DefaultOptions returns the factory calibration
func DefaultOptions() Options {
	return Options{
		TemperatureOrder:   CurrentFirst,
		SpeedTable:         ThreeLevel,
		LightSubBase:       DefaultLightSubBase,
		ThermostatSubBase:  DefaultThermostatSubBase,
		VentilationSubAddr: DefaultVentilationSubAddr,
		GasValveSubAddr:    DefaultGasValveSubAddr,
		ElevatorSubAddr:    DefaultElevatorSubAddr,
	}
}

// Codec converts status frames into device state and device actions into
// command frames. A Codec is immutable and safe for concurrent use.
type Codec struct {
	opts Options
}

// NewCodec creates a codec. An empty speed table is replaced by ThreeLevel.
func NewCodec(opts Options) *Codec {
	if opts.SpeedTable.IsEmpty() {
		opts.SpeedTable = ThreeLevel
	}
	return &Codec{opts: opts}
}

// Options returns the codec configuration
func (c *Codec) Options() Options {
	return c.opts
}

type dispatchKey struct {
	device  byte
	command byte
}

type decodeFunc func(c *Codec, data []byte) []DeviceState

var decoders = map[dispatchKey]decodeFunc{
	{DeviceLight, CmdStatusReport}:       (*Codec).decodeLight,
	{DeviceThermostat, CmdStatusReport}:  (*Codec).decodeThermostat,
	{DeviceVentilation, CmdStatusReport}: (*Codec).decodeVentilation,
	{DeviceGasValve, CmdStatusReport}:    (*Codec).decodeGasValve,
	{DeviceElevator, CmdStatusReport}:    (*Codec).decodeElevator,
}

// Known reports whether frames with this device and command id are decoded
func Known(deviceID, commandID byte) bool {
	_, ok := decoders[dispatchKey{deviceID, commandID}]
	return ok
}

// Decode converts a frame into zero or more device states. Unknown device
// or command ids and payloads too short for their layout yield nothing.
func (c *Codec) Decode(f Frame) []DeviceState {
	if f.IsZero() {
		return nil
	}
	decode, ok := decoders[dispatchKey{f.DeviceID(), f.CommandID()}]
	if !ok {
		return nil
	}
	return decode(c, f.Data())
}

func (c *Codec) decodeLight(data []byte) []DeviceState {
	if len(data) < 2 {
		return nil
	}
	states := make([]DeviceState, 0, len(data)-1)
	for i, b := range data[1:] {
		states = append(states, DeviceState{
			Key:   Key(ClassLight, i+1),
			Value: OnOff(b == valueOn),
		})
	}
	return states
}

func (c *Codec) decodeThermostat(data []byte) []DeviceState {
	if len(data) < thermostatTempStart+2 {
		return nil
	}
	power := data[thermostatPowerMask]
	away := data[thermostatAwayMask]
	temps := data[thermostatTempStart:]

	var states []DeviceState
	for i := 0; 2*i+1 < len(temps); i++ {
		first, second := ParseTemperature(temps[2*i]), ParseTemperature(temps[2*i+1])
		if first == 0 && second == 0 {
			continue
		}

		v := ThermostatValue{
			HVACMode:           HVACOff,
			Preset:             PresetNone,
			CurrentTemperature: first,
			TargetTemperature:  second,
		}
		if c.opts.TemperatureOrder == TargetFirst {
			v.CurrentTemperature, v.TargetTemperature = second, first
		}
		if maskBit(power, i) {
			v.HVACMode = HVACHeat
		}
		if maskBit(away, i) {
			v.Preset = PresetAway
		}
		states = append(states, DeviceState{Key: Key(ClassThermostat, i+1), Value: v})
	}
	return states
}

func maskBit(mask byte, bit int) bool {
	return bit < 8 && mask&(1<<bit) != 0
}

func (c *Codec) decodeVentilation(data []byte) []DeviceState {
	if len(data) < 3 {
		return nil
	}
	v := VentilationValue{On: data[1] != valueOff}
	if v.On {
		level := c.opts.SpeedTable.Decode(data[2], data[3:])
		v.Percentage = level.Percentage
		v.Preset = level.Preset
	}
	return []DeviceState{{Key: Key(ClassVentilation, 1), Value: v}}
}

func (c *Codec) decodeGasValve(data []byte) []DeviceState {
	if len(data) < 2 {
		return nil
	}
	return []DeviceState{{Key: Key(ClassGasValve, 1), Value: OnOff(data[1] == gasClosed)}}
}

func (c *Codec) decodeElevator(data []byte) []DeviceState {
	if len(data) < 2 {
		return nil
	}
	return []DeviceState{{Key: Key(ClassElevator, 1), Value: OnOff(data[1] == elevatorActive)}}
}

// EncodeCommand encodes cmd into a complete frame
func (c *Codec) EncodeCommand(cmd Command) ([]byte, error) {
	return c.Encode(cmd.Key, cmd.Action, cmd.Params)
}

// Encode converts an action on a device into a complete command frame. The
// command id follows from the class and action.
//
// The gas valve can only be closed: every action on it encodes the close
// command and never fails.
func (c *Codec) Encode(key DeviceKey, action Action, p Params) ([]byte, error) {
	if key.Class == ClassGasValve {
		return Build(DeviceGasValve, c.opts.GasValveSubAddr, CmdSetState, []byte{commandPrefix, valueOff}), nil
	}
	if key.Index < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZone, key.Index)
	}

	switch key.Class {
	case ClassLight:
		return c.encodeLight(key, action)
	case ClassThermostat:
		return c.encodeThermostat(key, action, p)
	case ClassVentilation:
		return c.encodeVentilation(action, p)
	case ClassElevator:
		return c.encodeElevator(action)
	}
	return nil, fmt.Errorf("%w: unknown class %s", ErrUnsupportedAction, key.Class)
}

// EncodeQuery builds a status query for one device, addressed like its
// commands. Devices answer with a status report.
func (c *Codec) EncodeQuery(key DeviceKey) ([]byte, error) {
	var sub byte
	switch key.Class {
	case ClassLight, ClassThermostat:
		if key.Index < 1 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidZone, key.Index)
		}
		base := c.opts.LightSubBase
		if key.Class == ClassThermostat {
			base = c.opts.ThermostatSubBase
		}
		var err error
		if sub, err = c.zoneSub(base, key.Index); err != nil {
			return nil, err
		}
	case ClassVentilation:
		sub = c.opts.VentilationSubAddr
	case ClassGasValve:
		sub = c.opts.GasValveSubAddr
	case ClassElevator:
		sub = c.opts.ElevatorSubAddr
	default:
		return nil, fmt.Errorf("%w: unknown class %s", ErrUnsupportedAction, key.Class)
	}
	return Build(key.Class.DeviceID(), sub, CmdQuery, nil), nil
}

func (c *Codec) zoneSub(base byte, index int) (byte, error) {
	sub := int(base) + index
	if sub > 0xFF {
		return 0, fmt.Errorf("%w: %d overflows sub-address base 0x%02X", ErrInvalidZone, index, base)
	}
	return byte(sub), nil
}

func onOffValue(action Action) (byte, bool) {
	switch action {
	case ActionOn:
		return valueOn, true
	case ActionOff:
		return valueOff, true
	}
	return 0, false
}

func unsupported(class DeviceClass, action Action) error {
	return fmt.Errorf("%w: %s %q", ErrUnsupportedAction, class, action)
}

func (c *Codec) encodeLight(key DeviceKey, action Action) ([]byte, error) {
	value, ok := onOffValue(action)
	if !ok {
		return nil, unsupported(key.Class, action)
	}
	sub, err := c.zoneSub(c.opts.LightSubBase, key.Index)
	if err != nil {
		return nil, err
	}
	return Build(DeviceLight, sub, CmdSetState, []byte{commandPrefix, value}), nil
}

func (c *Codec) encodeThermostat(key DeviceKey, action Action, p Params) ([]byte, error) {
	var cmd, value byte
	switch action {
	case ActionHVAC:
		cmd = CmdSetMode
		switch strings.ToLower(p.HVACMode) {
		case HVACHeat:
			value = valueOn
		case HVACOff:
			value = valueOff
		default:
			return nil, fmt.Errorf("%w: hvac mode %q", ErrInvalidParam, p.HVACMode)
		}
	case ActionTemp:
		cmd = CmdSetTemp
		t, ok := EncodeTemperature(p.Temperature)
		if !ok {
			return nil, fmt.Errorf("%w: temperature %v", ErrInvalidParam, p.Temperature)
		}
		value = t
	case ActionAway:
		cmd = CmdSetAway
		switch strings.ToLower(p.Preset) {
		case PresetAway:
			value = valueOn
		case PresetNone:
			value = valueOff
		case "":
			if p.On {
				value = valueOn
			}
		default:
			return nil, fmt.Errorf("%w: preset %q", ErrInvalidParam, p.Preset)
		}
	default:
		return nil, unsupported(key.Class, action)
	}

	sub, err := c.zoneSub(c.opts.ThermostatSubBase, key.Index)
	if err != nil {
		return nil, err
	}
	return Build(DeviceThermostat, sub, cmd, []byte{commandPrefix, value}), nil
}

func (c *Codec) encodeVentilation(action Action, p Params) ([]byte, error) {
	sub := c.opts.VentilationSubAddr
	table := c.opts.SpeedTable

	switch action {
	case ActionOn, ActionOff:
		value, _ := onOffValue(action)
		return Build(DeviceVentilation, sub, CmdSetState, []byte{commandPrefix, value}), nil

	case ActionSetSpeed:
		if p.Percentage < 0 || p.Percentage > 100 {
			return nil, fmt.Errorf("%w: percentage %d", ErrInvalidParam, p.Percentage)
		}
		if p.Percentage == 0 {
			return c.encodeVentilation(ActionOff, p)
		}
		level, ok := table.ForPercentage(p.Percentage)
		if !ok {
			return nil, fmt.Errorf("%w: percentage %d", ErrInvalidParam, p.Percentage)
		}
		return Build(DeviceVentilation, sub, CmdSetSpeed, []byte{commandPrefix, level.Code}), nil

	case ActionPreset:
		level, ok := table.ForPreset(strings.ToLower(p.Preset))
		if !ok {
			return nil, fmt.Errorf("%w: preset %q for table %s", ErrInvalidParam, p.Preset, table.Name())
		}
		return c.encodeVentilation(ActionSetSpeed, Params{Percentage: level.Percentage})
	}
	return nil, unsupported(ClassVentilation, action)
}

func (c *Codec) encodeElevator(action Action) ([]byte, error) {
	switch action {
	case ActionCall, ActionOn:
		return Build(DeviceElevator, c.opts.ElevatorSubAddr, CmdSetMode, []byte{commandPrefix, elevatorCall}), nil
	}
	return nil, unsupported(ClassElevator, action)
}
