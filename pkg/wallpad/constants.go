// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wallpad implements the wall-pad control bus protocol.
//
// Frames on the bus have no delimiter other than a single sync byte and an
// embedded length field:
//
//	F7 | device | sub | command | len | data[len] | xor | add
//
// This package provides checksum generation and validation, a resynchronizing
// frame reassembler for raw byte streams, a device codec that turns status
// frames into typed device state and device actions into command frames, and
// helpers for formatting and validating frames.
package wallpad

// Protocol framing
const (
	SyncByte = 0xF7

	HeaderSize   = 5 // sync, device, sub, command, length
	TrailerSize  = 2 // xor, add
	MinFrameSize = HeaderSize + TrailerSize

	// MaxDataLength keeps the declared length byte below 256-7
	MaxDataLength = 248
	MaxFrameSize  = 255 + MinFrameSize

	// MaxBufferSize bounds the reassembler under sustained noise
	MaxBufferSize = 4096
)

// Header offsets
const (
	offsetSync    = 0
	offsetDevice  = 1
	offsetSub     = 2
	offsetCommand = 3
	offsetLength  = 4
)

// Device ids
const (
	DeviceLight       = 0x0E
	DeviceGasValve    = 0x12
	DeviceVentilation = 0x32
	DeviceElevator    = 0x33
	DeviceThermostat  = 0x36
)

// Command ids
const (
	CmdQuery        = 0x01
	CmdSetState     = 0x41 // light on/off, ventilation power, gas close
	CmdSetSpeed     = 0x42 // ventilation speed
	CmdSetMode      = 0x43 // thermostat heat/off, elevator call
	CmdSetTemp      = 0x44
	CmdSetAway      = 0x45
	CmdStatusReport = 0x81
)

// Payload values
const (
	valueOn        = 0x01
	valueOff       = 0x00
	gasClosed      = 0x04
	elevatorActive = 0x44
	elevatorCall   = 0x10
	commandPrefix  = 0x01
)

// Default sub-address bases. Zoned devices add their 1-based zone index.
const (
	DefaultLightSubBase       = 0x10
	DefaultThermostatSubBase  = 0x10
	DefaultVentilationSubAddr = 0x01
	DefaultGasValveSubAddr    = 0x01
	DefaultElevatorSubAddr    = 0x01
)

// Thermostat status layout
const (
	thermostatPowerMask = 1
	thermostatAwayMask  = 2
	thermostatTempStart = 5
)
