// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"encoding/json"

	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// discoveryDevice is the device block of a discovery payload
type discoveryDevice struct {
	Identifiers string `json:"identifiers"`
	Name        string `json:"name"`
}

// DiscoveryPayload builds the discovery config for one entity. State
// topics are relative to "~"; availability is absolute.
func DiscoveryPayload(e Entity, root string, table wallpad.SpeedTable) ([]byte, error) {
	uid := e.Key.UniqueID()
	cfg := map[string]any{
		"~":                  e.StateTopic(root),
		"name":               e.Name,
		"uniq_id":            uid,
		"availability_topic": root + "/status",
		"device":             discoveryDevice{Identifiers: uid, Name: e.Name},
	}

	state := func(key, attr string) { cfg[key] = "~/" + attr }
	command := func(key, attr string) { cfg[key] = "~/" + attr + "/set" }

	switch e.Key.Class {
	case wallpad.ClassThermostat:
		state("mode_state_topic", AttrPower)
		command("mode_command_topic", AttrPower)
		state("away_mode_state_topic", AttrAwayMode)
		command("away_mode_command_topic", AttrAwayMode)
		state("current_temperature_topic", AttrCurrentTemp)
		state("temperature_state_topic", AttrTargetTemp)
		command("temperature_command_topic", AttrTargetTemp)
		cfg["modes"] = []string{wallpad.HVACOff, wallpad.HVACHeat}
		cfg["min_temp"] = wallpad.MinPlausibleTemp
		cfg["max_temp"] = wallpad.MaxPlausibleTemp
		cfg["temp_step"] = 0.5
	case wallpad.ClassVentilation:
		state("state_topic", AttrPower)
		command("command_topic", AttrPower)
		state("percentage_state_topic", AttrPercentage)
		command("percentage_command_topic", AttrPercentage)
		state("preset_mode_state_topic", AttrPreset)
		command("preset_mode_command_topic", AttrPreset)
		cfg["preset_modes"] = table.Presets()
	default:
		state("state_topic", AttrPower)
		command("command_topic", AttrPower)
	}

	return json.Marshal(cfg)
}
