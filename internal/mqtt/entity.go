// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"strings"

	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// Components
const (
	ComponentLight   = "light"
	ComponentClimate = "climate"
	ComponentFan     = "fan"
	ComponentSwitch  = "switch"
)

// Attributes
const (
	AttrPower       = "power"
	AttrAwayMode    = "away_mode"
	AttrCurrentTemp = "currenttemp"
	AttrTargetTemp  = "targettemp"
	AttrPercentage  = "percentage"
	AttrPreset      = "preset"
)

// Payload values
const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	// PayloadResetPreset clears the fan preset in Home Assistant
	PayloadResetPreset = "None"
)

// Device is one configured device class with its presentation names
type Device struct {
	Class wallpad.DeviceClass
	Name  string
	Rooms []Room
}

// Room names one zone of a zoned device
type Room struct {
	Name string
	Zone int
}

// Entity is one presented device: a single device or one room of a zoned
// device
type Entity struct {
	Key       wallpad.DeviceKey
	Component string
	Name      string // topic segment: room name + device name for zones
	Device    string
}

// Component maps a device class to its presentation component
func Component(class wallpad.DeviceClass) string {
	switch class {
	case wallpad.ClassLight:
		return ComponentLight
	case wallpad.ClassThermostat:
		return ComponentClimate
	case wallpad.ClassVentilation:
		return ComponentFan
	default:
		return ComponentSwitch
	}
}

// Entities expands configured devices into presented entities. Zoned
// devices produce one entity per room.
func Entities(devices []Device) []Entity {
	var out []Entity
	for _, d := range devices {
		component := Component(d.Class)
		if !d.Class.Zoned() {
			out = append(out, Entity{
				Key:       wallpad.Key(d.Class, 1),
				Component: component,
				Name:      d.Name,
				Device:    d.Name,
			})
			continue
		}
		for _, r := range d.Rooms {
			out = append(out, Entity{
				Key:       wallpad.Key(d.Class, r.Zone),
				Component: component,
				Name:      r.Name + d.Name,
				Device:    d.Name,
			})
		}
	}
	return out
}

// StateTopic returns the base topic of an entity under root
func (e Entity) StateTopic(root string) string {
	return root + "/" + e.Component + "/" + e.Name
}

// AttributeTopic returns the topic carrying one attribute
func (e Entity) AttributeTopic(root, attr string) string {
	return e.StateTopic(root) + "/" + attr
}

// DiscoveryTopic returns the discovery config topic of an entity
func (e Entity) DiscoveryTopic(discoveryRoot string) string {
	return discoveryRoot + "/" + e.Component + "/" + e.Key.UniqueID() + "/config"
}

// commandTopic is a parsed <root>/<component>/<name>/<attr>/set topic
type commandTopic struct {
	component string
	name      string
	attr      string
}

// parseCommandTopic splits a set topic. The name may span several
// segments.
func parseCommandTopic(root, topic string) (commandTopic, bool) {
	rest, ok := strings.CutPrefix(topic, root+"/")
	if !ok {
		return commandTopic{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 4 || parts[len(parts)-1] != "set" {
		return commandTopic{}, false
	}
	ct := commandTopic{
		component: parts[0],
		name:      strings.Join(parts[1:len(parts)-2], "/"),
		attr:      parts[len(parts)-2],
	}
	if ct.component == "" || ct.name == "" || ct.attr == "" {
		return commandTopic{}, false
	}
	return ct, true
}
