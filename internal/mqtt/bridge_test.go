// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

// doneToken is an already completed paho token
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeClient struct {
	mu         sync.Mutex
	published  []published
	subscribed map[string]paho.MessageHandler
	publishErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	c.published = append(c.published, published{topic, qos, retained, s})
	return doneToken{c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[topic] = callback
	return doneToken{}
}

func (c *fakeClient) find(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].topic == topic {
			return c.published[i], true
		}
	}
	return published{}, false
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type sentCommand struct {
	key    wallpad.DeviceKey
	action wallpad.Action
	params wallpad.Params
}

type fakeSender struct {
	sent []sentCommand
	err  error
}

func (s *fakeSender) Send(key wallpad.DeviceKey, action wallpad.Action, params wallpad.Params) error {
	s.sent = append(s.sent, sentCommand{key, action, params})
	return s.err
}

var testDevices = []Device{
	{Class: wallpad.ClassLight, Name: "Light", Rooms: []Room{{"Living", 1}, {"Kitchen", 3}}},
	{Class: wallpad.ClassThermostat, Name: "Heating", Rooms: []Room{{"Bedroom", 2}}},
	{Class: wallpad.ClassVentilation, Name: "Fan"},
	{Class: wallpad.ClassGasValve, Name: "Gas"},
	{Class: wallpad.ClassElevator, Name: "Elevator"},
}

func newTestBridge(t *testing.T) (*Bridge, *fakeClient, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	b := NewBridge(sender, testDevices, Options{
		Root:          "navien",
		DiscoveryRoot: "homeassistant",
		SpeedTable:    wallpad.ThreeLevelAuto,
	})
	client := newFakeClient()
	if err := b.Start(client); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b, client, sender
}

func TestEntities(t *testing.T) {
	entities := Entities(testDevices)
	if len(entities) != 6 {
		t.Fatalf("got %d entities, want 6", len(entities))
	}
	kitchen := entities[1]
	if kitchen.Key != wallpad.Key(wallpad.ClassLight, 3) || kitchen.Name != "KitchenLight" {
		t.Errorf("kitchen = %+v", kitchen)
	}
	if got := kitchen.AttributeTopic("navien", AttrPower); got != "navien/light/KitchenLight/power" {
		t.Errorf("AttributeTopic = %q", got)
	}
	if got := entities[4].DiscoveryTopic("homeassistant"); got != "homeassistant/switch/gasvalve_1/config" {
		t.Errorf("DiscoveryTopic = %q", got)
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  commandTopic
		ok    bool
	}{
		{"navien/light/LivingLight/power/set", commandTopic{"light", "LivingLight", "power"}, true},
		{"navien/fan/Fan/Unit/preset/set", commandTopic{"fan", "Fan/Unit", "preset"}, true},
		{"navien/light/LivingLight/power", commandTopic{}, false},
		{"other/light/LivingLight/power/set", commandTopic{}, false},
		{"navien/light/power/set", commandTopic{}, false},
	}
	for _, tt := range tests {
		got, ok := parseCommandTopic("navien", tt.topic)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseCommandTopic(%q) = %+v, %v; want %+v, %v", tt.topic, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBridge_StartPublishesDiscovery(t *testing.T) {
	_, client, _ := newTestBridge(t)

	avail, ok := client.find("navien/status")
	if !ok || avail.payload != PayloadOnline || !avail.retained {
		t.Errorf("availability = %+v", avail)
	}

	disc, ok := client.find("homeassistant/climate/thermostat_2/config")
	if !ok {
		t.Fatal("thermostat discovery not published")
	}
	if disc.qos != 1 || !disc.retained {
		t.Errorf("discovery qos=%d retained=%v, want 1 and true", disc.qos, disc.retained)
	}

	var cfg map[string]any
	if err := json.Unmarshal([]byte(disc.payload), &cfg); err != nil {
		t.Fatalf("discovery payload: %v", err)
	}
	want := map[string]any{
		"~":                         "navien/climate/BedroomHeating",
		"name":                      "BedroomHeating",
		"uniq_id":                   "thermostat_2",
		"mode_command_topic":        "~/power/set",
		"temperature_state_topic":   "~/targettemp",
		"current_temperature_topic": "~/currenttemp",
	}
	for k, v := range want {
		if cfg[k] != v {
			t.Errorf("discovery[%q] = %v, want %v", k, cfg[k], v)
		}
	}

	fan, _ := client.find("homeassistant/fan/ventilation_1/config")
	if err := json.Unmarshal([]byte(fan.payload), &cfg); err != nil {
		t.Fatalf("fan discovery: %v", err)
	}
	if presets, _ := cfg["preset_modes"].([]any); len(presets) != 4 {
		t.Errorf("preset_modes = %v, want 4 presets with auto", cfg["preset_modes"])
	}

	for _, filter := range []string{"navien/+/+/+/set", "navien/+/+/+/+/set"} {
		if _, ok := client.subscribed[filter]; !ok {
			t.Errorf("not subscribed to %s", filter)
		}
	}
}

func TestBridge_DiscoveryDisabled(t *testing.T) {
	b := NewBridge(&fakeSender{}, testDevices, Options{Root: "navien", DiscoveryRoot: "ha", DisableDiscovery: true})
	client := newFakeClient()
	if err := b.Start(client); err != nil {
		t.Fatal(err)
	}
	if len(client.published) != 1 {
		t.Errorf("published %d messages, want availability only", len(client.published))
	}
}

func TestBridge_StartPublishError(t *testing.T) {
	b := NewBridge(&fakeSender{}, testDevices, Options{Root: "navien"})
	client := newFakeClient()
	client.publishErr = errors.New("broker gone")
	if err := b.Start(client); err == nil {
		t.Error("Start() should fail when publish fails")
	}
}

func TestMillis(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want uint
	}{
		{disconnectQuiesce, 250},
		{time.Second, 1000},
		{1500 * time.Microsecond, 1},
		{-time.Second, 0},
	}
	for _, tt := range tests {
		if got := millis(tt.d); got != tt.want {
			t.Errorf("millis(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestStateAttributes_FanOffResetsPreset(t *testing.T) {
	tests := []struct {
		name  string
		value wallpad.VentilationValue
		want  string
	}{
		{"on", wallpad.VentilationValue{On: true, Percentage: 100, Preset: wallpad.PresetHigh}, wallpad.PresetHigh},
		{"off", wallpad.VentilationValue{On: false, Percentage: 0}, PayloadResetPreset},
		{"off with stale preset", wallpad.VentilationValue{On: false, Preset: wallpad.PresetLow}, PayloadResetPreset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := StateAttributes(tt.value)
			if got, ok := attrs[AttrPreset]; !ok || got != tt.want {
				t.Errorf("preset = %q (present %v), want %q", got, ok, tt.want)
			}
		})
	}
}

func TestBridge_FanOffClearsPreset(t *testing.T) {
	b, client, _ := newTestBridge(t)
	key := wallpad.Key(wallpad.ClassVentilation, 1)

	b.HandleState(wallpad.DeviceState{Key: key, Value: wallpad.VentilationValue{On: true, Percentage: 66, Preset: wallpad.PresetMedium}})
	b.HandleState(wallpad.DeviceState{Key: key, Value: wallpad.VentilationValue{On: false}})

	got, ok := client.find("navien/fan/Fan/preset")
	if !ok || got.payload != PayloadResetPreset {
		t.Errorf("preset after power off = %+v, want %q", got, PayloadResetPreset)
	}
}

func TestBridge_HandleState(t *testing.T) {
	b, client, _ := newTestBridge(t)

	b.HandleState(wallpad.DeviceState{Key: wallpad.Key(wallpad.ClassLight, 3), Value: wallpad.OnOff(true)})
	b.HandleState(wallpad.DeviceState{
		Key:   wallpad.Key(wallpad.ClassThermostat, 2),
		Value: wallpad.ThermostatValue{HVACMode: wallpad.HVACHeat, Preset: wallpad.PresetAway, CurrentTemperature: 21.5, TargetTemperature: 24},
	})
	b.HandleState(wallpad.DeviceState{
		Key:   wallpad.Key(wallpad.ClassVentilation, 1),
		Value: wallpad.VentilationValue{On: true, Percentage: 66, Preset: wallpad.PresetMedium},
	})
	// zone 2 of the light is not configured
	b.HandleState(wallpad.DeviceState{Key: wallpad.Key(wallpad.ClassLight, 2), Value: wallpad.OnOff(true)})

	want := map[string]string{
		"navien/light/KitchenLight/power":          "ON",
		"navien/climate/BedroomHeating/power":       "heat",
		"navien/climate/BedroomHeating/away_mode":   "ON",
		"navien/climate/BedroomHeating/currenttemp": "21.5",
		"navien/climate/BedroomHeating/targettemp":  "24",
		"navien/fan/Fan/power":                      "ON",
		"navien/fan/Fan/percentage":                 "66",
		"navien/fan/Fan/preset":                     "medium",
	}
	for topic, payload := range want {
		got, ok := client.find(topic)
		if !ok {
			t.Errorf("%s not published", topic)
			continue
		}
		if got.payload != payload || got.retained || got.qos != 0 {
			t.Errorf("%s = %+v, want %q qos 0", topic, got, payload)
		}
	}
	if _, ok := client.find("navien/light/2/power"); ok {
		t.Error("unconfigured zone should not be published")
	}
}

func TestBridge_HandleCommand(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		want    sentCommand
	}{
		{"navien/light/KitchenLight/power/set", "ON",
			sentCommand{wallpad.Key(wallpad.ClassLight, 3), wallpad.ActionOn, wallpad.Params{}}},
		{"navien/climate/BedroomHeating/power/set", "heat",
			sentCommand{wallpad.Key(wallpad.ClassThermostat, 2), wallpad.ActionHVAC, wallpad.Params{HVACMode: "heat"}}},
		{"navien/climate/BedroomHeating/targettemp/set", "23.5",
			sentCommand{wallpad.Key(wallpad.ClassThermostat, 2), wallpad.ActionTemp, wallpad.Params{Temperature: 23.5}}},
		{"navien/climate/BedroomHeating/away_mode/set", "OFF",
			sentCommand{wallpad.Key(wallpad.ClassThermostat, 2), wallpad.ActionAway, wallpad.Params{Preset: wallpad.PresetNone}}},
		{"navien/fan/Fan/percentage/set", "0",
			sentCommand{wallpad.Key(wallpad.ClassVentilation, 1), wallpad.ActionOff, wallpad.Params{}}},
		{"navien/fan/Fan/percentage/set", "70",
			sentCommand{wallpad.Key(wallpad.ClassVentilation, 1), wallpad.ActionSetSpeed, wallpad.Params{Percentage: 70}}},
		{"navien/fan/Fan/preset/set", "High",
			sentCommand{wallpad.Key(wallpad.ClassVentilation, 1), wallpad.ActionPreset, wallpad.Params{Preset: "high"}}},
		{"navien/switch/Gas/power/set", "ON",
			sentCommand{wallpad.Key(wallpad.ClassGasValve, 1), wallpad.ActionOff, wallpad.Params{}}},
		{"navien/switch/Elevator/power/set", "ON",
			sentCommand{wallpad.Key(wallpad.ClassElevator, 1), wallpad.ActionCall, wallpad.Params{}}},
	}

	for _, tt := range tests {
		t.Run(tt.topic+"="+tt.payload, func(t *testing.T) {
			b, _, sender := newTestBridge(t)
			if err := b.HandleCommand(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("HandleCommand() error = %v", err)
			}
			if len(sender.sent) != 1 || sender.sent[0] != tt.want {
				t.Errorf("sent %+v, want %+v", sender.sent, tt.want)
			}
		})
	}
}

func TestBridge_HandleCommandErrors(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		want    error
	}{
		{"navien/light/GarageLight/power/set", "ON", ErrUnknownEntity},
		{"navien/light/KitchenLight/brightness/set", "50", ErrUnknownAttribute},
		{"navien/light/KitchenLight/power/set", "maybe", ErrInvalidPayload},
		{"navien/climate/BedroomHeating/targettemp/set", "warm", ErrInvalidPayload},
		{"navien/switch/Elevator/power/set", "OFF", ErrInvalidPayload},
	}
	for _, tt := range tests {
		b, _, sender := newTestBridge(t)
		err := b.HandleCommand(tt.topic, []byte(tt.payload))
		if !errors.Is(err, tt.want) {
			t.Errorf("%s %q: error = %v, want %v", tt.topic, tt.payload, err, tt.want)
		}
		if len(sender.sent) != 0 {
			t.Errorf("%s: command sent despite error", tt.topic)
		}
	}
}

func TestBridge_MessageCallback(t *testing.T) {
	_, client, sender := newTestBridge(t)
	sender.err = errors.New("not connected")

	handler := client.subscribed["navien/+/+/+/set"]
	handler(nil, fakeMessage{topic: "navien/switch/Gas/power/set", payload: []byte("OFF")})

	if len(sender.sent) != 1 || sender.sent[0].action != wallpad.ActionOff {
		t.Errorf("sent = %+v", sender.sent)
	}
}
