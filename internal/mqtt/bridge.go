// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqtt presents decoded device state on an MQTT broker with Home
// Assistant discovery, and turns set-topic messages back into bus commands.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

const (
	tokenTimeout      = 5 * time.Second
	disconnectQuiesce = 250 * time.Millisecond
	retryInterval     = 5 * time.Second
)

// Errors returned while translating set-topic messages
var (
	ErrUnknownEntity    = errors.New("unknown entity")
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// Client is the part of the paho client the bridge uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Sender writes device commands to the bus
type Sender interface {
	Send(key wallpad.DeviceKey, action wallpad.Action, params wallpad.Params) error
}

// Options configures a Bridge
type Options struct {
	Root             string
	DiscoveryRoot    string
	DisableDiscovery bool
	SpeedTable       wallpad.SpeedTable
	Logger           *zap.Logger
}

// Bridge maps decoded states to MQTT topics and set topics to commands.
// Only configured devices are presented.
type Bridge struct {
	opts    Options
	sender  Sender
	logger  *zap.Logger
	byKey   map[wallpad.DeviceKey]Entity
	byTopic map[string]Entity // component/name

	mu     sync.RWMutex
	client Client
}

// NewBridge creates a bridge for the configured devices
func NewBridge(sender Sender, devices []Device, opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SpeedTable.IsEmpty() {
		opts.SpeedTable = wallpad.ThreeLevel
	}
	b := &Bridge{
		opts:    opts,
		sender:  sender,
		logger:  opts.Logger,
		byKey:   make(map[wallpad.DeviceKey]Entity),
		byTopic: make(map[string]Entity),
	}
	for _, e := range Entities(devices) {
		b.byKey[e.Key] = e
		b.byTopic[e.Component+"/"+e.Name] = e
	}
	return b
}

// Entities returns the presented entities
func (b *Bridge) Entities() []Entity {
	out := make([]Entity, 0, len(b.byKey))
	for _, e := range b.byKey {
		out = append(out, e)
	}
	return out
}

// AvailabilityTopic carries online/offline for the whole bridge
func (b *Bridge) AvailabilityTopic() string {
	return b.opts.Root + "/status"
}

// ClientConfig holds broker connection settings
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker and blocks until the first connection succeeds
// or ctx is cancelled. Discovery and subscriptions are renewed on every
// reconnect.
func (b *Bridge) Connect(ctx context.Context, cfg ClientConfig) error {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetWill(b.AvailabilityTopic(), PayloadOffline, 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			b.logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
			if err := b.Start(c); err != nil {
				b.logger.Error("MQTT setup failed", zap.Error(err))
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			b.logger.Warn("MQTT disconnected, reconnecting", zap.Error(err))
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to %s: %w", cfg.Broker, err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}

	context.AfterFunc(ctx, func() { b.close(client) })
	return nil
}

func (b *Bridge) close(client paho.Client) {
	wait(client.Publish(b.AvailabilityTopic(), 1, true, PayloadOffline))
	client.Disconnect(millis(disconnectQuiesce))
	b.logger.Info("MQTT closed")
}

// Start announces the bridge on a connected client: availability,
// discovery and command subscriptions
func (b *Bridge) Start(c Client) error {
	b.mu.Lock()
	b.client = c
	b.mu.Unlock()

	if err := wait(c.Publish(b.AvailabilityTopic(), 1, true, PayloadOnline)); err != nil {
		return fmt.Errorf("publish availability: %w", err)
	}
	if !b.opts.DisableDiscovery {
		if err := b.publishDiscovery(c); err != nil {
			return err
		}
	}

	root := b.opts.Root
	for _, filter := range []string{root + "/+/+/+/set", root + "/+/+/+/+/set"} {
		if err := wait(c.Subscribe(filter, 0, b.onMessage)); err != nil {
			return fmt.Errorf("subscribe %s: %w", filter, err)
		}
	}
	return nil
}

func (b *Bridge) publishDiscovery(c Client) error {
	for _, e := range b.byKey {
		payload, err := DiscoveryPayload(e, b.opts.Root, b.opts.SpeedTable)
		if err != nil {
			return fmt.Errorf("discovery for %s: %w", e.Key, err)
		}
		topic := e.DiscoveryTopic(b.opts.DiscoveryRoot)
		if err := wait(c.Publish(topic, 1, true, payload)); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		b.logger.Debug("Discovery published", zap.String("topic", topic))
	}
	return nil
}

// HandleState publishes one decoded state. States of devices that are not
// configured are dropped.
func (b *Bridge) HandleState(s wallpad.DeviceState) {
	e, ok := b.byKey[s.Key]
	if !ok {
		return
	}

	b.mu.RLock()
	c := b.client
	b.mu.RUnlock()
	if c == nil {
		return
	}

	for attr, value := range StateAttributes(s.Value) {
		c.Publish(e.AttributeTopic(b.opts.Root, attr), 0, false, value)
	}
}

// StateAttributes renders a decoded value as attribute payloads
func StateAttributes(v wallpad.Value) map[string]string {
	switch v := v.(type) {
	case wallpad.OnOff:
		return map[string]string{AttrPower: onOffPayload(bool(v))}
	case wallpad.ThermostatValue:
		return map[string]string{
			AttrPower:       v.HVACMode,
			AttrAwayMode:    onOffPayload(v.Preset == wallpad.PresetAway),
			AttrCurrentTemp: formatTemperature(v.CurrentTemperature),
			AttrTargetTemp:  formatTemperature(v.TargetTemperature),
		}
	case wallpad.VentilationValue:
		preset := v.Preset
		if !v.On || preset == "" {
			preset = PayloadResetPreset
		}
		return map[string]string{
			AttrPower:      onOffPayload(v.On),
			AttrPercentage: strconv.Itoa(v.Percentage),
			AttrPreset:     preset,
		}
	}
	return nil
}

// millis converts d to the whole milliseconds paho takes for quiesce times
func millis(d time.Duration) uint {
	return uint(max(d, 0) / time.Millisecond)
}

func onOffPayload(on bool) string {
	if on {
		return PayloadOn
	}
	return PayloadOff
}

func formatTemperature(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

func (b *Bridge) onMessage(_ paho.Client, msg paho.Message) {
	if err := b.HandleCommand(msg.Topic(), msg.Payload()); err != nil {
		b.logger.Error("Command processing failed",
			zap.String("topic", msg.Topic()),
			zap.ByteString("payload", msg.Payload()),
			zap.Error(err))
	}
}

// HandleCommand translates one set-topic message and sends it to the bus
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	ct, ok := parseCommandTopic(b.opts.Root, topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, topic)
	}
	e, ok := b.byTopic[ct.component+"/"+ct.name]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownEntity, ct.component, ct.name)
	}

	action, params, err := Translate(e.Key.Class, ct.attr, strings.TrimSpace(string(payload)))
	if err != nil {
		return fmt.Errorf("%s %s: %w", e.Name, ct.attr, err)
	}

	b.logger.Info("Command received",
		zap.String("entity", e.Name),
		zap.String("attribute", ct.attr),
		zap.String("action", string(action)))
	return b.sender.Send(e.Key, action, params)
}

// Translate maps an attribute write to a device action
func Translate(class wallpad.DeviceClass, attr, value string) (wallpad.Action, wallpad.Params, error) {
	var p wallpad.Params

	switch class {
	case wallpad.ClassLight:
		if attr == AttrPower {
			return onOffAction(value)
		}

	case wallpad.ClassGasValve:
		// Any write closes the valve
		if attr == AttrPower {
			return wallpad.ActionOff, p, nil
		}

	case wallpad.ClassElevator:
		if attr == AttrPower {
			if !strings.EqualFold(value, PayloadOn) {
				return "", p, fmt.Errorf("%w: elevator only accepts %s", ErrInvalidPayload, PayloadOn)
			}
			return wallpad.ActionCall, p, nil
		}

	case wallpad.ClassThermostat:
		switch attr {
		case AttrPower:
			p.HVACMode = strings.ToLower(value)
			return wallpad.ActionHVAC, p, nil
		case AttrAwayMode:
			action, _, err := onOffAction(value)
			if err != nil {
				return "", p, err
			}
			p.Preset = wallpad.PresetNone
			if action == wallpad.ActionOn {
				p.Preset = wallpad.PresetAway
			}
			return wallpad.ActionAway, p, nil
		case AttrTargetTemp:
			t, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return "", p, fmt.Errorf("%w: %q", ErrInvalidPayload, value)
			}
			p.Temperature = t
			return wallpad.ActionTemp, p, nil
		}

	case wallpad.ClassVentilation:
		switch attr {
		case AttrPower:
			return onOffAction(value)
		case AttrPercentage:
			pct, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return "", p, fmt.Errorf("%w: %q", ErrInvalidPayload, value)
			}
			if pct == 0 {
				return wallpad.ActionOff, p, nil
			}
			p.Percentage = int(pct)
			return wallpad.ActionSetSpeed, p, nil
		case AttrPreset:
			p.Preset = strings.ToLower(value)
			return wallpad.ActionPreset, p, nil
		}
	}

	return "", p, fmt.Errorf("%w: %s", ErrUnknownAttribute, attr)
}

func onOffAction(value string) (wallpad.Action, wallpad.Params, error) {
	switch strings.ToUpper(value) {
	case PayloadOn:
		return wallpad.ActionOn, wallpad.Params{}, nil
	case PayloadOff:
		return wallpad.ActionOff, wallpad.Params{}, nil
	}
	return "", wallpad.Params{}, fmt.Errorf("%w: %q", ErrInvalidPayload, value)
}

// wait blocks on a token with a timeout
func wait(t paho.Token) error {
	if !t.WaitTimeout(tokenTimeout) {
		return errors.New("timed out waiting for broker")
	}
	return t.Error()
}
