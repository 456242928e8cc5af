// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/wallbus/internal/config"
	"github.com/Thermoquad/wallbus/internal/gateway"
	"github.com/Thermoquad/wallbus/internal/logging"
	"github.com/Thermoquad/wallbus/internal/mqtt"
	"github.com/Thermoquad/wallbus/pkg/wallpad"
)

var (
	mqttBroker       string
	mqttUsername     string
	mqttRoot         string
	noDiscovery      bool
	bridgeStatsEvery time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the bus gateway and publish devices over MQTT",
	Long: `Connect to the bus, publish every decoded device state to an MQTT broker
and turn set-topic messages into bus commands. Runs until interrupted.

Only devices listed in the config file are published. On connect the bridge
publishes Home Assistant discovery payloads (retained, QoS 1) and subscribes
to <root>/+/+/+/set and <root>/+/+/+/+/set.

The bus connection is re-established after a fixed delay whenever it drops.
Commands received while it is down are dropped and logged.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL (default from config, "+config.DefaultMQTTBroker+")")
	bridgeCmd.Flags().StringVar(&mqttUsername, "mqtt-username", "", "MQTT username")
	bridgeCmd.Flags().StringVar(&mqttRoot, "mqtt-root", "", "Root topic (default from config, "+config.DefaultMQTTRoot+")")
	bridgeCmd.Flags().BoolVar(&noDiscovery, "no-discovery", false, "Do not publish discovery payloads")
	bridgeCmd.Flags().DurationVar(&bridgeStatsEvery, "stats-interval", 0, "Log frame statistics at this interval (0 disables)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	if mqttBroker != "" {
		cfg.MQTT.Broker = mqttBroker
	}
	if mqttUsername != "" {
		cfg.MQTT.Username = mqttUsername
	}
	if mqttRoot != "" {
		cfg.MQTT.Root = mqttRoot
	}
	if noDiscovery {
		cfg.MQTT.DisableDiscovery = true
	}
	if len(cfg.Devices) == 0 {
		return errors.New("no devices configured: the bridge needs a config file with a devices section")
	}

	dial, err := newDialer()
	if err != nil {
		return err
	}
	codec, err := newCodec()
	if err != nil {
		return err
	}
	devices, err := mqttDevices(cfg.Devices)
	if err != nil {
		return err
	}

	if cfg.MQTT.Username != "" && cfg.MQTT.Password == "" {
		pw, err := GetPassword(config.MQTTPasswordEnvVar, "MQTT password")
		if err != nil {
			return err
		}
		cfg.MQTT.Password = pw
	}

	logger := logging.Named("bridge")
	ctx, stop := signalContext()
	defer stop()

	stats := wallpad.NewStatistics()

	// The bridge sends through the gateway and the gateway publishes through
	// the bridge, so the sender is bound after both exist.
	var gw *gateway.Gateway
	sender := senderFunc(func(key wallpad.DeviceKey, action wallpad.Action, params wallpad.Params) error {
		return gw.Send(key, action, params)
	})

	bridge := mqtt.NewBridge(sender, devices, mqtt.Options{
		Root:             cfg.MQTT.Root,
		DiscoveryRoot:    cfg.MQTT.DiscoveryRoot,
		DisableDiscovery: cfg.MQTT.DisableDiscovery,
		SpeedTable:       codec.Options().SpeedTable,
		Logger:           logging.Named("mqtt"),
	})

	gw = gateway.New(dial, codec, bridge,
		gateway.WithLogger(logging.Named("gateway")),
		gateway.WithReconnectDelay(cfg.ReconnectDelay),
		gateway.WithStatistics(stats),
	)

	fmt.Printf("Wallbus - MQTT Bridge\n")
	fmt.Printf("Broker: %s (root %q)\n", cfg.MQTT.Broker, cfg.MQTT.Root)
	fmt.Printf("Entities: %d\n", len(bridge.Entities()))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := bridge.Connect(ctx, mqtt.ClientConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}); err != nil {
		if errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	}

	if bridgeStatsEvery > 0 {
		go logStatistics(ctx.Done(), logger, stats, bridgeStatsEvery)
	}

	if err := gw.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}

	fmt.Print(stats.String())
	return nil
}

// senderFunc adapts a function to mqtt.Sender
type senderFunc func(wallpad.DeviceKey, wallpad.Action, wallpad.Params) error

func (f senderFunc) Send(key wallpad.DeviceKey, action wallpad.Action, params wallpad.Params) error {
	return f(key, action, params)
}

func logStatistics(done <-chan struct{}, logger *zap.Logger, stats *wallpad.Statistics, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := stats.Snapshot()
			logger.Info("Statistics",
				zap.Uint64("frames", snap.TotalFrames),
				zap.Uint64("states", snap.DecodedStates),
				zap.Uint64("noise_bytes", snap.NoiseBytes),
				zap.Uint64("anomalies", snap.MalformedFrames+snap.AnomalousValues),
				zap.Uint64("commands_sent", snap.CommandsSent),
				zap.Uint64("commands_dropped", snap.CommandsDropped),
				zap.Float64("frame_rate", snap.FrameRate))
		}
	}
}
