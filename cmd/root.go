// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/wallbus/internal/config"
	"github.com/Thermoquad/wallbus/internal/logging"
)

var (
	configPath string
	logLevel   string

	// TCP bridge flags
	bridgeHost string
	tcpPort    int

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Codec calibration flags
	tempOrder  string
	speedTable string

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "wallbus",
	Short: "Wall-pad bus gateway and protocol analyzer",
	Long: `Wallbus - decode, monitor and control a wall-pad RS-485 bus.

Frames start with 0xF7 and carry an XOR and an ADD checksum. Wallbus extracts
them from the raw byte stream, decodes lighting, heating, ventilation, gas
valve and elevator status, and encodes commands back onto the bus.

Connection modes:
  TCP bridge: --host 192.168.0.50 [--tcp-port 8888]
  Serial:     --port /dev/ttyUSB0 [--baud 9600]
  WebSocket:  --url ws://host/path [--username user]

Settings can also come from a YAML file given with --config; flags override
the file. Passwords are read from WALLBUS_WS_PASSWORD and
WALLBUS_MQTT_PASSWORD, or prompted interactively if not set. There is
intentionally no --password flag, to keep credentials out of shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: silent)")

	// TCP bridge flags
	rootCmd.PersistentFlags().StringVarP(&bridgeHost, "host", "H", "", "Serial-to-TCP bridge host")
	rootCmd.PersistentFlags().IntVar(&tcpPort, "tcp-port", config.DefaultBridgePort, "Serial-to-TCP bridge port")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", config.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Codec calibration flags
	rootCmd.PersistentFlags().StringVar(&tempOrder, "temp-order", "", "Thermostat byte order: current_first or target_first")
	rootCmd.PersistentFlags().StringVar(&speedTable, "speed-table", "", "Ventilation speed table: three_level or three_level_auto")
}

// loadConfig reads the config file, if any, applies flag overrides and
// initializes logging
func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()
	// A transport given on the command line replaces the configured one
	if bridgeHost != "" || portName != "" || wsURL != "" {
		cfg.Bridge.Host = bridgeHost
		cfg.Bridge.Serial = portName
		cfg.Bridge.WebSocket.URL = wsURL
	}
	if flags.Changed("tcp-port") {
		cfg.Bridge.Port = tcpPort
	}
	if flags.Changed("baud") {
		cfg.Bridge.Baud = baudRate
	}
	if wsUsername != "" {
		cfg.Bridge.WebSocket.Username = wsUsername
	}
	if wsNoSSLVerify {
		cfg.Bridge.WebSocket.InsecureSkipVerify = true
	}
	if tempOrder != "" {
		cfg.Codec.TemperatureOrder = tempOrder
	}
	if speedTable != "" {
		cfg.Codec.SpeedTable = speedTable
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if err := logging.Initialize(cfg.Log.Level); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitError makes Execute's caller exit with a specific code
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
