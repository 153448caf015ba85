package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config, err := LoadConfig(WithDefaults())
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if config.BindAddress != "0.0.0.0:8080" {
			t.Errorf("BindAddress = %q", config.BindAddress)
		}
		if config.SerialPort != "/dev/ttyUSB0" {
			t.Errorf("SerialPort = %q", config.SerialPort)
		}
		if config.BaudRate != 115200 {
			t.Errorf("BaudRate = %d", config.BaudRate)
		}
		if config.LogLevel != "info" {
			t.Errorf("LogLevel = %q", config.LogLevel)
		}
		if config.MQTTTopicSend != "sms/send" || config.MQTTTopicRecv != "sms/recv" {
			t.Errorf("MQTT topics = %q, %q", config.MQTTTopicSend, config.MQTTTopicRecv)
		}
		if config.RatePerMin != 30 || config.MaxRetries != 3 || config.InboxPollSeconds != 15 {
			t.Errorf("limits = %d, %d, %d", config.RatePerMin, config.MaxRetries, config.InboxPollSeconds)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfigFile(t, "serial_port: /dev/ttyS7\nrate_per_min: 5\nmqtt_broker: tcp://broker:1883\n")

		config, err := LoadConfig(WithDefaults(), WithFile(path))
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if config.SerialPort != "/dev/ttyS7" {
			t.Errorf("SerialPort = %q", config.SerialPort)
		}
		if config.RatePerMin != 5 {
			t.Errorf("RatePerMin = %d", config.RatePerMin)
		}
		if config.MQTTBroker != "tcp://broker:1883" {
			t.Errorf("MQTTBroker = %q", config.MQTTBroker)
		}
		// Fields absent from the file keep their defaults.
		if config.BindAddress != "0.0.0.0:8080" {
			t.Errorf("BindAddress = %q", config.BindAddress)
		}
	})

	t.Run("empty file path is a no-op", func(t *testing.T) {
		config, err := LoadConfig(WithDefaults(), WithFile(""))
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if config.SerialPort != "/dev/ttyUSB0" {
			t.Errorf("SerialPort = %q", config.SerialPort)
		}
	})

	t.Run("unreadable file is an error", func(t *testing.T) {
		if _, err := LoadConfig(WithDefaults(), WithFile("/does/not/exist.yaml")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := writeConfigFile(t, "serial_port: [broken\n")
		if _, err := LoadConfig(WithDefaults(), WithFile(path)); err == nil {
			t.Error("expected an error for malformed YAML")
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfigFile(t, "serial_port: /dev/ttyS7\nbaud_rate: 19200\n")
		t.Setenv("SERIAL_PORT", "/dev/ttyACM0")
		t.Setenv("BAUD_RATE", "9600")
		t.Setenv("SIM_PIN", "1234")

		config, err := LoadConfig(WithDefaults(), WithFile(path), WithEnv())
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if config.SerialPort != "/dev/ttyACM0" {
			t.Errorf("SerialPort = %q", config.SerialPort)
		}
		if config.BaudRate != 9600 {
			t.Errorf("BaudRate = %d", config.BaudRate)
		}
		if config.SimPIN != "1234" {
			t.Errorf("SimPIN = %q", config.SimPIN)
		}
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("BIND_ADDRESS", "127.0.0.1:9999")
		t.Setenv("MAX_RETRIES", "7")

		fSet := flag.NewFlagSet("test", flag.ContinueOnError)
		fSet.String("bind-address", "0.0.0.0:8080", "")
		fSet.Int("max-retries", 3, "")
		if err := fSet.Parse([]string{"-bind-address", "127.0.0.1:8081"}); err != nil {
			t.Fatalf("parse flags: %v", err)
		}

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fSet))
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if config.BindAddress != "127.0.0.1:8081" {
			t.Errorf("BindAddress = %q", config.BindAddress)
		}
		// Unset flags do not clobber lower layers.
		if config.MaxRetries != 7 {
			t.Errorf("MaxRetries = %d", config.MaxRetries)
		}
	})
}
