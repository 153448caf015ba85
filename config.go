package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the gateway daemon configuration. Values are layered:
// defaults, then the optional YAML file, then environment variables,
// then command-line flags.
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// LogFile, when set, sends logs to a size-rotated file instead of stderr
	LogFile string `yaml:"log_file"`
	// SimPIN is the SIM card PIN code
	SimPIN string `yaml:"sim_pin"`
	// EchoOn leaves modem command echo enabled (ATE1)
	EchoOn bool `yaml:"echo_on"`
	// HTTPToken, when set, is required as a bearer token on mutating endpoints
	HTTPToken string `yaml:"http_token"`

	// MQTTBroker enables the MQTT intake and publisher when non-empty
	// (e.g. "tcp://localhost:1883")
	MQTTBroker string `yaml:"mqtt_broker"`
	// MQTTClientID identifies this gateway to the broker
	MQTTClientID string `yaml:"mqtt_client_id"`
	// MQTTTopicSend is the topic carrying outgoing send requests
	MQTTTopicSend string `yaml:"mqtt_topic_send"`
	// MQTTTopicRecv is the topic received messages are published to
	MQTTTopicRecv string `yaml:"mqtt_topic_recv"`
	MQTTUsername  string `yaml:"mqtt_username"`
	MQTTPassword  string `yaml:"mqtt_password"`

	// RatePerMin caps outgoing messages per minute; zero disables the cap
	RatePerMin int `yaml:"rate_per_min"`
	// MaxRetries is how many attempts each queued message gets
	MaxRetries int `yaml:"max_retries"`
	// InboxPollSeconds is the cadence of the inbox watcher
	InboxPollSeconds int `yaml:"inbox_poll_seconds"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.MQTTClientID = "gsm-gw-1"
		c.MQTTTopicSend = "sms/send"
		c.MQTTTopicRecv = "sms/recv"
		c.RatePerMin = 30
		c.MaxRetries = 3
		c.InboxPollSeconds = 15
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is a
// no-op so the option can be applied unconditionally; a path that
// cannot be read or parsed is an error.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		setString := func(key string, dst *string) {
			if v := os.Getenv(key); v != "" {
				*dst = v
			}
		}
		setInt := func(key string, dst *int) {
			if v := os.Getenv(key); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					*dst = n
				}
			}
		}

		setString("BIND_ADDRESS", &c.BindAddress)
		setString("SERIAL_PORT", &c.SerialPort)
		setInt("BAUD_RATE", &c.BaudRate)
		setString("LOG_LEVEL", &c.LogLevel)
		setString("LOG_FILE", &c.LogFile)
		setString("SIM_PIN", &c.SimPIN)
		setString("HTTP_TOKEN", &c.HTTPToken)
		setString("MQTT_BROKER", &c.MQTTBroker)
		setString("MQTT_CLIENT_ID", &c.MQTTClientID)
		setString("MQTT_TOPIC_SEND", &c.MQTTTopicSend)
		setString("MQTT_TOPIC_RECV", &c.MQTTTopicRecv)
		setString("MQTT_USERNAME", &c.MQTTUsername)
		setString("MQTT_PASSWORD", &c.MQTTPassword)
		setInt("RATE_PER_MIN", &c.RatePerMin)
		setInt("MAX_RETRIES", &c.MaxRetries)

		// ECHO=1 enables ATE1, anything else keeps ATE0.
		if v := os.Getenv("ECHO"); v != "" {
			c.EchoOn = v == "1"
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "log-file":
				c.LogFile = f.Value.String()
			case "sim-pin":
				c.SimPIN = f.Value.String()
			case "http-token":
				c.HTTPToken = f.Value.String()
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			case "rate-per-min":
				if n, err := strconv.Atoi(f.Value.String()); err == nil {
					c.RatePerMin = n
				}
			case "max-retries":
				if n, err := strconv.Atoi(f.Value.String()); err == nil {
					c.MaxRetries = n
				}
			}
		})
		return nil
	}
}
