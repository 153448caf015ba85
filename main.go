package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"i4.energy/across/gsmgw/modem"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("log-file", "", "Log to this rotated file instead of stderr")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.String("http-token", "", "Bearer token required on mutating endpoints")
	flag.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")
	flag.Int("rate-per-min", 30, "Maximum outgoing messages per minute (0 = unlimited)")
	flag.Int("max-retries", 3, "Send attempts per queued message")
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(config)
	slog.SetDefault(logger)

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithMaxRetries(config.MaxRetries).
		WithMinSendInterval(2 * time.Second).
		WithSimPIN(config.SimPIN).
		WithEchoOn(config.EchoOn).
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.NewSerialDialer(config.SerialPort, config.BaudRate)).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	m, err := modem.New(context.Background(), modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting SMS gateway", "port", config.SerialPort, "baud", config.BaudRate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := NewHub(logger.With("component", "hub"))
	gateway := NewGateway(logger.With("component", "gateway"), m, hub, config)

	if _, publish := startMQTT(ctx, config, logger.With("component", "mqtt"), gateway); publish != nil {
		gateway.SetPublisher(publish)
	}

	gatewayDone := make(chan struct{})
	go func() {
		gateway.Run(ctx)
		close(gatewayDone)
	}()

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: (&Server{
			Logger:  logger.With("component", "server"),
			Gateway: gateway,
			Hub:     hub,
			Token:   config.HTTPToken,
		}).Handler(),
	}

	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	// Stop intake first, then flush what is already queued, then
	// release the modem.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}
	hub.CloseAll()

	<-gatewayDone
	gateway.DrainOnce(30 * time.Second)

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}
}

func newLogger(config *Config) *slog.Logger {
	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if config.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel}))
}
