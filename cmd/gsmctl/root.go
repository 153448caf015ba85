package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"i4.energy/across/gsmgw/modem"
)

var (
	portFlag    string
	baudFlag    int
	pinFlag     string
	timeoutFlag time.Duration
)

// Shared output styles.
var (
	infoStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("40"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gsmctl",
	Short: "Control a GSM modem on a serial port",
	Long: `gsmctl talks to an AT-compatible GSM modem over a serial port.

It covers the usual chores: probing that the modem is alive, sending
and reading SMS messages, watching for incoming messages, and
rebooting the device. When the SIM asks for a PIN, pass it with --pin.

Example usage:
  gsmctl probe -p /dev/ttyUSB0
  gsmctl send +31612345678 "Hello from the command line"
  gsmctl inbox --group unread
  gsmctl watch --reply "Got it!"`,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "/dev/ttyUSB0", "Serial port the modem is connected to")
	rootCmd.PersistentFlags().IntVarP(&baudFlag, "baud", "b", 115200, "Baud rate for serial communication")
	rootCmd.PersistentFlags().StringVar(&pinFlag, "pin", "", "SIM card PIN code (if required)")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 5*time.Second, "Timeout for a single AT command")
}

// openModem dials the configured port and brings the modem to a ready
// state: synchronized, SIM unlocked and switched to SMS text mode.
func openModem() (*modem.Modem, error) {
	config, err := modem.NewConfigBuilder().
		WithDialer(modem.NewSerialDialer(portFlag, baudFlag)).
		WithSimPIN(pinFlag).
		WithATTimeout(timeoutFlag).
		WithInitTimeout(30 * time.Second).
		Build()
	if err != nil {
		return nil, err
	}

	fmt.Printf("%s Opening %s...\n", infoStyle.Render("⚡"), portFlag)
	m, err := modem.New(context.Background(), config)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s Modem ready\n", successStyle.Render("✓"))
	return m, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("✗"), err)
	os.Exit(1)
}
