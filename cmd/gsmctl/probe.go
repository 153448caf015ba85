package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the modem responds and report its state",
	Long: `Synchronize with the modem and print device identification and
signal quality. This is the first thing to run against an unknown
port: it proves the wiring, the baud rate and the SIM in one go.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		m, err := openModem()
		if err != nil {
			fatal(err)
		}
		defer m.Close()

		info, err := m.DeviceInfo()
		if err != nil {
			fatal(err)
		}
		rssi, ber, err := m.SignalQuality()
		if err != nil {
			fatal(err)
		}

		fmt.Println()
		fmt.Printf("%s %s\n", labelStyle.Render("Manufacturer:"), info.Manufacturer)
		fmt.Printf("%s %s\n", labelStyle.Render("Model:       "), info.Model)
		fmt.Printf("%s %s\n", labelStyle.Render("Serial:      "), info.Serial)
		fmt.Printf("%s %s\n", labelStyle.Render("Signal:      "), formatSignal(rssi, ber))
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

// formatSignal renders an AT+CSQ report. RSSI steps of 0..31 map
// linearly onto -113..-51 dBm; 99 means not detectable.
func formatSignal(rssi, ber int) string {
	if rssi == 99 {
		return "unknown"
	}
	s := fmt.Sprintf("%d dBm (rssi %d", -113+2*rssi, rssi)
	if ber != 99 {
		s += fmt.Sprintf(", ber %d", ber)
	}
	return s + ")"
}
