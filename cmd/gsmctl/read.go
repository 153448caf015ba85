package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <index>",
	Short: "Print one stored message in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			fatal(fmt.Errorf("index must be an integer, got %q", args[0]))
		}

		m, err := openModem()
		if err != nil {
			fatal(err)
		}
		defer m.Close()

		sms, err := m.ReadSMS(index)
		if err != nil {
			fatal(err)
		}

		fmt.Println()
		fmt.Printf("%s %s\n", labelStyle.Render("From:  "), sms.Sender)
		fmt.Printf("%s %s\n", labelStyle.Render("Time:  "), sms.Time)
		fmt.Printf("%s %s\n", labelStyle.Render("Status:"), sms.Status)
		fmt.Println()
		fmt.Println(sms.Text)
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}
