package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <number> <message...>",
	Short: "Send an SMS message",
	Long: `Send an SMS message to the given number.

Everything after the number is joined into one message, so quoting is
optional:
  gsmctl send +31612345678 "Hello World"
  gsmctl send +31612345678 Hello World`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		recipient := args[0]
		message := strings.Join(args[1:], " ")

		m, err := openModem()
		if err != nil {
			fatal(err)
		}
		defer m.Close()

		fmt.Printf("%s Sending %d characters to %s...\n", infoStyle.Render("📤"), len(message), recipient)
		if err := m.SendSMS(recipient, message); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Message sent\n", successStyle.Render("✓"))
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
