package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print incoming messages as they arrive",
	Long: `Poll the modem and print every incoming message. Messages are
deleted from the SIM after they are shown, so each one appears once.

With --reply every sender gets the given text back, which makes a
quick end-to-end test of both directions:
  gsmctl watch --reply "Got it!"

Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		reply, _ := cmd.Flags().GetString("reply")

		m, err := openModem()
		if err != nil {
			fatal(err)
		}
		defer m.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("%s Waiting for messages (Ctrl-C to stop)...\n", infoStyle.Render("📡"))
		for {
			list, err := m.AwaitMessage(ctx, 30*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					fmt.Println("\nStopped.")
					return
				}
				fatal(err)
			}

			for _, sms := range list {
				fmt.Printf("%s %s  %s: %s\n", successStyle.Render("✉"), sms.Time, sms.Sender, sms.Text)

				if reply != "" {
					if err := m.SendSMS(sms.Sender, reply); err != nil {
						fmt.Fprintf(os.Stderr, "%s reply to %s failed: %v\n", errorStyle.Render("✗"), sms.Sender, err)
					} else {
						fmt.Printf("%s Replied to %s\n", successStyle.Render("✓"), sms.Sender)
					}
				}
				if err := m.DeleteSMS(sms.Index); err != nil {
					fmt.Fprintf(os.Stderr, "%s delete %d failed: %v\n", errorStyle.Render("✗"), sms.Index, err)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("reply", "", "Answer each sender with this text")
}
