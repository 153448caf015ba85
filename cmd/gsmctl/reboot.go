package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rebootCmd represents the reboot command
var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Restart the modem",
	Long: `Restart the modem with a full functionality reset (AT+CFUN=1,1).
The device drops off the port for a few seconds and needs a fresh
probe afterwards.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		m, err := openModem()
		if err != nil {
			fatal(err)
		}
		defer m.Close()

		if err := m.Reboot(); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Reboot requested\n", successStyle.Render("✓"))
	},
}

func init() {
	rootCmd.AddCommand(rebootCmd)
}
