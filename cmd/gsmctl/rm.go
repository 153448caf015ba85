package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// rmCmd represents the rm command
var rmCmd = &cobra.Command{
	Use:   "rm [index]",
	Short: "Delete stored messages",
	Long: `Delete the message at the given storage index, or with --read
every message that has already been read or sent:
  gsmctl rm 3
  gsmctl rm --read`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		deleteRead, _ := cmd.Flags().GetBool("read")
		if !deleteRead && len(args) == 0 {
			fatal(errors.New("an index or --read is required"))
		}

		m, err := openModem()
		if err != nil {
			fatal(err)
		}
		defer m.Close()

		if deleteRead {
			if err := m.DeleteRead(); err != nil {
				fatal(err)
			}
			fmt.Printf("%s Read and sent messages deleted\n", successStyle.Render("✓"))
			return
		}

		index, err := strconv.Atoi(args[0])
		if err != nil {
			fatal(fmt.Errorf("index must be an integer, got %q", args[0]))
		}
		if err := m.DeleteSMS(index); err != nil {
			fatal(err)
		}
		fmt.Printf("%s Message %d deleted\n", successStyle.Render("✓"), index)
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().Bool("read", false, "Delete all read and sent messages instead of one index")
}
