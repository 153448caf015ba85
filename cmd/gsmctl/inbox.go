package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"i4.energy/across/gsmgw/modem"
)

// inboxCmd represents the inbox command
var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List messages stored on the SIM",
	Long: `List stored messages in a table.

The --group flag narrows the listing to one storage group: unread,
read, sent, unsent or all. Note that listing unread messages marks
them as read on most modems.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		group, _ := cmd.Flags().GetString("group")
		parsed, err := modem.ParseGroup(group)
		if err != nil {
			fatal(err)
		}

		m, err := openModem()
		if err != nil {
			fatal(err)
		}
		defer m.Close()

		list, err := m.ListSMS(parsed)
		if err != nil {
			fatal(err)
		}
		if len(list) == 0 {
			fmt.Println("No messages found")
			return
		}
		renderInbox(list)
	},
}

func init() {
	rootCmd.AddCommand(inboxCmd)

	inboxCmd.Flags().StringP("group", "g", "all", "Message group: unread, read, sent, unsent, all")
}

// renderInbox prints the messages in a styled static table format
func renderInbox(list []modem.SMS) {
	fmt.Printf("Found %d message(s):\n\n", len(list))

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240"))

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-6s %-12s %-16s %-19s %s",
		"Index", "Status", "Sender", "Time", "Message")
	fmt.Println(headerStyle.Render(header))

	for _, sms := range list {
		text := strings.ReplaceAll(sms.Text, "\n", " ")
		if len(text) > 48 {
			text = text[:48] + "..."
		}
		row := fmt.Sprintf("%-6d %-12s %-16s %-19s %s",
			sms.Index, sms.Status, sms.Sender, sms.Time, text)
		fmt.Println(cellStyle.Render(row))
	}
}
