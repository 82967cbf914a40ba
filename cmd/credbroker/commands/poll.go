package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/systmms/credbroker/internal/config"
)

// NewPollCommand creates the poll command.
func NewPollCommand(cfg *config.Config) *cobra.Command {
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Trigger one reverse-flow pull pass",
		Long: `Ask the broker daemon to schedule one asynchronous reverse-flow pull
pass. The pass only runs when the vault registration permits bidirectional
flow; otherwise nothing is scheduled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(serverAddr)

			var result pollResponse
			if err := client.call(http.MethodPost, "/api/poll", &result); err != nil {
				return err
			}

			if result.Scheduled {
				fmt.Println("✅ Reverse-flow pass scheduled")
			} else {
				fmt.Println("⚪ Reverse flow unavailable; no pass scheduled")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", defaultAdminAddr, "Broker daemon admin address")

	return cmd
}
