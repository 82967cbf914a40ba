package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/systmms/credbroker/internal/config"
)

// NewStopCommand creates the stop command.
func NewStopCommand(cfg *config.Config) *cobra.Command {
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop monitoring on the running broker daemon",
		Long: `Ask the broker daemon to stop monitoring. Stopping is idempotent:
the subscription and the reverse-flow poller are torn down best-effort and
the daemon always ends up stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(serverAddr)
			if err := client.call(http.MethodPost, "/api/stop", nil); err != nil {
				return err
			}
			fmt.Println("✅ Monitoring stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", defaultAdminAddr, "Broker daemon admin address")

	return cmd
}
