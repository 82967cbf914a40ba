package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/systmms/credbroker/internal/config"
)

// NewStartCommand creates the start command.
func NewStartCommand(cfg *config.Config) *cobra.Command {
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start monitoring on the running broker daemon",
		Long: `Ask the broker daemon to start monitoring: subscribe to vault change
events, run one full dispatch pass, and begin reverse-flow polling if the
vault registration permits it.`,
		Example: `  # Start monitoring
  credbroker start`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(serverAddr)

			var status statusResponse
			if err := client.call(http.MethodPost, "/api/start", &status); err != nil {
				return err
			}

			fmt.Println("✅ Monitoring started")
			fmt.Printf("   Listener:     %s\n", formatFlag(status.ListenerActive))
			fmt.Printf("   Reverse flow: %s\n", formatFlag(status.ReverseFlowActive))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", defaultAdminAddr, "Broker daemon admin address")

	return cmd
}
