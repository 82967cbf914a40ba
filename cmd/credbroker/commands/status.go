package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/credbroker/internal/config"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(cfg *config.Config) *cobra.Command {
	var (
		serverAddr   string
		statusFormat string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the broker daemon's monitoring status",
		Example: `  # Show the current status
  credbroker status

  # Machine-readable output
  credbroker status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(serverAddr)

			var status statusResponse
			if err := client.call(http.MethodGet, "/api/status", &status); err != nil {
				return err
			}

			if statusFormat == "json" {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(status)
			}

			running := "⚪ Stopped"
			if status.Running {
				running = "✅ Running"
			}
			fmt.Printf("Monitoring:   %s\n", running)
			fmt.Printf("Listener:     %s\n", formatFlag(status.ListenerActive))
			fmt.Printf("Reverse flow: %s\n", formatFlag(status.ReverseFlowActive))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", defaultAdminAddr, "Broker daemon admin address")
	cmd.Flags().StringVar(&statusFormat, "format", "text", "Output format: text, json")

	return cmd
}
