package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/credbroker/internal/config"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(cfg *config.Config) *cobra.Command {
	var (
		serverAddr   string
		eventCount   int
		eventsFormat string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent dispatch outcomes",
		Long: `Display the most recent per-mapping outcomes from the daemon's
in-memory audit trail, newest first. The trail is bounded and resets when
the daemon restarts.`,
		Example: `  # Show the default number of recent events
  credbroker events

  # Show the last 100 events as JSON
  credbroker events --count 100 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAdminClient(serverAddr)

			var events []eventResponse
			path := fmt.Sprintf("/api/events?count=%d", eventCount)
			if err := client.call(http.MethodGet, path, &events); err != nil {
				return err
			}

			if eventsFormat == "json" {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(events)
			}

			if len(events) == 0 {
				fmt.Println("No events recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "TIME\tOUTCOME\tDESCRIPTION")
			fmt.Fprintln(w, "----\t-------\t-----------")
			for _, ev := range events {
				outcome := "✅"
				if ev.Outcome != "success" {
					outcome = "❌ " + ev.Failure
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					ev.Timestamp.Format("2006-01-02 15:04:05"), outcome, ev.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", defaultAdminAddr, "Broker daemon admin address")
	cmd.Flags().IntVar(&eventCount, "count", 0, "Number of events to show (0 uses the daemon default)")
	cmd.Flags().StringVar(&eventsFormat, "format", "table", "Output format: table, json")

	return cmd
}
