package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/internal/plugins"
)

// NewPluginsCommand creates the plugins command.
func NewPluginsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List configured plugins and their bindings",
		Long: `Load the configuration and show every configured plugin binding:
whether it loaded, its credential kind, and whether reverse flow applies.
Also lists the supported plugin types.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			directory := plugins.NewDirectory(cfg.Logger)
			directory.LoadFromConfig(cfg.Definition)

			bindings := directory.Bindings()
			if len(bindings) == 0 {
				fmt.Println("No plugins configured")
			} else {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "NAME\tTYPE\tSTATE\tKIND\tREVERSE FLOW")
				fmt.Fprintln(w, "----\t----\t-----\t----\t------------")
				for _, b := range bindings {
					pluginType := "-"
					if b.Plugin != nil {
						pluginType = b.Plugin.Name()
					}
					state := "✅ loaded"
					switch {
					case !b.Loaded:
						state = "❌ failed to load"
					case b.Disabled:
						state = "⚪ disabled"
					}
					reverse := "-"
					if b.SupportsReverseFlow {
						reverse = formatFlag(b.ReverseActive())
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.Name, pluginType, state, b.Kind, reverse)
				}
				w.Flush()
			}

			fmt.Println()
			fmt.Println("Supported plugin types:")
			for _, t := range directory.SupportedTypes() {
				fmt.Printf("  - %s\n", t)
			}
			return nil
		},
	}

	return cmd
}
