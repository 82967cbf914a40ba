package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/internal/monitor"
	"github.com/systmms/credbroker/internal/plugins"
	"github.com/systmms/credbroker/internal/secure"
	"github.com/systmms/credbroker/internal/state"
	"github.com/systmms/credbroker/internal/vaultclient"
)

// vaultConn adapts the concrete HTTP vault client to the engine's
// collaborator interface.
type vaultConn struct {
	*vaultclient.HTTPClient
}

func (v vaultConn) Subscribe(ctx context.Context, fetchKeys []string, onChange func(asset, account string)) (monitor.Subscription, error) {
	return v.HTTPClient.Subscribe(ctx, fetchKeys, onChange)
}

// NewServeCommand creates the serve command: the long-running broker
// daemon with the metrics and admin endpoints.
func NewServeCommand(cfg *config.Config) *cobra.Command {
	var (
		listenAddr string
		startNow   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker daemon",
		Long: `Run the broker as a long-lived daemon. The daemon restores the last
known monitoring state, exposes Prometheus metrics on /metrics, and serves
the admin API the other subcommands talk to.`,
		Example: `  # Run with the default config and listen address
  credbroker serve

  # Start monitoring immediately regardless of persisted state
  credbroker serve --start

  # Serve the admin API on a different port
  credbroker serve --listen 127.0.0.1:9753`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			vault, err := vaultclient.NewHTTPClient(cfg.Definition.Connection, cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to build vault client: %w", err)
			}

			directory := plugins.NewDirectory(cfg.Logger)
			directory.LoadFromConfig(cfg.Definition)

			stateDir := cfg.Definition.Monitor.StateDir
			if stateDir == "" {
				stateDir = state.DefaultStateDir()
			}
			store := state.NewStore(stateDir)

			monitor.InitMetrics()
			engine := monitor.NewEngine(cfg.Definition, vaultConn{vault}, directory,
				secure.NewCompareCache(), store, cfg.Logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if startNow {
				if err := engine.Start(ctx); err != nil {
					return err
				}
			} else {
				engine.RestoreLastKnownState(ctx)
			}

			server := &http.Server{
				Addr:              listenAddr,
				Handler:           adminHandler(engine),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				cfg.Logger.Info("Serving metrics and admin API on %s", listenAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				cfg.Logger.Info("Shutting down")
			case err := <-errCh:
				cfg.Logger.Error("Admin server failed: %v", err)
			}

			engine.Stop()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", defaultAdminAddr, "Metrics and admin API listen address")
	cmd.Flags().BoolVar(&startNow, "start", false, "Start monitoring immediately, ignoring persisted state")

	return cmd
}

// adminHandler builds the daemon's HTTP surface: Prometheus metrics plus
// the JSON admin API consumed by the CLI subcommands.
func adminHandler(engine *monitor.Engine) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st := engine.Status()
		writeJSON(w, http.StatusOK, statusResponse{
			Running:           engine.IsRunning(),
			ListenerActive:    st.ListenerActive,
			ReverseFlowActive: st.ReverseFlowActive,
		})
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))
		events := engine.RecentEvents(count)
		out := make([]eventResponse, 0, len(events))
		for _, ev := range events {
			out = append(out, eventResponse{
				Description: ev.Description,
				Outcome:     string(ev.Outcome),
				Failure:     string(ev.Failure),
				Timestamp:   ev.Timestamp,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("/api/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := engine.Start(r.Context()); err != nil {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{
			Running:           engine.IsRunning(),
			ListenerActive:    engine.Status().ListenerActive,
			ReverseFlowActive: engine.Status().ReverseFlowActive,
		})
	})

	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		engine.Stop()
		writeJSON(w, http.StatusOK, statusResponse{})
	})

	mux.HandleFunc("/api/poll", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		scheduled := engine.TriggerReversePollOnce(r.Context())
		writeJSON(w, http.StatusOK, pollResponse{Scheduled: scheduled})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
