package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/app"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var keepContainers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve compile, publish and admin endpoints over HTTP.

On shutdown every sandbox is removed and every node is stopped. Local nodes
dump their state first so the next start can restore it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := a.Server.Run(ctx)
			if !keepContainers {
				shutdown(a)
			}
			return runErr
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default :5000)")
	cmd.Flags().Int("node-port", 0, "Host port of the managed anvil node (default 8545)")
	cmd.Flags().BoolVar(&keepContainers, "keep-containers", false, "Leave sandboxes and nodes running on shutdown")

	return cmd
}

// shutdown tears down everything the orchestrator started
func shutdown(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := a.Pool.CleanupAll(ctx); err != nil {
		a.Log.Warn("failed to clean up sandboxes", "error", err)
	}
	for _, node := range a.Nodes.All() {
		if !node.Stop(ctx) {
			a.Log.Warn("failed to stop node", "mode", node.Mode())
		}
	}
}
