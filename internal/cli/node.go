package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/cli/render"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// NewNodeCmd creates the node command with subcommands
func NewNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage the anvil nodes",
		Long: `Manage the containerized anvil nodes.

Two variants exist: "local" runs a fresh chain whose state is dumped on stop
and can be restored on start, "fork" forks an upstream RPC and is never
persisted. Both publish the same host port, so starting one evicts the other.`,
	}

	cmd.PersistentFlags().String("mode", string(domain.NodeModeLocal), "Node variant (local, fork)")
	cmd.PersistentFlags().Int("node-port", 0, "Host port of the node (default 8545)")

	start := newNodeOpCmd("start", "Start the node")
	start.Flags().String("fork-url", "", "Upstream RPC to fork (fork mode)")
	start.Flags().Bool("use-snapshot", false, "Restore the latest snapshot (local mode)")

	cmd.AddCommand(
		start,
		newNodeOpCmd("stop", "Stop the node, dumping its state in local mode"),
		newNodeOpCmd("restart", "Restart the node from a clean chain, deleting snapshots"),
		newNodeOpCmd("status", "Show node status"),
	)

	return cmd
}

func newNodeOpCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}

			mode, _ := cmd.Flags().GetString("mode")
			params := usecase.ManageNodeParams{
				Operation: op,
				Mode:      domain.NodeMode(mode),
			}
			if f := cmd.Flags().Lookup("fork-url"); f != nil {
				params.ForkURL = f.Value.String()
			}
			if f := cmd.Flags().Lookup("use-snapshot"); f != nil {
				params.UseSnapshot = f.Value.String() == "true"
			}

			result, err := a.ManageNode.Execute(cmd.Context(), params)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			} else if err := render.NewNodeRenderer(cmd.OutOrStdout()).Render(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("node %s failed", op)
			}
			return nil
		},
	}
}
