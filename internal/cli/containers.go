package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/cli/render"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// NewContainersCmd creates the containers command with subcommands
func NewContainersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "containers",
		Short: "Inspect and clean up managed containers",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show sandboxes and nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			sandboxes := a.Pool.Status(cmd.Context())
			var nodes []domain.NodeStatus
			for _, n := range a.Nodes.All() {
				nodes = append(nodes, n.Status(cmd.Context()))
			}

			if jsonOutput(cmd) {
				return printJSON(cmd, map[string]any{"sandboxes": sandboxes, "nodes": nodes})
			}
			if err := render.NewSandboxRenderer(cmd.OutOrStdout()).RenderStatus(sandboxes); err != nil {
				return err
			}
			nr := render.NewNodeRenderer(cmd.OutOrStdout())
			for _, st := range nodes {
				fmt.Fprintln(cmd.OutOrStdout())
				if err := nr.RenderStatus(st); err != nil {
					return err
				}
			}
			return nil
		},
	}

	var yes bool
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove every sandbox container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			if !yes && !confirmPrompt("Remove all sandbox containers") {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			if err := a.Pool.CleanupAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess("All persistent containers cleaned up"))
			return nil
		},
	}
	cleanup.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	cmd.AddCommand(status, cleanup)
	return cmd
}
