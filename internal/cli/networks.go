package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/cli/render"
)

// NewNetworksCmd creates the networks command
func NewNetworksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "networks [name]",
		Short: "List networks from the topology file",
		Long: `List every network of the topology file, or show one network.

Local networks deploy against the managed anvil node; remote networks deploy
against their RPC URL.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			renderer := render.NewNetworksRenderer(cmd.OutOrStdout())

			if len(args) == 1 {
				network, err := a.ListNetworks.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, network)
				}
				return renderer.RenderNetwork(network)
			}

			result, err := a.ListNetworks.Run(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, result)
			}
			return renderer.RenderNetworksList(result)
		},
	}

	return cmd
}
