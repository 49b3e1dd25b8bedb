package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/cli/render"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// NewPublishCmd creates the publish command
func NewPublishCmd() *cobra.Command {
	var (
		framework   string
		network     string
		script      string
		fork        bool
		forkURL     string
		useSnapshot bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish [path]",
		Short: "Deploy a project to a network",
		Long: `Run the project's deployment script in its toolchain sandbox.

Local networks deploy against the managed anvil node, started on demand
(--fork selects the forked variant). Remote networks deploy against the RPC
URL of the topology file. Deployed contracts are read from the broadcast file
and recorded in <path>/kv-deploy.json.`,
		Example: `  treb-runner publish ./contracts --network local
  treb-runner publish ./contracts --network local --fork --fork-url https://eth.llamarpc.com
  treb-runner publish ./contracts --network sepolia --script script/Deploy.s.sol`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}

			req := domain.PublishRequest{
				ProjectPath: projectArg(args),
				Network:     network,
				Script:      script,
				Fork:        fork,
				ForkURL:     forkURL,
				UseSnapshot: useSnapshot,
				Timeout:     timeout,
			}
			if framework != "" {
				if req.Toolchain, err = domain.ParseToolchain(framework); err != nil {
					return err
				}
			}

			result, err := a.PublishDeployment.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			} else if err := render.NewDeploymentRenderer(cmd.OutOrStdout()).RenderPublish(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("deployment failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "f", "", "Toolchain (foundry, hardhat)")
	cmd.Flags().StringVarP(&network, "network", "n", "", "Network from the topology file (default: the file's default network)")
	cmd.Flags().StringVarP(&script, "script", "s", "", "Deployment script (default script/Deploy.s.sol)")
	cmd.Flags().BoolVar(&fork, "fork", false, "Deploy against the forked node instead of a fresh local chain")
	cmd.Flags().StringVar(&forkURL, "fork-url", "", "Upstream RPC for the forked node")
	cmd.Flags().BoolVar(&useSnapshot, "use-snapshot", false, "Restore the latest local node snapshot before deploying")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting for the deployment after this long")

	return cmd
}
