package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/cli/render"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// NewSandboxCmd creates the sandbox command with subcommands
func NewSandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run commands in toolchain sandboxes",
		Long: `Each toolchain has one long-lived sandbox container. Commands run against a
fresh copy of the project uploaded to the sandbox workspace.`,
	}

	cmd.PersistentFlags().StringP("framework", "f", string(domain.ToolchainFoundry), "Toolchain (foundry, hardhat)")
	cmd.PersistentFlags().StringP("network", "n", "", "Attach the sandbox for this network")
	cmd.PersistentFlags().String("peer-node", "", "Share the network namespace of this node container")

	cmd.AddCommand(newSandboxStartCmd(), newSandboxExecCmd(), newSandboxStopCmd())
	return cmd
}

func sandboxRequest(cmd *cobra.Command) (domain.SandboxRequest, error) {
	a, err := getApp(cmd)
	if err != nil {
		return domain.SandboxRequest{}, err
	}
	framework, _ := cmd.Flags().GetString("framework")
	toolchain, err := domain.ParseToolchain(framework)
	if err != nil {
		return domain.SandboxRequest{}, err
	}
	req := domain.SandboxRequest{Toolchain: toolchain}
	req.PeerNode, _ = cmd.Flags().GetString("peer-node")
	if name, _ := cmd.Flags().GetString("network"); name != "" {
		if req.Network, err = a.ListNetworks.Get(cmd.Context(), name); err != nil {
			return domain.SandboxRequest{}, err
		}
	}
	return req, nil
}

func newSandboxStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the sandbox of a toolchain, reusing a running one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			req, err := sandboxRequest(cmd)
			if err != nil {
				return err
			}
			id, err := a.Pool.GetOrStart(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd, map[string]string{"container_id": id})
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf("%s sandbox ready: %s", req.Toolchain, id)))
			return nil
		},
	}
}

func newSandboxExecCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "exec <path> -- <command...>",
		Short: "Run a shell command against a project",
		Example: `  treb-runner sandbox exec ./contracts -- forge test -vv
  treb-runner sandbox exec ./app -f hardhat -- npx hardhat test`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			req, err := sandboxRequest(cmd)
			if err != nil {
				return err
			}

			result, err := a.Pool.Execute(cmd.Context(), domain.ExecRequest{
				Toolchain:   req.Toolchain,
				Command:     strings.Join(args[1:], " "),
				ProjectPath: args[0],
				Network:     req.Network,
				PeerNode:    req.PeerNode,
				Timeout:     timeout,
			})
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			} else if err := render.NewSandboxRenderer(cmd.OutOrStdout()).RenderExec(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("command failed")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop waiting for the command after this long")
	return cmd
}

func newSandboxStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Remove the sandbox of a toolchain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			framework, _ := cmd.Flags().GetString("framework")
			toolchain, err := domain.ParseToolchain(framework)
			if err != nil {
				return err
			}
			if !a.Pool.Stop(cmd.Context(), toolchain) {
				return fmt.Errorf("failed to stop %s sandbox", toolchain)
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf("%s sandbox stopped", toolchain)))
			return nil
		},
	}
}
