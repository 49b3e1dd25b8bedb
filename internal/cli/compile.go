package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/cli/render"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// NewCompileCmd creates the compile command
func NewCompileCmd() *cobra.Command {
	var (
		framework string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "compile [path]",
		Short: "Compile a project in its toolchain sandbox",
		Long: `Upload the project into the long-lived sandbox of its toolchain, build it,
and copy the build output to <path>/.artifacts.

Builds are cached by a fingerprint of the sources, so an unchanged project
returns immediately while its artifacts directory exists.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}

			req := domain.CompileRequest{ProjectPath: projectArg(args), Timeout: timeout}
			if framework != "" {
				if req.Toolchain, err = domain.ParseToolchain(framework); err != nil {
					return err
				}
			}

			result, err := a.CompileProject.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				if err := printJSON(cmd, result); err != nil {
					return err
				}
			} else if err := render.NewDeploymentRenderer(cmd.OutOrStdout()).RenderCompile(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("compilation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&framework, "framework", "f", "", "Toolchain (foundry, hardhat); detected from the project when empty")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting for the build after this long")

	return cmd
}

func projectArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}
