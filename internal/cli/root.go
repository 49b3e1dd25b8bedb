package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/adapters/progress"
	"github.com/trebuchet-org/treb-runner/internal/app"
	"github.com/trebuchet-org/treb-runner/internal/config"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// contextKey is the type for context keys
type contextKey string

const (
	// appKey is the context key for the app instance
	appKey contextKey = "app"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "treb-runner",
		Short: "Sandbox and node orchestrator for smart contract toolchains",
		Long: `treb-runner keeps Foundry and Hardhat sandboxes and anvil nodes running
in Docker, compiles and deploys projects inside them, and serves the same
operations over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip for help/version commands
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			v := config.SetupViper(cmd)

			appInstance, err := app.InitApp(v, progressSink(cmd))
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a, err := getApp(cmd); err == nil {
				return a.Close()
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./config.yaml or ~/.treb-runner/config.yaml)")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis URL for the shared cache (empty disables caching)")
	rootCmd.PersistentFlags().String("docker-host", "", "Docker daemon address (defaults to DOCKER_HOST)")
	rootCmd.PersistentFlags().String("networks-file", "", "Network topology file")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "main",
		Title: "Main Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands",
	})

	for _, c := range []*cobra.Command{NewServeCmd(), NewCompileCmd(), NewPublishCmd(), NewSandboxCmd()} {
		c.GroupID = "main"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{NewNodeCmd(), NewCacheCmd(), NewImageCmd(), NewNetworksCmd(), NewContainersCmd()} {
		c.GroupID = "management"
		rootCmd.AddCommand(c)
	}

	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// progressSink picks a spinner for interactive terminals. The server and
// JSON output get progress through the logger or not at all.
func progressSink(cmd *cobra.Command) usecase.ProgressSink {
	switch {
	case cmd.Name() == "serve":
		return progress.NewLogSink(slog.Default())
	case jsonOutput(cmd) || color.NoColor:
		return progress.NewNopSink()
	default:
		return progress.NewSpinnerProgressReporter()
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	f := cmd.Flag("json")
	return f != nil && f.Value.String() == "true"
}

// printJSON writes v as indented JSON to the command output
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// getApp retrieves the app instance from the command context
func getApp(cmd *cobra.Command) (*app.App, error) {
	if cmd.Context() == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	appInstance := cmd.Context().Value(appKey)
	if appInstance == nil {
		return nil, fmt.Errorf("app not initialized")
	}

	a, ok := appInstance.(*app.App)
	if !ok {
		return nil, fmt.Errorf("invalid app instance")
	}

	return a, nil
}
