package cli

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-runner/internal/cli/render"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear cached build and deployment results",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show cached results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			stats := a.Cache.Stats(cmd.Context())
			if jsonOutput(cmd) {
				return printJSON(cmd, stats)
			}
			return render.NewCacheRenderer(cmd.OutOrStdout()).RenderResults(stats)
		},
	}

	var (
		pattern string
		yes     bool
	)
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			label := "Delete all cached results"
			if pattern != "" {
				label = fmt.Sprintf("Delete cached results matching %q", pattern)
			}
			if !yes && !confirmPrompt(label) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
				return nil
			}
			removed, err := a.Cache.Clear(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf("Removed %d cached results", removed)))
			return nil
		},
	}
	clearCmd.Flags().StringVar(&pattern, "pattern", "", "Only delete keys starting with this prefix")
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	cmd.AddCommand(status, clearCmd)
	return cmd
}

// NewImageCmd creates the image command with subcommands
func NewImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Inspect and clear cached image ids",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show cached image ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			stats := a.Images.Stats(cmd.Context())
			if jsonOutput(cmd) {
				return printJSON(cmd, stats)
			}
			return render.NewCacheRenderer(cmd.OutOrStdout()).RenderImages(stats)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear [tag]",
		Short: "Forget cached image ids so the next use looks them up again",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			tag := ""
			if len(args) == 1 {
				tag = args[0]
			}
			removed, err := a.Images.Clear(cmd.Context(), tag)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.FormatSuccess(fmt.Sprintf("Removed %d cached images", removed)))
			return nil
		},
	}

	cmd.AddCommand(status, clearCmd)
	return cmd
}

// confirmPrompt asks the user a yes/no question and returns their choice
func confirmPrompt(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}
