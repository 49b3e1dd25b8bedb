package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-runner/internal/adapters/progress"
	"github.com/trebuchet-org/treb-runner/internal/config"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "compile", "publish", "sandbox", "node", "cache", "image", "networks", "containers", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestNodeSubcommands(t *testing.T) {
	cmd := NewNodeCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"start", "stop", "restart", "status"}, names)

	start, _, err := cmd.Find([]string{"start"})
	require.NoError(t, err)
	assert.NotNil(t, start.Flags().Lookup("fork-url"))
	assert.NotNil(t, start.Flags().Lookup("use-snapshot"))
}

func TestVersionSkipsAppInit(t *testing.T) {
	config.SetBuildFlags("1.2.3", "abc123", "2026-01-01")
	t.Cleanup(func() { config.SetBuildFlags("dev", "unknown", "unknown") })

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "treb-runner version 1.2.3 (commit abc123, built 2026-01-01)\n", out.String())
}

func TestGetAppWithoutInit(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	_, err := getApp(cmd)
	assert.EqualError(t, err, "app not initialized")
}

func TestProgressSink(t *testing.T) {
	root := NewRootCmd()

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.IsType(t, &progress.LogSink{}, progressSink(serve))

	networks, _, err := root.Find([]string{"networks"})
	require.NoError(t, err)
	require.NoError(t, root.PersistentFlags().Set("json", "true"))
	assert.IsType(t, &progress.NopSink{}, progressSink(networks))
}

func TestProjectArg(t *testing.T) {
	assert.Equal(t, ".", projectArg(nil))
	assert.Equal(t, "./contracts", projectArg([]string{"./contracts"}))
}
