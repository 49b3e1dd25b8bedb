package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	v.Set("data_dir", t.TempDir())
	return v
}

func TestProvider_Defaults(t *testing.T) {
	v := newTestViper(t)

	cfg, err := Provider(v)
	require.NoError(t, err)

	assert.Equal(t, 8545, cfg.Node.Port)
	assert.Equal(t, "anvil-rpc", cfg.Node.ContainerName)
	assert.Equal(t, "deployer-network", cfg.Docker.Network)
	assert.Equal(t, 10*time.Minute, cfg.Node.IdleTimeout)
	assert.Equal(t, 30, cfg.Node.ReadyRetries)
	assert.Equal(t, time.Second, cfg.Node.ReadyInterval)
	assert.Equal(t, time.Hour, cfg.Cache.ResultTTL)
	assert.Equal(t, time.Hour, cfg.Cache.ImageTTL)
	assert.Equal(t, 2*time.Hour, cfg.Cache.StateTTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.SnapshotTTL)
	assert.Equal(t, 2000, cfg.Sandbox.OutputWindow)
	assert.Equal(t, []string{"**/node_modules", "**/cache", "**/.artifacts"}, cfg.Sandbox.Exclude)
	assert.Equal(t, filepath.Join(cfg.DataDir, "snapshots"), cfg.Node.SnapshotDir)

	require.Contains(t, cfg.Images, domain.ToolchainFoundry)
	assert.Equal(t, "foundry-deployer:latest", cfg.Images[domain.ToolchainFoundry].Tag)
	assert.Equal(t, "containers/images/Dockerfile.foundry", cfg.Images[domain.ToolchainFoundry].Recipe.Dockerfile)
	assert.Equal(t, "hardhat-deployer:latest", cfg.Images[domain.ToolchainHardhat].Tag)

	assert.Equal(t, "persistent-foundry", cfg.ContainerName(domain.ToolchainFoundry))
	assert.Equal(t, "anvil-rpc-local", cfg.NodeContainerName(domain.NodeModeLocal))
}

func TestProvider_Overrides(t *testing.T) {
	v := newTestViper(t)
	v.Set("node.port", 9545)
	v.Set("cache.result_ttl", "30m")
	v.Set("images", map[string]any{
		"foundry": map[string]any{"tag": "custom:1", "dockerfile": "Dockerfile", "context": "build"},
	})

	cfg, err := Provider(v)
	require.NoError(t, err)
	assert.Equal(t, 9545, cfg.Node.Port)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ResultTTL)
	require.Len(t, cfg.Images, 1)
	assert.Equal(t, domain.BuildRecipe{Dockerfile: "Dockerfile", ContextDir: "build"}, cfg.Images[domain.ToolchainFoundry].Recipe)
}

func TestProvider_InvalidInput(t *testing.T) {
	t.Run("unknown toolchain", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("images", map[string]any{"truffle": map[string]any{"tag": "x"}})
		_, err := Provider(v)
		assert.ErrorIs(t, err, domain.ErrUnknownToolchain)
	})

	t.Run("bad port", func(t *testing.T) {
		v := newTestViper(t)
		v.Set("node.port", 0)
		_, err := Provider(v)
		assert.Error(t, err)
	})
}

func TestSetupViper_EnvAndFlags(t *testing.T) {
	t.Setenv("TREB_NODE_CONTAINER_NAME", "anvil-test")
	t.Setenv("TREB_DATA_DIR", t.TempDir())

	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("addr", ":5000", "")
	cmd.Flags().String("redis-url", "", "")
	require.NoError(t, cmd.Flags().Set("addr", ":9999"))

	v := SetupViper(cmd)
	cfg, err := Provider(v)
	require.NoError(t, err)

	assert.Equal(t, "anvil-test", cfg.Node.ContainerName)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
}

func TestSetupViper_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "runner.yaml")
	require.NoError(t, os.WriteFile(file, []byte("node:\n  port: 7545\nsandbox:\n  workspace: /src\n"), 0644))
	t.Setenv("TREB_CONFIG", file)
	t.Setenv("TREB_DATA_DIR", dir)

	cfg, err := Provider(SetupViper(nil))
	require.NoError(t, err)
	assert.Equal(t, 7545, cfg.Node.Port)
	assert.Equal(t, "/src", cfg.Sandbox.Workspace)
}

func TestFoundryLoader(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := NewFoundryLoader().Load(t.TempDir())
		require.NoError(t, err)
		src, script := cfg.SourceDirs()
		assert.Equal(t, "src", src)
		assert.Equal(t, "script", script)
	})

	t.Run("custom layout", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte(`[profile.default]
src = "contracts"
script = "deploy"
out = "build"
libs = ["lib"]
`), 0644))

		cfg, err := NewFoundryLoader().Load(dir)
		require.NoError(t, err)
		src, script := cfg.SourceDirs()
		assert.Equal(t, "contracts", src)
		assert.Equal(t, "deploy", script)
		assert.Equal(t, "build", cfg.Profile["default"].OutPath)
	})

	t.Run("invalid toml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte("[profile"), 0644))
		_, err := NewFoundryLoader().Load(dir)
		assert.Error(t, err)
	})
}
