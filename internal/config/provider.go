package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

// flagKeys maps command flags onto nested configuration keys. Flags not
// listed bind to their own name with dashes replaced.
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"redis-url":     "cache.redis_url",
	"docker-host":   "docker.host",
	"networks-file": "networks.file",
	"node-port":     "node.port",
}

type imageEntry struct {
	Tag        string `mapstructure:"tag"`
	Dockerfile string `mapstructure:"dockerfile"`
	Context    string `mapstructure:"context"`
}

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	cfg := &config.RuntimeConfig{
		DataDir:  dataDir,
		LogLevel: v.GetString("log_level"),
		Debug:    v.GetBool("debug"),
		JSON:     v.GetBool("json"),
		Server: config.ServerConfig{
			Addr: v.GetString("server.addr"),
			Mode: v.GetString("server.mode"),
		},
		Docker: config.DockerConfig{
			Host:    v.GetString("docker.host"),
			Network: v.GetString("docker.network"),
		},
		Cache: config.CacheConfig{
			RedisURL:    v.GetString("cache.redis_url"),
			ResultTTL:   v.GetDuration("cache.result_ttl"),
			ImageTTL:    v.GetDuration("cache.image_ttl"),
			StateTTL:    v.GetDuration("cache.state_ttl"),
			SnapshotTTL: v.GetDuration("cache.snapshot_ttl"),
		},
		Node: config.NodeConfig{
			Image:         v.GetString("node.image"),
			ContainerName: v.GetString("node.container_name"),
			Port:          v.GetInt("node.port"),
			RPCHost:       v.GetString("node.rpc_host"),
			ForkURL:       os.ExpandEnv(v.GetString("node.fork_url")),
			IdleTimeout:   v.GetDuration("node.idle_timeout"),
			ReadyRetries:  v.GetInt("node.ready_retries"),
			ReadyInterval: v.GetDuration("node.ready_interval"),
			StopTimeout:   v.GetDuration("node.stop_timeout"),
			SnapshotDir:   v.GetString("node.snapshot_dir"),
			SnapshotKeep:  v.GetInt("node.snapshot_keep"),
		},
		Sandbox: config.SandboxConfig{
			IdleTimeout:  v.GetDuration("sandbox.idle_timeout"),
			StopTimeout:  v.GetDuration("sandbox.stop_timeout"),
			OutputWindow: v.GetInt("sandbox.output_window"),
			Workspace:    v.GetString("sandbox.workspace"),
			Exclude:      v.GetStringSlice("sandbox.exclude"),
		},
		Networks: config.NetworksConfig{
			File: v.GetString("networks.file"),
		},
		Images: make(map[domain.Toolchain]config.ImageConfig),
	}

	if cfg.Node.SnapshotDir == "" {
		cfg.Node.SnapshotDir = filepath.Join(dataDir, "snapshots")
	}
	if cfg.Node.Port <= 0 || cfg.Node.Port > 65535 {
		return nil, fmt.Errorf("invalid node port %d", cfg.Node.Port)
	}

	var images map[string]imageEntry
	if err := v.UnmarshalKey("images", &images); err != nil {
		return nil, fmt.Errorf("failed to parse image recipes: %w", err)
	}
	for name, img := range images {
		t, err := domain.ParseToolchain(name)
		if err != nil {
			return nil, fmt.Errorf("image recipes: %w", err)
		}
		if img.Tag == "" {
			return nil, fmt.Errorf("image recipe for %s has no tag", name)
		}
		cfg.Images[t] = config.ImageConfig{
			Tag: img.Tag,
			Recipe: domain.BuildRecipe{
				Dockerfile: img.Dockerfile,
				ContextDir: img.Context,
			},
		}
	}

	return cfg, nil
}

// DefaultDataDir returns ~/.treb-runner, or a relative directory when the
// home directory is unknown
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".treb-runner"
	}
	return filepath.Join(home, ".treb-runner")
}

// SetupViper creates and configures a viper instance
func SetupViper(cmd *cobra.Command) *viper.Viper {
	// .env values feed the TREB_* environment below
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to load .env: %v\n", err)
		}
	}

	v := viper.New()

	v.SetEnvPrefix("TREB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults(v)

	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(flagKey(f.Name), f); err != nil {
				panic(err)
			}
		})
	}

	// Set up config file
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
	}
	// Try to read config file (ignore error if not found)
	_ = v.ReadInConfig()

	return v
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("json", false)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.mode", "release")

	v.SetDefault("docker.network", "deployer-network")

	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.result_ttl", "1h")
	v.SetDefault("cache.image_ttl", "1h")
	v.SetDefault("cache.state_ttl", "2h")
	v.SetDefault("cache.snapshot_ttl", "24h")

	v.SetDefault("node.image", "foundry-deployer:latest")
	v.SetDefault("node.container_name", "anvil-rpc")
	v.SetDefault("node.port", 8545)
	v.SetDefault("node.rpc_host", "localhost")
	v.SetDefault("node.fork_url", "")
	v.SetDefault("node.idle_timeout", "10m")
	v.SetDefault("node.ready_retries", 30)
	v.SetDefault("node.ready_interval", "1s")
	v.SetDefault("node.stop_timeout", "10s")
	v.SetDefault("node.snapshot_keep", 5)

	v.SetDefault("sandbox.idle_timeout", "10m")
	v.SetDefault("sandbox.stop_timeout", "10s")
	v.SetDefault("sandbox.output_window", 2000)
	v.SetDefault("sandbox.workspace", "/workspace")
	v.SetDefault("sandbox.exclude", []string{"**/node_modules", "**/cache", "**/.artifacts"})

	v.SetDefault("networks.file", "config/network.json")

	v.SetDefault("images", map[string]any{
		"foundry": map[string]any{
			"tag":        "foundry-deployer:latest",
			"dockerfile": "containers/images/Dockerfile.foundry",
			"context":    ".",
		},
		"hardhat": map[string]any{
			"tag":        "hardhat-deployer:latest",
			"dockerfile": "containers/images/Dockerfile",
			"context":    ".",
		},
	})
}
