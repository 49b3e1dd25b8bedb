package config

import (
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into adapters and use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	DataDir  string
	LogLevel string
	Debug    bool
	JSON     bool

	Server   ServerConfig
	Docker   DockerConfig
	Cache    CacheConfig
	Node     NodeConfig
	Sandbox  SandboxConfig
	Networks NetworksConfig

	// Images maps each toolchain onto its tag and build recipe
	Images map[domain.Toolchain]ImageConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string
	// Mode is the gin mode (debug, release, test)
	Mode string
}

// DockerConfig configures the container runtime
type DockerConfig struct {
	// Host overrides DOCKER_HOST when set
	Host string
	// Network is the shared bridge network name
	Network string
}

// CacheConfig configures the shared cache store
type CacheConfig struct {
	// RedisURL disables caching when empty
	RedisURL    string
	ResultTTL   time.Duration
	ImageTTL    time.Duration
	StateTTL    time.Duration
	SnapshotTTL time.Duration
}

// NodeConfig configures the anvil node managers
type NodeConfig struct {
	Image         string
	ContainerName string
	Port          int

	// RPCHost is how the orchestrator reaches published node ports
	RPCHost string
	ForkURL string

	IdleTimeout   time.Duration
	ReadyRetries  int
	ReadyInterval time.Duration
	StopTimeout   time.Duration

	// SnapshotDir holds state dumps of local nodes on the host
	SnapshotDir  string
	SnapshotKeep int
}

// SandboxConfig configures the sandbox pool
type SandboxConfig struct {
	IdleTimeout  time.Duration
	StopTimeout  time.Duration
	OutputWindow int
	Workspace    string
	Exclude      []string
}

// NetworksConfig points at the network topology file
type NetworksConfig struct {
	File string
}

// ImageConfig is the tag and build recipe of a toolchain image
type ImageConfig struct {
	Tag    string
	Recipe domain.BuildRecipe
}

// ContainerName returns the name of the sandbox container for a toolchain
func (c *RuntimeConfig) ContainerName(t domain.Toolchain) string {
	return "persistent-" + string(t)
}

// NodeContainerName returns the container name used for a node mode
func (c *RuntimeConfig) NodeContainerName(mode domain.NodeMode) string {
	if mode == domain.NodeModeLocal {
		return c.Node.ContainerName + "-local"
	}
	return c.Node.ContainerName
}
