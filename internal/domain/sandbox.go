package domain

import (
	"fmt"
	"strings"
	"time"
)

// Toolchain identifies the compiler/deployer image family a sandbox runs
type Toolchain string

const (
	ToolchainFoundry Toolchain = "foundry"
	ToolchainHardhat Toolchain = "hardhat"
)

// Toolchains lists every supported toolchain
var Toolchains = []Toolchain{ToolchainFoundry, ToolchainHardhat}

// ParseToolchain converts user input into a Toolchain
func ParseToolchain(s string) (Toolchain, error) {
	switch t := Toolchain(strings.ToLower(strings.TrimSpace(s))); t {
	case ToolchainFoundry, ToolchainHardhat:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownToolchain, s)
	}
}

// PlacementKind is how a sandbox container is attached to the network
type PlacementKind string

const (
	// PlacementPeer shares the network namespace of a running node container
	PlacementPeer PlacementKind = "peer"
	// PlacementBridge joins the shared bridge network
	PlacementBridge PlacementKind = "bridge"
	// PlacementDefault uses the runtime's default network
	PlacementDefault PlacementKind = "default"
)

// Placement is the network attachment decided when a sandbox is created.
// PeerID pins a peer placement to the node container that existed at
// creation; a recreated node has a new id and therefore a new placement.
type Placement struct {
	Kind   PlacementKind `json:"kind"`
	Target string        `json:"target,omitempty"`
	PeerID string        `json:"peer_id,omitempty"`
}

// NetworkMode renders the placement as a container network mode
func (p Placement) NetworkMode() string {
	switch p.Kind {
	case PlacementPeer:
		return "container:" + p.Target
	case PlacementBridge:
		return p.Target
	default:
		return ""
	}
}

// String implements fmt.Stringer
func (p Placement) String() string {
	if p.Kind == PlacementDefault || p.Kind == "" {
		return string(PlacementDefault)
	}
	return fmt.Sprintf("%s(%s)", p.Kind, p.Target)
}

// DecidePlacement maps a network and optional peer node onto a placement.
// Local networks with a peer share its namespace, local networks without one
// join the bridge, everything else stays on the runtime default.
func DecidePlacement(network *NetworkDescriptor, peerNode, bridge string) Placement {
	if network == nil || !network.IsLocal() {
		return Placement{Kind: PlacementDefault}
	}
	if peerNode != "" {
		return Placement{Kind: PlacementPeer, Target: peerNode}
	}
	return Placement{Kind: PlacementBridge, Target: bridge}
}

// SandboxRequest asks the pool for a running sandbox
type SandboxRequest struct {
	Toolchain   Toolchain
	Network     *NetworkDescriptor
	PeerNode    string
	UseSnapshot bool
}

// ExecRequest runs a shell command against an uploaded project
type ExecRequest struct {
	Toolchain   Toolchain
	Command     string
	ProjectPath string
	Network     *NetworkDescriptor
	PeerNode    string
	Timeout     time.Duration
	UseSnapshot bool
}

// ExecResult is the outcome of a sandbox execution. Non-zero exits and
// timeouts are reported here rather than as errors.
type ExecResult struct {
	ID          string        `json:"id"`
	ContainerID string        `json:"container_id"`
	ExitCode    int           `json:"exit_code"`
	Output      string        `json:"output"`
	Duration    time.Duration `json:"duration"`
	Reused      bool          `json:"container_reused"`
	Success     bool          `json:"success"`
	TimedOut    bool          `json:"timed_out,omitempty"`
}

// SandboxState is persisted after each execution
type SandboxState struct {
	Toolchain    Toolchain     `json:"toolchain"`
	ContainerID  string        `json:"container_id"`
	Placement    Placement     `json:"placement"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	LastProject  string        `json:"last_project,omitempty"`
	LastCommand  string        `json:"last_command,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
}

// SandboxSnapshot describes a committed sandbox image
type SandboxSnapshot struct {
	Toolchain   Toolchain `json:"toolchain"`
	Image       string    `json:"snapshot_image"`
	ImageID     string    `json:"image_id"`
	ContainerID string    `json:"container_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// SandboxStatus is one entry of the pool status report
type SandboxStatus struct {
	Toolchain    Toolchain `json:"toolchain"`
	ContainerID  string    `json:"container_id"`
	Status       string    `json:"status"`
	Placement    Placement `json:"placement"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	IdleFor      string    `json:"idle_time"`
}
