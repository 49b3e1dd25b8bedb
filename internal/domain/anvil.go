package domain

import "time"

// NodeMode selects which anvil variant a node manager owns
type NodeMode string

const (
	// NodeModeFork forks an upstream chain. Its state is never persisted.
	NodeModeFork NodeMode = "fork"
	// NodeModeLocal runs a fresh local chain that can be snapshotted.
	NodeModeLocal NodeMode = "local"
)

// Snapshottable reports whether state dumps are meaningful for this mode
func (m NodeMode) Snapshottable() bool {
	return m == NodeModeLocal
}

// StartNodeOptions controls a node start
type StartNodeOptions struct {
	ForkURL     string `json:"fork_url,omitempty"`
	UseSnapshot bool   `json:"use_snapshot"`
}

// NodeSnapshot is a state dump of a local node on disk
type NodeSnapshot struct {
	File      string    `json:"filename"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_time"`
}

// SnapshotSummary describes the snapshots available for a node mode
type SnapshotSummary struct {
	Enabled   bool           `json:"snapshot_enabled"`
	Total     int            `json:"total_snapshots"`
	Latest    *NodeSnapshot  `json:"latest_snapshot"`
	Snapshots []NodeSnapshot `json:"snapshots"`
}

// NodeStatus represents the status of a managed anvil container
type NodeStatus struct {
	Mode            NodeMode        `json:"mode"`
	Running         bool            `json:"running"`
	Port            int             `json:"port"`
	ContainerName   string          `json:"container_name"`
	Network         string          `json:"network"`
	ContainerStatus string          `json:"container_status"`
	LastActivity    time.Time       `json:"last_activity"`
	IsForked        bool            `json:"is_forked"`
	Snapshots       SnapshotSummary `json:"snapshots"`
	LastError       *ErrorRecord    `json:"last_error,omitempty"`
}

// NodeState is the lightweight record persisted for observability
type NodeState struct {
	Mode          NodeMode  `json:"mode"`
	ContainerID   string    `json:"container_id"`
	ContainerName string    `json:"container_name"`
	Port          int       `json:"port"`
	ForkURL       string    `json:"fork_url,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`
}
