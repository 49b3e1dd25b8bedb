package domain

import "time"

// Confidence tags how a deployed address was recovered
type Confidence string

const (
	// ConfidenceBroadcast means the address came from a broadcast file
	ConfidenceBroadcast Confidence = "broadcast"
	// ConfidenceOutput means the address was scraped from command output
	ConfidenceOutput Confidence = "output"
)

// DeployedContract is a single contract address produced by a deployment
type DeployedContract struct {
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	TxHash     string     `json:"tx_hash,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// DeploymentVersion is one entry of the deployment history
type DeploymentVersion struct {
	Version    int                `json:"version"`
	Timestamp  time.Time          `json:"timestamp"`
	Network    string             `json:"network"`
	ChainID    uint64             `json:"chain_id"`
	Toolchain  Toolchain          `json:"framework"`
	Fork       *bool              `json:"fork"`
	ScriptPath string             `json:"script_path"`
	Contracts  []DeployedContract `json:"deployments"`
}

// DeploymentHistory is the versioned record written next to a project
type DeploymentHistory struct {
	CurrentVersion int                 `json:"current_version"`
	Versions       []DeploymentVersion `json:"versions"`
}

// Latest returns the newest version or nil
func (h *DeploymentHistory) Latest() *DeploymentVersion {
	if h == nil || len(h.Versions) == 0 {
		return nil
	}
	return &h.Versions[len(h.Versions)-1]
}

// CompileRequest builds a project inside its toolchain sandbox
type CompileRequest struct {
	ProjectPath string
	Toolchain   Toolchain
	Timeout     time.Duration
}

// CompileResult is the outcome of a compile. Cached results are returned
// without touching the sandbox.
type CompileResult struct {
	Success      bool        `json:"success"`
	Cached       bool        `json:"cached"`
	CacheKey     string      `json:"cache_key"`
	ImageCached  bool        `json:"image_cached"`
	ImageID      string      `json:"image_id"`
	ArtifactsDir string      `json:"artifacts_dir,omitempty"`
	Exec         *ExecResult `json:"execution,omitempty"`
}

// PublishRequest deploys a project to a network. Fork selects the forked
// node for local networks; ForkURL overrides its upstream.
type PublishRequest struct {
	ProjectPath string
	Toolchain   Toolchain
	Network     string
	Script      string
	Fork        bool
	ForkURL     string
	UseSnapshot bool
	Timeout     time.Duration
}

// PublishResult is the outcome of a deployment
type PublishResult struct {
	Success     bool               `json:"success"`
	Cached      bool               `json:"cached"`
	CacheKey    string             `json:"cache_key"`
	Network     NetworkDescriptor  `json:"network"`
	NodeMode    NodeMode           `json:"node_mode,omitempty"`
	Contracts   []DeployedContract `json:"contracts"`
	Version     int                `json:"version,omitempty"`
	NodeRPC     string             `json:"node_rpc,omitempty"`
	Exec        *ExecResult        `json:"execution,omitempty"`
	ImageCached bool               `json:"image_cached"`
}
