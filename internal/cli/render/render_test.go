package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

func init() {
	color.NoColor = true
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "❌ Connection refused", FormatError("failed to start: dial tcp: connection refused"))
}

func TestNodeRendererStatus(t *testing.T) {
	var buf bytes.Buffer
	r := NewNodeRenderer(&buf)

	err := r.RenderStatus(domain.NodeStatus{
		Mode:            domain.NodeModeLocal,
		Running:         true,
		Port:            8545,
		ContainerName:   "anvil-rpc-local",
		Network:         "deployer-network",
		ContainerStatus: domain.ContainerRunning,
		Snapshots: domain.SnapshotSummary{
			Enabled: true,
			Total:   2,
			Latest:  &domain.NodeSnapshot{File: "snapshot_2.json", SizeBytes: 2048},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Local Node Status ('anvil-rpc-local')")
	assert.Contains(t, out, "Running on port 8545")
	assert.Contains(t, out, "Snapshots: 2 (latest snapshot_2.json, 2.0 KB)")
}

func TestNodeRendererFailedStart(t *testing.T) {
	var buf bytes.Buffer
	r := NewNodeRenderer(&buf)

	err := r.Render(&usecase.ManageNodeResult{
		Operation: "start",
		Message:   "local node failed to start",
		Status: domain.NodeStatus{LastError: &domain.ErrorRecord{
			Kind:      domain.KindRuntimeUnavailable,
			Message:   "container runtime unreachable",
			Timestamp: time.Now(),
			Cause:     &domain.ErrorCause{Type: "*errors.errorString", Message: "connection refused"},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "runtime_unavailable")
	assert.Contains(t, buf.String(), "caused by *errors.errorString: connection refused")

	assert.Error(t, r.Render(&usecase.ManageNodeResult{Operation: "explode"}))
}

func TestNetworksRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewNetworksRenderer(&buf)

	err := r.RenderNetworksList(&usecase.ListNetworksResult{
		DefaultNetwork: "local",
		Networks: []domain.NetworkDescriptor{
			{Network: "local", ChainID: 31337, DeploymentType: domain.DeploymentLocal},
			{Network: "sepolia", ChainID: 11155111, RPCURL: "https://rpc.sepolia.org", DeploymentType: domain.DeploymentRemote},
		},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "31337")
	assert.Contains(t, out, "managed node")
	assert.Contains(t, out, "https://rpc.sepolia.org")

	buf.Reset()
	require.NoError(t, r.RenderNetworksList(&usecase.ListNetworksResult{}))
	assert.Equal(t, "No networks configured\n", buf.String())
}

func TestDeploymentRendererPublish(t *testing.T) {
	var buf bytes.Buffer
	r := NewDeploymentRenderer(&buf)

	err := r.RenderPublish(&domain.PublishResult{
		Success: true,
		Network: domain.NetworkDescriptor{NetworkName: "Local", ChainID: 31337},
		Version: 3,
		Exec:    &domain.ExecResult{Success: true, Output: "Script ran successfully.\n", Duration: 1500 * time.Millisecond},
		Contracts: []domain.DeployedContract{
			{Name: "Counter", Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3", Confidence: domain.ConfidenceBroadcast},
		},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Script ran successfully.")
	assert.Contains(t, out, "Deployed to Local (chain 31337) as version 3")
	assert.Contains(t, out, "0x5FbDB2315678afecb367f032d93F642f64180aa3")
}

func TestSandboxRendererExec(t *testing.T) {
	var buf bytes.Buffer
	r := NewSandboxRenderer(&buf)

	require.NoError(t, r.RenderExec(&domain.ExecResult{ExitCode: 2, Output: "boom"}))
	assert.Contains(t, buf.String(), "Exit code 2")

	buf.Reset()
	require.NoError(t, r.RenderExec(&domain.ExecResult{TimedOut: true, Duration: time.Second}))
	assert.Contains(t, buf.String(), "Timed out after 1s")
}

func TestCacheRendererDisabled(t *testing.T) {
	var buf bytes.Buffer
	r := NewCacheRenderer(&buf)
	require.NoError(t, r.RenderResults(domain.CacheStats{}))
	assert.Contains(t, buf.String(), "caching is disabled")
}
