package usecase

import (
	"context"
	"fmt"

	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// ManageNode handles node management operations
type ManageNode struct {
	nodes    *NodeManagers
	progress ProgressSink
}

// NewManageNode creates a new node management use case
func NewManageNode(nodes *NodeManagers, progress ProgressSink) *ManageNode {
	return &ManageNode{
		nodes:    nodes,
		progress: progress,
	}
}

// ManageNodeParams contains parameters for node operations
type ManageNodeParams struct {
	Operation   string // start, stop, restart, status
	Mode        domain.NodeMode
	ForkURL     string
	UseSnapshot bool
}

// ManageNodeResult contains the result of node operations
type ManageNodeResult struct {
	Operation string            `json:"operation"`
	Status    domain.NodeStatus `json:"status"`
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
}

// Execute performs the node management operation
func (m *ManageNode) Execute(ctx context.Context, params ManageNodeParams) (*ManageNodeResult, error) {
	node, err := m.nodes.Get(params.Mode)
	if err != nil {
		return nil, err
	}

	switch params.Operation {
	case "start":
		m.progress.Info(fmt.Sprintf("🔨 Starting %s node on port %d...", node.Mode(), node.cfg.Node.Port))
		ok := node.Start(ctx, domain.StartNodeOptions{ForkURL: params.ForkURL, UseSnapshot: params.UseSnapshot})
		return m.result(ctx, node, "start", ok, "started", "failed to start"), nil
	case "stop":
		m.progress.Info(fmt.Sprintf("🛑 Stopping %s node...", node.Mode()))
		ok := node.Stop(ctx)
		return m.result(ctx, node, "stop", ok, "stopped", "failed to stop"), nil
	case "restart":
		m.progress.Info(fmt.Sprintf("🔄 Restarting %s node...", node.Mode()))
		ok := node.Restart(ctx)
		return m.result(ctx, node, "restart", ok, "restarted", "failed to restart"), nil
	case "status":
		return &ManageNodeResult{Operation: "status", Status: node.Status(ctx), Success: true}, nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", params.Operation)
	}
}

func (m *ManageNode) result(ctx context.Context, node *NodeLifecycle, op string, ok bool, done, failed string) *ManageNodeResult {
	res := &ManageNodeResult{Operation: op, Status: node.Status(ctx), Success: ok}
	if ok {
		res.Message = fmt.Sprintf("%s node %s", node.Mode(), done)
	} else {
		res.Message = fmt.Sprintf("%s node %s", node.Mode(), failed)
		if res.Status.LastError != nil {
			res.Message += ": " + res.Status.LastError.Message
		}
	}
	return res
}
