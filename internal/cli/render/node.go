package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// NodeRenderer renders node operation results
type NodeRenderer struct {
	out io.Writer
}

// NewNodeRenderer creates a new node renderer
func NewNodeRenderer(out io.Writer) *NodeRenderer {
	return &NodeRenderer{out: out}
}

// Render renders the node operation result
func (r *NodeRenderer) Render(result *usecase.ManageNodeResult) error {
	switch result.Operation {
	case "start", "restart":
		return r.renderStart(result)
	case "stop":
		return r.renderStop(result)
	case "status":
		return r.RenderStatus(result.Status)
	default:
		return fmt.Errorf("unknown operation: %s", result.Operation)
	}
}

func (r *NodeRenderer) renderStart(result *usecase.ManageNodeResult) error {
	if !result.Success {
		fmt.Fprintln(r.out, FormatError(result.Message))
		r.renderLastError(result.Status.LastError)
		return nil
	}
	fmt.Fprintln(r.out, FormatSuccess(result.Message))
	urlStyle.Fprintf(r.out, "🌐 Container: %s (port %d)\n", result.Status.ContainerName, result.Status.Port)
	if result.Status.IsForked {
		warnStyle.Fprintln(r.out, "🍴 Forked from upstream chain")
	}
	if latest := result.Status.Snapshots.Latest; latest != nil {
		labelStyle.Fprintf(r.out, "💾 Latest snapshot: %s\n", latest.File)
	}
	return nil
}

func (r *NodeRenderer) renderStop(result *usecase.ManageNodeResult) error {
	if result.Success {
		fmt.Fprintln(r.out, FormatSuccess(result.Message))
		return nil
	}
	fmt.Fprintln(r.out, FormatError(result.Message))
	r.renderLastError(result.Status.LastError)
	return nil
}

// RenderStatus renders the status of one node
func (r *NodeRenderer) RenderStatus(status domain.NodeStatus) error {
	headerStyle.Fprintf(r.out, "📊 %s Node Status ('%s'):\n", title(string(status.Mode)), status.ContainerName)

	if status.Running {
		okStyle.Fprintf(r.out, "Status: 🟢 Running on port %d\n", status.Port)
		if status.IsForked {
			warnStyle.Fprintln(r.out, "Fork: 🍴 yes")
		}
	} else {
		failStyle.Fprintf(r.out, "Status: 🔴 Not running (%s)\n", status.ContainerStatus)
	}
	labelStyle.Fprintf(r.out, "Network: %s\n", status.Network)
	labelStyle.Fprintf(r.out, "Last activity: %s\n", formatTime(status.LastActivity))

	if status.Snapshots.Enabled {
		snaps := status.Snapshots
		if snaps.Latest != nil {
			color.New(color.FgMagenta).Fprintf(r.out, "Snapshots: %d (latest %s, %s)\n",
				snaps.Total, snaps.Latest.File, formatBytes(snaps.Latest.SizeBytes))
		} else {
			labelStyle.Fprintln(r.out, "Snapshots: none")
		}
	}
	r.renderLastError(status.LastError)
	return nil
}

func (r *NodeRenderer) renderLastError(rec *domain.ErrorRecord) {
	if rec == nil {
		return
	}
	failStyle.Fprintf(r.out, "Last error [%s] at %s: %s\n", rec.Kind, formatTime(rec.Timestamp), rec.Message)
	if rec.Cause != nil {
		labelStyle.Fprintf(r.out, "  caused by %s: %s\n", rec.Cause.Type, rec.Cause.Message)
	}
}
