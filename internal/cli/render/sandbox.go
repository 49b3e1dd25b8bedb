package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// SandboxRenderer renders sandbox pool state and execution results
type SandboxRenderer struct {
	out io.Writer
}

// NewSandboxRenderer creates a new sandbox renderer
func NewSandboxRenderer(out io.Writer) *SandboxRenderer {
	return &SandboxRenderer{out: out}
}

// RenderStatus renders the pool status as a table
func (r *SandboxRenderer) RenderStatus(sandboxes []domain.SandboxStatus) error {
	if len(sandboxes) == 0 {
		fmt.Fprintln(r.out, "No sandboxes running")
		return nil
	}
	t := newTable()
	t.SetOutputMirror(r.out)
	t.AppendHeader(table.Row{"Toolchain", "Container", "Status", "Placement", "Started", "Idle"})
	for _, sb := range sandboxes {
		id := sb.ContainerID
		if len(id) > 12 {
			id = id[:12]
		}
		t.AppendRow(table.Row{title(string(sb.Toolchain)), id, sb.Status, sb.Placement.String(), formatTime(sb.StartedAt), sb.IdleFor})
	}
	t.Render()
	return nil
}

// RenderExec renders the outcome of one command
func (r *SandboxRenderer) RenderExec(result *domain.ExecResult) error {
	if out := strings.TrimRight(result.Output, "\n"); out != "" {
		fmt.Fprintln(r.out, out)
		fmt.Fprintln(r.out)
	}
	reuse := "new container"
	if result.Reused {
		reuse = "reused container"
	}
	switch {
	case result.TimedOut:
		fmt.Fprintln(r.out, FormatWarning(fmt.Sprintf("Timed out after %s (%s)", result.Duration.Round(time.Millisecond), reuse)))
	case result.Success:
		fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Completed in %s (%s)", result.Duration.Round(time.Millisecond), reuse)))
	default:
		fmt.Fprintln(r.out, FormatError(fmt.Sprintf("exit code %d", result.ExitCode)))
	}
	return nil
}
