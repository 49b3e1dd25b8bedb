package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// DeploymentRenderer renders compile and publish results
type DeploymentRenderer struct {
	out     io.Writer
	sandbox *SandboxRenderer
}

// NewDeploymentRenderer creates a new deployment renderer
func NewDeploymentRenderer(out io.Writer) *DeploymentRenderer {
	return &DeploymentRenderer{out: out, sandbox: NewSandboxRenderer(out)}
}

// RenderCompile renders a compile result
func (r *DeploymentRenderer) RenderCompile(result *domain.CompileResult) error {
	if result.Cached {
		fmt.Fprintln(r.out, FormatSuccess("Build unchanged, using cached result"))
		labelStyle.Fprintf(r.out, "Cache key: %s\n", result.CacheKey)
		return nil
	}
	if result.Exec != nil {
		if err := r.sandbox.RenderExec(result.Exec); err != nil {
			return err
		}
	}
	if result.ArtifactsDir != "" {
		labelStyle.Fprintf(r.out, "Artifacts: %s\n", result.ArtifactsDir)
	}
	return nil
}

// RenderPublish renders a publish result
func (r *DeploymentRenderer) RenderPublish(result *domain.PublishResult) error {
	if result.Cached {
		fmt.Fprintln(r.out, FormatSuccess("Deployment unchanged, using cached result"))
	} else if result.Exec != nil {
		if err := r.sandbox.RenderExec(result.Exec); err != nil {
			return err
		}
	}
	if !result.Success {
		return nil
	}

	fmt.Fprintln(r.out)
	headerStyle.Fprintf(r.out, "🚀 Deployed to %s (chain %d)", result.Network.NetworkName, result.Network.ChainID)
	if result.Version > 0 {
		headerStyle.Fprintf(r.out, " as version %d", result.Version)
	}
	fmt.Fprintln(r.out)
	if result.NodeRPC != "" {
		urlStyle.Fprintf(r.out, "RPC: %s (%s node)\n", result.NodeRPC, result.NodeMode)
	}

	if len(result.Contracts) == 0 {
		fmt.Fprintln(r.out, FormatWarning("No deployed contracts detected"))
		return nil
	}
	t := newTable()
	t.SetOutputMirror(r.out)
	t.AppendHeader(table.Row{"Contract", "Address", "Source"})
	for _, c := range result.Contracts {
		t.AppendRow(table.Row{c.Name, addressStyle.Sprint(c.Address), string(c.Confidence)})
	}
	t.Render()
	return nil
}
