package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// NetworksRenderer renders network lists
type NetworksRenderer struct {
	out io.Writer
}

// NewNetworksRenderer creates a new networks renderer
func NewNetworksRenderer(out io.Writer) *NetworksRenderer {
	return &NetworksRenderer{out: out}
}

// RenderNetworksList renders the list of networks as a table
func (r *NetworksRenderer) RenderNetworksList(result *usecase.ListNetworksResult) error {
	if len(result.Networks) == 0 {
		fmt.Fprintln(r.out, "No networks configured")
		return nil
	}

	fmt.Fprintln(r.out, "🌐 Available Networks:")
	fmt.Fprintln(r.out)

	t := newTable()
	t.SetOutputMirror(r.out)
	t.AppendHeader(table.Row{"", "Network", "Chain ID", "Type", "RPC"})
	for _, n := range result.Networks {
		marker := ""
		if n.Network == result.DefaultNetwork {
			marker = "*"
		}
		rpc := n.RPCURL
		if n.IsLocal() {
			rpc = "managed node"
		}
		t.AppendRow(table.Row{marker, n.Network, strconv.FormatUint(n.ChainID, 10), string(n.DeploymentType), rpc})
	}
	t.Render()
	fmt.Fprintln(r.out)
	labelStyle.Fprintf(r.out, "* default network (%s)\n", result.DefaultNetwork)
	return nil
}

// RenderNetwork renders one network
func (r *NetworksRenderer) RenderNetwork(n *domain.NetworkDescriptor) error {
	headerStyle.Fprintf(r.out, "🌐 %s\n", n.NetworkName)
	fmt.Fprintf(r.out, "Network:    %s\n", n.Network)
	fmt.Fprintf(r.out, "Chain ID:   %d\n", n.ChainID)
	fmt.Fprintf(r.out, "Type:       %s\n", n.DeploymentType)
	if n.RPCURL != "" {
		fmt.Fprintf(r.out, "RPC URL:    %s\n", urlStyle.Sprint(n.RPCURL))
	}
	if n.Description != "" {
		fmt.Fprintf(r.out, "About:      %s\n", n.Description)
	}
	return nil
}
