// Package network loads the network topology file
package network

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
	"gopkg.in/yaml.v3"
)

// DefaultNetwork is used when the topology file names no default
const DefaultNetwork = "local"

const maxSuggestions = 2

// Registry implements usecase.NetworkRegistry over a topology file. The
// file is JSON or YAML; yaml.v3 reads both.
type Registry struct {
	networks       []domain.NetworkDescriptor
	byName         map[string]*domain.NetworkDescriptor
	defaultNetwork string
}

// NewRegistry builds a registry from a topology
func NewRegistry(topology domain.NetworkTopology) *Registry {
	r := &Registry{
		networks:       topology.Networks,
		byName:         make(map[string]*domain.NetworkDescriptor, len(topology.Networks)),
		defaultNetwork: lo.CoalesceOrEmpty(topology.DefaultNetwork, DefaultNetwork),
	}
	for i := range r.networks {
		n := &r.networks[i]
		if n.NetworkName == "" {
			n.NetworkName = n.Network
		}
		r.byName[n.Network] = n
	}
	return r
}

// LoadRegistry reads the configured topology file. A missing file yields an
// empty registry so node and sandbox operations still work.
func LoadRegistry(cfg *config.RuntimeConfig, log *slog.Logger) (*Registry, error) {
	path := cfg.Networks.File
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("network config file not found", "path", path)
			return NewRegistry(domain.NetworkTopology{}), nil
		}
		return nil, fmt.Errorf("failed to read network config: %w", err)
	}

	var topology domain.NetworkTopology
	if err := yaml.Unmarshal(data, &topology); err != nil {
		return nil, fmt.Errorf("failed to parse network config %s: %w", path, err)
	}
	for i, n := range topology.Networks {
		if n.Network == "" {
			return nil, fmt.Errorf("network config %s: entry %d has no name", path, i)
		}
		if n.DeploymentType != domain.DeploymentLocal && n.DeploymentType != domain.DeploymentRemote {
			return nil, fmt.Errorf("network config %s: %s has invalid deployment_type %q", path, n.Network, n.DeploymentType)
		}
	}

	r := NewRegistry(topology)
	log.Info("loaded networks", "count", len(r.networks), "default", r.defaultNetwork)
	return r, nil
}

// Get returns a network by name or a domain.UnknownNetworkErr
func (r *Registry) Get(name string) (*domain.NetworkDescriptor, error) {
	if n, ok := r.byName[name]; ok {
		cp := *n
		return &cp, nil
	}

	names := r.names()
	matches := fuzzy.Find(strings.ToLower(name), names)
	suggestions := lo.Map(matches[:min(len(matches), maxSuggestions)], func(m fuzzy.Match, _ int) string {
		return m.Str
	})
	return nil, domain.UnknownNetworkErr{Name: name, Available: names, Suggestions: suggestions}
}

// List returns all networks in file order
func (r *Registry) List() []domain.NetworkDescriptor {
	out := make([]domain.NetworkDescriptor, len(r.networks))
	copy(out, r.networks)
	return out
}

// Default returns the default network name
func (r *Registry) Default() string {
	return r.defaultNetwork
}

// DeploymentCommand returns the forge command deploying scriptPath to network.
// Local networks are reached through the node's network namespace, so only
// remote networks need an explicit rpc url.
func (r *Registry) DeploymentCommand(network *domain.NetworkDescriptor, scriptPath string) string {
	args := []string{"forge", "script", scriptPath}
	if !network.IsLocal() {
		args = append(args, "--rpc-url", network.RPCURL)
	}
	return shellquote.Join(append(args, "--broadcast")...)
}

func (r *Registry) names() []string {
	return lo.Map(r.networks, func(n domain.NetworkDescriptor, _ int) string { return n.Network })
}

var _ usecase.NetworkRegistry = (*Registry)(nil)
