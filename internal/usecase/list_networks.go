package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// ListNetworksResult contains the result of listing networks
type ListNetworksResult struct {
	Networks       []domain.NetworkDescriptor `json:"networks"`
	DefaultNetwork string                     `json:"default_network"`
}

// ListNetworks is a use case for listing available networks
type ListNetworks struct {
	registry NetworkRegistry
}

// NewListNetworks creates a new ListNetworks use case
func NewListNetworks(registry NetworkRegistry) *ListNetworks {
	return &ListNetworks{
		registry: registry,
	}
}

// Run executes the use case
func (uc *ListNetworks) Run(ctx context.Context) (*ListNetworksResult, error) {
	return &ListNetworksResult{
		Networks:       uc.registry.List(),
		DefaultNetwork: uc.registry.Default(),
	}, nil
}

// Get resolves a single network
func (uc *ListNetworks) Get(ctx context.Context, name string) (*domain.NetworkDescriptor, error) {
	return uc.registry.Get(name)
}
