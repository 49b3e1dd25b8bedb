package domain

// DeploymentType tells whether a network is served by a managed node
type DeploymentType string

const (
	DeploymentLocal  DeploymentType = "local"
	DeploymentRemote DeploymentType = "remote"
)

// NetworkDescriptor is one entry of the network topology file
type NetworkDescriptor struct {
	Network        string         `json:"network" yaml:"network"`
	NetworkName    string         `json:"network_name" yaml:"network_name"`
	ChainID        uint64         `json:"chainID" yaml:"chainID"`
	Description    string         `json:"description" yaml:"description"`
	RPCURL         string         `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`
	DeploymentType DeploymentType `json:"deployment_type" yaml:"deployment_type"`
	RequiresAnvil  bool           `json:"requires_anvil" yaml:"requires_anvil"`
}

// IsLocal reports whether the network is deployed against a managed node
func (n NetworkDescriptor) IsLocal() bool {
	return n.DeploymentType == DeploymentLocal
}

// NetworkTopology is the on-disk shape of the topology file
type NetworkTopology struct {
	Networks       []NetworkDescriptor `json:"networks" yaml:"networks"`
	DefaultNetwork string              `json:"default_network" yaml:"default_network"`
}
