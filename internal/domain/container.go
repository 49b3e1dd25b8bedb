package domain

import "io"

// Container states as reported by the runtime
const (
	ContainerRunning = "running"
	ContainerExited  = "exited"
	ContainerCreated = "created"
	ContainerMissing = "not_found"
)

// ContainerInfo is the subset of container metadata the orchestrator needs
type ContainerInfo struct {
	ID     string
	Name   string
	Image  string
	Status string
	Args   []string
	// HostPorts are the host-side ports published by the container
	HostPorts []int
}

// Running reports whether the runtime considers the container running
func (c ContainerInfo) Running() bool {
	return c.Status == ContainerRunning
}

// Mount binds a host path into a container
type Mount struct {
	Source string
	Target string
}

// ContainerSpec is everything needed to create and start a container
type ContainerSpec struct {
	Name        string
	Image       string
	Cmd         []string
	WorkingDir  string
	NetworkMode string
	// Ports are published as host:container 1:1 over tcp
	Ports  []int
	Mounts []Mount
	Labels map[string]string
}

// ExecSpec runs a command inside a running container
type ExecSpec struct {
	Cmd        []string
	WorkingDir string
	Output     io.Writer
}
