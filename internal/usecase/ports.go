package usecase

import (
	"context"
	"io"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

// ContainerRuntime is the container engine the orchestrator drives
type ContainerRuntime interface {
	Ping(ctx context.Context) error
	EnsureNetwork(ctx context.Context, name string) (created bool, err error)

	// InspectContainer returns domain.ErrNotFound when no container matches ref
	InspectContainer(ctx context.Context, ref string) (*domain.ContainerInfo, error)
	ListContainers(ctx context.Context, all bool) ([]domain.ContainerInfo, error)
	RunContainer(ctx context.Context, spec domain.ContainerSpec) (string, error)
	StopContainer(ctx context.Context, ref string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, ref string) error

	// Exec returns the exit code of the command. Output is streamed to spec.Output.
	Exec(ctx context.Context, ref string, spec domain.ExecSpec) (int, error)
	CopyToContainer(ctx context.Context, ref, dstDir string, tarStream io.Reader) error
	// CopyFromContainer replaces hostDir with a copy of srcPath
	CopyFromContainer(ctx context.Context, ref, srcPath, hostDir string) error
	CommitContainer(ctx context.Context, ref, image string) (string, error)

	// FindImage returns the image id for ref or domain.ErrNotFound
	FindImage(ctx context.Context, ref string) (string, error)
	BuildImage(ctx context.Context, recipe domain.BuildRecipe, tag string) (string, error)
	RemoveImage(ctx context.Context, ref string) error
}

// ProjectArchiver streams a project directory as a tar archive
type ProjectArchiver interface {
	Archive(projectPath string, exclude []string) (io.ReadCloser, error)
}

// ProjectLayoutLoader reads foundry.toml of a project. Projects without one
// get an empty config so defaults apply.
type ProjectLayoutLoader interface {
	Load(projectPath string) (*config.FoundryConfig, error)
}

// CacheStore is a shared key/value store with expiry. Get returns
// domain.ErrCacheMiss for absent keys. Stores that are not reachable report
// Enabled() == false and behave as an always-empty cache.
type CacheStore interface {
	Enabled() bool
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// NodeRPC talks to a running anvil node
type NodeRPC interface {
	ChainID(ctx context.Context, url string) (uint64, error)
	DumpState(ctx context.Context, url string) ([]byte, error)
}

// NodeSnapshotStore keeps node state dumps on the host. Paths it returns are
// host paths; ContainerPath maps them to where the node container sees them.
type NodeSnapshotStore interface {
	Dir(mode domain.NodeMode) string
	Save(mode domain.NodeMode, state []byte) (*domain.NodeSnapshot, error)
	Latest(mode domain.NodeMode) (*domain.NodeSnapshot, error)
	List(mode domain.NodeMode) ([]domain.NodeSnapshot, error)
	DeleteAll(mode domain.NodeMode) (int, error)
	ContainerDir() string
	ContainerPath(snapshot *domain.NodeSnapshot) string
}

// NetworkRegistry resolves network names from the topology file
type NetworkRegistry interface {
	Get(name string) (*domain.NetworkDescriptor, error)
	List() []domain.NetworkDescriptor
	Default() string
	DeploymentCommand(network *domain.NetworkDescriptor, scriptPath string) string
}

// DeploymentExtractor recovers deployed contracts from a deployment run.
// FromBroadcast returns domain.ErrNotFound when no run file exists.
type DeploymentExtractor interface {
	FromBroadcast(projectPath, scriptPath string, chainID uint64) ([]domain.DeployedContract, error)
	FromOutput(output string) []domain.DeployedContract
}

// DeploymentHistoryStore persists the deployment history of a project
type DeploymentHistoryStore interface {
	Load(projectPath string) (*domain.DeploymentHistory, error)
	Append(projectPath string, version domain.DeploymentVersion) (*domain.DeploymentHistory, error)
}

// ErrorReporter records structured failures and never fails itself
type ErrorReporter interface {
	Report(component string, kind domain.ErrorKind, message string, err error, details map[string]any) *domain.ErrorRecord
}

// Progress tracking interfaces

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage   string
	Message string
	Spinner bool
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
func (NopProgress) Info(string)                               {}
func (NopProgress) Error(string)                              {}
