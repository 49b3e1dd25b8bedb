package adapters

import (
	"github.com/google/wire"
	"github.com/trebuchet-org/treb-runner/internal/adapters/anvil"
	"github.com/trebuchet-org/treb-runner/internal/adapters/docker"
	"github.com/trebuchet-org/treb-runner/internal/adapters/forge/broadcast"
	"github.com/trebuchet-org/treb-runner/internal/adapters/fs"
	"github.com/trebuchet-org/treb-runner/internal/adapters/network"
	"github.com/trebuchet-org/treb-runner/internal/adapters/redisstore"
	"github.com/trebuchet-org/treb-runner/internal/config"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// DockerSet provides the container runtime
var DockerSet = wire.NewSet(
	docker.NewRuntime,
	wire.Bind(new(usecase.ContainerRuntime), new(*docker.Runtime)),

	docker.NewProjectArchiver,
	wire.Bind(new(usecase.ProjectArchiver), new(*docker.ProjectArchiver)),
)

// StoreSet provides the shared cache store
var StoreSet = wire.NewSet(
	redisstore.ProvideCacheStore,
)

// NodeSet provides node RPC and snapshot storage
var NodeSet = wire.NewSet(
	anvil.NewClient,
	wire.Bind(new(usecase.NodeRPC), new(*anvil.Client)),

	fs.NewSnapshotStoreAdapter,
	wire.Bind(new(usecase.NodeSnapshotStore), new(*fs.SnapshotStoreAdapter)),
)

// FSSet provides filesystem-based implementations
var FSSet = wire.NewSet(
	fs.NewDeploymentHistoryAdapter,
	wire.Bind(new(usecase.DeploymentHistoryStore), new(*fs.DeploymentHistoryAdapter)),

	broadcast.NewExtractor,
	wire.Bind(new(usecase.DeploymentExtractor), new(*broadcast.Extractor)),
)

// ConfigSet provides configuration-based implementations
var ConfigSet = wire.NewSet(
	network.LoadRegistry,
	wire.Bind(new(usecase.NetworkRegistry), new(*network.Registry)),

	config.NewFoundryLoader,
	wire.Bind(new(usecase.ProjectLayoutLoader), new(*config.FoundryLoader)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	DockerSet,
	StoreSet,
	NodeSet,
	FSSet,
	ConfigSet,
)
