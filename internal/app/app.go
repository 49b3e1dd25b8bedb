package app

import (
	"errors"
	"io"
	"log/slog"

	"github.com/trebuchet-org/treb-runner/internal/adapters/docker"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"github.com/trebuchet-org/treb-runner/internal/server"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig
	Log    *slog.Logger

	// Orchestrator components
	Nodes  *usecase.NodeManagers
	Pool   *usecase.SandboxPool
	Images *usecase.ImageResolver
	Cache  *usecase.ContentCache

	// Use cases
	ManageNode        *usecase.ManageNode
	ListNetworks      *usecase.ListNetworks
	CompileProject    *usecase.CompileProject
	PublishDeployment *usecase.PublishDeployment

	// HTTP API
	Server *server.Server

	runtime *docker.Runtime
	store   usecase.CacheStore
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	log *slog.Logger,
	nodes *usecase.NodeManagers,
	pool *usecase.SandboxPool,
	images *usecase.ImageResolver,
	cache *usecase.ContentCache,
	manageNode *usecase.ManageNode,
	listNetworks *usecase.ListNetworks,
	compileProject *usecase.CompileProject,
	publishDeployment *usecase.PublishDeployment,
	srv *server.Server,
	runtime *docker.Runtime,
	store usecase.CacheStore,
) (*App, error) {
	return &App{
		Config:            cfg,
		Log:               log,
		Nodes:             nodes,
		Pool:              pool,
		Images:            images,
		Cache:             cache,
		ManageNode:        manageNode,
		ListNetworks:      listNetworks,
		CompileProject:    compileProject,
		PublishDeployment: publishDeployment,
		Server:            srv,
		runtime:           runtime,
		store:             store,
	}, nil
}

// Close releases the docker client and the cache connection. It does not
// stop containers; use Pool.CleanupAll and the node managers for that.
func (a *App) Close() error {
	var errs []error
	if a.runtime != nil {
		errs = append(errs, a.runtime.Close())
	}
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
