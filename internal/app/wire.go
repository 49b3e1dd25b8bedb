//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-runner/internal/adapters"
	"github.com/trebuchet-org/treb-runner/internal/config"
	"github.com/trebuchet-org/treb-runner/internal/logging"
	"github.com/trebuchet-org/treb-runner/internal/server"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper, sink usecase.ProgressSink) (*App, error) {
	wire.Build(
		// Configuration
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Orchestrator components
		usecase.NewImageResolver,
		usecase.NewContentCache,
		usecase.NewSandboxPool,
		usecase.NewNodeManagers,

		// Use cases
		usecase.NewManageNode,
		usecase.NewListNetworks,
		usecase.NewCompileProject,
		usecase.NewPublishDeployment,

		// HTTP API
		server.NewHandler,
		server.NewServer,

		// App
		NewApp,
	)
	return nil, nil
}
