package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

// DefaultDeployScript is used when a publish request names no script
const DefaultDeployScript = "script/Deploy.s.sol"

// PublishDeployment runs a deployment script against a network, starting the
// matching node variant for local networks
type PublishDeployment struct {
	cfg       *config.RuntimeConfig
	networks  NetworkRegistry
	nodes     *NodeManagers
	pool      *SandboxPool
	images    *ImageResolver
	cache     *ContentCache
	extractor DeploymentExtractor
	history   DeploymentHistoryStore
	progress  ProgressSink
	log       *slog.Logger
	now       func() time.Time
}

// NewPublishDeployment creates a new publish use case
func NewPublishDeployment(
	cfg *config.RuntimeConfig,
	networks NetworkRegistry,
	nodes *NodeManagers,
	pool *SandboxPool,
	images *ImageResolver,
	cache *ContentCache,
	extractor DeploymentExtractor,
	history DeploymentHistoryStore,
	progress ProgressSink,
	log *slog.Logger,
) *PublishDeployment {
	return &PublishDeployment{
		cfg:       cfg,
		networks:  networks,
		nodes:     nodes,
		pool:      pool,
		images:    images,
		cache:     cache,
		extractor: extractor,
		history:   history,
		progress:  progress,
		log:       log.With("component", "publish"),
		now:       time.Now,
	}
}

// Run deploys the project. Failed commands come back as a result with
// Success=false; errors are reserved for requests that could not run at all.
func (uc *PublishDeployment) Run(ctx context.Context, req domain.PublishRequest) (*domain.PublishResult, error) {
	projectPath, err := resolveProject(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	toolchain := req.Toolchain
	if toolchain == "" {
		toolchain = domain.ToolchainFoundry
	}
	img, ok := uc.cfg.Images[toolchain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownToolchain, toolchain)
	}
	networkName := req.Network
	if networkName == "" {
		networkName = uc.networks.Default()
	}
	network, err := uc.networks.Get(networkName)
	if err != nil {
		return nil, err
	}
	script := req.Script
	if script == "" {
		script = DefaultDeployScript
	}

	result := &domain.PublishResult{Network: *network}

	key, err := uc.cache.Key(projectPath, domain.InvocationParams{Script: script, ForkURL: network.RPCURL})
	if err != nil {
		uc.log.Warn("fingerprint failed, deploying without cache", "error", err)
		key = ""
	}
	// cached deployments are only trusted for remote networks, local node state
	// may have been reset since
	if key != "" && !network.IsLocal() {
		if payload, hit := uc.cache.Get(ctx, key); hit {
			var cached domain.PublishResult
			if err := json.Unmarshal(payload, &cached); err == nil {
				uc.progress.Info("✅ Using cached deployment")
				cached.Cached = true
				return &cached, nil
			}
		}
	}
	result.CacheKey = key

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "image", Message: fmt.Sprintf("Resolving %s image", toolchain), Spinner: true})
	imageCached, imageID, err := uc.images.Resolve(ctx, img.Recipe, img.Tag)
	if err != nil {
		return nil, err
	}
	result.ImageCached = imageCached

	var node *NodeLifecycle
	if network.IsLocal() {
		node, err = uc.ensureNode(ctx, req)
		if err != nil {
			return nil, err
		}
		result.NodeMode = node.Mode()
		result.NodeRPC = node.RPCURL()
	}

	peer := ""
	if node != nil {
		peer = node.ContainerName()
	}
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "deploy", Message: fmt.Sprintf("Deploying to %s", network.NetworkName), Spinner: true})
	exec, err := uc.pool.Execute(ctx, domain.ExecRequest{
		Toolchain:   toolchain,
		Command:     uc.deployCommand(toolchain, network, script),
		ProjectPath: projectPath,
		Network:     network,
		PeerNode:    peer,
		Timeout:     req.Timeout,
	})
	if node != nil {
		node.Touch()
	}
	if err != nil {
		return nil, err
	}
	result.Exec = exec
	result.Success = exec.Success
	if !exec.Success {
		result.Contracts = []domain.DeployedContract{}
		return result, nil
	}

	result.Contracts = uc.extract(ctx, toolchain, projectPath, script, network.ChainID, exec)

	fork := req.Fork
	version := domain.DeploymentVersion{
		Timestamp:  uc.now(),
		Network:    network.Network,
		ChainID:    network.ChainID,
		Toolchain:  toolchain,
		ScriptPath: script,
		Contracts:  result.Contracts,
	}
	if network.IsLocal() {
		version.Fork = &fork
	}
	history, err := uc.history.Append(projectPath, version)
	if err != nil {
		uc.log.Warn("failed to record deployment history", "error", err)
	} else {
		result.Version = history.CurrentVersion
	}

	if key != "" {
		if err := uc.cache.Put(ctx, key, result, map[domain.Toolchain]string{toolchain: imageID}); err != nil {
			uc.log.Warn("failed to cache deployment", "error", err)
		}
	}
	return result, nil
}

// ensureNode stops the other node variant and starts the requested one
func (uc *PublishDeployment) ensureNode(ctx context.Context, req domain.PublishRequest) (*NodeLifecycle, error) {
	node, other := uc.nodes.Local, uc.nodes.Fork
	if req.Fork {
		node, other = uc.nodes.Fork, uc.nodes.Local
	}
	if !other.Stop(ctx) {
		uc.log.Warn("failed to stop other node variant", "mode", other.Mode())
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "node", Message: fmt.Sprintf("Starting %s node", node.Mode()), Spinner: true})
	if !node.Start(ctx, domain.StartNodeOptions{ForkURL: req.ForkURL, UseSnapshot: req.UseSnapshot}) {
		msg := fmt.Sprintf("failed to start %s node", node.Mode())
		if st := node.Status(ctx); st.LastError != nil {
			msg += ": " + st.LastError.Message
		}
		return nil, errors.New(msg)
	}
	return node, nil
}

func (uc *PublishDeployment) deployCommand(t domain.Toolchain, network *domain.NetworkDescriptor, script string) string {
	if t == domain.ToolchainHardhat {
		return "npx hardhat run scripts/deploy.js --network localhost"
	}
	return uc.networks.DeploymentCommand(network, script)
}

// extract reads deployed contracts from the broadcast run file and falls back
// to scraping the command output
func (uc *PublishDeployment) extract(ctx context.Context, t domain.Toolchain, projectPath, script string, chainID uint64, exec *domain.ExecResult) []domain.DeployedContract {
	if t == domain.ToolchainFoundry {
		err := uc.pool.FetchArtifacts(ctx, t, projectPath, "broadcast", filepath.Join(projectPath, "broadcast"))
		if err != nil {
			uc.log.Warn("failed to fetch broadcast files", "error", err)
		}
		contracts, err := uc.extractor.FromBroadcast(projectPath, script, chainID)
		if err == nil {
			return contracts
		}
		uc.log.Warn("broadcast unavailable, falling back to output parsing", "error", err)
	}
	contracts := uc.extractor.FromOutput(exec.Output)
	if contracts == nil {
		contracts = []domain.DeployedContract{}
	}
	return contracts
}
