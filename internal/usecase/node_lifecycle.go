package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

const nodeComponent = "node_lifecycle"

// NodeLifecycle owns the anvil container of one mode. Every operation runs
// under the instance lock, including the idle shutdown callback.
type NodeLifecycle struct {
	mode      domain.NodeMode
	cfg       *config.RuntimeConfig
	runtime   ContainerRuntime
	rpc       NodeRPC
	snapshots NodeSnapshotStore
	store     CacheStore
	reporter  ErrorReporter
	log       *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	containerID  string
	forkURL      string
	startedAt    time.Time
	lastActivity time.Time
	timer        idleTimer
	lastErr      *domain.ErrorRecord
}

// NewNodeLifecycle creates a manager for a single node mode
func NewNodeLifecycle(
	mode domain.NodeMode,
	cfg *config.RuntimeConfig,
	runtime ContainerRuntime,
	rpc NodeRPC,
	snapshots NodeSnapshotStore,
	store CacheStore,
	reporter ErrorReporter,
	log *slog.Logger,
) *NodeLifecycle {
	return &NodeLifecycle{
		mode:      mode,
		cfg:       cfg,
		runtime:   runtime,
		rpc:       rpc,
		snapshots: snapshots,
		store:     store,
		reporter:  reporter,
		log:       log.With("component", nodeComponent, "mode", mode),
		now:       time.Now,
	}
}

// Mode returns the mode this manager was built for
func (m *NodeLifecycle) Mode() domain.NodeMode {
	return m.mode
}

// ContainerName is the name of the container this manager creates
func (m *NodeLifecycle) ContainerName() string {
	return m.cfg.NodeContainerName(m.mode)
}

// RPCURL is the host-side JSON-RPC endpoint of the node
func (m *NodeLifecycle) RPCURL() string {
	return fmt.Sprintf("http://%s:%d", m.cfg.Node.RPCHost, m.cfg.Node.Port)
}

// Start ensures the node is running. It returns true when a ready node is
// available, either reused or freshly started.
func (m *NodeLifecycle) Start(ctx context.Context, opts domain.StartNodeOptions) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info := m.liveContainerLocked(ctx); info != nil {
		m.containerID = info.ID
		m.touchLocked()
		m.log.Debug("node already running", "container", info.Name)
		return true
	}
	return m.startLocked(ctx, opts)
}

// Stop tears the node down. Local nodes dump their state first.
func (m *NodeLifecycle) Stop(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

// Restart stops the node, drops every snapshot and starts from a clean chain
func (m *NodeLifecycle) Restart(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stopLocked(ctx) {
		m.log.Warn("node did not stop cleanly, starting anyway", "container", m.ContainerName())
	}
	if m.mode.Snapshottable() {
		removed, err := m.snapshots.DeleteAll(m.mode)
		if err != nil {
			m.log.Warn("failed to delete snapshots", "error", err)
		} else {
			m.log.Info("deleted snapshots", "count", removed)
		}
		deleteRecords(ctx, m.store, m.log, nodeSnapshotPrefix+string(m.mode))
	}
	return m.startLocked(ctx, domain.StartNodeOptions{ForkURL: m.forkURL})
}

// Touch records activity and pushes back the idle shutdown
func (m *NodeLifecycle) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.containerID != "" {
		m.touchLocked()
	}
}

// Status reports the node state as seen by the runtime
func (m *NodeLifecycle) Status(ctx context.Context) domain.NodeStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := domain.NodeStatus{
		Mode:            m.mode,
		Port:            m.cfg.Node.Port,
		ContainerName:   m.ContainerName(),
		Network:         m.cfg.Docker.Network,
		ContainerStatus: domain.ContainerMissing,
		LastActivity:    m.lastActivity,
		LastError:       m.lastErr,
	}

	info, err := m.runtime.InspectContainer(ctx, m.ContainerName())
	switch {
	case err == nil:
		status.Running = info.Running()
		status.ContainerStatus = info.Status
		status.IsForked = slices.Contains(info.Args, "--fork-url")
	case !errors.Is(err, domain.ErrNotFound):
		status.ContainerStatus = "error"
		status.LastError = m.reporter.Report(nodeComponent, domain.KindStatusCheckFailed,
			"failed to inspect node container", err, map[string]any{"container": m.ContainerName()})
	}

	status.Snapshots = m.snapshotSummary()
	return status
}

func (m *NodeLifecycle) snapshotSummary() domain.SnapshotSummary {
	summary := domain.SnapshotSummary{Enabled: m.mode.Snapshottable(), Snapshots: []domain.NodeSnapshot{}}
	if !summary.Enabled {
		return summary
	}
	snaps, err := m.snapshots.List(m.mode)
	if err != nil {
		m.log.Warn("failed to list snapshots", "error", err)
		return summary
	}
	summary.Snapshots = snaps
	summary.Total = len(snaps)
	if len(snaps) > 0 {
		latest := snaps[0]
		summary.Latest = &latest
	}
	return summary
}

// liveContainerLocked returns the running container owned by this manager, if any
func (m *NodeLifecycle) liveContainerLocked(ctx context.Context) *domain.ContainerInfo {
	ref := m.containerID
	if ref == "" {
		ref = m.ContainerName()
	}
	info, err := m.runtime.InspectContainer(ctx, ref)
	if err != nil || !info.Running() {
		m.containerID = ""
		return nil
	}
	return info
}

func (m *NodeLifecycle) startLocked(ctx context.Context, opts domain.StartNodeOptions) bool {
	details := map[string]any{"container": m.ContainerName(), "port": m.cfg.Node.Port}

	if err := m.runtime.Ping(ctx); err != nil {
		m.lastErr = m.reporter.Report(nodeComponent, domain.KindRuntimeUnavailable, "container runtime unreachable", err, details)
		return false
	}
	if _, err := m.runtime.EnsureNetwork(ctx, m.cfg.Docker.Network); err != nil {
		m.lastErr = m.reporter.Report(nodeComponent, domain.KindNetworkCreationFailed,
			"failed to ensure docker network", err, map[string]any{"network": m.cfg.Docker.Network})
		return false
	}
	if err := m.evictLocked(ctx); err != nil {
		m.lastErr = m.reporter.Report(nodeComponent, domain.KindConflict, "failed to evict conflicting containers", err, details)
		return false
	}

	forkURL := ""
	if m.mode == domain.NodeModeFork {
		forkURL = lo.CoalesceOrEmpty(opts.ForkURL, m.cfg.Node.ForkURL)
	}

	spec := domain.ContainerSpec{
		Name:        m.ContainerName(),
		Image:       m.cfg.Node.Image,
		NetworkMode: m.cfg.Docker.Network,
		Ports:       []int{m.cfg.Node.Port},
		Labels: map[string]string{
			"treb.runner.role": "node",
			"treb.runner.mode": string(m.mode),
		},
	}

	loadState := ""
	if m.mode.Snapshottable() {
		spec.Mounts = []domain.Mount{{Source: m.snapshots.Dir(m.mode), Target: m.snapshots.ContainerDir()}}
		if opts.UseSnapshot {
			snap, err := m.snapshots.Latest(m.mode)
			switch {
			case err == nil:
				loadState = m.snapshots.ContainerPath(snap)
				m.log.Info("restoring node state", "snapshot", snap.File)
			case errors.Is(err, domain.ErrNotFound):
				m.log.Info("no snapshot to restore, starting fresh")
			default:
				m.log.Warn("failed to look up snapshot, starting fresh", "error", err)
			}
		}
	}
	spec.Cmd = append([]string{"anvil"}, buildNodeArgs(m.cfg.Node.Port, forkURL, loadState)...)

	m.log.Info("starting node", "container", spec.Name, "port", m.cfg.Node.Port, "fork_url", forkURL)
	id, err := m.runtime.RunContainer(ctx, spec)
	if err != nil {
		m.lastErr = m.reporter.Report(nodeComponent, domain.KindContainerStartFailed, "failed to start node container", err, details)
		return false
	}
	m.containerID = id

	if err := m.waitReady(ctx); err != nil {
		m.teardownLocked(ctx)
		details["retries"] = m.cfg.Node.ReadyRetries
		m.lastErr = m.reporter.Report(nodeComponent, domain.KindReadinessTimeout,
			"node did not become ready", err, details)
		return false
	}

	m.forkURL = forkURL
	m.startedAt = m.now()
	m.lastErr = nil
	m.touchLocked()
	m.log.Info("node ready", "container", spec.Name, "rpc", m.RPCURL())
	return true
}

// waitReady polls eth_chainId until the node answers or the retries run out
func (m *NodeLifecycle) waitReady(ctx context.Context) error {
	var lastErr error
	for i := 0; i < m.cfg.Node.ReadyRetries; i++ {
		_, err := m.rpc.ChainID(ctx, m.RPCURL())
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Node.ReadyInterval):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrReadinessTimeout, m.cfg.Node.ReadyRetries, lastErr)
}

// evictLocked removes the container holding our name and any running
// container publishing our port, whether we own it or not
func (m *NodeLifecycle) evictLocked(ctx context.Context) error {
	if err := m.runtime.RemoveContainer(ctx, m.ContainerName()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to remove stale container %s: %w", m.ContainerName(), err)
	}

	containers, err := m.runtime.ListContainers(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range containers {
		if !slices.Contains(c.HostPorts, m.cfg.Node.Port) {
			continue
		}
		m.log.Warn("evicting container bound to node port", "container", c.Name, "id", c.ID, "port", m.cfg.Node.Port)
		if err := m.runtime.StopContainer(ctx, c.ID, m.cfg.Node.StopTimeout); err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.log.Warn("failed to stop port holder", "container", c.Name, "error", err)
		}
		if err := m.runtime.RemoveContainer(ctx, c.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to remove port holder %s: %w", c.Name, err)
		}
	}
	return nil
}

func (m *NodeLifecycle) stopLocked(ctx context.Context) bool {
	m.timer.cancel()

	info := m.liveContainerLocked(ctx)
	if info == nil {
		// remove an exited leftover so the next start gets a clean name
		if err := m.runtime.RemoveContainer(ctx, m.ContainerName()); err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.log.Warn("failed to remove stopped node container", "error", err)
		}
		return true
	}
	m.containerID = info.ID

	if m.mode.Snapshottable() {
		m.dumpStateLocked(ctx)
	}

	m.log.Info("stopping node", "container", info.Name)
	return m.teardownLocked(ctx)
}

// teardownLocked stops and removes the current container
func (m *NodeLifecycle) teardownLocked(ctx context.Context) bool {
	details := map[string]any{"container": m.ContainerName(), "id": m.containerID}
	if err := m.runtime.StopContainer(ctx, m.containerID, m.cfg.Node.StopTimeout); err != nil && !errors.Is(err, domain.ErrNotFound) {
		m.log.Warn("failed to stop node container, forcing removal", "error", err)
	}
	if err := m.runtime.RemoveContainer(ctx, m.containerID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		m.lastErr = m.reporter.Report(nodeComponent, domain.KindContainerStopFailed, "failed to remove node container", err, details)
		return false
	}
	m.containerID = ""
	deleteRecords(ctx, m.store, m.log, nodeStatePrefix+string(m.mode))
	return true
}

// dumpStateLocked writes the node state to the snapshot directory. Failures
// are reported and never block the teardown.
func (m *NodeLifecycle) dumpStateLocked(ctx context.Context) {
	state, err := m.rpc.DumpState(ctx, m.RPCURL())
	if err != nil {
		m.reporter.Report(nodeComponent, domain.KindSnapshotFailed, "failed to dump node state", err,
			map[string]any{"container": m.ContainerName()})
		return
	}
	snap, err := m.snapshots.Save(m.mode, state)
	if err != nil {
		m.reporter.Report(nodeComponent, domain.KindSnapshotFailed, "failed to write node snapshot", err,
			map[string]any{"dir": m.snapshots.Dir(m.mode)})
		return
	}
	m.log.Info("saved node snapshot", "file", snap.File, "bytes", snap.SizeBytes)
	putRecord(ctx, m.store, m.log, nodeSnapshotPrefix+string(m.mode), snap, m.cfg.Cache.SnapshotTTL)
}

// touchLocked records activity, persists the state record and rearms the idle timer
func (m *NodeLifecycle) touchLocked() {
	m.lastActivity = m.now()
	m.timer.arm(m.cfg.Node.IdleTimeout, m.autoShutdown)

	state := domain.NodeState{
		Mode:          m.mode,
		ContainerID:   m.containerID,
		ContainerName: m.ContainerName(),
		Port:          m.cfg.Node.Port,
		ForkURL:       m.forkURL,
		StartedAt:     m.startedAt,
		LastActivity:  m.lastActivity,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	putRecord(ctx, m.store, m.log, nodeStatePrefix+string(m.mode), state, m.cfg.Cache.StateTTL)
}

// autoShutdown runs when the idle timer fires. A callback from a timer that
// has since been rearmed or cancelled does nothing.
func (m *NodeLifecycle) autoShutdown(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.timer.current(gen) {
		return
	}
	if idle := m.now().Sub(m.lastActivity); idle < m.cfg.Node.IdleTimeout {
		return
	}

	m.log.Info("node idle, shutting down", "idle_timeout", m.cfg.Node.IdleTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	m.stopLocked(ctx)
}

// buildNodeArgs returns the anvil command line for a node
func buildNodeArgs(port int, forkURL, loadState string) []string {
	args := []string{
		"--port", strconv.Itoa(port),
		"--host", "0.0.0.0",
		"--accounts", "10",
		"--balance", "10000",
		"--gas-limit", "30000000",
	}
	if forkURL != "" {
		args = append(args, "--fork-url", forkURL)
	}
	if loadState != "" {
		args = append(args, "--load-state", loadState)
	}
	return args
}

// NodeManagers holds the node manager of every mode
type NodeManagers struct {
	Fork  *NodeLifecycle
	Local *NodeLifecycle
}

// NewNodeManagers builds the fork and local node managers
func NewNodeManagers(
	cfg *config.RuntimeConfig,
	runtime ContainerRuntime,
	rpc NodeRPC,
	snapshots NodeSnapshotStore,
	store CacheStore,
	reporter ErrorReporter,
	log *slog.Logger,
) *NodeManagers {
	return &NodeManagers{
		Fork:  NewNodeLifecycle(domain.NodeModeFork, cfg, runtime, rpc, snapshots, store, reporter, log),
		Local: NewNodeLifecycle(domain.NodeModeLocal, cfg, runtime, rpc, snapshots, store, reporter, log),
	}
}

// Get returns the manager for a mode
func (n *NodeManagers) Get(mode domain.NodeMode) (*NodeLifecycle, error) {
	switch mode {
	case domain.NodeModeFork:
		return n.Fork, nil
	case domain.NodeModeLocal:
		return n.Local, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownNodeMode, mode)
	}
}

// All returns every manager in a stable order
func (n *NodeManagers) All() []*NodeLifecycle {
	return []*NodeLifecycle{n.Fork, n.Local}
}
