package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"golang.org/x/sync/errgroup"
)

const sandboxComponent = "sandbox_pool"

// sandbox is the pool entry of one toolchain. Its mutex serializes every
// lifecycle step of that toolchain; other toolchains proceed independently.
type sandbox struct {
	mu           sync.Mutex
	toolchain    domain.Toolchain
	containerID  string
	placement    domain.Placement
	startedAt    time.Time
	lastActivity time.Time
	timer        idleTimer
}

// SandboxPool keeps one long-lived container per toolchain and runs
// commands in it against freshly uploaded project trees
type SandboxPool struct {
	cfg      *config.RuntimeConfig
	runtime  ContainerRuntime
	images   *ImageResolver
	archiver ProjectArchiver
	store    CacheStore
	reporter ErrorReporter
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	sandboxes map[domain.Toolchain]*sandbox
}

// NewSandboxPool creates a new sandbox pool
func NewSandboxPool(
	cfg *config.RuntimeConfig,
	runtime ContainerRuntime,
	images *ImageResolver,
	archiver ProjectArchiver,
	store CacheStore,
	reporter ErrorReporter,
	log *slog.Logger,
) *SandboxPool {
	return &SandboxPool{
		cfg:       cfg,
		runtime:   runtime,
		images:    images,
		archiver:  archiver,
		store:     store,
		reporter:  reporter,
		log:       log.With("component", sandboxComponent),
		now:       time.Now,
		sandboxes: make(map[domain.Toolchain]*sandbox),
	}
}

// entry returns the pool entry of a toolchain, creating it on first use
func (p *SandboxPool) entry(t domain.Toolchain) (*sandbox, error) {
	if _, ok := p.cfg.Images[t]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownToolchain, t)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sb, ok := p.sandboxes[t]
	if !ok {
		sb = &sandbox{toolchain: t}
		p.sandboxes[t] = sb
	}
	return sb, nil
}

// GetOrStart returns the id of a running sandbox for the request's
// toolchain, starting one when needed. Concurrent callers share the container.
func (p *SandboxPool) GetOrStart(ctx context.Context, req domain.SandboxRequest) (string, error) {
	sb, err := p.entry(req.Toolchain)
	if err != nil {
		return "", err
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id, _, err := p.ensureLocked(ctx, sb, req)
	return id, err
}

// ensureLocked reuses the live container when its placement matches the
// request and recreates it otherwise
func (p *SandboxPool) ensureLocked(ctx context.Context, sb *sandbox, req domain.SandboxRequest) (string, bool, error) {
	placement := domain.DecidePlacement(req.Network, req.PeerNode, p.cfg.Docker.Network)
	if placement.Kind == domain.PlacementPeer {
		peerID, err := p.peerID(ctx, placement.Target)
		if err != nil {
			return "", false, err
		}
		placement.PeerID = peerID
	}

	if sb.containerID != "" {
		info, err := p.runtime.InspectContainer(ctx, sb.containerID)
		switch {
		case err == nil && info.Running() && sb.placement == placement:
			p.touchLocked(sb)
			return sb.containerID, true, nil
		case err == nil && info.Running():
			p.log.Info("sandbox placement changed, recreating",
				"toolchain", sb.toolchain, "from", sb.placement, "to", placement)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return "", false, fmt.Errorf("failed to inspect sandbox: %w", err)
		}
		p.teardownLocked(ctx, sb)
	}

	image, err := p.imageFor(ctx, sb.toolchain, req.UseSnapshot)
	if err != nil {
		return "", false, err
	}

	name := p.cfg.ContainerName(sb.toolchain)
	if err := p.runtime.RemoveContainer(ctx, name); err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.log.Warn("failed to remove stale sandbox", "container", name, "error", err)
	}
	if placement.Kind == domain.PlacementBridge {
		if _, err := p.runtime.EnsureNetwork(ctx, placement.Target); err != nil {
			p.reporter.Report(sandboxComponent, domain.KindNetworkCreationFailed, "failed to ensure docker network", err,
				map[string]any{"network": placement.Target})
			return "", false, fmt.Errorf("failed to ensure network %s: %w", placement.Target, err)
		}
	}

	spec := domain.ContainerSpec{
		Name:        name,
		Image:       image,
		Cmd:         []string{"tail", "-f", "/dev/null"},
		WorkingDir:  p.cfg.Sandbox.Workspace,
		NetworkMode: placement.NetworkMode(),
		Labels: map[string]string{
			"treb.runner.role":      "sandbox",
			"treb.runner.toolchain": string(sb.toolchain),
		},
	}
	p.log.Info("starting sandbox", "toolchain", sb.toolchain, "image", image, "placement", placement)
	id, err := p.runtime.RunContainer(ctx, spec)
	if err != nil {
		p.reporter.Report(sandboxComponent, domain.KindContainerStartFailed, "failed to start sandbox", err,
			map[string]any{"toolchain": sb.toolchain, "image": image})
		return "", false, fmt.Errorf("failed to start sandbox: %w", err)
	}

	sb.containerID = id
	sb.placement = placement
	sb.startedAt = p.now()
	p.touchLocked(sb)
	return id, false, nil
}

// peerID returns the id of the running node container named name
func (p *SandboxPool) peerID(ctx context.Context, name string) (string, error) {
	info, err := p.runtime.InspectContainer(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "", fmt.Errorf("peer node %s is not running: %w", name, domain.ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("failed to inspect peer node %s: %w", name, err)
	case !info.Running():
		return "", fmt.Errorf("peer node %s is not running: %w", name, domain.ErrNotFound)
	}
	return info.ID, nil
}

// imageFor picks the committed snapshot image when asked and available, and
// the resolved toolchain image otherwise
func (p *SandboxPool) imageFor(ctx context.Context, t domain.Toolchain, useSnapshot bool) (string, error) {
	if useSnapshot {
		var snap domain.SandboxSnapshot
		if getRecord(ctx, p.store, p.log, sandboxSnapshotPrefix+string(t), &snap) {
			if _, err := p.runtime.FindImage(ctx, snap.Image); err == nil {
				p.log.Info("starting sandbox from snapshot", "toolchain", t, "image", snap.Image)
				return snap.Image, nil
			}
			p.log.Warn("snapshot image missing, using toolchain image", "image", snap.Image)
		}
	}
	img := p.cfg.Images[t]
	if _, _, err := p.images.Resolve(ctx, img.Recipe, img.Tag); err != nil {
		return "", err
	}
	return img.Tag, nil
}

// Execute uploads the project and runs the command in the toolchain sandbox.
// A failing command is a successful call with Success=false. A timeout stops
// waiting for the command but leaves the container running.
func (p *SandboxPool) Execute(ctx context.Context, req domain.ExecRequest) (*domain.ExecResult, error) {
	start := p.now()
	sb, err := p.entry(req.Toolchain)
	if err != nil {
		return nil, err
	}
	projectPath, err := filepath.Abs(req.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProject, err)
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	id, reused, err := p.ensureLocked(ctx, sb, domain.SandboxRequest{
		Toolchain:   req.Toolchain,
		Network:     req.Network,
		PeerNode:    req.PeerNode,
		UseSnapshot: req.UseSnapshot,
	})
	if err != nil {
		return nil, err
	}

	workDir := p.workDir(projectPath)
	if err := p.uploadLocked(ctx, id, projectPath, workDir); err != nil {
		return nil, err
	}

	out := newTailBuffer(p.cfg.Sandbox.OutputWindow)
	execCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	p.log.Debug("executing", "toolchain", req.Toolchain, "dir", workDir, "command", req.Command)
	code, err := p.runtime.Exec(execCtx, id, domain.ExecSpec{
		Cmd:        []string{"sh", "-c", req.Command},
		WorkingDir: workDir,
		Output:     out,
	})

	result := &domain.ExecResult{
		ID:          uuid.NewString(),
		ContainerID: id,
		ExitCode:    code,
		Reused:      reused,
	}
	switch {
	case err != nil && execCtx.Err() != nil && ctx.Err() == nil:
		result.TimedOut = true
		result.ExitCode = -1
		fmt.Fprintf(out, "\ncommand timed out after %s", req.Timeout)
	case err != nil:
		p.reporter.Report(sandboxComponent, domain.KindExecutionFailure, "sandbox exec failed", err,
			map[string]any{"toolchain": req.Toolchain, "command": req.Command})
		return nil, fmt.Errorf("failed to execute in sandbox: %w", err)
	}
	result.Output = out.String()
	result.Duration = p.now().Sub(start)
	result.Success = !result.TimedOut && result.ExitCode == 0

	p.touchLocked(sb)
	putRecord(ctx, p.store, p.log, sandboxStatePrefix+string(sb.toolchain), domain.SandboxState{
		Toolchain:    sb.toolchain,
		ContainerID:  id,
		Placement:    sb.placement,
		StartedAt:    sb.startedAt,
		LastActivity: sb.lastActivity,
		LastProject:  projectPath,
		LastCommand:  req.Command,
		LastDuration: result.Duration,
	}, p.cfg.Cache.StateTTL)

	if !result.Success {
		p.log.Warn("command failed", "toolchain", req.Toolchain, "exit_code", result.ExitCode, "timed_out", result.TimedOut)
	}
	return result, nil
}

func (p *SandboxPool) workDir(projectPath string) string {
	return path.Join(p.cfg.Sandbox.Workspace, filepath.Base(projectPath))
}

// uploadLocked recreates the project directory in the sandbox and copies the
// project into it
func (p *SandboxPool) uploadLocked(ctx context.Context, id, projectPath, workDir string) error {
	prep := shellquote.Join("rm", "-rf", workDir) + " && " + shellquote.Join("mkdir", "-p", workDir)
	code, err := p.runtime.Exec(ctx, id, domain.ExecSpec{Cmd: []string{"sh", "-c", prep}, Output: io.Discard})
	if err != nil {
		return fmt.Errorf("failed to prepare workspace: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("failed to prepare workspace: exit code %d", code)
	}

	archive, err := p.archiver.Archive(projectPath, p.cfg.Sandbox.Exclude)
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}
	defer archive.Close()

	if err := p.runtime.CopyToContainer(ctx, id, workDir, archive); err != nil {
		return fmt.Errorf("failed to upload project: %w", err)
	}
	return nil
}

// FetchArtifacts copies dir of the uploaded project out of the sandbox into dest
func (p *SandboxPool) FetchArtifacts(ctx context.Context, t domain.Toolchain, projectPath, dir, dest string) error {
	sb, err := p.entry(t)
	if err != nil {
		return err
	}
	projectPath, err = filepath.Abs(projectPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidProject, err)
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.containerID == "" {
		return fmt.Errorf("no sandbox for %s: %w", t, domain.ErrNotFound)
	}
	src := path.Join(p.workDir(projectPath), dir)
	if err := p.runtime.CopyFromContainer(ctx, sb.containerID, src, dest); err != nil {
		return fmt.Errorf("failed to copy %s from sandbox: %w", src, err)
	}
	p.touchLocked(sb)
	return nil
}

// Stop tears down the sandbox of a toolchain without snapshotting it
func (p *SandboxPool) Stop(ctx context.Context, t domain.Toolchain) bool {
	sb, err := p.entry(t)
	if err != nil {
		p.log.Warn("stop requested for unknown toolchain", "toolchain", t)
		return false
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return p.teardownLocked(ctx, sb)
}

// CleanupAll stops every sandbox, including leftovers from earlier runs
func (p *SandboxPool) CleanupAll(ctx context.Context) error {
	var g errgroup.Group
	for _, t := range p.toolchains() {
		g.Go(func() error {
			if !p.Stop(ctx, t) {
				return fmt.Errorf("failed to stop %s sandbox", t)
			}
			if err := p.runtime.RemoveContainer(ctx, p.cfg.ContainerName(t)); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("failed to remove %s sandbox: %w", t, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Status reports every configured toolchain sandbox
func (p *SandboxPool) Status(ctx context.Context) []domain.SandboxStatus {
	var out []domain.SandboxStatus
	for _, t := range p.toolchains() {
		sb, err := p.entry(t)
		if err != nil {
			continue
		}
		sb.mu.Lock()
		st := domain.SandboxStatus{
			Toolchain:    t,
			ContainerID:  sb.containerID,
			Status:       domain.ContainerMissing,
			Placement:    sb.placement,
			StartedAt:    sb.startedAt,
			LastActivity: sb.lastActivity,
		}
		if sb.containerID != "" {
			if info, err := p.runtime.InspectContainer(ctx, sb.containerID); err == nil {
				st.Status = info.Status
			}
			st.IdleFor = p.now().Sub(sb.lastActivity).Truncate(time.Second).String()
		}
		sb.mu.Unlock()
		out = append(out, st)
	}
	return out
}

func (p *SandboxPool) toolchains() []domain.Toolchain {
	ts := make([]domain.Toolchain, 0, len(p.cfg.Images))
	for t := range p.cfg.Images {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}

// teardownLocked stops and removes the sandbox container
func (p *SandboxPool) teardownLocked(ctx context.Context, sb *sandbox) bool {
	sb.timer.cancel()
	if sb.containerID == "" {
		return true
	}
	if err := p.runtime.StopContainer(ctx, sb.containerID, p.cfg.Sandbox.StopTimeout); err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.log.Warn("failed to stop sandbox, forcing removal", "toolchain", sb.toolchain, "error", err)
	}
	if err := p.runtime.RemoveContainer(ctx, sb.containerID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.reporter.Report(sandboxComponent, domain.KindContainerStopFailed, "failed to remove sandbox", err,
			map[string]any{"toolchain": sb.toolchain, "container_id": sb.containerID})
		return false
	}
	p.log.Info("sandbox stopped", "toolchain", sb.toolchain)
	sb.containerID = ""
	sb.placement = domain.Placement{}
	deleteRecords(ctx, p.store, p.log, sandboxStatePrefix+string(sb.toolchain))
	return true
}

// snapshotLocked commits the sandbox as <toolchain>-snapshot:<unix>
func (p *SandboxPool) snapshotLocked(ctx context.Context, sb *sandbox) {
	ref := fmt.Sprintf("%s-snapshot:%d", sb.toolchain, p.now().Unix())
	imageID, err := p.runtime.CommitContainer(ctx, sb.containerID, ref)
	if err != nil {
		p.reporter.Report(sandboxComponent, domain.KindSnapshotFailed, "failed to commit sandbox", err,
			map[string]any{"toolchain": sb.toolchain, "container_id": sb.containerID})
		return
	}
	p.log.Info("committed sandbox snapshot", "toolchain", sb.toolchain, "image", ref)
	putRecord(ctx, p.store, p.log, sandboxSnapshotPrefix+string(sb.toolchain), domain.SandboxSnapshot{
		Toolchain:   sb.toolchain,
		Image:       ref,
		ImageID:     imageID,
		ContainerID: sb.containerID,
		CreatedAt:   p.now(),
	}, p.cfg.Cache.SnapshotTTL)
}

func (p *SandboxPool) touchLocked(sb *sandbox) {
	sb.lastActivity = p.now()
	sb.timer.arm(p.cfg.Sandbox.IdleTimeout, func(gen uint64) { p.autoShutdown(sb, gen) })
}

// autoShutdown snapshots and stops an idle sandbox. Callbacks from a timer
// that was rearmed or cancelled in the meantime do nothing.
func (p *SandboxPool) autoShutdown(sb *sandbox, gen uint64) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.timer.current(gen) || sb.containerID == "" {
		return
	}
	if p.now().Sub(sb.lastActivity) < p.cfg.Sandbox.IdleTimeout {
		return
	}

	p.log.Info("sandbox idle, shutting down", "toolchain", sb.toolchain)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	p.snapshotLocked(ctx, sb)
	p.teardownLocked(ctx, sb)
}
