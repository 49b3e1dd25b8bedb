package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// Runtime implements usecase.ContainerRuntime on the Docker Engine API
type Runtime struct {
	cli *client.Client
	log *slog.Logger
}

// NewRuntime creates a Docker client from the environment. The daemon is not
// contacted until the first call.
func NewRuntime(cfg *config.RuntimeConfig, log *slog.Logger) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Docker.Host != "" {
		opts = append(opts, client.WithHost(cfg.Docker.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Runtime{cli: cli, log: log.With("component", "docker")}, nil
}

// Close releases the client's connections
func (r *Runtime) Close() error {
	return r.cli.Close()
}

func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRuntimeUnavailable, err)
	}
	return nil
}

// EnsureNetwork creates a bridge network unless one with that exact name exists
func (r *Runtime) EnsureNetwork(ctx context.Context, name string) (bool, error) {
	nets, err := r.cli.NetworkList(ctx, network.ListOptions{Filters: filters.NewArgs(filters.Arg("name", name))})
	if err != nil {
		return false, translate(err)
	}
	for _, n := range nets {
		if n.Name == name {
			return false, nil
		}
	}
	if _, err := r.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"}); err != nil {
		if errdefs.IsConflict(err) {
			return false, nil
		}
		return false, translate(err)
	}
	r.log.Info("created network", "network", name)
	return true, nil
}

func (r *Runtime) InspectContainer(ctx context.Context, ref string) (*domain.ContainerInfo, error) {
	c, err := r.cli.ContainerInspect(ctx, ref)
	if err != nil {
		return nil, translate(err)
	}
	info := &domain.ContainerInfo{
		ID:   c.ID,
		Name: strings.TrimPrefix(c.Name, "/"),
		Args: append([]string{c.Path}, c.Args...),
	}
	if c.Config != nil {
		info.Image = c.Config.Image
	}
	if c.State != nil {
		info.Status = c.State.Status
	}
	if c.NetworkSettings != nil {
		for _, bindings := range c.NetworkSettings.Ports {
			for _, b := range bindings {
				if port, err := strconv.Atoi(b.HostPort); err == nil {
					info.HostPorts = append(info.HostPorts, port)
				}
			}
		}
	}
	return info, nil
}

func (r *Runtime) ListContainers(ctx context.Context, all bool) ([]domain.ContainerInfo, error) {
	list, err := r.cli.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, translate(err)
	}
	out := make([]domain.ContainerInfo, 0, len(list))
	for _, c := range list {
		info := domain.ContainerInfo{ID: c.ID, Image: c.Image, Status: c.State}
		if len(c.Names) > 0 {
			info.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		for _, p := range c.Ports {
			if p.PublicPort != 0 {
				info.HostPorts = append(info.HostPorts, int(p.PublicPort))
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// RunContainer creates and starts a container. A container created but not
// started is removed again.
func (r *Runtime) RunContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		WorkingDir:   spec.WorkingDir,
		Labels:       spec.Labels,
		ExposedPorts: nat.PortSet{},
	}
	host := &container.HostConfig{
		NetworkMode:  container.NetworkMode(spec.NetworkMode),
		PortBindings: nat.PortMap{},
	}
	for _, p := range spec.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(p))
		if err != nil {
			return "", fmt.Errorf("invalid port %d: %w", p, err)
		}
		cfg.ExposedPorts[port] = struct{}{}
		host.PortBindings[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(p)}}
	}
	for _, m := range spec.Mounts {
		host.Binds = append(host.Binds, m.Source+":"+m.Target)
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, host, nil, nil, spec.Name)
	if err != nil {
		return "", translate(err)
	}
	for _, w := range created.Warnings {
		r.log.Warn("container create warning", "container", spec.Name, "warning", w)
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = r.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
		return "", translate(err)
	}
	r.log.Debug("container started", "container", spec.Name, "id", created.ID)
	return created.ID, nil
}

func (r *Runtime) StopContainer(ctx context.Context, ref string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	return translate(r.cli.ContainerStop(ctx, ref, container.StopOptions{Timeout: &secs}))
}

func (r *Runtime) RemoveContainer(ctx context.Context, ref string) error {
	return translate(r.cli.ContainerRemove(ctx, ref, container.RemoveOptions{Force: true}))
}

// Exec runs a command and streams stdout and stderr into spec.Output.
// Cancelling ctx detaches from the command; the process keeps running in
// the container.
func (r *Runtime) Exec(ctx context.Context, ref string, spec domain.ExecSpec) (int, error) {
	created, err := r.cli.ContainerExecCreate(ctx, ref, container.ExecOptions{
		Cmd:          spec.Cmd,
		WorkingDir:   spec.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, translate(err)
	}
	attach, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, translate(err)
	}
	defer attach.Close()

	out := spec.Output
	if out == nil {
		out = io.Discard
	}
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(out, out, attach.Reader)
		done <- err
	}()

	select {
	case <-ctx.Done():
		attach.Close()
		return -1, ctx.Err()
	case err := <-done:
		if err != nil {
			return -1, fmt.Errorf("failed to read exec output: %w", err)
		}
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, translate(err)
	}
	return inspect.ExitCode, nil
}

func (r *Runtime) CopyToContainer(ctx context.Context, ref, dstDir string, tarStream io.Reader) error {
	return translate(r.cli.CopyToContainer(ctx, ref, dstDir, tarStream, container.CopyToContainerOptions{}))
}

func (r *Runtime) CopyFromContainer(ctx context.Context, ref, srcPath, hostDir string) error {
	rc, stat, err := r.cli.CopyFromContainer(ctx, ref, srcPath)
	if err != nil {
		return translate(err)
	}
	defer rc.Close()

	if err := removeAll(hostDir); err != nil {
		return err
	}
	src := archive.CopyInfo{Path: srcPath, Exists: true, IsDir: stat.Mode.IsDir()}
	if err := archive.CopyTo(rc, src, hostDir); err != nil {
		return fmt.Errorf("failed to extract %s: %w", srcPath, err)
	}
	return nil
}

func (r *Runtime) CommitContainer(ctx context.Context, ref, imageRef string) (string, error) {
	resp, err := r.cli.ContainerCommit(ctx, ref, container.CommitOptions{Reference: imageRef, Pause: true})
	if err != nil {
		return "", translate(err)
	}
	return resp.ID, nil
}

func (r *Runtime) FindImage(ctx context.Context, ref string) (string, error) {
	images, err := r.cli.ImageList(ctx, image.ListOptions{Filters: filters.NewArgs(filters.Arg("reference", ref))})
	if err != nil {
		return "", translate(err)
	}
	if len(images) == 0 {
		return "", fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
	}
	return images[0].ID, nil
}

// BuildImage builds recipe.Dockerfile from recipe.ContextDir and tags it
func (r *Runtime) BuildImage(ctx context.Context, recipe domain.BuildRecipe, tag string) (string, error) {
	buildCtx, err := archive.TarWithOptions(recipe.ContextDir, &archive.TarOptions{
		ExcludePatterns: []string{".git", "**/node_modules"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive build context %s: %w", recipe.ContextDir, err)
	}
	defer buildCtx.Close()

	resp, err := r.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  recipe.Dockerfile,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", translate(err)
	}
	defer resp.Body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		return "", fmt.Errorf("build of %s failed: %w", tag, err)
	}

	inspect, _, err := r.cli.ImageInspectWithRaw(ctx, tag)
	if err != nil {
		return "", translate(err)
	}
	return inspect.ID, nil
}

func (r *Runtime) RemoveImage(ctx context.Context, ref string) error {
	_, err := r.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: true, PruneChildren: true})
	return translate(err)
}

// translate maps engine errors onto domain sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: %v", domain.ErrRuntimeUnavailable, err)
	default:
		return err
	}
}

var _ usecase.ContainerRuntime = (*Runtime)(nil)
