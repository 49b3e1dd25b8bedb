package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-runner/internal/adapters/docker"
	"github.com/trebuchet-org/treb-runner/internal/adapters/docker/fake"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

func (h *harness) images() *usecase.ImageResolver {
	return usecase.NewImageResolver(h.cfg, h.runtime, h.store, h.reporter, h.log)
}

func (h *harness) pool() *usecase.SandboxPool {
	return usecase.NewSandboxPool(h.cfg, h.runtime, h.images(), docker.NewProjectArchiver(), h.store, h.reporter, h.log)
}

var localNetwork = &domain.NetworkDescriptor{
	Network:        "local",
	NetworkName:    "Local",
	ChainID:        31337,
	DeploymentType: domain.DeploymentLocal,
}

func TestSandboxPool_GetOrStart(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent callers share one container", func(t *testing.T) {
		h := newHarness(t)
		pool := h.pool()

		ids := make([]string, 10)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
				assert.NoError(t, err)
				ids[i] = id
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, h.runtime.Calls("RunContainer"))
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("toolchains get separate containers", func(t *testing.T) {
		h := newHarness(t)
		pool := h.pool()

		foundry, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
		require.NoError(t, err)
		hardhat, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainHardhat})
		require.NoError(t, err)

		assert.NotEqual(t, foundry, hardhat)
		c, ok := h.runtime.Get("persistent-hardhat")
		require.True(t, ok)
		assert.Equal(t, "hardhat-deployer:latest", c.Image)
	})

	t.Run("placement change recreates the container", func(t *testing.T) {
		h := newHarness(t)
		pool := h.pool()
		h.runtime.AddContainer("anvil-rpc-local", 8545)

		first, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
		require.NoError(t, err)
		second, err := pool.GetOrStart(ctx, domain.SandboxRequest{
			Toolchain: domain.ToolchainFoundry,
			Network:   localNetwork,
			PeerNode:  "anvil-rpc-local",
		})
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
		_, ok := h.runtime.Get(first)
		assert.False(t, ok)
		c, ok := h.runtime.Get(second)
		require.True(t, ok)
		assert.Equal(t, "container:anvil-rpc-local", c.Spec.NetworkMode)
	})

	t.Run("peer that is not running is an error", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.pool().GetOrStart(ctx, domain.SandboxRequest{
			Toolchain: domain.ToolchainFoundry,
			Network:   localNetwork,
			PeerNode:  "anvil-rpc-local",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Zero(t, h.runtime.Calls("RunContainer"))
	})

	t.Run("local network without a peer joins the bridge", func(t *testing.T) {
		h := newHarness(t)
		id, err := h.pool().GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry, Network: localNetwork})
		require.NoError(t, err)

		c, _ := h.runtime.Get(id)
		assert.Equal(t, "deployer-network", c.Spec.NetworkMode)
		assert.True(t, h.runtime.Networks["deployer-network"])
	})

	t.Run("dead container is replaced", func(t *testing.T) {
		h := newHarness(t)
		pool := h.pool()

		first, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
		require.NoError(t, err)
		h.runtime.Kill(first)

		second, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("leftover container with the same name is removed", func(t *testing.T) {
		h := newHarness(t)
		leftover := h.runtime.AddContainer("persistent-foundry")

		_, err := h.pool().GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
		require.NoError(t, err)
		_, ok := h.runtime.Get(leftover)
		assert.False(t, ok)
	})

	t.Run("unknown toolchain", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.pool().GetOrStart(ctx, domain.SandboxRequest{Toolchain: "truffle"})
		assert.ErrorIs(t, err, domain.ErrUnknownToolchain)
	})
}

func TestSandboxPool_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads the project and runs the command", func(t *testing.T) {
		h := newHarness(t)
		project := newProject(t)
		var got domain.ExecSpec
		h.runtime.SetExec(func(ctx context.Context, c *fake.Container, spec domain.ExecSpec) (int, error) {
			if isCommand(spec) {
				got = spec
				fmt.Fprint(spec.Output, "Compiler run successful!")
			}
			return 0, nil
		})

		result, err := h.pool().Execute(ctx, domain.ExecRequest{
			Toolchain:   domain.ToolchainFoundry,
			Command:     "forge build",
			ProjectPath: project,
		})
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.False(t, result.Reused)
		assert.Equal(t, "Compiler run successful!", result.Output)
		assert.NotEmpty(t, result.ID)
		assert.Equal(t, []string{"sh", "-c", "forge build"}, got.Cmd)
		assert.Equal(t, "/workspace/"+lastElem(project), got.WorkingDir)

		uploads := h.runtime.CallsTo("CopyToContainer")
		require.Len(t, uploads, 1)
		assert.Equal(t, "/workspace/"+lastElem(project), uploads[0].Args[1])
		assert.True(t, h.redis.Exists("containers:foundry"))
	})

	t.Run("second execution reuses the container", func(t *testing.T) {
		h := newHarness(t)
		pool := h.pool()
		project := newProject(t)
		req := domain.ExecRequest{Toolchain: domain.ToolchainFoundry, Command: "true", ProjectPath: project}

		first, err := pool.Execute(ctx, req)
		require.NoError(t, err)
		second, err := pool.Execute(ctx, req)
		require.NoError(t, err)

		assert.False(t, first.Reused)
		assert.True(t, second.Reused)
		assert.Equal(t, first.ContainerID, second.ContainerID)
		assert.Equal(t, 2, h.runtime.Calls("CopyToContainer"), "the project is uploaded every time")
	})

	t.Run("failing command is a result, not an error", func(t *testing.T) {
		h := newHarness(t)
		h.runtime.SetExec(func(ctx context.Context, c *fake.Container, spec domain.ExecSpec) (int, error) {
			if isCommand(spec) {
				fmt.Fprint(spec.Output, "Error: Compiler run failed")
				return 1, nil
			}
			return 0, nil
		})

		result, err := h.pool().Execute(ctx, domain.ExecRequest{
			Toolchain: domain.ToolchainFoundry, Command: "forge build", ProjectPath: newProject(t),
		})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 1, result.ExitCode)
		assert.Contains(t, result.Output, "Compiler run failed")
	})

	t.Run("timeout leaves the container running", func(t *testing.T) {
		h := newHarness(t)
		h.runtime.SetExec(func(ctx context.Context, c *fake.Container, spec domain.ExecSpec) (int, error) {
			if isCommand(spec) {
				<-ctx.Done()
				return -1, ctx.Err()
			}
			return 0, nil
		})

		result, err := h.pool().Execute(ctx, domain.ExecRequest{
			Toolchain: domain.ToolchainFoundry, Command: "sleep 100", ProjectPath: newProject(t),
			Timeout: 50 * time.Millisecond,
		})
		require.NoError(t, err)
		assert.True(t, result.TimedOut)
		assert.False(t, result.Success)
		assert.Equal(t, -1, result.ExitCode)
		assert.Contains(t, result.Output, "timed out")

		c, ok := h.runtime.Get(result.ContainerID)
		require.True(t, ok)
		assert.True(t, c.Running())
	})

	t.Run("output keeps the tail", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Sandbox.OutputWindow = 10
		h.runtime.SetExec(func(ctx context.Context, c *fake.Container, spec domain.ExecSpec) (int, error) {
			if isCommand(spec) {
				fmt.Fprint(spec.Output, strings.Repeat("x", 100)+"0123456789")
			}
			return 0, nil
		})

		result, err := h.pool().Execute(ctx, domain.ExecRequest{
			Toolchain: domain.ToolchainFoundry, Command: "forge build", ProjectPath: newProject(t),
		})
		require.NoError(t, err)
		assert.Equal(t, "0123456789", result.Output)
	})

	t.Run("exec error is reported", func(t *testing.T) {
		h := newHarness(t)
		h.runtime.SetExec(func(ctx context.Context, c *fake.Container, spec domain.ExecSpec) (int, error) {
			if isCommand(spec) {
				return -1, fmt.Errorf("connection reset")
			}
			return 0, nil
		})

		_, err := h.pool().Execute(ctx, domain.ExecRequest{
			Toolchain: domain.ToolchainFoundry, Command: "forge build", ProjectPath: newProject(t),
		})
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestSandboxPool_FetchArtifacts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pool := h.pool()
	project := newProject(t)

	err := pool.FetchArtifacts(ctx, domain.ToolchainFoundry, project, "out", project+"/.artifacts")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no sandbox yet")

	_, err = pool.Execute(ctx, domain.ExecRequest{Toolchain: domain.ToolchainFoundry, Command: "forge build", ProjectPath: project})
	require.NoError(t, err)
	h.runtime.Files["/workspace/"+lastElem(project)+"/out"] = map[string]string{"Counter.sol/Counter.json": "{}"}

	require.NoError(t, pool.FetchArtifacts(ctx, domain.ToolchainFoundry, project, "out", project+"/.artifacts"))
	assert.FileExists(t, project+"/.artifacts/Counter.sol/Counter.json")
}

func TestSandboxPool_IdleSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.Sandbox.IdleTimeout = 50 * time.Millisecond
	pool := h.pool()

	_, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(h.runtime.Running()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	commits := h.runtime.CallsTo("CommitContainer")
	require.Len(t, commits, 1)
	image := commits[0].Args[1].(string)
	assert.True(t, strings.HasPrefix(image, "foundry-snapshot:"))
	assert.True(t, h.redis.Exists("containers:snapshot:foundry"))

	h.cfg.Sandbox.IdleTimeout = time.Hour
	id, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry, UseSnapshot: true})
	require.NoError(t, err)
	c, _ := h.runtime.Get(id)
	assert.Equal(t, image, c.Image)
}

func TestSandboxPool_CleanupAndStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pool := h.pool()
	leftover := h.runtime.AddContainer("persistent-hardhat")

	_, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
	require.NoError(t, err)

	status := pool.Status(ctx)
	require.Len(t, status, 2)
	assert.Equal(t, domain.ToolchainFoundry, status[0].Toolchain)
	assert.Equal(t, domain.ContainerRunning, status[0].Status)
	assert.Equal(t, domain.PlacementDefault, status[0].Placement.Kind)
	assert.Equal(t, domain.ContainerMissing, status[1].Status)

	require.NoError(t, pool.CleanupAll(ctx))
	assert.Empty(t, h.runtime.Running())
	_, ok := h.runtime.Get(leftover)
	assert.False(t, ok)
	assert.Zero(t, h.runtime.Calls("CommitContainer"), "cleanup does not snapshot")
}

// slowRemoveRuntime fails removal of one ref and delays every other removal,
// honouring cancellation while it waits
type slowRemoveRuntime struct {
	*fake.Runtime
	failing string
}

func (r *slowRemoveRuntime) RemoveContainer(ctx context.Context, ref string) error {
	if ref == r.failing {
		return errors.New("device or resource busy")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	return r.Runtime.RemoveContainer(ctx, ref)
}

func TestSandboxPool_CleanupAllKeepsGoingAfterFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	leftover := h.runtime.AddContainer("persistent-hardhat")
	rt := &slowRemoveRuntime{Runtime: h.runtime, failing: "persistent-hardhat"}
	pool := usecase.NewSandboxPool(h.cfg, rt, h.images(), docker.NewProjectArchiver(), h.store, h.reporter, h.log)

	id, err := pool.GetOrStart(ctx, domain.SandboxRequest{Toolchain: domain.ToolchainFoundry})
	require.NoError(t, err)

	err = pool.CleanupAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hardhat")

	_, ok := h.runtime.Get(id)
	assert.False(t, ok, "foundry sandbox is removed despite the hardhat failure")
	_, ok = h.runtime.Get(leftover)
	assert.True(t, ok)
}

func lastElem(p string) string {
	return p[strings.LastIndex(p, "/")+1:]
}

func TestSandboxPool_RecreatedPeerNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	nodes := h.nodes(healthyRPC())
	pool := h.pool()
	project := newProject(t)

	require.True(t, nodes.Local.Start(ctx, domain.StartNodeOptions{}))
	req := domain.ExecRequest{
		Toolchain:   domain.ToolchainFoundry,
		Command:     "forge script script/Deploy.s.sol --broadcast",
		ProjectPath: project,
		Network:     localNetwork,
		PeerNode:    nodes.Local.ContainerName(),
	}

	first, err := pool.Execute(ctx, req)
	require.NoError(t, err)
	again, err := pool.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, first.ContainerID, again.ContainerID)

	before, _ := h.runtime.Get(nodes.Local.ContainerName())
	require.True(t, nodes.Local.Restart(ctx))
	after, _ := h.runtime.Get(nodes.Local.ContainerName())
	require.NotEqual(t, before.ID, after.ID)

	third, err := pool.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.Reused)
	assert.NotEqual(t, first.ContainerID, third.ContainerID)
	_, ok := h.runtime.Get(first.ContainerID)
	assert.False(t, ok, "sandbox bound to the old node is removed")

	st := pool.Status(ctx)[0]
	assert.Equal(t, after.ID, st.Placement.PeerID)
}

func TestSandboxPool_WorkspacePathIsQuoted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	project := filepath.Join(t.TempDir(), "my project;x")
	writeFile(t, project, "foundry.toml", "[profile.default]\n")

	_, err := h.pool().Execute(ctx, domain.ExecRequest{Toolchain: domain.ToolchainFoundry, Command: "true", ProjectPath: project})
	require.NoError(t, err)

	prep := h.runtime.CallsTo("Exec")[0].Args[1].([]string)
	require.Equal(t, []string{"sh", "-c"}, prep[:2])
	args, err := shellquote.Split(prep[2])
	require.NoError(t, err)
	assert.Equal(t, []string{"rm", "-rf", "/workspace/my project;x", "&&", "mkdir", "-p", "/workspace/my project;x"}, args)
}
