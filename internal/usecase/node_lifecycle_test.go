package usecase_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-runner/internal/adapters/docker/fake"
	"github.com/trebuchet-org/treb-runner/internal/adapters/fs"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

func (h *harness) nodes(rpc usecase.NodeRPC) *usecase.NodeManagers {
	return usecase.NewNodeManagers(h.cfg, h.runtime, rpc, fs.NewSnapshotStoreAdapter(h.cfg), h.store, h.reporter, h.log)
}

func lastRunSpec(t *testing.T, rt *fake.Runtime) domain.ContainerSpec {
	t.Helper()
	calls := rt.CallsTo("RunContainer")
	require.NotEmpty(t, calls, "RunContainer was never called")
	return calls[len(calls)-1].Args[0].(domain.ContainerSpec)
}

func TestNodeLifecycle_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("second start reuses the running node", func(t *testing.T) {
		h := newHarness(t)
		node := h.nodes(healthyRPC()).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))

		assert.Equal(t, 1, h.runtime.Calls("RunContainer"))
		c, ok := h.runtime.Get("anvil-rpc-local")
		require.True(t, ok)
		assert.True(t, c.Running())
		assert.Equal(t, []int{8545}, c.Spec.Ports)
		assert.Equal(t, "deployer-network", c.Spec.NetworkMode)
		assert.True(t, h.runtime.Networks["deployer-network"])
	})

	t.Run("concurrent starts create one container", func(t *testing.T) {
		h := newHarness(t)
		node := h.nodes(healthyRPC()).Local

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.True(t, node.Start(ctx, domain.StartNodeOptions{}))
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, h.runtime.Calls("RunContainer"))
	})

	t.Run("evicts foreign containers holding the port", func(t *testing.T) {
		h := newHarness(t)
		foreign := h.runtime.AddContainer("someone-elses-anvil", 8545)
		unrelated := h.runtime.AddContainer("postgres", 5432)

		require.True(t, h.nodes(healthyRPC()).Local.Start(ctx, domain.StartNodeOptions{}))

		_, ok := h.runtime.Get(foreign)
		assert.False(t, ok, "port holder should be removed")
		_, ok = h.runtime.Get(unrelated)
		assert.True(t, ok, "other containers stay")
	})

	t.Run("starting one variant evicts the other", func(t *testing.T) {
		h := newHarness(t)
		nodes := h.nodes(healthyRPC())

		require.True(t, nodes.Fork.Start(ctx, domain.StartNodeOptions{ForkURL: "https://eth.example"}))
		require.True(t, nodes.Local.Start(ctx, domain.StartNodeOptions{}))

		_, ok := h.runtime.Get("anvil-rpc")
		assert.False(t, ok)
		assert.False(t, nodes.Fork.Status(ctx).Running)
		assert.True(t, nodes.Local.Status(ctx).Running)
	})

	t.Run("fork mode passes the fork url", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Node.ForkURL = "https://default.example"
		node := h.nodes(healthyRPC()).Fork

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		spec := lastRunSpec(t, h.runtime)
		assert.Contains(t, spec.Cmd, "--fork-url")
		assert.Contains(t, spec.Cmd, "https://default.example")
		assert.Empty(t, spec.Mounts, "fork nodes are not snapshotted")

		status := node.Status(ctx)
		assert.True(t, status.IsForked)
		assert.False(t, status.Snapshots.Enabled)
	})

	t.Run("readiness timeout removes the container", func(t *testing.T) {
		h := newHarness(t)
		rpc := &MockNodeRPC{}
		rpc.On("ChainID", mock.Anything, mock.Anything).Return(uint64(0), errors.New("connection refused"))

		node := h.nodes(rpc).Local
		assert.False(t, node.Start(ctx, domain.StartNodeOptions{}))

		rpc.AssertNumberOfCalls(t, "ChainID", 3)
		_, ok := h.runtime.Get("anvil-rpc-local")
		assert.False(t, ok)

		status := node.Status(ctx)
		require.NotNil(t, status.LastError)
		assert.Equal(t, domain.KindReadinessTimeout, status.LastError.Kind)
	})

	t.Run("runtime unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.runtime.SetError("Ping", domain.ErrRuntimeUnavailable)

		node := h.nodes(healthyRPC()).Local
		assert.False(t, node.Start(ctx, domain.StartNodeOptions{}))
		assert.Zero(t, h.runtime.Calls("RunContainer"))
		assert.Equal(t, domain.KindRuntimeUnavailable, node.Status(ctx).LastError.Kind)
	})

	t.Run("records node state in the cache", func(t *testing.T) {
		h := newHarness(t)
		require.True(t, h.nodes(healthyRPC()).Local.Start(ctx, domain.StartNodeOptions{}))

		assert.True(t, h.redis.Exists("node:local"))
		assert.Equal(t, 2*time.Hour, h.redis.TTL("node:local"))
	})
}

func TestNodeLifecycle_Snapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("stop dumps local state and start restores it", func(t *testing.T) {
		h := newHarness(t)
		node := h.nodes(healthyRPC()).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		require.True(t, node.Stop(ctx))

		status := node.Status(ctx)
		require.Equal(t, 1, status.Snapshots.Total)
		latest := status.Snapshots.Latest
		require.NotNil(t, latest)
		data, err := os.ReadFile(latest.Path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"block":{"number":"0x2"}}`, string(data))
		assert.True(t, h.redis.Exists("node:snapshot:local"))

		require.True(t, node.Start(ctx, domain.StartNodeOptions{UseSnapshot: true}))
		spec := lastRunSpec(t, h.runtime)
		assert.Contains(t, spec.Cmd, "--load-state")
		assert.Contains(t, spec.Cmd, "/anvil/snapshots/"+latest.File)
		require.Len(t, spec.Mounts, 1)
		assert.Equal(t, filepath.Join(h.cfg.Node.SnapshotDir, "local"), spec.Mounts[0].Source)
	})

	t.Run("start without snapshot starts fresh", func(t *testing.T) {
		h := newHarness(t)
		node := h.nodes(healthyRPC()).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{UseSnapshot: true}))
		assert.NotContains(t, lastRunSpec(t, h.runtime).Cmd, "--load-state")
	})

	t.Run("fork stop does not dump state", func(t *testing.T) {
		h := newHarness(t)
		rpc := healthyRPC()
		node := h.nodes(rpc).Fork

		require.True(t, node.Start(ctx, domain.StartNodeOptions{ForkURL: "https://eth.example"}))
		require.True(t, node.Stop(ctx))
		rpc.AssertNotCalled(t, "DumpState", mock.Anything, mock.Anything)
	})

	t.Run("failed dump still stops the node", func(t *testing.T) {
		h := newHarness(t)
		rpc := &MockNodeRPC{}
		rpc.On("ChainID", mock.Anything, mock.Anything).Return(uint64(31337), nil)
		rpc.On("DumpState", mock.Anything, mock.Anything).Return(nil, errors.New("method not found"))
		node := h.nodes(rpc).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		assert.True(t, node.Stop(ctx))
		_, ok := h.runtime.Get("anvil-rpc-local")
		assert.False(t, ok)
		assert.Zero(t, node.Status(ctx).Snapshots.Total)
	})

	t.Run("restart deletes snapshots", func(t *testing.T) {
		h := newHarness(t)
		node := h.nodes(healthyRPC()).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		require.True(t, node.Restart(ctx))

		assert.Zero(t, node.Status(ctx).Snapshots.Total)
		assert.False(t, h.redis.Exists("node:snapshot:local"))
		assert.NotContains(t, lastRunSpec(t, h.runtime).Cmd, "--load-state")
		assert.True(t, node.Status(ctx).Running)
	})

	t.Run("restart starts a fresh node when teardown fails", func(t *testing.T) {
		h := newHarness(t)
		node := h.nodes(healthyRPC()).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		before, ok := h.runtime.Get("anvil-rpc-local")
		require.True(t, ok)

		h.runtime.SetErrorOnce("RemoveContainer", errors.New("device or resource busy"))
		require.True(t, node.Restart(ctx))

		after, ok := h.runtime.Get("anvil-rpc-local")
		require.True(t, ok)
		assert.NotEqual(t, before.ID, after.ID)
		assert.Equal(t, domain.ContainerRunning, after.Status)
		_, ok = h.runtime.Get(before.ID)
		assert.False(t, ok, "the old container is evicted by name")
		assert.NotContains(t, lastRunSpec(t, h.runtime).Cmd, "--load-state")

		status := node.Status(ctx)
		assert.True(t, status.Running)
		assert.Nil(t, status.LastError)
	})

	t.Run("stop on a stopped node succeeds", func(t *testing.T) {
		h := newHarness(t)
		rpc := healthyRPC()
		assert.True(t, h.nodes(rpc).Local.Stop(ctx))
		rpc.AssertNotCalled(t, "DumpState", mock.Anything, mock.Anything)
	})
}

func TestNodeLifecycle_IdleShutdown(t *testing.T) {
	ctx := context.Background()

	t.Run("idle node stops itself", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Node.IdleTimeout = 50 * time.Millisecond
		node := h.nodes(healthyRPC()).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		assert.Eventually(t, func() bool {
			_, ok := h.runtime.Get("anvil-rpc-local")
			return !ok
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 1, node.Status(ctx).Snapshots.Total, "idle shutdown dumps local state")
	})

	t.Run("activity pushes the shutdown back", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Node.IdleTimeout = 150 * time.Millisecond
		node := h.nodes(healthyRPC()).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		for i := 0; i < 4; i++ {
			time.Sleep(50 * time.Millisecond)
			node.Touch()
		}
		_, ok := h.runtime.Get("anvil-rpc-local")
		assert.True(t, ok, "touched node should still run")

		assert.Eventually(t, func() bool {
			_, ok := h.runtime.Get("anvil-rpc-local")
			return !ok
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("explicit stop cancels the timer", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Node.IdleTimeout = 50 * time.Millisecond
		rpc := healthyRPC()
		node := h.nodes(rpc).Local

		require.True(t, node.Start(ctx, domain.StartNodeOptions{}))
		require.True(t, node.Stop(ctx))
		time.Sleep(150 * time.Millisecond)

		rpc.AssertNumberOfCalls(t, "DumpState", 1)
	})
}

func TestNodeManagers_Get(t *testing.T) {
	h := newHarness(t)
	nodes := h.nodes(healthyRPC())

	n, err := nodes.Get(domain.NodeModeFork)
	require.NoError(t, err)
	assert.Same(t, nodes.Fork, n)
	assert.Equal(t, "anvil-rpc", n.ContainerName())
	assert.Equal(t, "http://localhost:8545", n.RPCURL())

	_, err = nodes.Get("devnet")
	assert.ErrorIs(t, err, domain.ErrUnknownNodeMode)
}
