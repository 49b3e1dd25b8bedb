package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

func TestManageNode_Execute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sink := &MockProgressSink{}
	uc := usecase.NewManageNode(h.nodes(healthyRPC()), sink)

	tests := []struct {
		name    string
		op      string
		running bool
		message string
	}{
		{name: "start", op: "start", running: true, message: "local node started"},
		{name: "status", op: "status", running: true},
		{name: "restart", op: "restart", running: true, message: "local node restarted"},
		{name: "stop", op: "stop", running: false, message: "local node stopped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := uc.Execute(ctx, usecase.ManageNodeParams{Operation: tt.op, Mode: domain.NodeModeLocal})
			require.NoError(t, err)
			assert.True(t, result.Success)
			assert.Equal(t, tt.op, result.Operation)
			assert.Equal(t, tt.running, result.Status.Running)
			assert.Equal(t, tt.message, result.Message)
		})
	}

	assert.Equal(t, []string{
		"🔨 Starting local node on port 8545...",
		"🔄 Restarting local node...",
		"🛑 Stopping local node...",
	}, sink.infos)
}

func TestManageNode_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("start failure carries the last error", func(t *testing.T) {
		h := newHarness(t)
		h.runtime.SetError("Ping", errors.New("dial unix /var/run/docker.sock: connect: no such file or directory"))
		uc := usecase.NewManageNode(h.nodes(healthyRPC()), usecase.NopProgress{})

		result, err := uc.Execute(ctx, usecase.ManageNodeParams{Operation: "start", Mode: domain.NodeModeFork})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "fork node failed to start: container runtime unreachable", result.Message)
		require.NotNil(t, result.Status.LastError)
		assert.Equal(t, domain.KindRuntimeUnavailable, result.Status.LastError.Kind)
	})

	t.Run("unknown operation", func(t *testing.T) {
		h := newHarness(t)
		uc := usecase.NewManageNode(h.nodes(healthyRPC()), usecase.NopProgress{})
		_, err := uc.Execute(ctx, usecase.ManageNodeParams{Operation: "pause", Mode: domain.NodeModeLocal})
		assert.EqualError(t, err, "unknown operation: pause")
	})

	t.Run("unknown mode", func(t *testing.T) {
		h := newHarness(t)
		uc := usecase.NewManageNode(h.nodes(healthyRPC()), usecase.NopProgress{})
		_, err := uc.Execute(ctx, usecase.ManageNodeParams{Operation: "start", Mode: "devnet"})
		assert.ErrorIs(t, err, domain.ErrUnknownNodeMode)
	})
}
