package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-runner/internal/adapters/docker/fake"
	"github.com/trebuchet-org/treb-runner/internal/adapters/redisstore"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"github.com/trebuchet-org/treb-runner/internal/logging"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// MockNodeRPC is a mock implementation of NodeRPC
type MockNodeRPC struct {
	mock.Mock
}

func (m *MockNodeRPC) ChainID(ctx context.Context, url string) (uint64, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockNodeRPC) DumpState(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// healthyRPC answers every probe and dump
func healthyRPC() *MockNodeRPC {
	rpc := &MockNodeRPC{}
	rpc.On("ChainID", mock.Anything, mock.Anything).Return(uint64(31337), nil)
	rpc.On("DumpState", mock.Anything, mock.Anything).Return([]byte(`{"block":{"number":"0x2"}}`), nil)
	return rpc
}

// MockProgressSink records progress events
type MockProgressSink struct {
	events []usecase.ProgressEvent
	infos  []string
}

func (m *MockProgressSink) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	m.events = append(m.events, event)
}

func (m *MockProgressSink) Info(message string)  { m.infos = append(m.infos, message) }
func (m *MockProgressSink) Error(message string) {}

type harness struct {
	cfg      *config.RuntimeConfig
	runtime  *fake.Runtime
	store    usecase.CacheStore
	redis    *miniredis.Miniredis
	log      *slog.Logger
	reporter *logging.ErrorLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dataDir := t.TempDir()
	cfg := &config.RuntimeConfig{
		DataDir: dataDir,
		Docker:  config.DockerConfig{Network: "deployer-network"},
		Cache: config.CacheConfig{
			ResultTTL:   time.Hour,
			ImageTTL:    time.Hour,
			StateTTL:    2 * time.Hour,
			SnapshotTTL: 24 * time.Hour,
		},
		Node: config.NodeConfig{
			Image:         "foundry-deployer:latest",
			ContainerName: "anvil-rpc",
			Port:          8545,
			RPCHost:       "localhost",
			IdleTimeout:   time.Hour,
			ReadyRetries:  3,
			ReadyInterval: time.Millisecond,
			StopTimeout:   time.Second,
			SnapshotDir:   filepath.Join(dataDir, "snapshots"),
			SnapshotKeep:  5,
		},
		Sandbox: config.SandboxConfig{
			IdleTimeout:  time.Hour,
			StopTimeout:  time.Second,
			OutputWindow: 2000,
			Workspace:    "/workspace",
			Exclude:      []string{"**/node_modules", "**/cache", "**/.artifacts"},
		},
		Images: map[domain.Toolchain]config.ImageConfig{
			domain.ToolchainFoundry: {
				Tag:    "foundry-deployer:latest",
				Recipe: domain.BuildRecipe{Dockerfile: "containers/images/Dockerfile.foundry", ContextDir: "."},
			},
			domain.ToolchainHardhat: {
				Tag:    "hardhat-deployer:latest",
				Recipe: domain.BuildRecipe{Dockerfile: "containers/images/Dockerfile", ContextDir: "."},
			},
		},
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := fake.NewRuntime()
	rt.Images["foundry-deployer:latest"] = "sha256:foundry"
	rt.Images["hardhat-deployer:latest"] = "sha256:hardhat"

	return &harness{
		cfg:      cfg,
		runtime:  rt,
		store:    redisstore.NewStore(client),
		redis:    mr,
		log:      log,
		reporter: logging.NewErrorLogger(log),
	}
}

// newProject writes a minimal foundry project
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "foundry.toml", "[profile.default]\nsrc = \"src\"\n")
	writeFile(t, dir, "src/Counter.sol", "contract Counter { uint256 public n; }")
	writeFile(t, dir, "script/Deploy.s.sol", "contract Deploy {}")
	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

// isCommand tells the user command apart from workspace preparation
func isCommand(spec domain.ExecSpec) bool {
	return spec.WorkingDir != ""
}

var _ usecase.ContainerRuntime = (*fake.Runtime)(nil)
