// Package anvil talks JSON-RPC to anvil nodes running in containers
package anvil

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

const probeTimeout = 2 * time.Second

var gzipMagic = []byte{0x1f, 0x8b}

// Client implements usecase.NodeRPC
type Client struct {
	// probe is used for readiness checks, which poll and must fail fast
	probe *http.Client
	// dump retries transient failures
	dump *http.Client
}

// NewClient creates a node RPC client
func NewClient(log *slog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = log.With("component", "node-rpc")

	return &Client{
		probe: &http.Client{Timeout: probeTimeout},
		dump:  retryClient.StandardClient(),
	}
}

// ChainID returns the chain id reported by the node at url
func (c *Client) ChainID(ctx context.Context, url string) (uint64, error) {
	var id hexutil.Uint64
	if err := c.call(ctx, c.probe, url, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// DumpState returns the node state as anvil serializes it. anvil may gzip the
// dump; the returned bytes are always the decompressed JSON.
func (c *Client) DumpState(ctx context.Context, url string) ([]byte, error) {
	var raw hexutil.Bytes
	if err := c.call(ctx, c.dump, url, &raw, "anvil_dumpState"); err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, gzipMagic) {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed state: %w", err)
	}
	defer zr.Close()
	state, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress state: %w", err)
	}
	return state, nil
}

func (c *Client) call(ctx context.Context, hc *http.Client, url string, result any, method string, args ...any) error {
	client, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(hc))
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}
	defer client.Close()

	if err := client.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}

var _ usecase.NodeRPC = (*Client)(nil)
