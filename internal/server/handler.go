package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// Handler serves the API routes
type Handler struct {
	nodes     *usecase.NodeManagers
	pool      *usecase.SandboxPool
	images    *usecase.ImageResolver
	cache     *usecase.ContentCache
	manage    *usecase.ManageNode
	networks  *usecase.ListNetworks
	compile   *usecase.CompileProject
	publish   *usecase.PublishDeployment
	logger    *slog.Logger
	startedAt time.Time
}

// NewHandler creates the API handler
func NewHandler(
	nodes *usecase.NodeManagers,
	pool *usecase.SandboxPool,
	images *usecase.ImageResolver,
	cache *usecase.ContentCache,
	manage *usecase.ManageNode,
	networks *usecase.ListNetworks,
	compile *usecase.CompileProject,
	publish *usecase.PublishDeployment,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		nodes:     nodes,
		pool:      pool,
		images:    images,
		cache:     cache,
		manage:    manage,
		networks:  networks,
		compile:   compile,
		publish:   publish,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

type compileRequest struct {
	PathURL        string `json:"path_url" binding:"required"`
	Framework      string `json:"framework" binding:"required"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type publishRequest struct {
	PathURL        string `json:"path_url" binding:"required"`
	Framework      string `json:"framework"`
	Network        string `json:"network"`
	ScriptPath     string `json:"script_path"`
	Fork           bool   `json:"fork"`
	ForkURL        string `json:"fork_url"`
	UseSnapshot    bool   `json:"use_snapshot"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type nodeRequest struct {
	Mode        string `json:"mode"`
	ForkURL     string `json:"fork_url"`
	UseSnapshot bool   `json:"use_snapshot"`
}

type sandboxRequest struct {
	Framework   string `json:"framework" binding:"required"`
	Network     string `json:"network"`
	PeerNode    string `json:"peer_node"`
	UseSnapshot bool   `json:"use_snapshot"`
}

type executeRequest struct {
	sandboxRequest
	Command        string `json:"command" binding:"required"`
	PathURL        string `json:"path_url" binding:"required"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type imageClearRequest struct {
	ImageTag string `json:"image_tag"`
}

type cacheClearRequest struct {
	Pattern string `json:"pattern"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func (h *Handler) compileProject(c *gin.Context) {
	var req compileRequest
	if !bindJSON(c, &req) {
		return
	}
	toolchain, err := domain.ParseToolchain(req.Framework)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.compile.Run(c.Request.Context(), domain.CompileRequest{
		ProjectPath: req.PathURL,
		Toolchain:   toolchain,
		Timeout:     seconds(req.TimeoutSeconds),
	})
	if err != nil {
		h.logger.Warn("compile failed", "path", req.PathURL, "error", err)
		respondError(c, err)
		return
	}
	c.JSON(statusFor(result.Success), result)
}

func (h *Handler) publishDeployment(c *gin.Context) {
	var req publishRequest
	if !bindJSON(c, &req) {
		return
	}
	var toolchain domain.Toolchain
	if req.Framework != "" {
		t, err := domain.ParseToolchain(req.Framework)
		if err != nil {
			respondError(c, err)
			return
		}
		toolchain = t
	}

	result, err := h.publish.Run(c.Request.Context(), domain.PublishRequest{
		ProjectPath: req.PathURL,
		Toolchain:   toolchain,
		Network:     req.Network,
		Script:      req.ScriptPath,
		Fork:        req.Fork,
		ForkURL:     req.ForkURL,
		UseSnapshot: req.UseSnapshot,
		Timeout:     seconds(req.TimeoutSeconds),
	})
	if err != nil {
		h.logger.Warn("publish failed", "path", req.PathURL, "network", req.Network, "error", err)
		respondError(c, err)
		return
	}
	c.JSON(statusFor(result.Success), result)
}

func (h *Handler) listNetworks(c *gin.Context) {
	result, err := h.networks.Run(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"networks":        result.Networks,
		"default_network": result.DefaultNetwork,
		"total_networks":  len(result.Networks),
	})
}

func (h *Handler) getNetwork(c *gin.Context) {
	network, err := h.networks.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, network)
}

// manageNode serves start, stop and restart under /admin/server/anvil/:op
func (h *Handler) manageNode(c *gin.Context) {
	var req nodeRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	op := c.Param("op")
	switch op {
	case "start", "stop", "restart", "status":
	default:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown node operation: " + op})
		return
	}

	result, err := h.manage.Execute(c.Request.Context(), usecase.ManageNodeParams{
		Operation:   op,
		Mode:        nodeMode(c, req.Mode),
		ForkURL:     req.ForkURL,
		UseSnapshot: req.UseSnapshot,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if op == "status" {
		c.JSON(http.StatusOK, result.Status)
		return
	}
	c.JSON(statusFor(result.Success), result)
}

func (h *Handler) nodeStatus(c *gin.Context) {
	node, err := h.nodes.Get(nodeMode(c, ""))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node.Status(c.Request.Context()))
}

func (h *Handler) imageCacheStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.images.Stats(c.Request.Context()))
}

func (h *Handler) imageCacheClear(c *gin.Context) {
	var req imageClearRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	removed, err := h.images.Clear(c.Request.Context(), req.ImageTag)
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "Cleared all image cache"
	if req.ImageTag != "" {
		msg = "Cleared cache for " + req.ImageTag
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "removed": removed})
}

func (h *Handler) resultCacheStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats(c.Request.Context()))
}

func (h *Handler) resultCacheClear(c *gin.Context) {
	var req cacheClearRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	removed, err := h.cache.Clear(c.Request.Context(), req.Pattern)
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "Cleared all result cache"
	if req.Pattern != "" {
		msg = "Cleared result cache for pattern: " + req.Pattern
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "removed": removed})
}

func (h *Handler) containersStatus(c *gin.Context) {
	sandboxes := h.pool.Status(c.Request.Context())
	running := 0
	for _, sb := range sandboxes {
		if sb.Status == domain.ContainerRunning {
			running++
		}
	}
	nodes := make([]domain.NodeStatus, 0, 2)
	for _, n := range h.nodes.All() {
		nodes = append(nodes, n.Status(c.Request.Context()))
	}
	c.JSON(http.StatusOK, gin.H{
		"sandboxes":        sandboxes,
		"nodes":            nodes,
		"total_containers": running,
	})
}

func (h *Handler) containersCleanup(c *gin.Context) {
	if err := h.pool.CleanupAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "All persistent containers cleaned up"})
}

func (h *Handler) sandboxStart(c *gin.Context) {
	var req sandboxRequest
	if !bindJSON(c, &req) {
		return
	}
	sreq, err := h.sandboxRequest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	id, err := h.pool.GetOrStart(c.Request.Context(), sreq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "container_id": id})
}

func (h *Handler) sandboxExecute(c *gin.Context) {
	var req executeRequest
	if !bindJSON(c, &req) {
		return
	}
	sreq, err := h.sandboxRequest(c.Request.Context(), req.sandboxRequest)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.pool.Execute(c.Request.Context(), domain.ExecRequest{
		Toolchain:   sreq.Toolchain,
		Command:     req.Command,
		ProjectPath: req.PathURL,
		Network:     sreq.Network,
		PeerNode:    sreq.PeerNode,
		UseSnapshot: sreq.UseSnapshot,
		Timeout:     seconds(req.TimeoutSeconds),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(statusFor(result.Success), result)
}

func (h *Handler) sandboxRequest(ctx context.Context, req sandboxRequest) (domain.SandboxRequest, error) {
	toolchain, err := domain.ParseToolchain(req.Framework)
	if err != nil {
		return domain.SandboxRequest{}, err
	}
	out := domain.SandboxRequest{Toolchain: toolchain, PeerNode: req.PeerNode, UseSnapshot: req.UseSnapshot}
	if req.Network != "" {
		network, err := h.networks.Get(ctx, req.Network)
		if err != nil {
			return domain.SandboxRequest{}, err
		}
		out.Network = network
	}
	return out, nil
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return false
	}
	return true
}

// respondError maps domain errors onto status codes. Unknown networks in a
// request body are a bad request, not a missing resource.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var unknown domain.UnknownNetworkErr
	switch {
	case errors.As(err, &unknown),
		errors.Is(err, domain.ErrInvalidProject),
		errors.Is(err, domain.ErrUnknownToolchain),
		errors.Is(err, domain.ErrUnknownNodeMode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRuntimeUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFor(success bool) int {
	if success {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func nodeMode(c *gin.Context, fromBody string) domain.NodeMode {
	if m := c.Query("mode"); m != "" {
		return domain.NodeMode(m)
	}
	if fromBody != "" {
		return domain.NodeMode(fromBody)
	}
	return domain.NodeModeLocal
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
