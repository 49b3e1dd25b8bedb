package server

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API on router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	router.POST("/deploy", h.compileProject)
	router.POST("/publish", h.publishDeployment)

	router.GET("/networks", h.listNetworks)
	router.GET("/networks/:name", h.getNetwork)

	router.POST("/sandbox/start", h.sandboxStart)
	router.POST("/sandbox/execute", h.sandboxExecute)

	admin := router.Group("/admin/server")
	admin.GET("/health", h.health)

	admin.GET("/anvil/status", h.nodeStatus)
	admin.POST("/anvil/:op", h.manageNode)

	admin.GET("/cache/status", h.imageCacheStatus)
	admin.POST("/cache/clear", h.imageCacheClear)

	admin.GET("/foundry-cache/status", h.resultCacheStatus)
	admin.POST("/foundry-cache/clear", h.resultCacheClear)

	admin.GET("/containers/status", h.containersStatus)
	admin.POST("/containers/cleanup", h.containersCleanup)
}
