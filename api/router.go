package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts all HTTP endpoints on the router.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/sync/status", h.SyncStatusHandler())
	r.POST("/api/sync/:source", h.TriggerSyncHandler())
	r.POST("/api/sync/:source/historical", h.HistoricalSyncHandler())

	r.POST("/api/reconciliation", h.TriggerReconciliationHandler())
	r.GET("/api/reconciliation/runs", h.ListRunsHandler())
	r.GET("/api/reconciliation/runs/:id/results", h.RunResultsHandler())
	r.GET("/api/reconciliation/runs/:id/export", h.ExportRunHandler())

	r.GET("/api/transactions", h.ListTransactionsHandler())

	// Pub/Sub push endpoint for externally triggered syncs.
	r.POST("/pubsub/sync-trigger", h.PubSubSyncTriggerHandler())
}
