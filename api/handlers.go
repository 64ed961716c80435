package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"bitbucket.org/mmdatafocus/recon_backend/config"
	"bitbucket.org/mmdatafocus/recon_backend/models"
	"bitbucket.org/mmdatafocus/recon_backend/recon"
	"bitbucket.org/mmdatafocus/recon_backend/syncer"
	"bitbucket.org/mmdatafocus/recon_backend/utils"
)

const moduleName = "api"

// Handlers carries the wired engines; construction makes every
// dependency explicit.
type Handlers struct {
	store  *models.Store
	engine *syncer.Engine
	recon  *recon.Engine
}

func NewHandlers(store *models.Store, engine *syncer.Engine, reconEngine *recon.Engine) *Handlers {
	return &Handlers{store: store, engine: engine, recon: reconEngine}
}

func (h *Handlers) SyncStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		states, err := h.store.ListSyncStates(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": states})
	}
}

type triggerSyncRequest struct {
	FullSync bool `json:"fullSync"`
}

// TriggerSyncHandler starts a sync in the background and returns 202.
// A duplicate trigger is absorbed by the single-flight guard inside
// the engine.
func (h *Handlers) TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.Param("source")
		if !models.ValidSource(source) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}

		var req triggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, bindErrorBody(err))
				return
			}
		}
		force := c.Query("force") == "true"

		opts := syncer.Options{
			Force:       force,
			FullSync:    req.FullSync,
			TriggeredBy: models.SyncTriggeredManual,
		}

		go func() {
			ctx := detachContext(c.Request.Context())
			if _, err := h.engine.Sync(ctx, source, opts); err != nil && !errors.Is(err, syncer.ErrSyncAlreadyRunning) {
				config.LogError(config.GetLogger(), moduleName, "TriggerSyncHandler", "background sync", source, err)
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"source": source, "status": "accepted"})
	}
}

type historicalSyncRequest struct {
	Days int `json:"days" binding:"omitempty,min=1,max=90"`
}

func (h *Handlers) HistoricalSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.Param("source")
		if !models.ValidSource(source) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}

		var req historicalSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, bindErrorBody(err))
				return
			}
		}
		days := req.Days
		if days == 0 {
			days = config.InitialSyncDays()
		}

		go func() {
			ctx := detachContext(c.Request.Context())
			if _, err := h.engine.HistoricalSync(ctx, source, days); err != nil && !errors.Is(err, syncer.ErrSyncAlreadyRunning) {
				config.LogError(config.GetLogger(), moduleName, "HistoricalSyncHandler", "background historical sync", source, err)
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"source": source, "days": days, "status": "accepted"})
	}
}

type reconciliationRequest struct {
	Date  string `json:"date" binding:"required"`
	Force bool   `json:"force"`
}

func (h *Handlers) TriggerReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reconciliationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, bindErrorBody(err))
			return
		}
		day, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}

		go func() {
			ctx := detachContext(c.Request.Context())
			if _, err := h.recon.RunForDate(ctx, day, req.Force); err != nil {
				config.LogError(config.GetLogger(), moduleName, "TriggerReconciliationHandler", "background reconciliation", req.Date, err)
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"date": req.Date, "status": "accepted"})
	}
}

func (h *Handlers) ListRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 30
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		var date *time.Time
		if v := strings.TrimSpace(c.Query("date")); v != "" {
			day, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			date = &day
		}
		runs, err := h.store.ListRuns(c.Request.Context(), date, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": runs})
	}
}

func (h *Handlers) RunResultsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := h.loadRun(c)
		if !ok {
			return
		}
		results, err := h.store.ResultsForRun(c.Request.Context(), run.ID, strings.TrimSpace(c.Query("match_status")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"run": run, "results": results})
	}
}

func (h *Handlers) ExportRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := h.loadRun(c)
		if !ok {
			return
		}
		results, err := h.store.ResultsForRun(c.Request.Context(), run.ID, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+recon.ExportFilename(run))
		if err := recon.ExportRunXlsx(c.Writer, run, results); err != nil {
			config.LogError(config.GetLogger(), moduleName, "ExportRunHandler", "write workbook", run.ID, err)
		}
	}
}

func (h *Handlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.TransactionFilter{
			Source:      c.Query("source"),
			Status:      c.Query("status"),
			Project:     c.Query("project"),
			BusinessKey: c.Query("business_key"),
		}
		if filter.Source != "" && !models.ValidSource(filter.Source) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source"})
			return
		}
		if v := strings.TrimSpace(c.Query("date")); v != "" {
			day, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			filter.Date = &day
		}
		if v := c.Query("page"); v != "" {
			filter.Page, _ = strconv.Atoi(v)
		}
		if v := c.Query("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}

		txns, total, err := h.store.QueryTransactions(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": txns, "total": total})
	}
}

func (h *Handlers) loadRun(c *gin.Context) (*models.ReconciliationRun, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return nil, false
	}
	run, err := h.store.RunByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return run, true
}

func bindErrorBody(err error) gin.H {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)}
	}
	return gin.H{"error": "invalid request"}
}

// detachContext keeps request-scoped values for background work after
// the HTTP response is written.
func detachContext(ctx context.Context) context.Context {
	out := context.Background()
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		out = utils.SetCorrelationIdInContext(out, cid)
	}
	return out
}
