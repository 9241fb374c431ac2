package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/workflow"
)

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

func outboxStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := models.TenantFromContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		refType := models.LedgerEventType(strings.ToUpper(strings.TrimSpace(c.DefaultQuery("reference_type", string(models.LedgerEventTypeSale)))))
		refId, ok := queryInt(c, "reference_id")
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference_id is required"})
			return
		}
		status, err := models.GetOutboxStatus(c.Request.Context(), config.GetDB(), tenant, refType, refId)
		if errors.Is(err, models.ErrOutboxRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// outboxReplayHandler requeues a FAILED or DEAD sale event of the caller's business.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := models.TenantFromContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}
		next, err := models.ReplayOutboxMessage(c.Request.Context(), config.GetDB(), tenant, req.RecordId)
		if errors.Is(err, models.ErrOutboxRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"business_id":     tenant.BusinessId,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		})
	}
}

func stockDriftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := models.TenantFromContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		itemId, err := strconv.Atoi(c.Param("id"))
		if err != nil || itemId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
			return
		}
		drift, err := workflow.GetStockDrift(c.Request.Context(), models.NewGormLedgerStore(config.GetDB()), tenant, itemId)
		if errors.Is(err, models.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, drift)
	}
}

func lowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := models.TenantFromContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		items, err := workflow.LowStockItems(c.Request.Context(), models.NewGormLedgerStore(config.GetDB()), tenant)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}
