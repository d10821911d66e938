package api

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/ingest"
)

// authorized checks webhook credentials. Both Basic auth with the fixed
// "admin" user and a bare Bearer token carry the shared secret; an empty
// configured secret disables the check.
func (r *Router) authorized(c *gin.Context) bool {
	if r.webhookSecret == "" {
		return true
	}

	auth := c.GetHeader("Authorization")
	expectedBasic := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:"+r.webhookSecret))
	expectedBearer := "Bearer " + r.webhookSecret

	return auth == expectedBasic || auth == expectedBearer
}

// tapHandler ingests a single tap event
func (r *Router) tapHandler(c *gin.Context) {
	if !r.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var event ingest.TapEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	if err := r.events.HandleEvent(c.Request.Context(), event); err != nil {
		r.logger.Error("Webhook event failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// tapBatchHandler ingests a flattened batch of events. Entries are processed
// independently; one bad entry never blocks the rest of the batch.
func (r *Router) tapBatchHandler(c *gin.Context) {
	if !r.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var events []ingest.BatchEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch payload"})
		return
	}

	processed := 0
	errored := 0
	for _, event := range events {
		ok, err := r.events.HandleBatchEvent(c.Request.Context(), event)
		if err != nil {
			r.logger.Warn("Batch entry failed",
				zap.String("did", event.DID),
				zap.String("rkey", event.Rkey),
				zap.Error(err))
			errored++
			continue
		}
		if ok {
			processed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"processed": processed,
		"errors":    errored,
	})
}
