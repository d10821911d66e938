package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/queue"
)

// resolveBatchSize bounds a single enqueue round trip
const resolveBatchSize = 100

// resolveAllHandler re-enqueues every known record for resolution
func (r *Router) resolveAllHandler(c *gin.Context) {
	ctx := c.Request.Context()

	records, err := r.store.ListAllRecords(ctx, r.collection)
	if err != nil {
		r.logger.Error("Failed to list records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue documents"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No documents to process", "queued": 0})
		return
	}

	items := make([]queue.WorkItem, 0, len(records))
	for _, rec := range records {
		items = append(items, queue.WorkItem{
			DID:        rec.DID,
			Collection: rec.Collection,
			Rkey:       rec.Rkey,
		})
	}

	queued := 0
	for start := 0; start < len(items); start += resolveBatchSize {
		end := start + resolveBatchSize
		if end > len(items) {
			end = len(items)
		}
		if err := r.queue.EnqueueBatch(ctx, items[start:end]); err != nil {
			r.logger.Error("Failed to enqueue batch", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue documents"})
			return
		}
		queued += end - start
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Documents queued for re-processing",
		"queued":  queued,
	})
}

// markStaleHandler forces every document past its freshness deadline, letting
// the sweeper pick them up on its next pass.
func (r *Router) markStaleHandler(c *gin.Context) {
	staleAt := time.Now().UTC().Add(-time.Hour)

	affected, err := r.store.MarkAllStale(c.Request.Context(), staleAt)
	if err != nil {
		r.logger.Error("Failed to mark documents stale", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark documents as stale"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "All documents marked as stale",
		"affected": affected,
	})
}
