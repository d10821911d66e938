package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statsHandler reports table sizes and the pending queue depth
func (r *Router) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	records, err := r.store.CountRecords(ctx)
	if err != nil {
		r.logger.Error("Failed to count records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	pds, err := r.store.CountPDSEntries(ctx)
	if err != nil {
		r.logger.Error("Failed to count PDS cache", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	docs, err := r.store.CountDocuments(ctx)
	if err != nil {
		r.logger.Error("Failed to count documents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	// Queue depth is best-effort; stats stay useful when Redis is down.
	depth, err := r.queue.Depth(ctx)
	if err != nil {
		r.logger.Warn("Failed to read queue depth", zap.Error(err))
		depth = -1
	}

	c.JSON(http.StatusOK, gin.H{
		"repo_records":       records,
		"pds_cache":          pds,
		"resolved_documents": docs,
		"queue_depth":        depth,
	})
}
