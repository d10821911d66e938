package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/models"
)

const defaultRecordsLimit = 20

// recordView is the per-DID listing projection of a raw-record entry
type recordView struct {
	DID        string  `json:"did"`
	Collection string  `json:"collection"`
	Rkey       string  `json:"rkey"`
	Cid        *string `json:"cid"`
	SyncedAt   string  `json:"syncedAt"`
}

// recordsHandler lists the raw-record entries observed for one DID
func (r *Router) recordsHandler(c *gin.Context) {
	did := c.Param("did")
	limit := intQuery(c, "limit", defaultRecordsLimit)
	offset := intQuery(c, "offset", 0)

	records, err := r.store.ListRecordsByDID(c.Request.Context(), did, r.collection, limit, offset)
	if err != nil {
		r.logger.Error("Failed to fetch records", zap.String("did", did), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch records"})
		return
	}

	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, toRecordView(rec))
	}

	c.JSON(http.StatusOK, gin.H{
		"did":     did,
		"count":   len(views),
		"limit":   limit,
		"offset":  offset,
		"records": views,
	})
}

func toRecordView(rec *models.RepoRecord) recordView {
	return recordView{
		DID:        rec.DID,
		Collection: rec.Collection,
		Rkey:       rec.Rkey,
		Cid:        optional(rec.Cid),
		SyncedAt:   rec.SyncedAt.UTC().Format(time.RFC3339),
	}
}
