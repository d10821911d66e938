package api

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/models"
)

const (
	defaultFeedLimit = 50
	maxRawFeedLimit  = 15
)

// documentView is the public feed projection of a resolved document
type documentView struct {
	URI         string          `json:"uri"`
	DID         string          `json:"did"`
	Rkey        string          `json:"rkey"`
	Title       string          `json:"title"`
	Path        *string         `json:"path"`
	Site        *string         `json:"site"`
	Content     json.RawMessage `json:"content"`
	TextContent *string         `json:"textContent"`
	PublishedAt *string         `json:"publishedAt"`
	ViewURL     *string         `json:"viewUrl"`
}

// recordRef is the bare (did, rkey) reference served by the raw feed
type recordRef struct {
	DID  string `json:"did"`
	Rkey string `json:"rkey"`
}

// feedHandler serves the public feed: verified documents, newest first
func (r *Router) feedHandler(c *gin.Context) {
	limit := intQuery(c, "limit", defaultFeedLimit)
	offset := intQuery(c, "offset", 0)

	docs, err := r.store.ListVerifiedDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		r.logger.Error("Failed to fetch feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch feed"})
		return
	}

	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, toDocumentView(doc))
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(views),
		"limit":     limit,
		"offset":    offset,
		"documents": views,
	})
}

// feedRawHandler serves bare record references for client-side resolution.
// The page size is capped to keep client fan-out bounded.
func (r *Router) feedRawHandler(c *gin.Context) {
	limit := intQuery(c, "limit", maxRawFeedLimit)
	if limit > maxRawFeedLimit {
		limit = maxRawFeedLimit
	}
	offset := intQuery(c, "offset", 0)

	records, err := r.store.ListRecordPage(c.Request.Context(), r.collection, limit, offset)
	if err != nil {
		r.logger.Error("Failed to fetch raw feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch feed"})
		return
	}

	refs := make([]recordRef, 0, len(records))
	for _, rec := range records {
		refs = append(refs, recordRef{DID: rec.DID, Rkey: rec.Rkey})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(refs),
		"limit":   limit,
		"offset":  offset,
		"records": refs,
	})
}

func toDocumentView(doc *models.ResolvedDocument) documentView {
	title := doc.Title.String
	if !doc.Title.Valid || title == "" {
		title = "Untitled"
	}

	view := documentView{
		URI:         doc.URI,
		DID:         doc.DID,
		Rkey:        doc.Rkey,
		Title:       title,
		Path:        optional(doc.Path),
		Site:        optional(doc.Site),
		TextContent: optional(doc.TextContent),
		PublishedAt: optional(doc.PublishedAt),
		ViewURL:     optional(doc.ViewURL),
	}
	if doc.Content.Valid {
		view.Content = json.RawMessage(doc.Content.String)
	}
	return view
}

func optional(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
