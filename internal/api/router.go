package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/ingest"
	"github.com/standard-site/siteindex/internal/models"
	"github.com/standard-site/siteindex/internal/queue"
	"github.com/standard-site/siteindex/pkg/logging"
)

// Store is the read/admin surface the API serves from
type Store interface {
	ListVerifiedDocuments(ctx context.Context, limit, offset int) ([]*models.ResolvedDocument, error)
	ListRecordsByDID(ctx context.Context, did, collection string, limit, offset int) ([]*models.RepoRecord, error)
	ListRecordPage(ctx context.Context, collection string, limit, offset int) ([]*models.RepoRecord, error)
	ListAllRecords(ctx context.Context, collection string) ([]*models.RepoRecord, error)
	MarkAllStale(ctx context.Context, staleAt time.Time) (int64, error)
	CountRecords(ctx context.Context) (int64, error)
	CountPDSEntries(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
}

// Enqueuer submits work items for asynchronous resolution
type Enqueuer interface {
	EnqueueBatch(ctx context.Context, items []queue.WorkItem) error
	Depth(ctx context.Context) (int64, error)
}

// Router sets up API routes
type Router struct {
	store         Store
	queue         Enqueuer
	events        *ingest.Handler
	collection    string
	webhookSecret string
	logger        *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(store Store, q Enqueuer, events *ingest.Handler, collection, webhookSecret string) *Router {
	return &Router{
		store:         store,
		queue:         q,
		events:        events,
		collection:    collection,
		webhookSecret: webhookSecret,
		logger:        logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	// Ingestion intake
	engine.POST("/webhook/tap", r.tapHandler)
	engine.POST("/webhook/tap/batch", r.tapBatchHandler)

	// Public read surface
	engine.GET("/feed", r.feedHandler)
	engine.GET("/feed/raw", r.feedRawHandler)
	engine.GET("/feed-raw", r.feedRawHandler) // legacy alias
	engine.GET("/records/:did", r.recordsHandler)
	engine.GET("/stats", r.statsHandler)

	// Admin triggers
	engine.POST("/admin/resolve-all", r.resolveAllHandler)
	engine.POST("/admin/mark-stale", r.markStaleHandler)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "siteindex-api",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// intQuery parses an integer query parameter, falling back on absence or junk
func intQuery(c *gin.Context, key string, defaultValue int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}
