package sweeper

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/models"
	"github.com/standard-site/siteindex/internal/queue"
	"github.com/standard-site/siteindex/pkg/logging"
)

// selectLimit caps how many stale documents a single sweep picks up
const selectLimit = 5000

// StaleLister selects resolved documents whose freshness deadline has passed
type StaleLister interface {
	ListStale(ctx context.Context, now time.Time, limit int) ([]*models.ResolvedDocument, error)
}

// Enqueuer submits work items for re-resolution
type Enqueuer interface {
	EnqueueBatch(ctx context.Context, items []queue.WorkItem) error
}

// Sweeper periodically re-enqueues stale resolved documents. It is the sole
// mechanism keeping resolved data fresh outside of explicit ingestion events.
type Sweeper struct {
	docs      StaleLister
	queue     Enqueuer
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// New creates a new staleness sweeper
func New(docs StaleLister, q Enqueuer, clk clock.Clock, interval time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		docs:      docs,
		queue:     q,
		clock:     clk,
		interval:  interval,
		batchSize: batchSize,
		logger:    logging.GetLogger().With(zap.String("component", "sweeper")),
	}
}

// Run sweeps on a fixed interval until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("Starting staleness sweeper", zap.Duration("interval", s.interval))

	for {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("Sweep failed", zap.Error(err))
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Sweep selects stale documents and enqueues them for re-resolution in
// batches. Per-batch enqueue failures are aggregated; a failed batch is
// simply picked up again on the next sweep.
func (s *Sweeper) Sweep(ctx context.Context) error {
	docs, err := s.docs.ListStale(ctx, s.clock.Now().UTC(), selectLimit)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		s.logger.Debug("No stale documents")
		return nil
	}

	items := make([]queue.WorkItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, queue.WorkItem{
			DID:        doc.DID,
			Collection: doc.Collection,
			Rkey:       doc.Rkey,
		})
	}

	var result *multierror.Error
	queued := 0
	for start := 0; start < len(items); start += s.batchSize {
		end := start + s.batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := s.queue.EnqueueBatch(ctx, items[start:end]); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		queued += end - start
	}

	s.logger.Info("Sweep complete",
		zap.Int("stale", len(items)),
		zap.Int("queued", queued))

	return result.ErrorOrNil()
}
