package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/queue"
	"github.com/standard-site/siteindex/pkg/logging"
)

// Applier applies or removes record state directly, without a queue hop
type Applier interface {
	ApplyRecord(ctx context.Context, did, collection, rkey, cid string, value map[string]interface{}) error
	Delete(ctx context.Context, did, collection, rkey string) error
}

// Enqueuer submits a work item for asynchronous resolution
type Enqueuer interface {
	Enqueue(ctx context.Context, item queue.WorkItem) error
}

// Handler routes ingestion events into the pipeline. Only events for the
// configured document collection are acted on.
type Handler struct {
	applier    Applier
	queue      Enqueuer
	collection string
	logger     *zap.Logger
}

// NewHandler creates a new ingestion event handler
func NewHandler(applier Applier, q Enqueuer, collection string) *Handler {
	return &Handler{
		applier:    applier,
		queue:      q,
		collection: collection,
		logger:     logging.GetLogger().With(zap.String("component", "ingest")),
	}
}

// HandleEvent dispatches one tap event by kind
func (h *Handler) HandleEvent(ctx context.Context, ev TapEvent) error {
	switch ev.Kind {
	case EventKindRecord:
		if ev.Record == nil {
			return fmt.Errorf("record event %d has no record payload", ev.ID)
		}
		return h.handleRecord(ctx, *ev.Record)
	case EventKindIdentity:
		// Identity churn doesn't invalidate resolved documents; endpoint
		// moves surface through the PDS cache TTL on the next resolution.
		h.logger.Debug("Ignoring identity event", zap.String("did", didOf(ev)))
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func didOf(ev TapEvent) string {
	if ev.Identity != nil {
		return ev.Identity.DID
	}
	return ""
}

func (h *Handler) handleRecord(ctx context.Context, rec RecordEvent) error {
	if rec.Collection != h.collection {
		return nil
	}

	switch rec.Action {
	case ActionDelete:
		return h.applier.Delete(ctx, rec.DID, rec.Collection, rec.Rkey)
	case ActionCreate, ActionUpdate:
		if rec.Record != nil {
			return h.applier.ApplyRecord(ctx, rec.DID, rec.Collection, rec.Rkey, rec.Cid, rec.Record)
		}
		return h.queue.Enqueue(ctx, queue.WorkItem{
			DID:        rec.DID,
			Collection: rec.Collection,
			Rkey:       rec.Rkey,
		})
	default:
		return fmt.Errorf("unknown record action %q", rec.Action)
	}
}

// HandleBatchEvent handles one flattened batch entry. Entries outside the
// document collection or missing a reference are skipped, not errors.
func (h *Handler) HandleBatchEvent(ctx context.Context, ev BatchEvent) (bool, error) {
	if ev.Collection != h.collection || ev.DID == "" || ev.Rkey == "" {
		return false, nil
	}

	switch ev.Type {
	case "commit", ActionCreate, ActionUpdate:
		err := h.handleRecord(ctx, RecordEvent{
			DID:        ev.DID,
			Collection: ev.Collection,
			Rkey:       ev.Rkey,
			Action:     ActionUpdate,
			Cid:        ev.Cid,
			Record:     ev.Record,
		})
		return err == nil, err
	case ActionDelete:
		err := h.applier.Delete(ctx, ev.DID, ev.Collection, ev.Rkey)
		return err == nil, err
	default:
		return false, nil
	}
}
