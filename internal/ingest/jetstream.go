package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/pkg/logging"
)

const reconnectDelay = 5 * time.Second

// jetstreamEvent is the raw JSON structure from Jetstream
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the raw commit data from Jetstream
type jetstreamCommit struct {
	Rev        string                 `json:"rev"`
	Operation  string                 `json:"operation"`
	Collection string                 `json:"collection"`
	Rkey       string                 `json:"rkey"`
	Record     map[string]interface{} `json:"record,omitempty"`
	Cid        string                 `json:"cid"`
}

// JetstreamSubscriber is an alternative ingestion source: it tails the
// Jetstream firehose for document-collection commits and routes them through
// the same event handling path as the webhook intake.
type JetstreamSubscriber struct {
	url        string
	collection string
	handler    *Handler
	logger     *zap.Logger
}

// NewJetstreamSubscriber creates a new firehose subscriber
func NewJetstreamSubscriber(firehoseURL, collection string, handler *Handler) *JetstreamSubscriber {
	return &JetstreamSubscriber{
		url:        firehoseURL,
		collection: collection,
		handler:    handler,
		logger:     logging.GetLogger().With(zap.String("component", "jetstream")),
	}
}

// Run connects to the firehose and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *JetstreamSubscriber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("Firehose connection error, reconnecting", zap.Error(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(reconnectDelay):
				}
			}
		}
	}
}

func (s *JetstreamSubscriber) buildURL() string {
	u, _ := url.Parse(s.url)
	q := u.Query()
	q.Add("wantedCollections", s.collection)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *JetstreamSubscriber) subscribe(ctx context.Context) error {
	wsURL := s.buildURL()
	s.logger.Info("Connecting to firehose", zap.String("url", wsURL))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	s.logger.Info("Connected to firehose")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var event jetstreamEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Error("Failed to parse firehose event", zap.Error(err))
			continue
		}

		if event.Kind != "commit" || event.Commit == nil {
			continue
		}
		if event.Commit.Collection != s.collection {
			continue
		}

		action := event.Commit.Operation
		if action == "" {
			continue
		}

		err = s.handler.HandleEvent(ctx, TapEvent{
			Kind: EventKindRecord,
			Record: &RecordEvent{
				Live:       true,
				Rev:        event.Commit.Rev,
				DID:        event.DID,
				Collection: event.Commit.Collection,
				Rkey:       event.Commit.Rkey,
				Action:     action,
				Cid:        event.Commit.Cid,
				Record:     event.Commit.Record,
			},
		})
		if err != nil {
			// Commits that fail inline application are retried through the
			// queue instead of stalling the stream.
			s.logger.Warn("Firehose commit failed, enqueueing for retry",
				zap.String("did", event.DID),
				zap.String("rkey", event.Commit.Rkey),
				zap.Error(err))
			s.enqueueFallback(ctx, event)
		}
	}
}

func (s *JetstreamSubscriber) enqueueFallback(ctx context.Context, event jetstreamEvent) {
	if event.Commit == nil || event.Commit.Operation == ActionDelete {
		return
	}
	ev := TapEvent{
		Kind: EventKindRecord,
		Record: &RecordEvent{
			DID:        event.DID,
			Collection: event.Commit.Collection,
			Rkey:       event.Commit.Rkey,
			Action:     ActionUpdate,
		},
	}
	if err := s.handler.HandleEvent(ctx, ev); err != nil {
		s.logger.Error("Failed to enqueue firehose fallback", zap.Error(err))
	}
}
