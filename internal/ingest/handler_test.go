package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/standard-site/siteindex/internal/queue"
)

type fakeApplier struct {
	applied []string
	deleted []string
	err     error
}

func (f *fakeApplier) ApplyRecord(ctx context.Context, did, collection, rkey, cid string, value map[string]interface{}) error {
	f.applied = append(f.applied, did+"/"+rkey)
	return f.err
}

func (f *fakeApplier) Delete(ctx context.Context, did, collection, rkey string) error {
	f.deleted = append(f.deleted, did+"/"+rkey)
	return f.err
}

type fakeEnqueuer struct {
	items []queue.WorkItem
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, item queue.WorkItem) error {
	f.items = append(f.items, item)
	return nil
}

const testCollection = "site.standard.document"

func TestHandleEventDispatch(t *testing.T) {
	tests := []struct {
		name        string
		event       TapEvent
		wantErr     bool
		wantApplied int
		wantDeleted int
		wantQueued  int
	}{
		{
			name: "create with embedded record applies inline",
			event: TapEvent{
				Kind: EventKindRecord,
				Record: &RecordEvent{
					DID: "did:plc:abc", Collection: testCollection, Rkey: "r1",
					Action: ActionCreate,
					Record: map[string]interface{}{"title": "x"},
				},
			},
			wantApplied: 1,
		},
		{
			name: "update without record enqueues",
			event: TapEvent{
				Kind: EventKindRecord,
				Record: &RecordEvent{
					DID: "did:plc:abc", Collection: testCollection, Rkey: "r1",
					Action: ActionUpdate,
				},
			},
			wantQueued: 1,
		},
		{
			name: "delete bypasses re-fetch",
			event: TapEvent{
				Kind: EventKindRecord,
				Record: &RecordEvent{
					DID: "did:plc:abc", Collection: testCollection, Rkey: "r1",
					Action: ActionDelete,
				},
			},
			wantDeleted: 1,
		},
		{
			name: "other collection ignored",
			event: TapEvent{
				Kind: EventKindRecord,
				Record: &RecordEvent{
					DID: "did:plc:abc", Collection: "app.bsky.feed.post", Rkey: "r1",
					Action: ActionCreate,
					Record: map[string]interface{}{"text": "x"},
				},
			},
		},
		{
			name: "identity event acknowledged without action",
			event: TapEvent{
				Kind:     EventKindIdentity,
				Identity: &IdentityEvent{DID: "did:plc:abc", Handle: "abc.example"},
			},
		},
		{
			name:    "unknown kind rejected",
			event:   TapEvent{Kind: "mystery"},
			wantErr: true,
		},
		{
			name:    "record event without payload rejected",
			event:   TapEvent{Kind: EventKindRecord},
			wantErr: true,
		},
		{
			name: "unknown action rejected",
			event: TapEvent{
				Kind: EventKindRecord,
				Record: &RecordEvent{
					DID: "did:plc:abc", Collection: testCollection, Rkey: "r1",
					Action: "upsert",
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &fakeApplier{}
			enq := &fakeEnqueuer{}
			h := NewHandler(applier, enq, testCollection)

			err := h.HandleEvent(context.Background(), tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(applier.applied) != tt.wantApplied {
				t.Errorf("applied = %d, want %d", len(applier.applied), tt.wantApplied)
			}
			if len(applier.deleted) != tt.wantDeleted {
				t.Errorf("deleted = %d, want %d", len(applier.deleted), tt.wantDeleted)
			}
			if len(enq.items) != tt.wantQueued {
				t.Errorf("queued = %d, want %d", len(enq.items), tt.wantQueued)
			}
		})
	}
}

func TestHandleBatchEvent(t *testing.T) {
	applier := &fakeApplier{}
	enq := &fakeEnqueuer{}
	h := NewHandler(applier, enq, testCollection)
	ctx := context.Background()

	// Commit without embedded record enqueues.
	processed, err := h.HandleBatchEvent(ctx, BatchEvent{
		Type: "commit", DID: "did:plc:abc", Collection: testCollection, Rkey: "r1",
	})
	if err != nil || !processed {
		t.Fatalf("HandleBatchEvent(commit) = (%v, %v), want processed", processed, err)
	}
	if len(enq.items) != 1 {
		t.Errorf("queued = %d, want 1", len(enq.items))
	}

	// Delete cascades.
	processed, err = h.HandleBatchEvent(ctx, BatchEvent{
		Type: ActionDelete, DID: "did:plc:abc", Collection: testCollection, Rkey: "r1",
	})
	if err != nil || !processed {
		t.Fatalf("HandleBatchEvent(delete) = (%v, %v), want processed", processed, err)
	}
	if len(applier.deleted) != 1 {
		t.Errorf("deleted = %d, want 1", len(applier.deleted))
	}

	// Missing rkey skipped.
	processed, err = h.HandleBatchEvent(ctx, BatchEvent{
		Type: "commit", DID: "did:plc:abc", Collection: testCollection,
	})
	if err != nil || processed {
		t.Errorf("HandleBatchEvent(no rkey) = (%v, %v), want skipped", processed, err)
	}

	// Handler errors propagate.
	applier.err = errors.New("boom")
	_, err = h.HandleBatchEvent(ctx, BatchEvent{
		Type: ActionDelete, DID: "did:plc:abc", Collection: testCollection, Rkey: "r2",
	})
	if err == nil {
		t.Error("HandleBatchEvent() should propagate applier errors")
	}
}
