package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/standard-site/siteindex/internal/ingest"
	"github.com/standard-site/siteindex/internal/models"
	"github.com/standard-site/siteindex/internal/queue"
)

const testCollection = "site.standard.document"

type fakeStore struct {
	docs    []*models.ResolvedDocument
	records []*models.RepoRecord
	staleAt time.Time
}

func (f *fakeStore) ListVerifiedDocuments(ctx context.Context, limit, offset int) ([]*models.ResolvedDocument, error) {
	return page(f.docs, limit, offset), nil
}

func (f *fakeStore) ListRecordsByDID(ctx context.Context, did, collection string, limit, offset int) ([]*models.RepoRecord, error) {
	var matched []*models.RepoRecord
	for _, rec := range f.records {
		if rec.DID == did && rec.Collection == collection {
			matched = append(matched, rec)
		}
	}
	return page(matched, limit, offset), nil
}

func (f *fakeStore) ListRecordPage(ctx context.Context, collection string, limit, offset int) ([]*models.RepoRecord, error) {
	return page(f.records, limit, offset), nil
}

func (f *fakeStore) ListAllRecords(ctx context.Context, collection string) ([]*models.RepoRecord, error) {
	return f.records, nil
}

func (f *fakeStore) MarkAllStale(ctx context.Context, staleAt time.Time) (int64, error) {
	f.staleAt = staleAt
	return int64(len(f.docs)), nil
}

func (f *fakeStore) CountRecords(ctx context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

func (f *fakeStore) CountPDSEntries(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeStore) CountDocuments(ctx context.Context) (int64, error) {
	return int64(len(f.docs)), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

type fakeQueue struct {
	batches [][]queue.WorkItem
	single  []queue.WorkItem
}

func (f *fakeQueue) EnqueueBatch(ctx context.Context, items []queue.WorkItem) error {
	batch := make([]queue.WorkItem, len(items))
	copy(batch, items)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeQueue) Enqueue(ctx context.Context, item queue.WorkItem) error {
	f.single = append(f.single, item)
	return nil
}

func (f *fakeQueue) Depth(ctx context.Context) (int64, error) {
	return int64(len(f.single)), nil
}

type fakeApplier struct {
	applied []string
	deleted []string
}

func (f *fakeApplier) ApplyRecord(ctx context.Context, did, collection, rkey, cid string, value map[string]interface{}) error {
	f.applied = append(f.applied, did+"/"+rkey)
	return nil
}

func (f *fakeApplier) Delete(ctx context.Context, did, collection, rkey string) error {
	f.deleted = append(f.deleted, did+"/"+rkey)
	return nil
}

type testServer struct {
	engine  *gin.Engine
	store   *fakeStore
	queue   *fakeQueue
	applier *fakeApplier
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &fakeStore{}
	q := &fakeQueue{}
	applier := &fakeApplier{}
	events := ingest.NewHandler(applier, q, testCollection)

	engine := gin.New()
	NewRouter(store, q, events, testCollection, secret).SetupRoutes(engine)

	return &testServer{engine: engine, store: store, queue: q, applier: applier}
}

func (s *testServer) request(method, path, auth, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func basicAuth(secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:"+secret))
}

func TestWebhookAuth(t *testing.T) {
	const secret = "s3cret"
	eventBody := `{"type":"record","record":{"did":"did:plc:abc","collection":"site.standard.document","rkey":"r1","action":"delete"}}`

	tests := []struct {
		name       string
		secret     string
		auth       string
		wantStatus int
	}{
		{"no secret configured allows anything", "", "", http.StatusOK},
		{"basic auth accepted", secret, basicAuth(secret), http.StatusOK},
		{"bearer token accepted", secret, "Bearer " + secret, http.StatusOK},
		{"wrong bearer rejected", secret, "Bearer nope", http.StatusUnauthorized},
		{"wrong basic user rejected", secret, "Basic " + base64.StdEncoding.EncodeToString([]byte("root:"+secret)), http.StatusUnauthorized},
		{"missing header rejected", secret, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.secret)
			w := srv.request(http.MethodPost, "/webhook/tap", tt.auth, eventBody)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			// Rejected requests must never reach the pipeline.
			if tt.wantStatus == http.StatusUnauthorized && len(srv.applier.deleted) != 0 {
				t.Error("unauthorized request was processed")
			}
		})
	}
}

func TestWebhookSingleEvent(t *testing.T) {
	srv := newTestServer(t, "")

	body := `{"type":"record","record":{"did":"did:plc:abc","collection":"site.standard.document","rkey":"r1","action":"create","record":{"title":"hello"}}}`
	w := srv.request(http.MethodPost, "/webhook/tap", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(srv.applier.applied) != 1 {
		t.Errorf("applied = %d, want 1", len(srv.applier.applied))
	}

	w = srv.request(http.MethodPost, "/webhook/tap", "", `{"type":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}
}

func TestWebhookBatch(t *testing.T) {
	srv := newTestServer(t, "")

	body := `[
		{"type":"commit","did":"did:plc:abc","collection":"site.standard.document","rkey":"r1"},
		{"type":"delete","did":"did:plc:abc","collection":"site.standard.document","rkey":"r2"},
		{"type":"commit","did":"did:plc:abc","collection":"app.bsky.feed.post","rkey":"r3"}
	]`
	w := srv.request(http.MethodPost, "/webhook/tap/batch", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		OK        bool `json:"ok"`
		Processed int  `json:"processed"`
		Errors    int  `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !resp.OK || resp.Processed != 2 || resp.Errors != 0 {
		t.Errorf("response = %+v, want ok with 2 processed", resp)
	}
	if len(srv.queue.single) != 1 {
		t.Errorf("enqueued = %d, want 1", len(srv.queue.single))
	}
	if len(srv.applier.deleted) != 1 {
		t.Errorf("deleted = %d, want 1", len(srv.applier.deleted))
	}
}
