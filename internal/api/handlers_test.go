package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/standard-site/siteindex/internal/models"
)

func someString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func testDocument(rkey, title string) *models.ResolvedDocument {
	doc := &models.ResolvedDocument{
		URI:        "at://did:plc:abc/" + testCollection + "/" + rkey,
		DID:        "did:plc:abc",
		Collection: testCollection,
		Rkey:       rkey,
		Content:    someString(`{"blocks":[]}`),
		ViewURL:    someString("https://example.com/posts/" + rkey),
		Verified:   true,
		ResolvedAt: time.Now().UTC(),
		StaleAt:    time.Now().UTC().Add(24 * time.Hour),
	}
	if title != "" {
		doc.Title = someString(title)
	}
	return doc
}

func testRecord(did, rkey string) *models.RepoRecord {
	return &models.RepoRecord{
		DID:        did,
		Collection: testCollection,
		Rkey:       rkey,
		SyncedAt:   time.Now().UTC(),
	}
}

func rkeyFor(i int) string {
	return fmt.Sprintf("3k%04d", i)
}

func TestFeedHandler(t *testing.T) {
	srv := newTestServer(t, "")
	srv.store.docs = append(srv.store.docs, testDocument("r2", "Second"), testDocument("r1", ""))

	w := srv.request(http.MethodGet, "/feed?limit=10", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count     int            `json:"count"`
		Limit     int            `json:"limit"`
		Documents []documentView `json:"documents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Count != 2 || len(resp.Documents) != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	if resp.Documents[0].Title != "Second" {
		t.Errorf("title = %q, want %q", resp.Documents[0].Title, "Second")
	}
	// Missing titles fall back rather than serving empty strings.
	if resp.Documents[1].Title != "Untitled" {
		t.Errorf("fallback title = %q, want %q", resp.Documents[1].Title, "Untitled")
	}
	if resp.Documents[0].ViewURL == nil || *resp.Documents[0].ViewURL != "https://example.com/posts/r2" {
		t.Errorf("viewUrl = %v, want resolved URL", resp.Documents[0].ViewURL)
	}
	var content map[string]interface{}
	if err := json.Unmarshal(resp.Documents[0].Content, &content); err != nil {
		t.Errorf("content should round-trip as JSON: %v", err)
	}
}

func TestFeedRawLimitCap(t *testing.T) {
	srv := newTestServer(t, "")
	for i := 0; i < 30; i++ {
		srv.store.records = append(srv.store.records, testRecord("did:plc:abc", rkeyFor(i)))
	}

	w := srv.request(http.MethodGet, "/feed/raw?limit=100", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Count   int         `json:"count"`
		Limit   int         `json:"limit"`
		Records []recordRef `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Limit != maxRawFeedLimit || resp.Count != maxRawFeedLimit {
		t.Errorf("limit = %d, count = %d, want both capped at %d", resp.Limit, resp.Count, maxRawFeedLimit)
	}

	// The legacy alias serves the same payload.
	alias := srv.request(http.MethodGet, "/feed-raw?limit=100", "", "")
	if alias.Code != http.StatusOK {
		t.Fatalf("alias status = %d", alias.Code)
	}
	if alias.Body.String() != w.Body.String() {
		t.Error("alias response differs from /feed/raw")
	}
}

func TestRecordsHandler(t *testing.T) {
	srv := newTestServer(t, "")
	srv.store.records = append(srv.store.records,
		testRecord("did:plc:abc", "r1"),
		testRecord("did:plc:abc", "r2"),
		testRecord("did:plc:other", "r9"))

	w := srv.request(http.MethodGet, "/records/did:plc:abc", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		DID     string       `json:"did"`
		Count   int          `json:"count"`
		Records []recordView `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.DID != "did:plc:abc" || resp.Count != 2 {
		t.Errorf("response = %+v, want 2 records for did:plc:abc", resp)
	}
}

func TestStatsHandler(t *testing.T) {
	srv := newTestServer(t, "")
	srv.store.records = append(srv.store.records, testRecord("did:plc:abc", "r1"))
	srv.store.docs = append(srv.store.docs, testDocument("r1", "Doc"))

	w := srv.request(http.MethodGet, "/stats", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp["repo_records"] != 1 || resp["resolved_documents"] != 1 {
		t.Errorf("stats = %v", resp)
	}
}

func TestResolveAllHandler(t *testing.T) {
	srv := newTestServer(t, "")
	for i := 0; i < 250; i++ {
		srv.store.records = append(srv.store.records, testRecord("did:plc:abc", rkeyFor(i)))
	}

	w := srv.request(http.MethodPost, "/admin/resolve-all", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Queued int `json:"queued"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Queued != 250 {
		t.Errorf("queued = %d, want 250", resp.Queued)
	}
	if len(srv.queue.batches) != 3 {
		t.Errorf("batches = %d, want 3", len(srv.queue.batches))
	}
}

func TestResolveAllEmpty(t *testing.T) {
	srv := newTestServer(t, "")

	w := srv.request(http.MethodPost, "/admin/resolve-all", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(srv.queue.batches) != 0 {
		t.Error("nothing should be enqueued for an empty index")
	}
}

func TestMarkStaleHandler(t *testing.T) {
	srv := newTestServer(t, "")
	srv.store.docs = append(srv.store.docs, testDocument("r1", "Doc"))

	w := srv.request(http.MethodPost, "/admin/mark-stale", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !srv.store.staleAt.Before(time.Now()) {
		t.Error("stale deadline should be forced into the past")
	}

	var resp struct {
		Affected int64 `json:"affected"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Affected != 1 {
		t.Errorf("affected = %d, want 1", resp.Affected)
	}
}
