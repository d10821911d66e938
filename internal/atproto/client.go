package atproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/standard-site/siteindex/pkg/logging"
	"github.com/standard-site/siteindex/pkg/telemetry"
)

// ErrRecordNotFound signals the origin host returned 404 for a record fetch:
// the record was deleted upstream. Callers treat this as a terminal outcome,
// not a retryable failure.
var ErrRecordNotFound = errors.New("record not found")

const pdsServiceID = "#atproto_pds"

// Client performs outbound origin calls: identity-document fetches by DID
// and repository-record reads by (repo, collection, rkey).
type Client struct {
	httpClient *http.Client
	plcURL     string
	logger     *zap.Logger
}

// NewClient creates a new AT Protocol origin client
func NewClient(plcURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		plcURL:     plcURL,
		logger:     logging.GetLogger().With(zap.String("component", "atproto-client")),
	}
}

// identityDocument is the subset of the DID document we read
type identityDocument struct {
	Service []struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		ServiceEndpoint string `json:"serviceEndpoint"`
	} `json:"service"`
}

// ResolveIdentity fetches a DID's public identity document and returns the
// repository-hosting service endpoint. Network failures, non-success
// responses and missing service entries all yield ok=false: resolution is
// incomplete, callers retry on a later pass.
func (c *Client) ResolveIdentity(ctx context.Context, did string) (string, bool) {
	ctx, span := telemetry.StartSpan(ctx, "atproto.resolve_identity")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.plcURL+"/"+did, nil)
	if err != nil {
		return "", false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Identity fetch failed", zap.String("did", did), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Identity fetch returned non-OK status",
			zap.String("did", did),
			zap.Int("status", resp.StatusCode))
		return "", false
	}

	var doc identityDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		c.logger.Debug("Failed to decode identity document", zap.String("did", did), zap.Error(err))
		return "", false
	}

	for _, svc := range doc.Service {
		if svc.ID == pdsServiceID && svc.ServiceEndpoint != "" {
			return svc.ServiceEndpoint, true
		}
	}

	return "", false
}

// Record is a repository record as returned by com.atproto.repo.getRecord
type Record struct {
	URI   string                 `json:"uri"`
	Cid   string                 `json:"cid"`
	Value map[string]interface{} `json:"value"`
}

// GetRecord fetches a record from a PDS via the repository-record-read
// endpoint. A 404 response returns ErrRecordNotFound; any other non-success
// status is a retryable error.
func (c *Client) GetRecord(ctx context.Context, pds, repo, collection, rkey string) (*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "atproto.get_record")
	defer span.End()

	endpoint := fmt.Sprintf("%s/xrpc/com.atproto.repo.getRecord?repo=%s&collection=%s&rkey=%s",
		pds,
		url.QueryEscape(repo),
		url.QueryEscape(collection),
		url.QueryEscape(rkey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build record request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s/%s/%s: %w", repo, collection, rkey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrRecordNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("record fetch for %s/%s/%s returned status %d", repo, collection, rkey, resp.StatusCode)
	}

	var record Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode record %s/%s/%s: %w", repo, collection, rkey, err)
	}

	return &record, nil
}
