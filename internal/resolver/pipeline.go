package resolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/juju/clock"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/atproto"
	"github.com/standard-site/siteindex/internal/models"
	"github.com/standard-site/siteindex/pkg/logging"
	"github.com/standard-site/siteindex/pkg/telemetry"
)

var repeatedSpaceRegex = regexp.MustCompile(`\s+`)

// DocumentStore is the persistence contract for the pipeline's output
type DocumentStore interface {
	UpsertRepoRecord(ctx context.Context, rec *models.RepoRecord) error
	UpsertDocument(ctx context.Context, doc *models.ResolvedDocument) error
	DeleteDocument(ctx context.Context, did, collection, rkey string) error
}

// Pipeline turns a bare (did, collection, rkey) reference into a fully
// resolved, ownership-verified document row. Processing is idempotent and
// safe to re-run: it has no internal retry, relying entirely on the
// surrounding at-least-once delivery for recovery.
type Pipeline struct {
	store      DocumentStore
	pds        *PDSResolver
	pubs       *PublicationResolver
	verifier   *Verifier
	fetcher    RecordFetcher
	clock      clock.Clock
	staleAfter time.Duration
	sanitizer  *bluemonday.Policy
	logger     *zap.Logger
}

// NewPipeline creates a new document resolution pipeline
func NewPipeline(
	store DocumentStore,
	pds *PDSResolver,
	pubs *PublicationResolver,
	verifier *Verifier,
	fetcher RecordFetcher,
	clk clock.Clock,
	staleAfter time.Duration,
) *Pipeline {
	return &Pipeline{
		store:      store,
		pds:        pds,
		pubs:       pubs,
		verifier:   verifier,
		fetcher:    fetcher,
		clock:      clk,
		staleAfter: staleAfter,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logging.GetLogger().With(zap.String("component", "pipeline")),
	}
}

// ProcessDocument resolves one work item end to end. A nil return means the
// item is settled (resolved, skipped, or deleted upstream); a non-nil error
// is retryable and the caller must redeliver the work item.
func (p *Pipeline) ProcessDocument(ctx context.Context, did, collection, rkey string) error {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.process_document")
	defer span.End()

	pds, ok := p.pds.Resolve(ctx, did)
	if !ok {
		// Stored state stays untouched; the staleness sweep retries later.
		p.logger.Warn("Could not resolve PDS, skipping",
			zap.String("did", did),
			zap.String("rkey", rkey))
		return nil
	}

	rec, err := p.fetcher.GetRecord(ctx, pds, did, collection, rkey)
	if errors.Is(err, atproto.ErrRecordNotFound) {
		p.logger.Info("Record deleted upstream, cascading delete",
			zap.String("did", did),
			zap.String("rkey", rkey))
		return p.store.DeleteDocument(ctx, did, collection, rkey)
	}
	if err != nil {
		return fmt.Errorf("record fetch failed: %w", err)
	}

	return p.applyRecord(ctx, did, collection, rkey, pds, rec.Cid, rec.Value)
}

// ApplyRecord resolves and stores a record value already in hand, as
// delivered inline by ingestion events. The fetch step is skipped; everything
// downstream of it runs the same as ProcessDocument.
func (p *Pipeline) ApplyRecord(ctx context.Context, did, collection, rkey, cid string, value map[string]interface{}) error {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.apply_record")
	defer span.End()

	// Blob and view URLs degrade gracefully when the PDS is unresolvable.
	pds, _ := p.pds.Resolve(ctx, did)
	return p.applyRecord(ctx, did, collection, rkey, pds, cid, value)
}

// Delete cascades removal of the raw-record index entry and the resolved
// document for an address.
func (p *Pipeline) Delete(ctx context.Context, did, collection, rkey string) error {
	return p.store.DeleteDocument(ctx, did, collection, rkey)
}

func (p *Pipeline) applyRecord(ctx context.Context, did, collection, rkey, pdsEndpoint, cid string, value map[string]interface{}) error {
	now := p.clock.Now().UTC()

	rec := &models.RepoRecord{
		DID:        did,
		Collection: collection,
		Rkey:       rkey,
		Cid:        nullString(cid),
		SyncedAt:   now,
	}
	if err := p.store.UpsertRepoRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to upsert repo record: %w", err)
	}

	uri := atproto.BuildURI(did, collection, rkey)
	doc := &models.ResolvedDocument{
		URI:        uri,
		DID:        did,
		Collection: collection,
		Rkey:       rkey,

		Title:       nullString(stringField(value, "title")),
		Description: nullString(stringField(value, "description")),
		Path:        nullString(stringField(value, "path")),
		Site:        nullString(stringField(value, "site")),
		PublishedAt: nullString(stringField(value, "publishedAt")),
		UpdatedAt:   nullString(stringField(value, "updatedAt")),

		PDSEndpoint: nullString(pdsEndpoint),
		ResolvedAt:  now,
		StaleAt:     now.Add(p.staleAfter),
	}

	if content, ok := value["content"]; ok && content != nil {
		if raw, err := json.Marshal(content); err == nil {
			doc.Content = nullString(string(raw))
		}
	}
	if text := stringField(value, "textContent"); text != "" {
		doc.TextContent = nullString(p.sanitizeText(text))
	}
	if tags, ok := value["tags"]; ok && tags != nil {
		if raw, err := json.Marshal(tags); err == nil {
			doc.Tags = nullString(string(raw))
		}
	}
	if ref, ok := value["bskyPostRef"]; ok && ref != nil {
		if raw, err := json.Marshal(ref); err == nil {
			doc.BskyPostRef = nullString(string(raw))
		}
	}

	if blobCid, ok := atproto.ExtractBlobCid(value["coverImage"]); ok {
		doc.CoverImageCid = nullString(blobCid)
		if pdsEndpoint != "" {
			doc.CoverImageURL = nullString(atproto.BuildBlobURL(pdsEndpoint, did, blobCid))
		}
	}

	site := stringField(value, "site")
	path := stringField(value, "path")

	var pubBase, viewURL string
	if site != "" {
		if atproto.IsURI(site) {
			if pub, ok := p.pubs.Resolve(ctx, site); ok {
				pubBase = pub.URL
				doc.PubURL = nullString(pub.URL)
				doc.PubName = nullString(pub.Name)
				doc.PubDescription = nullString(pub.Description)
				doc.PubIconCid = nullString(pub.IconCid)
				doc.PubIconURL = nullString(pub.IconURL)
			}
		} else {
			// The site field is the publication base itself.
			pubBase = site
			doc.PubURL = nullString(site)
		}
	}
	if pubBase != "" && path != "" {
		if resolved, ok := BuildViewURL(pubBase, path); ok {
			viewURL = resolved
			doc.ViewURL = nullString(resolved)
		}
	}

	doc.Verified = p.verifier.VerifyDocumentRecord(ctx, pubBase, site, viewURL, uri)

	if err := p.store.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert resolved document: %w", err)
	}

	p.logger.Debug("Document resolved",
		zap.String("uri", uri),
		zap.String("view_url", viewURL),
		zap.Bool("verified", doc.Verified))

	return nil
}

// sanitizeText strips markup and collapses whitespace before storage
func (p *Pipeline) sanitizeText(text string) string {
	return repeatedSpaceRegex.ReplaceAllString(p.sanitizer.Sanitize(text), " ")
}

func stringField(value map[string]interface{}, key string) string {
	s, _ := value[key].(string)
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
