package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/atproto"
	"github.com/standard-site/siteindex/pkg/logging"
)

// RecordFetcher reads repository records from a PDS
type RecordFetcher interface {
	GetRecord(ctx context.Context, pds, repo, collection, rkey string) (*atproto.Record, error)
}

// Publication is a publisher's normalized metadata
type Publication struct {
	URL         string
	Name        string
	Description string
	IconCid     string
	IconURL     string
}

// PublicationResolver fetches and normalizes publication records
type PublicationResolver struct {
	pds     *PDSResolver
	fetcher RecordFetcher
	logger  *zap.Logger
}

// NewPublicationResolver creates a new publication resolver
func NewPublicationResolver(pds *PDSResolver, fetcher RecordFetcher) *PublicationResolver {
	return &PublicationResolver{
		pds:     pds,
		fetcher: fetcher,
		logger:  logging.GetLogger().With(zap.String("component", "publication-resolver")),
	}
}

// Resolve fetches the publication record at the given record address. A
// publication without both a url and a name is unusable downstream, so any
// fetch, parse or validation failure yields ok=false, never an error.
func (r *PublicationResolver) Resolve(ctx context.Context, siteURI string) (*Publication, bool) {
	parsed, ok := atproto.ParseURI(siteURI)
	if !ok {
		return nil, false
	}

	pds, ok := r.pds.Resolve(ctx, parsed.DID)
	if !ok {
		return nil, false
	}

	rec, err := r.fetcher.GetRecord(ctx, pds, parsed.DID, parsed.Collection, parsed.Rkey)
	if err != nil {
		r.logger.Debug("Publication fetch failed",
			zap.String("uri", siteURI),
			zap.Error(err))
		return nil, false
	}

	baseURL, _ := rec.Value["url"].(string)
	if baseURL == "" {
		// Older publication records carried the base under "domain".
		baseURL, _ = rec.Value["domain"].(string)
	}
	name, _ := rec.Value["name"].(string)
	if baseURL == "" || name == "" {
		return nil, false
	}

	description, _ := rec.Value["description"].(string)

	pub := &Publication{
		URL:         baseURL,
		Name:        name,
		Description: description,
	}

	if cid, ok := atproto.ExtractBlobCid(rec.Value["icon"]); ok {
		pub.IconCid = cid
		pub.IconURL = atproto.BuildBlobURL(pds, parsed.DID, cid)
	}

	return pub, true
}
