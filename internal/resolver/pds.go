package resolver

import (
	"context"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/standard-site/siteindex/pkg/logging"
)

// PDSCache is the persistence contract for cached DID-to-endpoint mappings
type PDSCache interface {
	GetPDS(ctx context.Context, did string) (endpoint string, cachedAt time.Time, err error)
	PutPDS(ctx context.Context, did, endpoint string, cachedAt time.Time) error
}

// IdentityResolver fetches the hosting endpoint from a DID's identity document
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, did string) (string, bool)
}

// PDSResolver maps a DID to its current hosting endpoint with a time-boxed
// cache. A fresh cache entry is authoritative; an entry older than the TTL is
// treated as absent and re-resolved.
type PDSResolver struct {
	cache    PDSCache
	identity IdentityResolver
	clock    clock.Clock
	ttl      time.Duration
	logger   *zap.Logger
}

// NewPDSResolver creates a new PDS resolver
func NewPDSResolver(cache PDSCache, identity IdentityResolver, clk clock.Clock, ttl time.Duration) *PDSResolver {
	return &PDSResolver{
		cache:    cache,
		identity: identity,
		clock:    clk,
		ttl:      ttl,
		logger:   logging.GetLogger().With(zap.String("component", "pds-resolver")),
	}
}

// Resolve returns the hosting endpoint for a DID. Absence (network failure,
// missing service entry) returns ok=false; callers treat that as "resolution
// incomplete, retry later", not a terminal fault.
func (r *PDSResolver) Resolve(ctx context.Context, did string) (string, bool) {
	endpoint, cachedAt, err := r.cache.GetPDS(ctx, did)
	if err != nil {
		r.logger.Warn("PDS cache read failed", zap.String("did", did), zap.Error(err))
	} else if endpoint != "" && r.clock.Now().Sub(cachedAt) < r.ttl {
		return endpoint, true
	}

	endpoint, ok := r.identity.ResolveIdentity(ctx, did)
	if !ok {
		return "", false
	}

	if err := r.cache.PutPDS(ctx, did, endpoint, r.clock.Now()); err != nil {
		// A failed cache write only costs a re-fetch on the next lookup.
		r.logger.Warn("PDS cache write failed", zap.String("did", did), zap.Error(err))
	}

	return endpoint, true
}
