package resolver

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/standard-site/siteindex/internal/atproto"
	"github.com/standard-site/siteindex/pkg/logging"
	"github.com/standard-site/siteindex/pkg/telemetry"
)

const wellKnownPath = "/.well-known/site.standard.publication"

var (
	// Locate <link rel="site.standard.document" href="..."> and capture the
	// href value; the attributes can appear in either order within the tag.
	relHrefRegex = regexp.MustCompile(`(?i)<link[^>]+rel=["']site\.standard\.document["'][^>]+href=["']([^"']+)["'][^>]*>`)
	hrefRelRegex = regexp.MustCompile(`(?i)<link[^>]+href=["']([^"']+)["'][^>]+rel=["']site\.standard\.document["'][^>]*>`)
)

// Verifier independently confirms that a claimed publisher or document
// controls the web location it claims, via two decoupled challenges.
type Verifier struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVerifier creates a new verification engine
func NewVerifier(timeout time.Duration) *Verifier {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Verifier{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.GetLogger().With(zap.String("component", "verifier")),
	}
}

// VerifyPublication runs the publication challenge: fetch the well-known
// document under the claimed base URL and require its trimmed body to equal
// the publication's record address byte for byte. Any error fails the
// challenge.
func (v *Verifier) VerifyPublication(ctx context.Context, pubURL, siteURI string) bool {
	ctx, span := telemetry.StartSpan(ctx, "verify.publication")
	defer span.End()

	base := pubURL
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	wellKnownURL := strings.TrimSuffix(base, "/") + wellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Debug("Publication challenge fetch failed",
			zap.String("url", wellKnownURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}

	return strings.TrimSpace(string(body)) == strings.TrimSpace(siteURI)
}

// VerifyDocument runs the document challenge: fetch the document's canonical
// page and require a link tag with the document relation whose trimmed href
// equals the document's record address. Any error fails the challenge.
func (v *Verifier) VerifyDocument(ctx context.Context, viewURL, documentURI string) bool {
	ctx, span := telemetry.StartSpan(ctx, "verify.document")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, viewURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "text/html")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Debug("Document challenge fetch failed",
			zap.String("url", viewURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}

	match := relHrefRegex.FindSubmatch(html)
	if match == nil {
		match = hrefRelRegex.FindSubmatch(html)
	}
	if match == nil {
		return false
	}

	return strings.TrimSpace(string(match[1])) == strings.TrimSpace(documentURI)
}

// VerifyDocumentRecord OR-combines the two challenges. The publication
// challenge runs first, and only when the site field is a record address; on
// success it short-circuits. The document challenge runs when a view URL
// exists. A publication that proves control of its base URL vouches for all
// documents it claims.
func (v *Verifier) VerifyDocumentRecord(ctx context.Context, pubURL, siteURI, viewURL, documentURI string) bool {
	if pubURL != "" && atproto.IsURI(siteURI) {
		if v.VerifyPublication(ctx, pubURL, siteURI) {
			return true
		}
	}

	if viewURL != "" {
		if v.VerifyDocument(ctx, viewURL, documentURI) {
			return true
		}
	}

	return false
}
