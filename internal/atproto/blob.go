package atproto

import (
	"fmt"
	"net/url"
	"strings"
)

// ExtractBlobCid extracts the content identifier from a blob reference.
// Blob refs appear in three shapes, tried in order:
//   - { ref: { $link: "cid" } } (current)
//   - { $link: "cid" } (legacy)
//   - { cid: "cid" } (simple)
//
// Unrecognized or malformed input returns false, never an error.
func ExtractBlobCid(blob interface{}) (string, bool) {
	b, ok := blob.(map[string]interface{})
	if !ok {
		return "", false
	}

	if ref, ok := b["ref"].(map[string]interface{}); ok {
		if link, ok := ref["$link"].(string); ok {
			return link, true
		}
	}

	if link, ok := b["$link"].(string); ok {
		return link, true
	}

	if cid, ok := b["cid"].(string); ok {
		return cid, true
	}

	return "", false
}

// BuildBlobURL constructs the fetchable URL for a blob hosted on a PDS.
// Format: {pds}/xrpc/com.atproto.sync.getBlob?did={did}&cid={cid}
func BuildBlobURL(pds, did, cid string) string {
	base := strings.TrimSuffix(pds, "/")
	return fmt.Sprintf("%s/xrpc/com.atproto.sync.getBlob?did=%s&cid=%s",
		base, url.QueryEscape(did), url.QueryEscape(cid))
}
