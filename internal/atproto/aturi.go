package atproto

import (
	"fmt"
	"regexp"
	"strings"
)

var uriRegex = regexp.MustCompile(`^at://([^/]+)/([^/]+)/([^/]+)$`)

// URI holds the components of a record address
type URI struct {
	DID        string
	Collection string
	Rkey       string
}

// ParseURI parses a canonical at:// record address. Returns false for any
// string that is not exactly at://{did}/{collection}/{rkey}.
func ParseURI(uri string) (URI, bool) {
	match := uriRegex.FindStringSubmatch(uri)
	if match == nil {
		return URI{}, false
	}
	return URI{DID: match[1], Collection: match[2], Rkey: match[3]}, true
}

// BuildURI constructs the canonical record address for a reference
func BuildURI(did, collection, rkey string) string {
	return fmt.Sprintf("at://%s/%s/%s", did, collection, rkey)
}

// IsURI reports whether s looks like a record address rather than a plain URL
func IsURI(s string) bool {
	return strings.HasPrefix(s, "at://")
}

// String returns the canonical form of the URI
func (u URI) String() string {
	return BuildURI(u.DID, u.Collection, u.Rkey)
}
