package ingest

// Event kinds delivered by the tap webhook
const (
	EventKindRecord   = "record"
	EventKindIdentity = "identity"
)

// Record actions
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// TapEvent is the tagged union of ingestion payloads, discriminated by Kind.
// Exactly one of Record or Identity is populated.
type TapEvent struct {
	ID       int64          `json:"id"`
	Kind     string         `json:"type"`
	Record   *RecordEvent   `json:"record,omitempty"`
	Identity *IdentityEvent `json:"identity,omitempty"`
}

// RecordEvent is a repository record change
type RecordEvent struct {
	Live       bool                   `json:"live"`
	Rev        string                 `json:"rev"`
	DID        string                 `json:"did"`
	Collection string                 `json:"collection"`
	Rkey       string                 `json:"rkey"`
	Action     string                 `json:"action"`
	Cid        string                 `json:"cid,omitempty"`
	Record     map[string]interface{} `json:"record,omitempty"`
}

// IdentityEvent is an identity state change for a DID
type IdentityEvent struct {
	DID      string `json:"did"`
	Handle   string `json:"handle"`
	IsActive bool   `json:"isActive"`
	Status   string `json:"status"`
}

// BatchEvent is the flattened per-entry shape used by the batch webhook
type BatchEvent struct {
	Type       string                 `json:"type"`
	DID        string                 `json:"did"`
	Collection string                 `json:"collection,omitempty"`
	Rkey       string                 `json:"rkey,omitempty"`
	Cid        string                 `json:"cid,omitempty"`
	Record     map[string]interface{} `json:"record,omitempty"`
}
