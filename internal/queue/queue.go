package queue

// WorkItem is the sole contract between ingestion / the staleness sweep and
// the pipeline consumer: a bare record reference awaiting resolution.
type WorkItem struct {
	DID        string `json:"did"`
	Collection string `json:"collection"`
	Rkey       string `json:"rkey"`
}
